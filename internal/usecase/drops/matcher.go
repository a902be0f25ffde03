package drops

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// MatchMode задаёт правило сравнения догадки с именем персонажа.
type MatchMode string

const (
	// MatchAnyToken засчитывает совпадение множеств слов либо любое общее слово.
	MatchAnyToken MatchMode = "any_token"
	// MatchTokenSet засчитывает только совпадение множеств слов без учёта порядка.
	MatchTokenSet MatchMode = "token_set"
)

// Символы, при которых догадка отклоняется без сравнения.
const forbiddenGuessChars = "()&"

// ParseMatchMode разбирает значение из конфигурации.
func ParseMatchMode(value string) (MatchMode, error) {
	switch mode := MatchMode(strings.ToLower(strings.TrimSpace(value))); mode {
	case "", MatchAnyToken:
		return MatchAnyToken, nil
	case MatchTokenSet:
		return MatchTokenSet, nil
	default:
		return "", fmt.Errorf("неизвестный режим сравнения %q", value)
	}
}

// Matcher сравнивает догадки с именами персонажей.
type Matcher struct {
	mode MatchMode
}

// NewMatcher создаёт сравнитель.
func NewMatcher(mode MatchMode) Matcher {
	if mode == "" {
		mode = MatchAnyToken
	}
	return Matcher{mode: mode}
}

// Mode возвращает действующее правило.
func (m Matcher) Mode() MatchMode {
	return m.mode
}

// Rejected сообщает, что догадка содержит запрещённые символы.
func Rejected(guess string) bool {
	return strings.ContainsAny(guess, forbiddenGuessChars)
}

// Match сообщает, угадано ли имя.
func (m Matcher) Match(guess, name string) bool {
	if Rejected(guess) {
		return false
	}
	g := tokenSet(guess)
	n := tokenSet(name)
	if len(g) == 0 || len(n) == 0 {
		return false
	}
	if sameSet(g, n) {
		return true
	}
	if m.mode == MatchTokenSet {
		return false
	}
	for token := range g {
		if _, ok := n[token]; ok {
			return true
		}
	}
	return false
}

func tokenSet(s string) map[string]struct{} {
	// cases.Caser хранит состояние, поэтому создаётся на каждый вызов.
	folded := cases.Fold().String(norm.NFKC.String(s))
	fields := strings.Fields(folded)
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func sameSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
