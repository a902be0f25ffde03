package telegram

import (
	"strings"
	"testing"
)

func TestSplitMessageRespectsLimit(t *testing.T) {
	var builder strings.Builder
	builder.WriteString(strings.Repeat("a", 3000))
	builder.WriteString("\n\n")
	builder.WriteString(strings.Repeat("b", 2000))
	builder.WriteString("\n")
	builder.WriteString(strings.Repeat("c", 500))

	parts := SplitMessage(builder.String())
	if len(parts) != 2 {
		t.Fatalf("ожидали 2 части, получили %d", len(parts))
	}
	for i, part := range parts {
		if length := len([]rune(part)); length > MessageLimit {
			t.Fatalf("часть %d длиннее лимита: %d", i, length)
		}
	}
	if parts[0] != strings.Repeat("a", 3000) {
		t.Fatalf("неожиданное содержимое первой части")
	}
	if !strings.HasPrefix(parts[1], "b") || !strings.HasSuffix(parts[1], strings.Repeat("c", 500)) {
		t.Fatalf("вторая часть должна содержать блоки b и c")
	}
}

func TestSplitLimitCases(t *testing.T) {
	cases := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{name: "пустой текст", text: "   \n  ", limit: 10, want: nil},
		{name: "короткий текст", text: "Goku", limit: 10, want: []string{"Goku"}},
		{name: "по строкам", text: "aaaa\nbbbb\ncc", limit: 9, want: []string{"aaaa", "bbbb\ncc"}},
		{name: "без переносов", text: "abcdefgh", limit: 3, want: []string{"abc", "def", "gh"}},
		{name: "кириллица считается рунами", text: "ждать", limit: 2, want: []string{"жд", "ат", "ь"}},
		{name: "без лимита", text: "abc", limit: 0, want: []string{"abc"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SplitLimit(tc.text, tc.limit)
			if len(got) != len(tc.want) {
				t.Fatalf("ожидали %d частей, получили %d: %q", len(tc.want), len(got), got)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("часть %d: ожидали %q, получили %q", i, tc.want[i], got[i])
				}
			}
		})
	}
}

func TestSplitCaption(t *testing.T) {
	short := "🍀 Rare\nGoku"
	caption, rest := SplitCaption(short)
	if caption != short || len(rest) != 0 {
		t.Fatalf("короткая подпись не должна делиться: %q %q", caption, rest)
	}

	long := strings.Repeat("x", 1000) + "\n" + strings.Repeat("y", 100)
	caption, rest = SplitCaption(long)
	if caption != strings.Repeat("x", 1000) {
		t.Fatalf("подпись должна закончиться на границе строки")
	}
	if len(rest) != 1 || rest[0] != strings.Repeat("y", 100) {
		t.Fatalf("остаток должен уйти отдельным сообщением: %q", rest)
	}

	if caption, rest := SplitCaption(" "); caption != "" || rest != nil {
		t.Fatalf("пустой текст даёт пустую подпись")
	}
}
