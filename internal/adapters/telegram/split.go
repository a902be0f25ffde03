// Package telegram содержит утилиты форматирования под ограничения Bot API.
package telegram

import "strings"

const (
	// MessageLimit — максимальная длина текста сообщения в рунах.
	MessageLimit = 4096
	// CaptionLimit — максимальная длина подписи к медиа в рунах.
	CaptionLimit = 1024
)

// SplitMessage режет текст на сообщения по MessageLimit.
func SplitMessage(text string) []string {
	return SplitLimit(text, MessageLimit)
}

// SplitCaption отделяет подпись для фото. Остаток, не влезший в подпись,
// возвращается отдельными сообщениями.
func SplitCaption(text string) (string, []string) {
	head := SplitLimit(text, CaptionLimit)
	if len(head) == 0 {
		return "", nil
	}
	caption := head[0]
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), caption))
	return caption, SplitMessage(rest)
}

// SplitLimit режет текст на куски не длиннее limit рун, предпочитая границы строк.
func SplitLimit(text string, limit int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if limit <= 0 {
		return []string{trimmed}
	}

	runes := []rune(trimmed)
	if len(runes) <= limit {
		return []string{trimmed}
	}

	var parts []string
	for start := 0; start < len(runes); {
		end := start + limit
		if end >= len(runes) {
			if chunk := strings.Trim(string(runes[start:]), "\n"); chunk != "" {
				parts = append(parts, chunk)
			}
			break
		}

		split := lastNewline(runes, start, end)
		if split == -1 {
			split = end
		}
		if chunk := strings.Trim(string(runes[start:split]), "\n"); chunk != "" {
			parts = append(parts, chunk)
		}

		start = split
		for start < len(runes) && runes[start] == '\n' {
			start++
		}
	}
	return parts
}

func lastNewline(runes []rune, start, end int) int {
	for i := end; i > start; i-- {
		if runes[i-1] == '\n' {
			return i
		}
	}
	return -1
}
