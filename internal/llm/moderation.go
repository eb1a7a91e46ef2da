package llm

import (
	"context"
	"strings"
)

// forbiddenWords стоп-слова модерации, проверяются по вхождению подстроки.
var forbiddenWords = []string{"убить", "смерть", "суицид", "наркотики"}

// Moderate проверяет текст по стоп-словам. true означает, что текст допустим.
func (c *Client) Moderate(_ context.Context, text string) bool {
	lower := strings.ToLower(text)
	for _, w := range forbiddenWords {
		if strings.Contains(lower, w) {
			return false
		}
	}
	return true
}
