package view

import (
	"strings"

	"fintrack/internal/core"
)

type matcher struct {
	needle string
}

func newMatcher(query string) matcher {
	return matcher{needle: strings.ToLower(strings.TrimSpace(query))}
}

func (m matcher) match(t core.Transaction) bool {
	if m.needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(t.Title), m.needle) ||
		strings.Contains(strings.ToLower(t.Category), m.needle)
}
