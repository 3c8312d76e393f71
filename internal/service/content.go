package service

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"chatapp/internal/models"

	"github.com/microcosm-cc/bluemonday"
)

// contentPolicy strips markup from comment bodies and enforces their length.
type contentPolicy struct {
	policy    *bluemonday.Policy
	maxLength int
}

func newContentPolicy(maxLength int) *contentPolicy {
	return &contentPolicy{policy: bluemonday.StrictPolicy(), maxLength: maxLength}
}

// clean returns the stored form of raw: tags removed, text HTML-escaped and
// trimmed.
func (p *contentPolicy) clean(raw string) (string, error) {
	content := strings.TrimSpace(p.policy.Sanitize(raw))
	if content == "" {
		return "", models.NewValidationError("Content is required")
	}
	if utf8.RuneCountInString(content) > p.maxLength {
		return "", models.NewValidationError(fmt.Sprintf("Comment too long (max %d characters)", p.maxLength))
	}
	return content, nil
}
