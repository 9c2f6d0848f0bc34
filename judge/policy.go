package judge

import "strings"

// Policy reduces a free-text model reply to a verdict.
type Policy interface {
	Reduce(reply string) bool
}

// DefaultKeywords are the affirmative markers accepted by KeywordPolicy.
var DefaultKeywords = []string{"yes", "true", "meets", "satisfies", "affirmative"}

// KeywordPolicy is true when the lowercased reply contains any keyword.
// Containment, not equality: "Yes, definitely." is affirmative.
type KeywordPolicy struct {
	keywords []string
}

// NewKeywordPolicy uses DefaultKeywords when none are given.
func NewKeywordPolicy(keywords ...string) *KeywordPolicy {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}
	return &KeywordPolicy{keywords: lowered}
}

func (p *KeywordPolicy) Reduce(reply string) bool {
	r := strings.ToLower(reply)
	for _, k := range p.keywords {
		if strings.Contains(r, k) {
			return true
		}
	}
	return false
}
