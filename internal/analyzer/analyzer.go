// Package analyzer classifies user queries: sensitivity, vagueness, and the
// need for clarification. Pure keyword/pattern scans, no model calls, so the
// checks always return a definite answer.
package analyzer

import (
	"regexp"
	"strings"
)

// Kind is a sensitivity category. Priority when multiple match: DANGER > ABUSE > SENSITIVE.
type Kind string

const (
	KindDanger    Kind = "DANGER"
	KindAbuse     Kind = "ABUSE"
	KindSensitive Kind = "SENSITIVE"
)

// Default keyword sets. These are part of the safety contract and are matched
// as case-insensitive substrings; overriding them is a configuration concern.
var (
	DefaultDangerKeywords = []string{
		"suicide", "kill myself", "end my life", "want to die", "harm myself",
	}
	DefaultAbuseKeywords = []string{
		"abuse", "violence", "beaten", "hurt me", "threaten",
	}
	DefaultSensitiveKeywords = []string{
		"financial crisis", "bankruptcy", "losing everything", "can't pay",
	}
)

// vaguePatterns match leading phrases that usually need more context to answer.
var vaguePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^how\s+(do|can|should)`),
	regexp.MustCompile(`^what\s+is`),
	regexp.MustCompile(`^tell\s+me\s+about`),
	regexp.MustCompile(`^help\s+with`),
}

// contextMarkers are first-person/context indicators that override the
// clarification heuristic: a query anchored in the user's own situation is
// answerable even when short. Matched as substrings of the lowercased query.
var contextMarkers = []string{"my", "i", "me", "specific", "situation", "current"}

// Analysis is the ephemeral result of analyzing one query.
type Analysis struct {
	Sensitive          bool
	SensitivityKind    Kind
	NeedsClarification bool
}

// Analyzer runs sensitivity and vagueness checks over raw query strings.
type Analyzer struct {
	danger    []string
	abuse     []string
	sensitive []string
}

// New returns an analyzer with the default keyword sets.
func New() *Analyzer {
	return NewWithKeywords(nil, nil, nil)
}

// NewWithKeywords returns an analyzer with configuration-supplied keyword
// sets; nil or empty slices fall back to the defaults.
func NewWithKeywords(danger, abuse, sensitive []string) *Analyzer {
	a := &Analyzer{danger: danger, abuse: abuse, sensitive: sensitive}
	if len(a.danger) == 0 {
		a.danger = DefaultDangerKeywords
	}
	if len(a.abuse) == 0 {
		a.abuse = DefaultAbuseKeywords
	}
	if len(a.sensitive) == 0 {
		a.sensitive = DefaultSensitiveKeywords
	}
	return a
}

// Analyze runs both checks over the raw query.
func (a *Analyzer) Analyze(query string) Analysis {
	kind, sensitive := a.DetectSensitive(query)
	return Analysis{
		Sensitive:          sensitive,
		SensitivityKind:    kind,
		NeedsClarification: a.NeedsClarification(query),
	}
}

// DetectSensitive returns the first matching category by priority
// DANGER > ABUSE > SENSITIVE, using case-insensitive substring matching.
func (a *Analyzer) DetectSensitive(query string) (Kind, bool) {
	lower := strings.ToLower(query)
	for _, kw := range a.danger {
		if strings.Contains(lower, kw) {
			return KindDanger, true
		}
	}
	for _, kw := range a.abuse {
		if strings.Contains(lower, kw) {
			return KindAbuse, true
		}
	}
	for _, kw := range a.sensitive {
		if strings.Contains(lower, kw) {
			return KindSensitive, true
		}
	}
	return "", false
}

// NeedsClarification reports whether the query is too vague to answer: a
// leading vague phrase with fewer than 5 words, or fewer than 3 words total.
// A first-person/context marker anywhere in the query overrides the heuristic.
func (a *Analyzer) NeedsClarification(query string) bool {
	lower := strings.ToLower(strings.TrimSpace(query))
	wordCount := len(strings.Fields(lower))

	isVague := false
	for _, p := range vaguePatterns {
		if p.MatchString(lower) {
			isVague = true
			break
		}
	}
	needs := (isVague && wordCount < 5) || wordCount < 3
	if !needs {
		return false
	}
	for _, marker := range contextMarkers {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}
