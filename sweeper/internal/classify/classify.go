// Package classify decides what to do with a feed item. Rules are evaluated
// in a fixed order and the first match wins; keyword mode, when active,
// replaces every other rule.
package classify

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"

	"github.com/hazyhaar/feedsweep/sweeper/feed"
)

// Action is the classifier's verdict.
type Action int

const (
	None     Action = iota // no filter action; eligible for the auto phase
	Keep                   // keyword match
	Suppress               // hide the item
)

func (a Action) String() string {
	switch a {
	case Keep:
		return "keep"
	case Suppress:
		return "suppress"
	default:
		return "none"
	}
}

// Category is the reason behind a verdict.
type Category string

const (
	CategoryOrdinary        Category = "ordinary"
	CategorySuggested       Category = "suggested"
	CategoryAdvertisement   Category = "advertisement"
	CategoryForeignScript   Category = "foreign_script"
	CategoryKeywordMatch    Category = "keyword_match"
	CategoryKeywordMismatch Category = "keyword_mismatch"
)

// Verdict pairs an action with its category.
type Verdict struct {
	Action   Action
	Category Category
}

// Rules is the subset of session configuration the classifier reads.
type Rules struct {
	KeywordFilterEnabled bool
	KeywordFilterText    string
	ForeignScriptLock    bool
	SuppressSuggested    bool
	SuppressAds          bool
}

// KeywordMode reports whether keyword semantics replace the other rules.
func (r Rules) KeywordMode() bool {
	return r.KeywordFilterEnabled && strings.TrimSpace(r.KeywordFilterText) != ""
}

// ForeignScript is the designated foreign-script range (Arabic block).
var ForeignScript = &unicode.RangeTable{
	R16: []unicode.Range16{{Lo: 0x0600, Hi: 0x06FF, Stride: 1}},
}

var adMarkers = []string{"promoted", "sponsored"}

// Classify returns the verdict for c under r.
func Classify(c feed.Content, r Rules) Verdict {
	if r.KeywordMode() {
		if Contains(c.Text, r.KeywordFilterText) {
			return Verdict{Keep, CategoryKeywordMatch}
		}
		return Verdict{Suppress, CategoryKeywordMismatch}
	}

	if r.ForeignScriptLock && HasForeignScript(c.Text) {
		return Verdict{Suppress, CategoryForeignScript}
	}
	if r.SuppressSuggested && IsSuggested(c.Header) {
		return Verdict{Suppress, CategorySuggested}
	}
	if r.SuppressAds && IsAd(c.Text) {
		return Verdict{Suppress, CategoryAdvertisement}
	}
	return Verdict{None, CategoryOrdinary}
}

// IsSuggested reports whether a header marks the item as a suggestion.
func IsSuggested(header string) bool {
	return Contains(header, "suggested")
}

// IsAd reports whether text carries an advertisement marker.
func IsAd(text string) bool {
	folded := Fold(text)
	for _, m := range adMarkers {
		if strings.Contains(folded, m) {
			return true
		}
	}
	return false
}

// HasForeignScript reports whether any rune of s is in ForeignScript.
func HasForeignScript(s string) bool {
	for _, r := range s {
		if unicode.Is(ForeignScript, r) {
			return true
		}
	}
	return false
}

// Contains is a Unicode case-insensitive substring test. The needle is
// trimmed; an empty needle never matches.
func Contains(haystack, needle string) bool {
	needle = strings.TrimSpace(needle)
	if needle == "" {
		return false
	}
	return strings.Contains(Fold(haystack), Fold(needle))
}

// HasPrefix is the case-insensitive prefix test used for menu labels.
func HasPrefix(s, prefix string) bool {
	return strings.HasPrefix(Fold(strings.TrimSpace(s)), Fold(prefix))
}

// Fold case-folds s. A fresh caser per call: casers are not goroutine-safe.
func Fold(s string) string {
	return cases.Fold().String(s)
}
