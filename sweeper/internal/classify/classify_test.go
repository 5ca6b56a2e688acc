package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hazyhaar/feedsweep/sweeper/feed"
)

func TestClassify_Priority(t *testing.T) {
	all := Rules{ForeignScriptLock: true, SuppressSuggested: true, SuppressAds: true}

	tests := []struct {
		name    string
		content feed.Content
		rules   Rules
		want    Verdict
	}{
		{
			name:    "keyword mode hides sponsored mismatch as keyword",
			content: feed.Content{Text: "Sponsored: buy this"},
			rules:   Rules{KeywordFilterEnabled: true, KeywordFilterText: "rust", SuppressAds: true},
			want:    Verdict{Suppress, CategoryKeywordMismatch},
		},
		{
			name:    "keyword mode keeps sponsored match",
			content: feed.Content{Text: "Sponsored post about RUST", Header: "Suggested"},
			rules:   Rules{KeywordFilterEnabled: true, KeywordFilterText: "rust", SuppressAds: true, SuppressSuggested: true},
			want:    Verdict{Keep, CategoryKeywordMatch},
		},
		{
			name:    "keyword disabled falls through",
			content: feed.Content{Text: "plain"},
			rules:   Rules{KeywordFilterEnabled: false, KeywordFilterText: "rust"},
			want:    Verdict{None, CategoryOrdinary},
		},
		{
			name:    "blank keyword is not keyword mode",
			content: feed.Content{Text: "promoted"},
			rules:   Rules{KeywordFilterEnabled: true, KeywordFilterText: "   ", SuppressAds: true},
			want:    Verdict{Suppress, CategoryAdvertisement},
		},
		{
			name:    "foreign script before suggested",
			content: feed.Content{Text: "سلام دنیا", Header: "Suggested"},
			rules:   all,
			want:    Verdict{Suppress, CategoryForeignScript},
		},
		{
			name:    "suggested before ad",
			content: feed.Content{Text: "Promoted", Header: "Suggested for you"},
			rules:   all,
			want:    Verdict{Suppress, CategorySuggested},
		},
		{
			name:    "ad",
			content: feed.Content{Text: "Acme · Promoted"},
			rules:   all,
			want:    Verdict{Suppress, CategoryAdvertisement},
		},
		{
			name:    "suggested ignored when toggle off",
			content: feed.Content{Header: "Suggested"},
			rules:   Rules{SuppressAds: true},
			want:    Verdict{None, CategoryOrdinary},
		},
		{
			name:    "ordinary",
			content: feed.Content{Text: "hello world", Header: "Jane reposted this"},
			rules:   all,
			want:    Verdict{None, CategoryOrdinary},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.content, tt.rules))
		})
	}
}

func TestContains_CaseFolding(t *testing.T) {
	assert.True(t, Contains("Learning RUST today", "rust"))
	assert.True(t, Contains("ÉCOLE du soir", "école"))
	assert.False(t, Contains("anything", ""))
	assert.False(t, Contains("go", "rust"))
}

func TestHasPrefix(t *testing.T) {
	assert.True(t, HasPrefix("  Unfollow Jane Doe", "unfollow "))
	assert.False(t, HasPrefix("Unfollowing", "unfollow "))
}

func TestHasForeignScript(t *testing.T) {
	assert.True(t, HasForeignScript("mixed متن text"))
	assert.False(t, HasForeignScript("plain ascii"))
	assert.False(t, HasForeignScript("Привет"))
}
