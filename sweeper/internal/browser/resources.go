package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// applyResourceBlocking sets up request interception to block the given
// resource types.
func applyResourceBlocking(page *rod.Page, types []string) {
	blockSet := blockSet(types)

	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		if shouldBlock(blockSet, string(h.Request.Type())) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
}

func blockSet(types []string) map[string]bool {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		set[strings.ToLower(strings.TrimSpace(t))] = true
	}
	return set
}

// shouldBlock accepts both CDP type names ("Image") and their plural config
// spelling ("images").
func shouldBlock(set map[string]bool, resType string) bool {
	lower := strings.ToLower(resType)
	switch lower {
	case "image", "font", "stylesheet":
		return set[lower] || set[lower+"s"]
	}
	return set[lower]
}
