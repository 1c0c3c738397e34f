package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// resourceTypes maps config names to the CDP resource types they block.
var resourceTypes = map[string]proto.NetworkResourceType{
	"images":      proto.NetworkResourceTypeImage,
	"fonts":       proto.NetworkResourceTypeFont,
	"media":       proto.NetworkResourceTypeMedia,
	"stylesheets": proto.NetworkResourceTypeStylesheet,
	"scripts":     proto.NetworkResourceTypeScript,
	"xhr":         proto.NetworkResourceTypeXHR,
	"fetch":       proto.NetworkResourceTypeFetch,
	"websockets":  proto.NetworkResourceTypeWebSocket,
}

// blockedTypes resolves config names, case-insensitively, and returns the
// names it does not know separately.
func blockedTypes(names []string) (types []proto.NetworkResourceType, unknown []string) {
	seen := make(map[proto.NetworkResourceType]bool)
	for _, n := range names {
		t, ok := resourceTypes[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		if !seen[t] {
			seen[t] = true
			types = append(types, t)
		}
	}
	return types, unknown
}

// blockResources intercepts only the listed resource types and fails them.
// Everything else never leaves the browser's normal request path.
func (t *Tab) blockResources(names []string) error {
	types, unknown := blockedTypes(names)
	if len(unknown) > 0 {
		t.manager.cfg.Logger.Warn("browser: unknown resource types ignored", "types", unknown)
	}
	if len(types) == 0 {
		return nil
	}

	router := t.Page.HijackRequests()
	for _, typ := range types {
		err := router.Add("*", typ, func(h *rod.Hijack) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		})
		if err != nil {
			router.Stop()
			return err
		}
	}
	go router.Run()
	t.router = router
	return nil
}
