package session

import (
	"net/url"
	"strings"

	"github.com/hazyhaar/tabkeeper/browser"
)

// restorableSchemes are the URL schemes a restore can recreate. Internal
// browser pages (chrome://, devtools://, about:, view-source: and friends)
// are excluded from capture and never round-trip.
var restorableSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"file":  true,
}

// IsRestorable reports whether rawURL can be recreated on restore.
func IsRestorable(rawURL string) bool {
	if rawURL == "" || rawURL == "about:blank" {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return restorableSchemes[u.Scheme]
}

// NormalizeURL reduces a URL to scheme-stripped hostname+path+query, for
// the last tier of the reconciliation chain. The live environment may have
// normalised or redirected a URL (added a trailing slash, dropped a www
// prefix) between capture and observation.
func NormalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")
	path := strings.TrimSuffix(u.Path, "/")
	s := host + path
	if u.RawQuery != "" {
		s += "?" + u.RawQuery
	}
	return s
}

// matchTab resolves a recorded URL to a live tab. Fallback chain: exact URL
// match, then pending URL (the tab may still be loading), then normalized
// comparison. Tabs already claimed by an earlier record are skipped, so two
// records sharing a URL resolve to two distinct live tabs in record order.
func matchTab(recordURL string, tabs []browser.Tab, claimed map[browser.TabID]bool) (browser.Tab, bool) {
	for _, t := range tabs {
		if !claimed[t.ID] && t.URL == recordURL {
			return t, true
		}
	}
	for _, t := range tabs {
		if !claimed[t.ID] && t.PendingURL != "" && t.PendingURL == recordURL {
			return t, true
		}
	}
	want := NormalizeURL(recordURL)
	for _, t := range tabs {
		if claimed[t.ID] {
			continue
		}
		if (t.URL != "" && NormalizeURL(t.URL) == want) ||
			(t.PendingURL != "" && NormalizeURL(t.PendingURL) == want) {
			return t, true
		}
	}
	return browser.Tab{}, false
}
