package session

import (
	"testing"

	"github.com/hazyhaar/tabkeeper/browser"
)

func TestIsRestorable(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://example.com/", true},
		{"http://example.com/page", true},
		{"file:///home/user/doc.html", true},
		{"", false},
		{"about:blank", false},
		{"chrome://settings", false},
		{"chrome-extension://abcdef/popup.html", false},
		{"devtools://devtools/bundled/inspector.html", false},
		{"view-source:https://example.com/", false},
		{"ftp://example.com/file", false},
		{"://not a url", false},
	}
	for _, tt := range tests {
		if got := IsRestorable(tt.url); got != tt.want {
			t.Errorf("IsRestorable(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://example.com/", "example.com"},
		{"http://example.com", "example.com"},
		{"https://www.example.com/docs/", "example.com/docs"},
		{"https://Example.COM/Docs", "example.com/Docs"},
		{"https://example.com/search?q=go", "example.com/search?q=go"},
	}
	for _, tt := range tests {
		if got := NormalizeURL(tt.url); got != tt.want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestNormalizeURLEquatesSchemeAndWWWVariants(t *testing.T) {
	a := NormalizeURL("http://www.example.com/page/")
	b := NormalizeURL("https://example.com/page")
	if a != b {
		t.Errorf("variants normalize differently: %q vs %q", a, b)
	}
}

func TestMatchTabFallbackChain(t *testing.T) {
	tabs := []browser.Tab{
		{ID: "exact", URL: "https://a.example.com/"},
		{ID: "pending", PendingURL: "https://b.example.com/"},
		{ID: "redirected", URL: "https://www.c.example.com/page/"},
	}

	claimed := make(map[browser.TabID]bool)
	if got, ok := matchTab("https://a.example.com/", tabs, claimed); !ok || got.ID != "exact" {
		t.Errorf("exact tier: got %v ok=%v", got.ID, ok)
	}
	if got, ok := matchTab("https://b.example.com/", tabs, claimed); !ok || got.ID != "pending" {
		t.Errorf("pending tier: got %v ok=%v", got.ID, ok)
	}
	if got, ok := matchTab("https://c.example.com/page", tabs, claimed); !ok || got.ID != "redirected" {
		t.Errorf("normalized tier: got %v ok=%v", got.ID, ok)
	}
	if _, ok := matchTab("https://absent.example.com/", tabs, claimed); ok {
		t.Error("matched a URL no live tab carries")
	}
}

func TestMatchTabClaimSet(t *testing.T) {
	tabs := []browser.Tab{
		{ID: "t1", URL: "https://dup.example.com/"},
		{ID: "t2", URL: "https://dup.example.com/"},
	}

	claimed := make(map[browser.TabID]bool)
	first, ok := matchTab("https://dup.example.com/", tabs, claimed)
	if !ok {
		t.Fatal("first match failed")
	}
	claimed[first.ID] = true

	second, ok := matchTab("https://dup.example.com/", tabs, claimed)
	if !ok {
		t.Fatal("second match failed")
	}
	if second.ID == first.ID {
		t.Errorf("both records matched tab %s", first.ID)
	}
	claimed[second.ID] = true

	if _, ok := matchTab("https://dup.example.com/", tabs, claimed); ok {
		t.Error("third record matched with all duplicates claimed")
	}
}
