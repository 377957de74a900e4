package utils_test

import (
	"errors"
	"testing"

	"github.com/raysh454/cleanweb/internal/utils"
)

// ─── ResolveLocator ────────────────────────────────────────────────────

func TestResolveLocator(t *testing.T) {
	t.Parallel()
	base := "https://example.com/app/page.html"
	tests := []struct {
		raw  string
		want string
	}{
		{"img/a.png", "https://example.com/app/img/a.png"},
		{"/static/b.jpg", "https://example.com/static/b.jpg"},
		{"//cdn.example.net/c.gif", "https://cdn.example.net/c.gif"},
		{"  https://other.com/d.webp#frag ", "https://other.com/d.webp"},
		{"data:image/png;base64,AAAA", "data:image/png;base64,AAAA"},
	}
	for _, tt := range tests {
		got, err := utils.ResolveLocator(base, tt.raw)
		if err != nil {
			t.Errorf("ResolveLocator(%q): %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ResolveLocator(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestResolveLocator_Errors(t *testing.T) {
	t.Parallel()
	if _, err := utils.ResolveLocator("https://example.com", "   "); !errors.Is(err, utils.ErrEmptyLocator) {
		t.Errorf("expected ErrEmptyLocator, got %v", err)
	}
	if _, err := utils.ResolveLocator("https://example.com", "javascript:alert(1)"); !errors.Is(err, utils.ErrUnsupportedScheme) {
		t.Errorf("expected ErrUnsupportedScheme, got %v", err)
	}
}

func TestResolveLocator_NoBase(t *testing.T) {
	t.Parallel()
	got, err := utils.ResolveLocator("", "a.png")
	if err != nil {
		t.Fatalf("ResolveLocator: %v", err)
	}
	if got != "a.png" {
		t.Errorf("expected relative locator kept, got %q", got)
	}
}

// ─── CacheKey ──────────────────────────────────────────────────────────

func TestCacheKey(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"HTTP://Example.COM:80/foo/../bar.png?b=2&a=1#frag", "http://example.com/bar.png?a=1&b=2"},
		{"https://example.com:443/x.jpg?utm_source=x&z=1", "https://example.com/x.jpg?z=1"},
		{"https://example.com:8443/x.jpg", "https://example.com:8443/x.jpg"},
		// punycode-encoded host
		{"https://例え.テスト/a.png", "https://xn--r8jz45g.xn--zckzah/a.png"},
		{"data:image/gif;base64,R0lG", "data:image/gif;base64,R0lG"},
		{"relative/path.png", "relative/path.png"},
	}
	for _, tt := range tests {
		if got := utils.CacheKey(tt.in); got != tt.want {
			t.Errorf("CacheKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// ─── Rules ─────────────────────────────────────────────────────────────

func TestMatchesRule(t *testing.T) {
	t.Parallel()
	loc := "https://CDN.example.com/ads/banner.png"
	tests := []struct {
		rule string
		want bool
	}{
		{"cdn.example.com", true},
		{"/ADS/", true},
		{"*.example.com/ads/*", true},
		{"https://*/banner.png", true},
		{"*.png", true},
		{"*.jpg", false},
		{"other.com", false},
		{"", false},
		{"   ", false},
	}
	for _, tt := range tests {
		if got := utils.MatchesRule(loc, tt.rule); got != tt.want {
			t.Errorf("MatchesRule(%q) = %v, want %v", tt.rule, got, tt.want)
		}
	}
}

func TestMatchesAny_ReturnsFirstMatch(t *testing.T) {
	t.Parallel()
	rule, ok := utils.MatchesAny("https://a.com/x.png", []string{"b.com", "x.png", "a.com"})
	if !ok || rule != "x.png" {
		t.Errorf("got %q %v", rule, ok)
	}
	if _, ok := utils.MatchesAny("https://a.com/x.png", nil); ok {
		t.Error("nil rules should not match")
	}
}

func TestHostname(t *testing.T) {
	t.Parallel()
	if got := utils.Hostname("https://Example.com:8080/a"); got != "example.com" {
		t.Errorf("Hostname = %q", got)
	}
	if got := utils.Hostname("a.png"); got != "" {
		t.Errorf("Hostname of relative = %q", got)
	}
}
