// Package skip decides which navigations are exempt from classification:
// non-web schemes, loopback hosts, high-traffic allowlisted domains, and
// search-engine result pages.
package skip

import (
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Patterns holds the raw exemption rules.
type Patterns struct {
	// Domains are matched against the hostname (case-insensitive, leading
	// "www." stripped) and all of its parent domains.
	Domains []string `yaml:"domains"`
	// SearchParams are query parameter names that mark a search-results URL.
	SearchParams []string `yaml:"search_params"`
	// SearchPaths are path segments that mark a search-results URL.
	SearchPaths []string `yaml:"search_paths"`
}

// Rules holds normalized exemption rules for fast matching.
type Rules struct {
	domains      map[string]bool
	searchParams []string
	searchPaths  []string
}

// New creates Rules from raw patterns.
func New(p Patterns) *Rules {
	r := &Rules{
		domains:      make(map[string]bool, len(p.Domains)),
		searchParams: p.SearchParams,
		searchPaths:  p.SearchPaths,
	}
	for _, d := range p.Domains {
		d = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "www."))
		if d != "" {
			r.domains[d] = true
		}
	}
	return r
}

// NewDefault creates Rules with the hardcoded default patterns.
func NewDefault() *Rules {
	return New(DefaultPatterns)
}

// Load reads exemption rules from a YAML file. Falls back to defaults if the
// file doesn't exist.
func Load(path string) (*Rules, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return NewDefault(), nil
		}
		path = filepath.Join(home, ".navguard", "allowlist.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDefault(), nil
		}
		return nil, err
	}

	var p Patterns
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}

	return New(p), nil
}

// ShouldSkip reports whether a navigation URL is exempt from checking.
// Pure and synchronous. Unparseable URLs are not skipped: a URL that cannot
// be parsed is itself a signal worth sending to the classifier.
func (r *Rules) ShouldSkip(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return true
	}

	host := strings.ToLower(u.Hostname())
	if isLoopback(host) {
		return true
	}

	host = strings.TrimPrefix(host, "www.")
	for h := host; h != ""; {
		if r.domains[h] {
			return true
		}
		i := strings.Index(h, ".")
		if i < 0 {
			break
		}
		h = h[i+1:]
	}

	return r.isSearchResult(u)
}

// isSearchResult reports whether the path+query looks like a search-engine
// results page. Checking every in-flight search keystroke would hammer the
// classifier for URLs the user never dwells on.
func (r *Rules) isSearchResult(u *url.URL) bool {
	q := u.Query()
	for _, p := range r.searchParams {
		if q.Has(p) {
			return true
		}
	}
	path := strings.ToLower(u.Path)
	for _, seg := range r.searchPaths {
		if strings.Contains(path, seg) {
			return true
		}
	}
	return false
}

func isLoopback(host string) bool {
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}
