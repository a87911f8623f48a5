package skip

// DefaultPatterns contains the hardcoded exemption rules. These are
// high-traffic, low-risk destinations where a classifier round-trip buys
// nothing, plus the query shapes of the major search engines.
var DefaultPatterns = Patterns{
	Domains: []string{
		"google.com",
		"youtube.com",
		"facebook.com",
		"instagram.com",
		"wikipedia.org",
		"amazon.com",
		"x.com",
		"twitter.com",
		"reddit.com",
		"linkedin.com",
		"github.com",
		"stackoverflow.com",
		"microsoft.com",
		"apple.com",
		"mozilla.org",
		"duckduckgo.com",
		"bing.com",
	},
	SearchParams: []string{
		"q",
		"query",
		"search_query",
	},
	SearchPaths: []string{
		"/search",
		"/results",
	},
}
