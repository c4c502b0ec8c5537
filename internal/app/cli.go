package app

import "github.com/spf13/pflag"

// RegisterFlags registers all CLI flags on the given FlagSet
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringP("transport", "t", "", "Transport type: stdio or sse")
	flags.StringP("host", "H", "", "Host for SSE transport")
	flags.IntP("port", "p", 0, "Port for SSE transport")
	flags.StringP("auth-type", "a", "", "Authentication type: none, basic, or apikey")
	flags.StringP("auth-basic-username", "u", "", "Basic auth username")
	flags.StringP("auth-basic-password", "P", "", "Basic auth password")
	flags.StringSliceP("auth-api-keys", "k", nil, "API keys (comma-separated)")

	flags.String("wiki-mirror-url", "", "Remote wiki content repository URL")
	flags.String("wiki-base-dir", "", "Directory for the local mirror, page store and search index")
	flags.String("wiki-site-name", "", "Site name prefix stripped from page titles")
	flags.String("wiki-site-base-url", "", "Public base URL canonical page links point at")
	flags.String("wiki-edit-path-prefix", "", "Expected href prefix of the page edit link")
	flags.Int("wiki-max-results", 0, "Maximum number of search results")
	flags.Duration("wiki-sync-timeout", 0, "Timeout for acquiring the sync lock")
}
