package app

import "github.com/spf13/pflag"

// RegisterFlags registers all CLI flags on the given FlagSet. Unset flags
// fall back to the environment and the settings defaults.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringP("transport", "t", "", "Transport type: stdio or sse")
	flags.StringP("host", "H", "", "Host for SSE transport")
	flags.IntP("port", "p", 0, "Port for SSE transport")
	flags.String("metrics-addr", "", "Address serving /metrics during spider runs (e.g. :9100)")
	flags.StringP("auth-type", "a", "", "Authentication type: none, basic, or apikey")
	flags.StringP("auth-basic-username", "u", "", "Basic auth username")
	flags.StringP("auth-basic-password", "P", "", "Basic auth password")
	flags.StringSliceP("auth-api-keys", "k", nil, "API keys (comma-separated)")

	flags.StringP("index-dir", "d", "", "Directory holding the pending and committed indices")
	flags.Int("index-page-size", 0, "Maximum number of hits per engine request")
	flags.Int("index-max-results", 0, "Maximum number of records returned by a tool call")
	flags.Duration("index-lock-timeout", 0, "How long serve waits for a running spider")

	flags.String("upstream-base-url", "", "Base URL of the record API")
	flags.String("upstream-assets-url", "", "Base URL of the asset store")
	flags.Duration("upstream-timeout", 0, "Timeout of a single upstream request")
	flags.Int("upstream-cache-size", 0, "Number of fetched records kept in memory")

	flags.IntP("spider-batch-size", "b", 0, "Pending records reconciled per batch")
	flags.IntP("spider-concurrency", "c", 0, "Pending records reconciled in parallel")
	flags.Int("spider-retry-attempts", 0, "Attempts per record before the run aborts")
	flags.Duration("spider-retry-delay", 0, "Delay before the first retry")
	flags.Float64("spider-retry-factor", 0, "Multiplier applied to the delay after each retry")
	flags.StringP("spider-roots-file", "r", "", "YAML file listing the root record URIs")
	flags.StringP("spider-ignore-file", "i", "", "YAML file listing ignored paths")

	flags.Int("origin-default-max-depth", 0, "Ancestors followed by record_origin when no depth is given")
}
