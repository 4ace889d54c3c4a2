package cli

import (
	"fmt"
	"strings"

	"github.com/Adda-Baaj/apiclient/internal/app"
	"github.com/spf13/cobra"
)

// NewRootCommand creates the root command bound to runner.
func NewRootCommand(runner *app.Runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apiclient",
		Short: "apiclient - JSON HTTP client for a single backend",
		Long: `apiclient sends JSON requests to the configured backend, runs the
request catalog once or on a schedule, and shows recent call history.

Settings come from the environment (see configs/.env), for example
API_BASE_URL and API_TIMEOUT_MS.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		newSendCmd(runner),
		newRunCmd(runner),
		newHistoryCmd(runner),
	)
	return cmd
}

// parsePairs splits "key<sep>value" flags into a map.
func parsePairs(values []string, sep, flag string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for _, raw := range values {
		key, val, ok := strings.Cut(raw, sep)
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --%s %q (expected key%svalue)", flag, raw, sep)
		}
		out[key] = strings.TrimSpace(val)
	}
	return out, nil
}
