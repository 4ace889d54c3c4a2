package cli

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Adda-Baaj/apiclient/internal/app"
	"github.com/Adda-Baaj/apiclient/pkg/httpclient"
	"github.com/spf13/cobra"
)

// envelopeMeta is printed as JSON ahead of the payload.
type envelopeMeta struct {
	StatusCode int         `json:"status_code"`
	Headers    http.Header `json:"headers"`
}

func newSendCmd(runner *app.Runner) *cobra.Command {
	var (
		headers []string
		query   []string
	)

	cmd := &cobra.Command{
		Use:   "send METHOD PATH [BODY]",
		Short: "Send one request and print the response envelope",
		Long: `Send one request to the configured backend.

PATH is joined to the base URL. BODY is sent verbatim as the JSON request body.
The status code and headers are printed as a JSON object, followed by a blank
line and the payload exactly as the server sent it.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			headerMap, err := parsePairs(headers, ":", "header")
			if err != nil {
				return err
			}
			queryMap, err := parsePairs(query, "=", "query")
			if err != nil {
				return err
			}

			var body any
			if len(args) == 3 {
				body = []byte(args[2])
			}

			var opts []httpclient.RequestOption
			if len(headerMap) > 0 {
				opts = append(opts, httpclient.WithRequestHeaders(headerMap))
			}
			if len(queryMap) > 0 {
				opts = append(opts, httpclient.WithQueryParams(queryMap))
			}

			res := runner.Send(cmd.Context(), args[0], args[1], body, opts...)
			if res.Err != nil {
				return res.Err
			}
			return writeEnvelope(cmd, res.Envelope)
		},
	}

	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "Extra request header (key:value), repeatable")
	cmd.Flags().StringArrayVarP(&query, "query", "q", nil, "Query parameter (key=value), repeatable")
	return cmd
}

func writeEnvelope(cmd *cobra.Command, env *httpclient.Envelope) error {
	out := cmd.OutOrStdout()

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(envelopeMeta{StatusCode: env.StatusCode, Headers: env.Headers}); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}
	if _, err := fmt.Fprintln(out); err != nil {
		return fmt.Errorf("write envelope: %w", err)
	}
	if _, err := out.Write(env.Payload); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}
