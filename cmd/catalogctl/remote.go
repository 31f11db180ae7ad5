package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"media-catalog/internal/progress"
	"media-catalog/internal/streaming"
)

// httpClient has no timeout; watch streams for as long as the run lasts.
var httpClient = &http.Client{}

func apiURL(server, path string, query url.Values) string {
	u := strings.TrimRight(server, "/") + "/api" + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// responseError turns a non-2xx response into an error carrying the
// server's {"error": ...} message when there is one.
func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		return fmt.Errorf("server returned %s: %s", resp.Status, payload.Error)
	}
	return fmt.Errorf("server returned %s", resp.Status)
}

// formatEvent renders one progress frame as a single line.
func formatEvent(ev progress.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-14s %3d%%  %d/%d  ok=%d failed=%d skipped=%d",
		ev.Status, ev.PercentComplete, ev.ProcessedCount, ev.TotalCount,
		ev.SuccessCount, ev.FailureCount, ev.SkippedCount)
	if ev.Metadata != nil && ev.Metadata.FileName != "" {
		b.WriteString("  " + ev.Metadata.FileName)
	}
	if ev.Token != "" && ev.Status == progress.StatusStarted {
		b.WriteString("  token=" + ev.Token)
	}
	if ev.Error != "" {
		b.WriteString("  error: " + ev.Error)
	} else if ev.Message != "" && ev.Status.Terminal() {
		b.WriteString("  " + ev.Message)
	}
	return b.String()
}

func newWatchCmd() *cobra.Command {
	var (
		server      string
		all         bool
		batchSize   int
		retryFailed bool
		method      string
		token       string
		raw         bool
	)

	cmd := &cobra.Command{
		Use:   "watch <operation>",
		Short: "Start a run on a server and follow its progress",
		Long: `Starts a batch on a running catalog server and prints each progress frame
as it arrives. Closing the connection (Ctrl+C) aborts the run on the server.`,
		Example: `  catalogctl watch thumbnail --all --server http://catalog:8080`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := operationArg(args)
			if err != nil {
				return err
			}

			query := url.Values{}
			if all {
				query.Set("all", "true")
			}
			if batchSize > 0 {
				query.Set("batchSize", strconv.Itoa(batchSize))
			}
			if retryFailed {
				query.Set("retryFailed", "true")
			}
			if method != "" {
				query.Set("method", method)
			}
			if token != "" {
				query.Set("token", token)
			}

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost,
				apiURL(server, "/process/"+string(op), query), http.NoBody)
			if err != nil {
				return err
			}
			req.Header.Set("Accept", "text/event-stream")

			resp, err := httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return responseError(resp)
			}

			out := cmd.OutOrStdout()
			reader := streaming.NewFrameReader(resp.Body)
			for {
				ev, err := reader.Next()
				if errors.Is(err, io.EOF) {
					return errors.New("stream ended without a terminal frame")
				}
				if err != nil {
					return err
				}

				if raw {
					frame, err := streaming.EncodeFrame(ev)
					if err != nil {
						return err
					}
					out.Write(frame)
				} else {
					fmt.Fprintln(out, formatEvent(ev))
				}

				switch ev.Status {
				case progress.StatusComplete, progress.StatusAborted:
					return nil
				case progress.StatusError:
					return fmt.Errorf("run failed: %s", ev.Error)
				}
			}
		},
	}

	serverFlag(cmd, &server)
	cmd.Flags().BoolVar(&all, "all", false, "Keep fetching pages until nothing is eligible")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Items per page (default: server BATCH_SIZE)")
	cmd.Flags().BoolVar(&retryFailed, "retry-failed", false, "Include items whose last attempt failed")
	cmd.Flags().StringVar(&method, "method", "", "EXIF extraction method (default, fast, slow)")
	cmd.Flags().StringVar(&token, "token", "", "Abort token for the run (default: assigned by the server)")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print frames as received instead of one line per event")

	return cmd
}

func newAbortCmd() *cobra.Command {
	var (
		server string
		all    bool
	)

	cmd := &cobra.Command{
		Use:   "abort [token]",
		Short: "Abort a run on a server by its token",
		Long: `Signals the run registered under the token. A token with no active run is
remembered, so a run that starts later with it begins aborted. --all aborts
every active run on the server instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				path string
				body io.Reader = http.NoBody
			)
			switch {
			case all:
				path = "/process/abort-all"
			case len(args) == 1:
				path = "/process/abort"
				payload, err := json.Marshal(map[string]string{"token": args[0]})
				if err != nil {
					return err
				}
				body = bytes.NewReader(payload)
			default:
				return errors.New("a token or --all is required")
			}

			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, apiURL(server, path, nil), body)
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := httpClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return responseError(resp)
			}

			var result struct {
				Aborted json.RawMessage `json:"aborted"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}

			out := cmd.OutOrStdout()
			if all {
				fmt.Fprintf(out, "Aborted %s active runs\n", result.Aborted)
			} else if string(result.Aborted) == "true" {
				fmt.Fprintf(out, "Aborted run %s\n", args[0])
			} else {
				fmt.Fprintf(out, "No active run for %s; the token will abort a run that starts with it\n", args[0])
			}
			return nil
		},
	}

	serverFlag(cmd, &server)
	cmd.Flags().BoolVar(&all, "all", false, "Abort every active run")
	return cmd
}
