package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/watzon/topiccache/internal/discovery"
	"github.com/watzon/topiccache/internal/server/handlers"
)

const requestTimeout = 10 * time.Second

type countOptions struct {
	server string
	kinds  []discovery.EndpointKind
	output string
}

var (
	countServer string
	countKind   string
	countOutput string
)

var countCmd = &cobra.Command{
	Use:   "count TOPIC",
	Short: "Count publishers and subscribers of a topic on a running server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := countOptions{output: countOutput}

		opts.server = countServer
		if opts.server == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			opts.server = "http://" + cfg.Server.Address()
		}

		if countKind == "" || countKind == "all" {
			opts.kinds = discovery.Kinds
		} else {
			kind, err := discovery.ParseKind(countKind)
			if err != nil {
				return err
			}
			opts.kinds = []discovery.EndpointKind{kind}
		}

		return runCount(cmd.Context(), cmd.OutOrStdout(), opts, args[0])
	},
}

func init() {
	countCmd.Flags().StringVarP(&countServer, "server", "s", "", "server URL (default from config)")
	countCmd.Flags().StringVarP(&countKind, "kind", "k", "all", "publisher, subscriber or all")
	countCmd.Flags().StringVarP(&countOutput, "output", "o", "text", "output format: text, json or yaml")

	rootCmd.AddCommand(countCmd)
}

func runCount(ctx context.Context, out io.Writer, opts countOptions, topic string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	results := make([]handlers.CountResponse, 0, len(opts.kinds))
	for _, kind := range opts.kinds {
		res, err := fetchCount(ctx, opts.server, kind, topic)
		if err != nil {
			return err
		}
		results = append(results, res)
	}

	switch opts.output {
	case "", "text":
		for _, res := range results {
			fmt.Fprintf(out, "%s\t%s\t%d\n", res.Kind, res.Topic, res.Count)
		}
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case "yaml":
		enc := yaml.NewEncoder(out)
		defer enc.Close()
		return enc.Encode(results)
	default:
		return fmt.Errorf("unknown output format %q", opts.output)
	}
	return nil
}

func fetchCount(ctx context.Context, server string, kind discovery.EndpointKind, topic string) (handlers.CountResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	endpoint := strings.TrimRight(server, "/") + "/api/count/" + string(kind) + "?topic=" + url.QueryEscape(topic)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return handlers.CountResponse{}, fmt.Errorf("building request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return handlers.CountResponse{}, fmt.Errorf("querying %s: %w", server, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr handlers.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return handlers.CountResponse{}, fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
	}

	var res handlers.CountResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return handlers.CountResponse{}, fmt.Errorf("decoding response: %w", err)
	}
	return res, nil
}
