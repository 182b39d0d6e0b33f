package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"resolvd/internal/app"
	"resolvd/internal/domain"
)

func newResolveCmd(logger *zap.Logger, opts *rootOptions) *cobra.Command {
	var (
		platform   string
		params     []string
		paramsJSON string
	)

	cmd := &cobra.Command{
		Use:   "resolve <action>",
		Short: "Resolve a single action and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parameters, err := parseParameters(params, paramsJSON)
			if err != nil {
				return err
			}

			result, err := app.New(logger).ResolveOnce(cmd.Context(), opts.configPath, domain.ActionRequest{
				ActionName: args[0],
				Parameters: parameters,
				Platform:   platform,
			})
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(result); err != nil {
				return err
			}
			if !result.Resolved {
				return fmt.Errorf("action %q could not be resolved (%s)", args[0], result.Fallback.Classification)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&platform, "platform", "", "platform tag for the request (defaults to configured platform)")
	cmd.Flags().StringArrayVar(&params, "param", nil, "request parameter as key=value (repeatable)")
	cmd.Flags().StringVar(&paramsJSON, "params-json", "", "request parameters as a JSON object")

	return cmd
}

func parseParameters(pairs []string, rawJSON string) (map[string]any, error) {
	parameters := map[string]any{}
	if rawJSON != "" {
		if err := json.Unmarshal([]byte(rawJSON), &parameters); err != nil {
			return nil, fmt.Errorf("parse --params-json: %w", err)
		}
	}
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --param %q, expected key=value", pair)
		}
		parameters[key] = value
	}
	if len(parameters) == 0 {
		return nil, nil
	}
	return parameters, nil
}

func newDiscoverCmd(logger *zap.Logger, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Run a discovery pass and list the resolvable actions",
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := app.New(logger).DiscoverOnce(cmd.Context(), opts.configPath)
			if err != nil {
				return err
			}

			writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(writer, "ACTION\tTIER\tSOURCE\tDESCRIPTION")
			for _, action := range snapshot.Actions() {
				for _, manifest := range snapshot.Lookup(action) {
					fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
						manifest.ActionName, manifest.Kind, manifest.SourceDiscoverer, manifest.Description)
				}
			}
			return writer.Flush()
		},
	}
}

func newCacheCmd(logger *zap.Logger, opts *rootOptions) *cobra.Command {
	cache := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the generated script cache",
	}
	cache.AddCommand(
		newCacheListCmd(logger, opts),
		newCacheEvictCmd(logger, opts),
	)
	return cache
}

func newCacheListCmd(logger *zap.Logger, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached generated scripts",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := app.New(logger).CacheEntries(opts.configPath)
			if err != nil {
				return err
			}

			writer := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(writer, "ACTION\tSIGNATURE\tSTATUS\tSUCCESS\tFAILURE\tLAST USED")
			for _, entry := range entries {
				fmt.Fprintf(writer, "%s\t%s\t%s\t%d\t%d\t%s\n",
					entry.ActionName,
					shortSignature(entry.Signature),
					entry.Status,
					entry.SuccessCount,
					entry.FailureCount,
					entry.LastUsedAt.Format("2006-01-02 15:04"),
				)
			}
			return writer.Flush()
		},
	}
}

func newCacheEvictCmd(logger *zap.Logger, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "evict <signature>",
		Short: "Evict a cached script by signature",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := app.New(logger).EvictCacheEntry(opts.configPath, domain.ActionSignature(args[0]))
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintln(os.Stderr, "no entry with that signature")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "evicted")
			return nil
		},
	}
}

func shortSignature(signature domain.ActionSignature) string {
	s := signature.String()
	if len(s) > 12 {
		return s[:12]
	}
	return s
}
