// Command suivi manages an incremental author content archive: it fetches
// missing coverage from a search API, queries and exports stored records,
// and maintains annotation schemas.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/suivi"
	"github.com/hazyhaar/suivi/annotate"
	"github.com/hazyhaar/suivi/export"
	"github.com/hazyhaar/suivi/internal/fetch"
	"github.com/hazyhaar/suivi/internal/store"
	_ "modernc.org/sqlite"
)

// fileConfig is the on-disk YAML configuration.
type fileConfig struct {
	suivi.Config `yaml:",inline"`
	Fetch        fetch.Config `yaml:"fetch"`
}

type rootOptions struct {
	configPath string
	verbose    bool

	config fileConfig
	logger *slog.Logger
}

func (o *rootOptions) load() error {
	if o.configPath != "" {
		raw, err := os.ReadFile(o.configPath)
		if err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &o.config); err != nil {
			return fmt.Errorf("parse config %s: %w", o.configPath, err)
		}
	}
	lvl := slog.LevelInfo
	if o.verbose {
		lvl = slog.LevelDebug
	}
	o.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(o.logger)
	return nil
}

func (o *rootOptions) openService() (*suivi.Service, error) {
	return suivi.Open(o.config.Config, o.logger)
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "suivi",
		Short: "Incremental author content archive",
		Long: "suivi tracks per-author coverage of social media content.\n" +
			"It fetches only the date intervals not yet stored, so repeated\n" +
			"runs over the same window are free.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to YAML config")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(newCoverCommand(opts))
	cmd.AddCommand(newCoverageCommand(opts))
	cmd.AddCommand(newQueryCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	cmd.AddCommand(newSchemaCommand(opts))
	cmd.AddCommand(newHistoryCommand(opts))
	cmd.AddCommand(newStatsCommand(opts))
	return cmd
}

func newCoverCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cover <handle> <start-date> <end-date>",
		Short: "Ensure coverage of a date interval for a handle",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := fetch.New(opts.config.Fetch)
			if err != nil {
				return err
			}
			svc, err := opts.openService()
			if err != nil {
				return err
			}
			defer svc.Close()

			report, err := svc.EnsureCoverage(cmd.Context(), args[0], args[1], args[2], client.FetchFunc())
			if err != nil {
				return err
			}
			printJSON(cmd, report)
			if failed := report.Failed(); len(failed) > 0 {
				return fmt.Errorf("%d gap(s) failed, rerun to retry", len(failed))
			}
			return nil
		},
	}
	return cmd
}

func newCoverageCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "coverage [handle]",
		Short: "Show covered intervals, per handle or for every handle",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.openService()
			if err != nil {
				return err
			}
			defer svc.Close()

			handles := args
			if len(handles) == 0 {
				handles, err = svc.Handles()
				if err != nil {
					return err
				}
			}
			for _, h := range handles {
				ivs, err := svc.Coverage(h)
				if err != nil {
					return err
				}
				parts := make([]string, len(ivs))
				for i, iv := range ivs {
					parts[i] = iv.String()
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", h, strings.Join(parts, " "))
			}
			return nil
		},
	}
}

func newQueryCommand(opts *rootOptions) *cobra.Command {
	var f store.Filter
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query stored records as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.openService()
			if err != nil {
				return err
			}
			defer svc.Close()

			records, err := svc.Query(cmd.Context(), f)
			if err != nil {
				return err
			}
			return export.JSONL(cmd.OutOrStdout(), records)
		},
	}
	addFilterFlags(cmd, &f)
	return cmd
}

func newExportCommand(opts *rootOptions) *cobra.Command {
	var f store.Filter
	var format string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored records (csv or jsonl)",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.openService()
			if err != nil {
				return err
			}
			defer svc.Close()

			records, err := svc.Query(cmd.Context(), f)
			if err != nil {
				return err
			}
			switch format {
			case "csv":
				annCols, err := svc.AnnotationColumns(cmd.Context())
				if err != nil {
					return err
				}
				return export.CSV(cmd.OutOrStdout(), records, annCols)
			case "jsonl":
				return export.JSONL(cmd.OutOrStdout(), records)
			default:
				return fmt.Errorf("unknown format %q (csv|jsonl)", format)
			}
		},
	}
	addFilterFlags(cmd, &f)
	cmd.Flags().StringVar(&format, "format", "csv", "output format (csv|jsonl)")
	return cmd
}

func newSchemaCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Manage annotation schemas",
	}

	apply := &cobra.Command{
		Use:   "apply <schema.yaml>",
		Short: "Register a schema and extend the content table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var schema annotate.Schema
			if err := yaml.Unmarshal(raw, &schema); err != nil {
				return fmt.Errorf("parse schema %s: %w", args[0], err)
			}
			svc, err := opts.openService()
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.EnsureSchema(cmd.Context(), &schema); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema %s applied (%d fields)\n", schema.Name, len(schema.Fields))
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered schemas",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.openService()
			if err != nil {
				return err
			}
			defer svc.Close()

			infos, err := svc.Schemas(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(cmd, infos)
			return nil
		},
	}

	cmd.AddCommand(apply, list)
	return cmd
}

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [handle]",
		Short: "Show recent fetch attempts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.openService()
			if err != nil {
				return err
			}
			defer svc.Close()

			handle := ""
			if len(args) == 1 {
				handle = args[0]
			}
			entries, err := svc.FetchHistory(cmd.Context(), handle, limit)
			if err != nil {
				return err
			}
			printJSON(cmd, entries)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max entries")
	return cmd
}

func newStatsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show database counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := opts.openService()
			if err != nil {
				return err
			}
			defer svc.Close()

			stats, err := svc.Stats(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(cmd, stats)
			return nil
		},
	}
}

func addFilterFlags(cmd *cobra.Command, f *store.Filter) {
	cmd.Flags().StringSliceVar(&f.Handles, "handle", nil, "restrict to handle (repeatable)")
	cmd.Flags().StringVar(&f.StartDate, "start", "", "publish date lower bound (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.EndDate, "end", "", "publish date upper bound (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.TextContains, "contains", "", "substring match on text")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max records (0 = all)")
}

func printJSON(cmd *cobra.Command, v any) {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
