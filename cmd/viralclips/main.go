package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "viralclips",
		Short:         "Discover, score and select viral short-form videos",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file, .yaml or .toml (default: ./config.yaml)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (default: from config)")

	root.AddCommand(discoverCmd())
	root.AddCommand(selectCmd())
	root.AddCommand(importCmd())
	root.AddCommand(summaryCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())

	return root
}

func discoverCmd() *cobra.Command {
	var opts discoverOpts

	cmd := &cobra.Command{
		Use:   "discover <niche>",
		Short: "Find trending short videos for a niche and store them as a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.niche = args[0]
			return runDiscover(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.platforms, "platform", nil, "platforms to search (e.g., youtube,tiktok)")
	cmd.Flags().IntVar(&opts.timeframe, "timeframe", 0, "only videos uploaded in the last N hours (default: from config)")
	cmd.Flags().IntVar(&opts.limit, "limit", 0, "max videos per platform (default: from config)")
	cmd.Flags().Float64Var(&opts.minScore, "min-score", -1, "minimum viral score 0-100 (default: from config)")
	cmd.Flags().Int64Var(&opts.minViews, "min-views", 0, "minimum view count")
	cmd.Flags().BoolVar(&opts.noDedupe, "no-dedupe", false, "keep near-duplicate titles")
	cmd.Flags().IntVar(&opts.ranking, "ranking", 0, "keep only the best N videos for a ranking")
	cmd.Flags().BoolVar(&opts.json, "json", false, "output as JSON")
	return cmd
}

func selectCmd() *cobra.Command {
	var opts selectOpts

	cmd := &cobra.Command{
		Use:   "select <job-id>",
		Short: "Rank the analyzed clips of a job for a compilation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.jobID = args[0]
			return runSelect(cmd.Context(), opts)
		},
	}

	cmd.Flags().IntVar(&opts.maxClips, "max-clips", 0, "number of clips to select (default: from config)")
	cmd.Flags().IntVar(&opts.maxPerAuthor, "max-per-author", 0, "clips allowed per author (default: from config)")
	cmd.Flags().BoolVar(&opts.diversity, "diversity", false, "spread clips across platforms")
	cmd.Flags().BoolVar(&opts.json, "json", false, "output as JSON")
	return cmd
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import-analysis <file.json>",
		Short: "Import analysis and download records produced by the analysis stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), args[0])
		},
	}
}

func summaryCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "summary <job-id>",
		Short: "Show analysis statistics and rejection reasons for a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSummary(cmd.Context(), args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with scheduler and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}
