package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"contentscore/internal/config"
	"contentscore/internal/core/batch"
	"contentscore/internal/core/discover"
	"contentscore/internal/core/report"
)

type runFlags struct {
	batchSize  int
	ceiling    float64
	interval   int
	delayMs    int
	maxURLs    int
	prefix     string
	noFeeds    bool
	noSeeds    bool
	expandSeed bool
}

func (f *runFlags) bind(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.batchSize, "batch-size", 0, "URLs per batch (default from BATCH_SIZE)")
	cmd.Flags().Float64Var(&f.ceiling, "cost-ceiling", 0, "stop once estimated cost reaches this many dollars")
	cmd.Flags().IntVar(&f.interval, "checkpoint-interval", 0, "checkpoint every N results")
	cmd.Flags().IntVar(&f.delayMs, "delay-ms", -1, "pause between items in milliseconds")
	cmd.Flags().StringVar(&f.prefix, "prefix", "", "report file suffix (default timestamp)")
}

func (f *runFlags) request() batch.Request {
	req := batch.Request{
		BatchSize:          f.batchSize,
		CostCeiling:        f.ceiling,
		CheckpointInterval: f.interval,
		MaxURLs:            f.maxURLs,
		ReportPrefix:       f.prefix,
		ExpandSeeds:        f.expandSeed,
	}
	if f.delayMs >= 0 {
		d := f.delayMs
		req.InterItemDelayMs = &d
	}
	if f.noFeeds {
		v := false
		req.UseFeeds = &v
	}
	if f.noSeeds {
		v := false
		req.UseSeeds = &v
	}
	return req
}

func runCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Discover URLs and score them in budgeted batches",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd.Context(), config.Load(), f.request())
		},
	}
	f.bind(cmd)
	cmd.Flags().IntVar(&f.maxURLs, "max-urls", batch.DefaultDiscoveryCap, "cap on discovered URLs")
	cmd.Flags().BoolVar(&f.noFeeds, "no-feeds", false, "skip feed discovery")
	cmd.Flags().BoolVar(&f.noSeeds, "no-seeds", false, "skip seed pages")
	cmd.Flags().BoolVar(&f.expandSeed, "expand-seeds", false, "collect links from seed pages instead of scoring them directly")
	return cmd
}

func scoreCmd() *cobra.Command {
	var f runFlags
	var urls []string
	var file, rss string
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score explicit URLs, a URL file or a feed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			all := append([]string(nil), urls...)
			if file != "" {
				fromFile, err := discover.ReadURLFile(file)
				if err != nil {
					return err
				}
				all = append(all, fromFile...)
			}
			if rss != "" {
				links, err := discover.NewFeedSource(cfg.PageTimeout).Links(cmd.Context(), rss, 0)
				if err != nil {
					return err
				}
				all = append(all, links...)
			}
			if len(all) == 0 {
				return errNoInput
			}
			req := f.request()
			req.URLs = all
			return execute(cmd.Context(), cfg, req)
		},
	}
	f.bind(cmd)
	cmd.Flags().StringArrayVar(&urls, "url", nil, "URL to score (repeatable)")
	cmd.Flags().StringVar(&file, "file", "", "file with one URL per line")
	cmd.Flags().StringVar(&rss, "rss", "", "feed whose items should be scored")
	return cmd
}

func execute(ctx context.Context, cfg config.Config, req batch.Request) error {
	a, err := newApp(cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.batch.Run(ctx, "", req)
	if err != nil {
		return err
	}
	ok, failed, exhausted := res.Outcome.Counts()
	fmt.Printf("\nRun %s stopped: %s\n", res.RunID, res.Outcome.Reason)
	fmt.Printf("Summary: %d successful, %d errors, %d credit exhausted\n", ok, failed, exhausted)
	fmt.Printf("Usage: %s\n", res.Outcome.Stats)
	if res.Reports != nil {
		fmt.Printf("  JSON: %s\n  CSV:  %s\n  HTML: %s\n", res.Reports.JSON, res.Reports.CSV, res.Reports.HTML)
	}
	return nil
}

func discoverCmd() *cobra.Command {
	var out string
	var maxURLs int
	var expand bool
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List candidate URLs from the configured feeds and seeds",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			sources, err := discover.LoadSources(cfg.SourcesFile)
			if err != nil {
				return err
			}
			svc := discover.NewService(sources, discover.NewFeedSource(cfg.PageTimeout), discover.NewSeedExpander(cfg.PageTimeout))
			opts := discover.DefaultOptions()
			opts.MaxTotal = maxURLs
			opts.ExpandSeeds = expand
			urls := svc.Discover(cmd.Context(), opts)
			if err := discover.SaveURLFile(out, urls); err != nil {
				return err
			}
			fmt.Printf("Discovery complete. Found %d URLs, saved to %s\n", len(urls), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "discovered-urls.txt", "where to write the URL list")
	cmd.Flags().IntVar(&maxURLs, "max", 100, "cap on discovered URLs")
	cmd.Flags().BoolVar(&expand, "expand-seeds", false, "collect links from seed pages")
	return cmd
}

func analyzeCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "analyze [results.json]",
		Short: "Aggregate statistics over a results file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			path := filepath.Join(cfg.OutputDir, "results.json")
			if len(args) == 1 {
				path = args[0]
			}
			results, err := report.Load(path)
			if err != nil {
				return err
			}
			a := report.Analyze(results, time.Now())
			md, err := a.Markdown()
			if err != nil {
				return err
			}
			if out == "" {
				out = filepath.Join(filepath.Dir(path), "analysis-report.md")
			}
			if err := os.WriteFile(out, []byte(md), 0o644); err != nil {
				return fmt.Errorf("write analysis: %w", err)
			}
			fmt.Printf("Report saved to: %s\n", out)
			fmt.Printf("Total: %d, Successful: %d, Errors: %d\n", a.Total, a.Successful, a.Errors)
			fmt.Printf("Average Scores: Cw=%.2f, Sd=%.2f, Dv=%.2f\n", a.AvgCw, a.AvgSd, a.AvgDv)
			fmt.Printf("High-Scoring Articles: %d\n", len(a.HighScoring))
			if len(a.Domains) > 0 {
				fmt.Printf("Top Source: %s\n", a.Domains[0].Domain)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "markdown output path (default next to the results file)")
	return cmd
}
