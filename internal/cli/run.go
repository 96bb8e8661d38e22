package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ppiankov/currentevents/internal/model"
	"github.com/ppiankov/currentevents/internal/pipeline"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Parse a range of current events month pages",
	Long: `Run fetches every month page from --start to --end (inclusive, m/yyyy),
parses the selected days and writes topics and events to the configured sinks.

A month whose page cannot be fetched or parsed is skipped and reported,
unless --crash-on-error is set.

Example:
  currentevents run --start 1/2022
  currentevents run --start 1/2020 --end 12/2021 --workers 4
  currentevents run --start 3/2022 --start-day 5 --end-day 7 --sample 10
  currentevents run --start 1/2022 --sink jsonl,nats`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

// runFlags maps each run flag to its config key
var runFlags = map[string]string{
	"start":                "run.start",
	"end":                  "run.end",
	"start-day":            "run.start_day",
	"end-day":              "run.end_day",
	"topic-budget":         "run.topic_budget",
	"event-budget":         "run.event_budget",
	"workers":              "run.workers",
	"sample":               "run.sample",
	"crash-on-error":       "run.crash_on_error",
	"ignore-outline-cache": "cache.ignore_outline_cache",
	"ignore-article-cache": "cache.ignore_article_cache",
	"no-cache":             "cache.enabled",
	"sink":                 "sink.type",
	"out":                  "sink.path",
	"ner":                  "ner.provider",
	"timeout":              "http.timeout",
	"ua":                   "http.user_agent",
	"insecure":             "http.insecure_tls",
}

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd.Flags(), model.DefaultConfig())
	if err := bindRunFlags(viper.GetViper(), runCmd.Flags()); err != nil {
		panic(err)
	}
}

func addRunFlags(fs *pflag.FlagSet, def *model.Config) {
	// Month selection
	fs.String("start", def.Run.Start, "first month to parse (m/yyyy)")
	fs.String("end", def.Run.End, "last month to parse (m/yyyy, default: --start)")
	fs.Int("start-day", def.Run.StartDay, "first day of each month")
	fs.Int("end-day", def.Run.EndDay, "last day of each month")

	// Parsing
	fs.Int("topic-budget", def.Run.TopicBudget, "resolution hops for topic articles")
	fs.Int("event-budget", def.Run.EventBudget, "resolution hops for event articles")
	fs.Int("workers", def.Run.Workers, "days parsed in parallel")
	fs.Int("sample", def.Run.Sample, "stop each day after this many events (0: all)")
	fs.Bool("crash-on-error", def.Run.CrashOnError, "stop at the first failing month")
	fs.String("ner", def.NER.Provider, "entity recognizer (falcon2, openai, none)")

	// Caching
	fs.Bool("ignore-outline-cache", def.Cache.IgnoreOutlineCache, "refetch month pages")
	fs.Bool("ignore-article-cache", def.Cache.IgnoreArticleCache, "refetch article pages")
	fs.Bool("no-cache", false, "disable page caching")

	// Output
	fs.String("sink", def.Sink.Type, "comma separated sinks (jsonl, postgres, neo4j, nats)")
	fs.String("out", def.Sink.Path, "output directory of the jsonl sink")

	// HTTP
	fs.Duration("timeout", def.HTTP.Timeout, "per request timeout")
	fs.String("ua", def.HTTP.UserAgent, "HTTP User-Agent")
	fs.Bool("insecure", def.HTTP.InsecureTLS, "skip TLS certificate verification")
}

// bindRunFlags binds every run flag except no-cache, which inverts
// cache.enabled and is applied in applyRunFlags.
func bindRunFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range runFlags {
		if name == "no-cache" {
			continue
		}
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return fmt.Errorf("bind --%s: %w", name, err)
		}
	}
	return nil
}

func applyRunFlags(cfg *model.Config, fs *pflag.FlagSet) error {
	noCache, err := fs.GetBool("no-cache")
	if err != nil {
		return err
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
	if cfg.Run.Start == "" {
		return errors.New("--start is required")
	}
	if cfg.Run.StartDay < 1 || cfg.Run.EndDay < cfg.Run.StartDay {
		return fmt.Errorf("invalid day range %d-%d", cfg.Run.StartDay, cfg.Run.EndDay)
	}
	return nil
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if err := applyRunFlags(cfg, cmd.Flags()); err != nil {
		return err
	}
	months, err := pipeline.MonthRange(cfg.Run.Start, cfg.Run.End)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.NewPipeline(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("setup failed: %w", err)
	}

	start := time.Now()
	summary, runErr := p.Run(ctx, months)

	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	closeErr := p.Close(closeCtx)

	printSummary(cmd.ErrOrStderr(), summary, p.Collector().Summary(), time.Since(start))
	return errors.Join(runErr, closeErr)
}

func printSummary(w io.Writer, summary *pipeline.Summary, totals string, elapsed time.Duration) {
	if summary == nil {
		return
	}
	fmt.Fprintf(w, "\nParsed %d month(s), skipped %d in %s\n", len(summary.Parsed), len(summary.Skipped), elapsed.Round(time.Millisecond))
	for _, s := range summary.Skipped {
		fmt.Fprintf(w, "  ✗ %s: %v\n", s.Month, s.Err)
	}
	fmt.Fprintln(w)
	fmt.Fprint(w, totals)
}
