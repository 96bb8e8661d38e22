package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/ppiankov/currentevents/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time
var Version = "v0.1.0"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "currentevents",
	Short: "Parse the Wikipedia current events portal into topics and events",
	Long: `currentevents walks the month pages of Wikipedia's Portal:Current_events
and turns each day's nested lists into a tree of topics and events.

Linked articles are fetched, their infoboxes parsed, and their entities
enriched from Wikidata and OpenStreetMap. Topics and events are written to
the configured sinks as they are built.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// ExecuteContext runs the root command with ctx as the base context of
// every subcommand.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "currentevents %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.currentevents/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(filepath.Join(home, ".currentevents"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	configureEnv(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// configureEnv maps CURRENTEVENTS_SECTION_KEY variables onto section.key.
// Secrets also fall back to their conventional variables.
func configureEnv(v *viper.Viper) {
	v.SetEnvPrefix("CURRENTEVENTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("ner.api_key", "CURRENTEVENTS_NER_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("sink.postgres_dsn", "CURRENTEVENTS_SINK_POSTGRES_DSN", "DATABASE_URL")
	_ = v.BindEnv("sink.neo4j_password", "CURRENTEVENTS_SINK_NEO4J_PASSWORD", "NEO4J_PASSWORD")
	_ = v.BindEnv("cache.redis_addr", "CURRENTEVENTS_CACHE_REDIS_ADDR")
	_ = v.BindEnv("http.https_proxy", "CURRENTEVENTS_HTTP_HTTPS_PROXY")
	_ = v.BindEnv("http.http_proxy", "CURRENTEVENTS_HTTP_HTTP_PROXY")
}

// loadConfig layers flags, environment and config file over the defaults.
func loadConfig(v *viper.Viper) (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if v.GetBool("verbose") {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// newLogger builds the diagnostics logger on stderr
func newLogger(level string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	return log.NewWithOptions(os.Stderr, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		Prefix:          "currentevents",
	}), nil
}
