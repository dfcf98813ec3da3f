package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ppiankov/verity/internal/config"
	"github.com/ppiankov/verity/internal/model"
)

// version is set at build time
var version = "v0.1.0"

var (
	cfgFile   string
	verbose   bool
	logFormat string

	v       *viper.Viper
	vErr    error
	logger            = slog.Default()
	stdout  io.Writer = os.Stdout
	stderrW io.Writer = os.Stderr
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "verity",
	Short: "Verity - claim verification and dark pattern detection for web pages",
	Long: `Verity scans web pages for factual claims, checks them against a
verification service and highlights them by rating. It also flags
manipulative patterns: fake countdown timers, artificial scarcity and
hidden subscription terms.

Ratings marked SIMULATED were produced locally because the verification
service could not be reached. They are not verified.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number of Verity.`,
	Run: func(cmd *cobra.Command, args []string) {
		_, _ = fmt.Fprintf(stdout, "verity %s\n", version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.verity/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().String("api-endpoint", "", "verification service base URL")
	rootCmd.PersistentFlags().Bool("no-cache", false, "disable the verification cache")

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and VERITY_* environment variables
func initConfig() {
	v, vErr = config.New(cfgFile)

	// Flags take precedence over environment and file
	_ = v.BindPFlag("settings.apiEndpoint", rootCmd.PersistentFlags().Lookup("api-endpoint"))
	if noCache, _ := rootCmd.PersistentFlags().GetBool("no-cache"); noCache {
		v.Set("cache.enabled", false)
	}

	if vErr == nil && verbose && v.ConfigFileUsed() != "" {
		_, _ = fmt.Fprintf(stderrW, "Using config file: %s\n", v.ConfigFileUsed())
	}
}

func setupLogging() error {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch logFormat {
	case "text", "":
		handler = slog.NewTextHandler(stderrW, opts)
	case "json":
		handler = slog.NewJSONHandler(stderrW, opts)
	default:
		return fmt.Errorf("unknown log format: %s (supported: text, json)", logFormat)
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
	return nil
}

// loadConfig resolves the full configuration
func loadConfig() (*model.Config, error) {
	if vErr != nil {
		return nil, vErr
	}
	if v == nil {
		initConfig()
		if vErr != nil {
			return nil, vErr
		}
	}
	return config.Load(v)
}
