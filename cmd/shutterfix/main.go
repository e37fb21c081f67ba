package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/On-Jun9/ShutterFix/internal/config"
	"github.com/On-Jun9/ShutterFix/internal/pipeline"
	"github.com/On-Jun9/ShutterFix/pkg/types"
)

var (
	appVersion  = "0.1.0"
	cfgFile     string
	profileName string
	root        string
	database    string
	dirIndex    string
	logFile     string
	logJSON     bool
	verbose     bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, types.ErrInterrupted) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "shutterfix",
	Short: "Find and repair missing capture dates in a photo library",
	Long: `ShutterFix keeps a database of every photo below a root directory, classifies
why a photo has no usable capture date, recovers a plausible date from its
neighbours, its filename or a reviewed CSV, and writes the result back to EXIF.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(appVersion)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file path (.yaml or .toml)")
	pf.StringVar(&profileName, "profile", "", "load a saved profile instead of a config file")
	pf.StringVarP(&root, "dir", "d", "", "photo root directory (default $"+config.EnvRoot+")")
	pf.StringVar(&database, "picture-database", "", "picture database file")
	pf.StringVar(&dirIndex, "dir-index", "", "directory index file")
	pf.StringVar(&logFile, "log-file", "", "log file path")
	pf.BoolVar(&logJSON, "log-json", false, "write JSON lines to the log file")
	pf.BoolVarP(&verbose, "verbose", "v", false, "log per-record decisions")

	rootCmd.AddCommand(versionCmd)
	addCommands(rootCmd)
}

// loadConfig resolves the configuration: profile or config file, then
// DefaultConfig, then command line overrides.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config

	switch {
	case profileName != "" && cfgFile != "":
		return nil, fmt.Errorf("--profile and --config are mutually exclusive")
	case profileName != "":
		pm, err := config.NewProfileManager()
		if err != nil {
			return nil, err
		}
		profile, err := pm.Load(profileName)
		if err != nil {
			return nil, fmt.Errorf("failed to load profile: %w", err)
		}
		cfg = &profile.Config
	case cfgFile != "":
		var err error
		cfg, err = config.LoadFromFile(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	default:
		cfg = config.DefaultConfig()
	}

	if root != "" {
		cfg.Root = root
	}
	if database != "" {
		cfg.Database = database
	}
	if dirIndex != "" {
		cfg.DirIndex = dirIndex
	}
	if logFile != "" {
		cfg.LogFile = logFile
	}
	if logJSON {
		cfg.LogJSON = true
	}
	if verbose {
		cfg.Verbose = true
	}
	return cfg, nil
}

// withPipeline validates the configuration, opens a pipeline and runs fn.
// tweak, when set, adjusts the configuration before validation.
func withPipeline(tweak func(cfg *config.Config), fn func(p *pipeline.Pipeline) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if tweak != nil {
		tweak(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer p.Close()

	return fn(p)
}
