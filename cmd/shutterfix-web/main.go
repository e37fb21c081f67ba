package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/On-Jun9/ShutterFix/internal/config"
	"github.com/On-Jun9/ShutterFix/internal/pipeline"
	"github.com/On-Jun9/ShutterFix/internal/web"
)

var (
	version = "dev" // set by ldflags during build
)

func main() {
	addr := flag.String("addr", "localhost:8080", "HTTP server address")
	cfgFile := flag.String("config", "", "config file path (.yaml or .toml)")
	root := flag.String("dir", "", "photo root directory (default $"+config.EnvRoot+")")
	database := flag.String("picture-database", "", "picture database file")
	flag.Parse()

	if err := run(*addr, *cfgFile, *root, *database); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(addr, cfgFile, root, database string) error {
	cfg := config.DefaultConfig()
	if cfgFile != "" {
		var err error
		if cfg, err = config.LoadFromFile(cfgFile); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}
	if root != "" {
		cfg.Root = root
	}
	if database != "" {
		cfg.Database = database
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	p, err := pipeline.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer p.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := web.NewServer(p, p.Logger())
	server.SetVersion(version)
	return server.Start(ctx, addr)
}
