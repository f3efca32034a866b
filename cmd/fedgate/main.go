// file: cmd/fedgate/main.go

package main

import (
	"log"

	flag "github.com/spf13/pflag"

	"fedgate/config"
	"fedgate/internal/gateway"
	"fedgate/internal/lifecycle"
	"fedgate/internal/logger"
)

type flags struct {
	configPath  string
	environment string
	listenAddr  string
	metricsAddr string
	workers     int
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	f := parseFlags()

	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	// Setup logger
	appLogger, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		return err
	}
	defer appLogger.Sync()

	// The first load reuses the config read above, reloads reread the file
	first := true
	load := func() (lifecycle.Factory, error) {
		appCfg := cfg
		if !first {
			var err error
			appCfg, err = loadConfig(f)
			if err != nil {
				return nil, err
			}
		}
		first = false
		return func() (lifecycle.Application, error) {
			return gateway.NewApp(appCfg)
		}, nil
	}

	// Run with reload support (handles SIGHUP automatically)
	return lifecycle.RunWithReload(load, appLogger)
}

// parseFlags parses command line arguments
func parseFlags() flags {
	var f flags
	flag.StringVarP(&f.configPath, "config", "c", "config/fedgate.yaml", "path to config file (YAML or JSON)")
	flag.StringVar(&f.environment, "env", "", "override deployment environment (empty = use config)")
	flag.StringVar(&f.listenAddr, "listen", "", "override inbox server address (empty = use config)")
	flag.StringVar(&f.metricsAddr, "metrics-addr", "", "override metrics server address (empty = use config)")
	flag.IntVar(&f.workers, "workers", 0, "override inbound publish worker count (0 = use config)")
	flag.Parse()
	return f
}

// loadConfig loads the config file and applies command line overrides
func loadConfig(f flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyOverrides(f.environment, f.listenAddr, f.metricsAddr, f.workers)
	return cfg, nil
}
