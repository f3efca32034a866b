// file: internal/lifecycle/lifecycle.go

package lifecycle

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fedgate/internal/logger"
)

// Factory builds an application from configuration a Loader already read
type Factory func() (Application, error)

// Loader reads and validates configuration and returns a Factory bound to
// it. On SIGHUP it runs while the current application is still serving.
type Loader func() (Factory, error)

// RunWithReload runs an application until SIGINT or SIGTERM. On SIGHUP it
// calls load again; if that fails the error is logged and the running
// application keeps serving. Otherwise the running application is closed
// and replaced with one built from the new configuration.
//
//	err := lifecycle.RunWithReload(func() (lifecycle.Factory, error) {
//	    cfg, err := config.Load(path)
//	    if err != nil {
//	        return nil, err
//	    }
//	    return func() (lifecycle.Application, error) { return gateway.NewApp(cfg) }, nil
//	}, log)
func RunWithReload(load Loader, log *logger.Logger) error {
	shutdown := make(chan os.Signal, 1)
	reload := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	signal.Notify(reload, syscall.SIGHUP)
	defer signal.Stop(shutdown)
	defer signal.Stop(reload)

	return supervise(load, log, shutdown, reload)
}

func supervise(load Loader, log *logger.Logger, shutdown, reload <-chan os.Signal) error {
	factory, err := load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	reloadCount := 0
	for {
		startTime := time.Now()
		application, err := factory()
		if err != nil {
			if reloadCount > 0 {
				// The previous application is already closed
				log.Error("FATAL: failed to start application after reload",
					"reloadCount", reloadCount,
					"error", err)
			}
			return fmt.Errorf("failed to create application: %w", err)
		}
		if reloadCount > 0 {
			log.Info("application reload completed successfully",
				"reloadCount", reloadCount,
				"duration", time.Since(startTime))
		}

		next, runErr := serve(application, load, log, shutdown, reload)
		closeApplication(application, log)

		if next == nil {
			log.Info("shutdown complete")
			return runErr
		}
		factory = next
		reloadCount++
	}
}

// serve runs application until a shutdown signal, a run error, or a reload
// whose configuration loads. It returns the next factory on reload.
func serve(application Application, load Loader, log *logger.Logger, shutdown, reload <-chan os.Signal) (Factory, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Run(ctx)
	}()

	for {
		select {
		case sig := <-shutdown:
			log.Info("shutdown signal received - initiating graceful shutdown",
				"signal", sig)
			cancel()
			return nil, <-errCh

		case <-reload:
			log.Info("SIGHUP received - loading configuration")
			next, err := load()
			if err != nil {
				log.Error("reload aborted, keeping the running application",
					"error", err)
				continue
			}
			log.Info("draining queued deliveries and closing connections")
			cancel()
			if err := <-errCh; err != nil {
				log.Warn("application returned an error while stopping for reload",
					"error", err)
			}
			return next, nil

		case err := <-errCh:
			if err != nil {
				log.Error("application stopped with error", "error", err)
			} else {
				log.Info("application stopped")
			}
			return nil, err
		}
	}
}

func closeApplication(application Application, log *logger.Logger) {
	log.Info("closing application")
	closeStart := time.Now()
	if err := application.Close(); err != nil {
		log.Error("error during application close",
			"error", err,
			"duration", time.Since(closeStart))
		return
	}
	log.Info("application closed successfully",
		"duration", time.Since(closeStart))
}
