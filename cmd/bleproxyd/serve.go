package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/bleproxy/internal/api"
	"github.com/srg/bleproxy/internal/backend/goble"
	"github.com/srg/bleproxy/internal/deviceinfo"
	"github.com/srg/bleproxy/internal/proxy"
	"github.com/srg/bleproxy/pkg/config"
)

var (
	serveConfigPath        string
	serveHost              string
	servePort              int
	serveName              string
	serveFriendlyName      string
	servePassword          string
	serveActiveConnections bool
	serveMaxConnections    int
	serveBatchSize         int
	serveLogLevel          string
	serveLogFile           string
)

// shutdownTimeout bounds the orderly teardown of clients and GATT links.
const shutdownTimeout = 5 * time.Second

// loadConfig merges the optional config file with explicit flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if serveConfigPath != "" {
		var err error
		cfg, err = config.Load(serveConfigPath)
		if err != nil {
			return nil, err
		}
	}

	// Flags win over the file, but only when actually set
	if cmd.Flags().Changed("host") {
		cfg.Host = serveHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = servePort
	}
	if cmd.Flags().Changed("name") {
		cfg.Name = serveName
	}
	if cmd.Flags().Changed("friendly-name") {
		cfg.FriendlyName = serveFriendlyName
	}
	if cmd.Flags().Changed("password") {
		cfg.Password = servePassword
	}
	if cmd.Flags().Changed("active-connections") {
		cfg.ActiveConnections = serveActiveConnections
	}
	if cmd.Flags().Changed("max-connections") {
		cfg.MaxConnections = serveMaxConnections
	}
	if cmd.Flags().Changed("batch-size") {
		cfg.BatchSize = serveBatchSize
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = serveLogLevel
	}
	if cmd.Flags().Changed("log-file") {
		cfg.LogFile = serveLogFile
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	backend, err := goble.New(logger)
	if err != nil {
		return fmt.Errorf("opening Bluetooth adapter: %w", err)
	}

	info := deviceinfo.NewProvider(cfg.Name, cfg.FriendlyName, cfg.Password != "", cfg.ActiveConnections, backend, logger)
	info.SetProject("srg.bleproxy", formatVersion(version))

	// Resolve the adapter MAC up front: clients reject a proxy without one,
	// so failing late would only hide a broken deployment.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	identity, err := info.Identity(ctx)
	cancel()
	if err != nil {
		return fmt.Errorf("resolving adapter identity: %w", err)
	}

	p := proxy.New(backend, cfg.MaxConnections, cfg.ActiveConnections, logger)
	p.SetBatchSize(cfg.BatchSize)

	srv := api.NewServer(api.Config{
		Name:       cfg.Name,
		ServerInfo: fmt.Sprintf("bleproxy %s", formatVersion(version)),
		Password:   cfg.Password,
	}, p, info, logger)

	if err := srv.Listen(cfg.Host, cfg.Port); err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"name":               cfg.Name,
		"mac":                identity.MacAddress,
		"active_connections": cfg.ActiveConnections,
		"max_connections":    cfg.MaxConnections,
	}).Info("Bluetooth proxy ready")

	sigCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve() }()

	select {
	case err := <-serveErr:
		return err
	case <-sigCtx.Done():
	}

	// A second signal during teardown is ignored; teardown is bounded anyway
	stop()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("API shutdown incomplete")
	}
	if err := p.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Bluetooth teardown incomplete")
	}

	logger.Info("Shutdown complete")
	return nil
}
