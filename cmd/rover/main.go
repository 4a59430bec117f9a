package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rovermail/rover/auth"
	"github.com/rovermail/rover/config"
	"github.com/rovermail/rover/logger"
	"github.com/rovermail/rover/midb"
	"github.com/rovermail/rover/server/adminapi"
	"github.com/rovermail/rover/server/imap"
)

func main() {
	cfg := config.NewDefaultConfig()

	// Flags override values from the config file when set.
	configPath := flag.String("config", "config.toml", "Path to TOML configuration file")
	fListen := flag.String("listen", cfg.Server.Listen, "IMAP listen address (overrides config)")
	fListenTLS := flag.String("listentls", cfg.Server.ListenTLS, "Implicit-TLS IMAP listen address (overrides config)")
	fHostname := flag.String("hostname", cfg.Server.Hostname, "Server hostname (overrides config)")
	fMIDBAddr := flag.String("midbaddr", cfg.MIDB.Address, "Mail index service address (overrides config)")
	fLogOutput := flag.String("logoutput", cfg.Logging.Output, "Log output: stdout, stderr, syslog or a file path (overrides config)")
	fLogLevel := flag.String("loglevel", cfg.Logging.Level, "Log level: debug, info, warn, error (overrides config)")
	flag.Parse()

	if err := config.LoadFromFile(*configPath, &cfg); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "config %s not found, using defaults\n", *configPath)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Server.Listen = *fListen
		case "listentls":
			cfg.Server.ListenTLS = *fListenTLS
		case "hostname":
			cfg.Server.Hostname = *fHostname
		case "midbaddr":
			cfg.MIDB.Address = *fMIDBAddr
		case "logoutput":
			cfg.Logging.Output = *fLogOutput
		case "loglevel":
			cfg.Logging.Level = *fLogLevel
		}
	})

	logFile, err := logger.Initialize(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	if len(cfg.Auth.Users) == 0 {
		logger.Fatal("no users configured, refusing to start")
	}

	connectTimeout, err := cfg.MIDB.GetConnectTimeout()
	if err != nil {
		logger.Fatal("invalid midb connect_timeout", "error", err)
	}
	commandTimeout, err := cfg.MIDB.GetCommandTimeout()
	if err != nil {
		logger.Fatal("invalid midb command_timeout", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	network, address := cfg.MIDB.Network()
	client := midb.NewPool(midb.PoolConfig{
		Network:        network,
		Address:        address,
		ConnectTimeout: connectTimeout,
		CommandTimeout: commandTimeout,
		PoolSize:       cfg.MIDB.PoolSize,
	})
	defer client.Close()

	store := auth.NewStaticStore(cfg.Auth.Users)

	opts, err := imap.OptionsFromConfig(&cfg)
	if err != nil {
		logger.Fatal("invalid server configuration", "error", err)
	}

	errChan := make(chan error, 3)
	var closers []func()

	imapServer, err := imap.New(ctx, client, store, opts)
	if err != nil {
		logger.Fatal("failed to create IMAP server", "error", err)
	}
	go imapServer.Start(errChan)
	closers = append(closers, imapServer.Close)

	if cfg.Server.ListenTLS != "" {
		tlsOpts := opts
		tlsOpts.Addr = cfg.Server.ListenTLS
		tlsOpts.ImplicitTLS = true
		tlsServer, err := imap.New(ctx, client, store, tlsOpts)
		if err != nil {
			logger.Fatal("failed to create IMAPS server", "error", err)
		}
		go tlsServer.Start(errChan)
		closers = append(closers, tlsServer.Close)
	}

	if cfg.AdminAPI.Enabled {
		admin, err := adminapi.New(cfg.AdminAPI, client, imapServer.Stats())
		if err != nil {
			logger.Fatal("failed to create admin API", "error", err)
		}
		go admin.Start(errChan)
		closers = append(closers, admin.Close)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-errChan:
		logger.Error("server error, shutting down", "error", err)
	}

	cancel()
	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
	logger.Info("shutdown complete")
}
