package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/rickgao/tore/internal/config"
	"github.com/rickgao/tore/internal/exchange"
	"github.com/rickgao/tore/internal/server"
	"github.com/rickgao/tore/internal/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "toreserver: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath   string
		addr         string
		tcpAddr      string
		udpAddr      string
		staticDir    string
		allowPublish bool
		showVersion  bool
	)

	flagSet := pflag.NewFlagSet("toreserver", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to config file (yaml, json or jsonc)")
	flagSet.StringVar(&addr, "addr", "", "http/websocket listen address (overrides server.addr)")
	flagSet.StringVar(&tcpAddr, "tcp-addr", "", "tcp listen address (overrides server.tcp_addr)")
	flagSet.StringVar(&udpAddr, "udp-addr", "", "udp listen address (overrides server.udp_addr)")
	flagSet.StringVar(&staticDir, "static-dir", "", "directory served under /web/ (overrides server.static_dir)")
	flagSet.BoolVar(&allowPublish, "allow-websocket-publish", false, "accept publish frames on websocket")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Println("toreserver", version.String())
		return nil
	}

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadAndValidate(configPath); err != nil {
			return err
		}
	}

	if flagSet.Changed("addr") {
		cfg.Server.Addr = addr
	}
	if flagSet.Changed("tcp-addr") {
		cfg.Server.TCPAddr = tcpAddr
	}
	if flagSet.Changed("udp-addr") {
		cfg.Server.UDPAddr = udpAddr
	}
	if flagSet.Changed("static-dir") {
		cfg.Server.StaticDir = staticDir
	}
	if flagSet.Changed("allow-websocket-publish") {
		cfg.Server.AllowWebSocketPublish = allowPublish
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	logger := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	logger.Info("starting toreserver",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	exCfg := exchange.DefaultConfig()
	exCfg.QueueSize = cfg.Server.QueueSize
	ex := exchange.New(exCfg, logger.With("component", "exchange"))

	srv := server.New(serverConfig(cfg.Server), ex, logger.With("component", "server"))

	if err := srv.Run(ctx); err != nil {
		return err
	}

	stats := srv.Stats()
	logger.Info("toreserver stopped",
		"sessions_opened", stats.SessionsOpened,
		"frames_handled", stats.FramesHandled,
		"frames_rejected", stats.FramesRejected,
		"pushed", ex.Stats().Pushed,
	)
	return nil
}

func serverConfig(c config.ServerConfig) server.Config {
	return server.Config{
		Addr:                  c.Addr,
		TCPAddr:               c.TCPAddr,
		UDPAddr:               c.UDPAddr,
		Path:                  c.Path,
		StaticDir:             c.StaticDir,
		TLSCertFile:           c.TLSCertFile,
		TLSKeyFile:            c.TLSKeyFile,
		AllowWebSocketPublish: c.AllowWebSocketPublish,
		TimeDestination:       c.TimeDestination,
		TimeInterval:          c.TimeInterval,
		MaxDatagramSize:       c.MaxDatagramSize,
		MaxFrameSize:          c.MaxFrameSize,
		WriteTimeout:          c.WriteTimeout,
		PingInterval:          c.PingInterval,
		ShutdownTimeout:       c.ShutdownTimeout,
	}
}
