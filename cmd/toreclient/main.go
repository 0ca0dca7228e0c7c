package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/rickgao/tore/internal/client"
	"github.com/rickgao/tore/internal/config"
	"github.com/rickgao/tore/internal/connection"
	"github.com/rickgao/tore/internal/sysinfo"
	"github.com/rickgao/tore/internal/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "toreclient: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var (
		configPath  string
		origin      string
		subscribe   []string
		publish     []string
		udpAddr     string
		showSystem  bool
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("toreclient", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "", "path to config file (yaml, json or jsonc)")
	flagSet.StringVar(&origin, "origin", "", "server origin or socket URL (overrides client.origin)")
	flagSet.StringSliceVarP(&subscribe, "subscribe", "s", []string{"/time"}, "destination patterns to subscribe to")
	flagSet.StringArrayVarP(&publish, "publish", "p", nil, "destination=content to publish on every open")
	flagSet.StringVar(&udpAddr, "udp", "", "publish over udp to this host:port instead of the socket")
	flagSet.BoolVar(&showSystem, "system", false, "fetch and print server system info before connecting")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Println("toreclient", version.String())
		return nil
	}

	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.LoadAndValidate(configPath); err != nil {
			return err
		}
	}
	if flagSet.Changed("origin") {
		cfg.Client.Origin = origin
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("validate config: %w", err)
		}
	}

	publications, err := parsePublications(publish)
	if err != nil {
		return err
	}

	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if showSystem {
		if err := printSystemInfo(ctx, cfg.Client.Origin, logger); err != nil {
			return err
		}
	}

	c, err := client.New(clientConfig(cfg.Client), client.WithLogger(logger))
	if err != nil {
		return err
	}
	defer c.Close()

	publishFn := c.Publish
	if udpAddr != "" {
		udp, err := client.NewUDPPublisher(udpAddr, nil)
		if err != nil {
			return err
		}
		defer udp.Close()
		publishFn = udp.Publish
	}

	c.OnOpen(func() {
		logger.Info("connected", "endpoint", cfg.Client.Origin)
		for _, p := range publications {
			if err := publishFn(p.content, p.destination); err != nil {
				logger.Warn("publish failed", "destination", p.destination, "error", err)
			}
		}
	})
	c.OnClose(func() { logger.Info("disconnected") })
	c.OnError(func(err error) { logger.Warn("connection error", "error", err) })

	for _, dest := range subscribe {
		err := c.Subscribe(dest, func(content any, match []string) {
			fmt.Printf("%s\t%v\n", strings.Join(match, " "), content)
		})
		// Subscriptions made before the first open are sent on open.
		if err != nil && !errors.Is(err, connection.ErrNotConnected) {
			return err
		}
	}

	if err := c.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logger.Info("shutting down", "stats", c.Stats())
	return nil
}

type publication struct {
	destination string
	content     string
}

func parsePublications(values []string) ([]publication, error) {
	out := make([]publication, 0, len(values))
	for _, v := range values {
		dest, content, ok := strings.Cut(v, "=")
		if !ok || dest == "" {
			return nil, fmt.Errorf("invalid --publish %q: want destination=content", v)
		}
		out = append(out, publication{destination: dest, content: content})
	}
	return out, nil
}

func printSystemInfo(ctx context.Context, origin string, logger *slog.Logger) error {
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("--system needs an http(s) origin, got %q", origin)
	}

	info, err := sysinfo.NewClient(origin,
		sysinfo.WithLogger(logger),
		sysinfo.WithTimeout(10*time.Second),
	).Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch system info: %w", err)
	}

	fmt.Printf("user: %s\nplatform: %s\nprocessor: %s\n", info.Username, info.Platform, info.Processor)
	return nil
}

func clientConfig(c config.ClientConfig) client.Config {
	return client.Config{
		Origin:           c.Origin,
		Path:             c.Path,
		Codec:            c.Codec,
		ReconnectDelay:   c.ReconnectDelay,
		Resubscribe:      c.ResubscribeEnabled(),
		HandshakeTimeout: c.HandshakeTimeout,
		WriteTimeout:     c.WriteTimeout,
		PingInterval:     c.PingInterval,
		PingTimeout:      c.PingTimeout,
		MaxFrameSize:     c.MaxFrameSize,
	}
}
