package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sebas/voipcenter/internal/banner"
	"github.com/sebas/voipcenter/internal/logger"
	"github.com/sebas/voipcenter/internal/voip/app"
	"github.com/sebas/voipcenter/internal/voip/config"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:        "voipcenter",
		Usage:       "VoIP call-session coordinator",
		Description: "Turns VoIP pushes into one tracked call and reports it to the application",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "YAML config file",
				Sources: cli.EnvVars("VOIPCENTER_CONFIG_FILE"),
			},
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "env files to load (default .env when present)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "api-addr",
				Usage: "HTTP API listen address",
			},
			&cli.StringFlag{
				Name:  "node-id",
				Usage: "node identifier reported in events and metrics",
			},
		},
		Action: runService,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func getConfig(c *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"), c.StringSlice("env-file")...)
	if err != nil {
		return nil, err
	}
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v := c.String("api-addr"); v != "" {
		cfg.API.Addr = v
	}
	if v := c.String("node-id"); v != "" {
		cfg.NodeID = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runService(ctx context.Context, c *cli.Command) error {
	cfg, err := getConfig(c)
	if err != nil {
		return err
	}

	logger.InitLogger(os.Stdout)
	logger.SetLevel(cfg.LogLevel)

	vc, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create voipcenter: %w", err)
	}
	defer vc.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := vc.Start(ctx); err != nil {
		return err
	}

	banner.Print(os.Stdout, "VoIP Call Center", cfg.NodeID, bannerSections(cfg))
	logNetworkInterfaces()

	// Wait for signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	slog.Info("[App] Received signal, shutting down", "signal", sig)
	return nil
}

func bannerSections(cfg *config.Config) []banner.Section {
	service := banner.Section{Title: "Service"}
	service.Add("API", cfg.API.Addr)
	service.Add("gRPC health", cfg.Health.GRPCAddr)
	service.Add("Log level", logger.GetLevel())

	auth := banner.Section{Title: "Authority"}
	auth.Add("Kind", cfg.Authority.Kind)
	auth.Add("Report timeout", cfg.Authority.ReportTimeout.String())
	auth.Add("Audio", cfg.Audio.Mode+" "+strconv.FormatFloat(cfg.Audio.SampleRate, 'f', -1, 64)+"Hz")
	if cfg.Authority.Kind == config.AuthoritySIP {
		auth.Add("SIP", fmt.Sprintf("%s:%d", cfg.SIP.BindAddr, cfg.SIP.Port))
		auth.Add("Phone", cfg.SIP.PhoneURI)
	}

	app := banner.Section{Title: "Application"}
	app.Add("Token store", cfg.Token.Store)
	if cfg.Token.Store == config.TokenRedis {
		app.Add("Redis", cfg.Token.RedisAddr)
	}
	app.Add("Ack timeout", ackTimeout(cfg))
	app.Add("Event buffer", strconv.Itoa(cfg.Events.Buffer))

	return []banner.Section{service, auth, app}
}

func ackTimeout(cfg *config.Config) string {
	if cfg.Ack.Timeout <= 0 {
		return "unbounded"
	}
	return cfg.Ack.Timeout.String()
}

func logNetworkInterfaces() {
	interfaces, err := net.Interfaces()
	if err != nil {
		return
	}

	for _, iface := range interfaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ip, _, err := net.ParseCIDR(addr.String())
			if err != nil {
				continue
			}
			slog.Debug("[App] Network interface", "interface", iface.Name, "ip", ip.String())
		}
	}
}
