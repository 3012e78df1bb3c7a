package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sebas/voipcenter/internal/voip/api"
	"github.com/sebas/voipcenter/internal/voip/authority"
	"github.com/sebas/voipcenter/internal/voip/authority/sipphone"
	"github.com/sebas/voipcenter/internal/voip/center"
	"github.com/sebas/voipcenter/internal/voip/config"
	"github.com/sebas/voipcenter/internal/voip/events"
	"github.com/sebas/voipcenter/internal/voip/notify"
	"github.com/sebas/voipcenter/internal/voip/stats"
	"github.com/sebas/voipcenter/internal/voip/token"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
)

// VoIPCenter owns every component of a running service
type VoIPCenter struct {
	config    *config.Config
	registry  *prometheus.Registry
	monitor   *stats.Monitor
	authority authority.Authority
	phone     *sipphone.Phone
	tokens    token.Store
	notifier  notify.Notifier
	bridge    *events.Bridge
	publisher events.Publisher
	acks      *api.AckHub
	center    *center.Center
	apiServer *api.Server

	health     *health.Server
	grpcServer *grpc.Server
}

func New(cfg *config.Config) (*VoIPCenter, error) {
	v := &VoIPCenter{config: cfg}

	v.registry = prometheus.NewRegistry()
	v.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	v.monitor = stats.NewMonitor(cfg.NodeID, v.registry)

	var headless *authority.Headless
	switch cfg.Authority.Kind {
	case config.AuthoritySIP:
		phone, err := sipphone.New(sipphone.Config{
			BindAddr:      cfg.SIP.BindAddr,
			Port:          cfg.SIP.Port,
			AdvertiseAddr: cfg.SIP.AdvertiseAddr,
			PhoneURI:      cfg.SIP.PhoneURI,
			RingTimeout:   cfg.SIP.RingTimeout,
			MediaPort:     cfg.SIP.MediaPort,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SIP phone authority: %w", err)
		}
		v.phone = phone
		v.authority = phone
	default:
		headless = authority.NewHeadless()
		v.authority = headless
	}

	switch cfg.Token.Store {
	case config.TokenRedis:
		store, err := token.NewRedisStore(token.RedisConfig{
			Addr:     cfg.Token.RedisAddr,
			Password: cfg.Token.RedisPassword,
			DB:       cfg.Token.RedisDB,
			Key:      cfg.Token.Key,
			Channel:  cfg.Token.Channel,
		})
		if err != nil {
			v.authority.Close()
			return nil, err
		}
		v.tokens = store
	default:
		v.tokens = token.NewMemoryStore()
	}

	v.notifier = notify.NewLoggingNotifier(nil)

	v.bridge = events.NewBridge(cfg.Events.Buffer)
	v.bridge.SetOnDrop(func(kind events.Kind) {
		v.monitor.EventDropped(string(kind))
	})
	v.publisher = events.NewMultiPublisher(v.bridge, events.NewLoggingPublisher(nil))

	v.acks = api.NewAckHub(cfg.Ack.Timeout)

	c, err := center.New(center.Config{
		NodeID:        cfg.NodeID,
		AckTimeout:    cfg.Ack.Timeout,
		ReportTimeout: cfg.Authority.ReportTimeout,
		Audio: authority.AudioConfig{
			Mode:             cfg.Audio.Mode,
			IOBufferDuration: cfg.Audio.IOBufferDuration,
			SampleRate:       cfg.Audio.SampleRate,
		},
		Notification: notify.Notification{
			Title: cfg.Notification.Title,
			Body:  cfg.Notification.Body,
			Delay: cfg.Notification.Delay,
		},
	}, center.Deps{
		Authority:    v.authority,
		Publisher:    v.publisher,
		Acknowledger: v.acks,
		Tokens:       v.tokens,
		Notifier:     v.notifier,
		Monitor:      v.monitor,
	})
	if err != nil {
		v.Close()
		return nil, err
	}
	v.center = c

	v.apiServer = api.NewServer(api.Config{
		Addr:   cfg.API.Addr,
		NodeID: cfg.NodeID,
	}, api.Deps{
		Center:   c,
		Bridge:   v.bridge,
		Acks:     v.acks,
		Tokens:   v.tokens,
		Headless: headless,
		Gatherer: v.registry,
	})

	v.health = health.NewServer()
	v.health.SetServingStatus("", healthgrpc.HealthCheckResponse_NOT_SERVING)

	return v, nil
}

// Start brings the components up in dependency order
func (v *VoIPCenter) Start(ctx context.Context) error {
	if err := v.center.Start(ctx); err != nil {
		return err
	}
	if v.phone != nil {
		v.phone.Start(ctx)
	}
	if err := v.apiServer.Start(); err != nil {
		return err
	}
	if err := v.startHealth(); err != nil {
		return err
	}
	v.health.SetServingStatus("", healthgrpc.HealthCheckResponse_SERVING)
	slog.Info("[App] Started", "node_id", v.config.NodeID, "authority", v.config.Authority.Kind)
	return nil
}

func (v *VoIPCenter) startHealth() error {
	if v.config.Health.GRPCAddr == "" {
		return nil
	}
	listener, err := net.Listen("tcp", v.config.Health.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen for gRPC health on %s: %w", v.config.Health.GRPCAddr, err)
	}

	v.grpcServer = grpc.NewServer()
	healthgrpc.RegisterHealthServer(v.grpcServer, v.health)

	slog.Info("[App] gRPC health listening", "address", v.config.Health.GRPCAddr)
	go func() {
		if err := v.grpcServer.Serve(listener); err != nil {
			slog.Error("[App] gRPC health server error", "error", err)
		}
	}()
	return nil
}

// Close stops everything, the API first so no new requests reach the center
func (v *VoIPCenter) Close() error {
	var errs []error

	if v.health != nil {
		v.health.Shutdown()
	}
	if v.grpcServer != nil {
		v.grpcServer.GracefulStop()
	}
	if v.apiServer != nil {
		errs = append(errs, v.apiServer.Stop())
	}
	if v.center != nil {
		errs = append(errs, v.center.Close())
	}
	if v.acks != nil {
		v.acks.Close()
	}
	if v.publisher != nil {
		errs = append(errs, v.publisher.Close())
	}
	if v.notifier != nil {
		errs = append(errs, v.notifier.Close())
	}
	if v.tokens != nil {
		errs = append(errs, v.tokens.Close())
	}
	if v.authority != nil {
		errs = append(errs, v.authority.Close())
	}
	if v.monitor != nil {
		v.monitor.Unregister()
	}
	return errors.Join(errs...)
}
