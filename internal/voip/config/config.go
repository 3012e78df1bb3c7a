package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable, e.g. VOIPCENTER_API_ADDR
const EnvPrefix = "VOIPCENTER_"

// Authority kinds
const (
	AuthorityHeadless = "headless"
	AuthoritySIP      = "sip"
)

// Token stores
const (
	TokenMemory = "memory"
	TokenRedis  = "redis"
)

// Config holds the voipcenter configuration
type Config struct {
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
	NodeID   string `yaml:"node_id" env:"NODE_ID"`

	API          APIConfig          `yaml:"api" envPrefix:"API_"`
	Health       HealthConfig       `yaml:"health" envPrefix:"HEALTH_"`
	Authority    AuthorityConfig    `yaml:"authority" envPrefix:"AUTHORITY_"`
	SIP          SIPConfig          `yaml:"sip" envPrefix:"SIP_"`
	Audio        AudioConfig        `yaml:"audio" envPrefix:"AUDIO_"`
	Token        TokenConfig        `yaml:"token" envPrefix:"TOKEN_"`
	Ack          AckConfig          `yaml:"ack" envPrefix:"ACK_"`
	Events       EventsConfig       `yaml:"events" envPrefix:"EVENTS_"`
	Notification NotificationConfig `yaml:"notification" envPrefix:"NOTIFICATION_"`
}

type APIConfig struct {
	Addr string `yaml:"addr" env:"ADDR"`
}

type HealthConfig struct {
	// GRPCAddr serves grpc.health.v1; empty disables it
	GRPCAddr string `yaml:"grpc_addr" env:"GRPC_ADDR"`
}

type AuthorityConfig struct {
	Kind          string        `yaml:"kind" env:"KIND"`
	ReportTimeout time.Duration `yaml:"report_timeout" env:"REPORT_TIMEOUT"`
}

// SIPConfig locates the desk phone used by the sip authority
type SIPConfig struct {
	BindAddr      string        `yaml:"bind_addr" env:"BIND_ADDR"`
	Port          int           `yaml:"port" env:"PORT"`
	AdvertiseAddr string        `yaml:"advertise_addr" env:"ADVERTISE_ADDR"`
	PhoneURI      string        `yaml:"phone_uri" env:"PHONE_URI"`
	RingTimeout   time.Duration `yaml:"ring_timeout" env:"RING_TIMEOUT"`
	MediaPort     int           `yaml:"media_port" env:"MEDIA_PORT"`
}

type AudioConfig struct {
	Mode             string        `yaml:"mode" env:"MODE"`
	IOBufferDuration time.Duration `yaml:"io_buffer_duration" env:"IO_BUFFER_DURATION"`
	SampleRate       float64       `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

type TokenConfig struct {
	Store         string `yaml:"store" env:"STORE"`
	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"REDIS_DB"`
	Key           string `yaml:"key" env:"KEY"`
	Channel       string `yaml:"channel" env:"CHANNEL"`
}

type AckConfig struct {
	// Timeout bounds the acknowledgment round trip; 0 waits forever
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

type EventsConfig struct {
	Buffer int `yaml:"buffer" env:"BUFFER"`
}

type NotificationConfig struct {
	Title string        `yaml:"title" env:"TITLE"`
	Body  string        `yaml:"body" env:"BODY"`
	Delay time.Duration `yaml:"delay" env:"DELAY"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		LogLevel: "info",
		NodeID:   "voipcenter-0",
		API:      APIConfig{Addr: ":8080"},
		Authority: AuthorityConfig{
			Kind:          AuthorityHeadless,
			ReportTimeout: 30 * time.Second,
		},
		SIP: SIPConfig{
			BindAddr:    "0.0.0.0",
			Port:        5060,
			RingTimeout: 60 * time.Second,
			MediaPort:   40000,
		},
		Audio: AudioConfig{
			Mode:             "audio",
			IOBufferDuration: 5 * time.Millisecond,
			SampleRate:       44100,
		},
		Token: TokenConfig{
			Store:     TokenMemory,
			RedisAddr: "localhost:6379",
			Key:       "voipcenter:push_token",
			Channel:   "voipcenter:push_token:updates",
		},
		Ack:    AckConfig{Timeout: 10 * time.Second},
		Events: EventsConfig{Buffer: 64},
		Notification: NotificationConfig{
			Title: "Missed Call",
			Body:  "There was a call",
			Delay: 2 * time.Second,
		},
	}
}

// Load builds the configuration from the defaults, the YAML file at path
// (optional), the env files and finally the process environment.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	// Validate and fallback to auto-detection if invalid
	if cfg.SIP.AdvertiseAddr == "" || !isValidAddress(cfg.SIP.AdvertiseAddr) {
		cfg.SIP.AdvertiseAddr = getPrimaryInterfaceIP()
	}

	return cfg, nil
}

// loadEnvFiles loads the given files, or .env when none is given and it exists.
// Variables already set in the environment win.
func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		files = []string{".env"}
	}
	if err := godotenv.Load(files...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}

// Validate checks the values that would otherwise fail deep inside a component
func (c *Config) Validate() error {
	var errs []error

	switch c.Authority.Kind {
	case AuthorityHeadless:
	case AuthoritySIP:
		if c.SIP.PhoneURI == "" {
			errs = append(errs, errors.New("sip.phone_uri is required for the sip authority"))
		}
		if c.SIP.Port <= 0 || c.SIP.Port > 65535 {
			errs = append(errs, fmt.Errorf("sip.port %d out of range", c.SIP.Port))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown authority kind %q", c.Authority.Kind))
	}

	switch c.Token.Store {
	case TokenMemory:
	case TokenRedis:
		if c.Token.RedisAddr == "" || c.Token.Key == "" {
			errs = append(errs, errors.New("token.redis_addr and token.key are required for the redis store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown token store %q", c.Token.Store))
	}

	if c.Audio.Mode != "audio" && c.Audio.Mode != "video" {
		errs = append(errs, fmt.Errorf("unknown audio mode %q", c.Audio.Mode))
	}
	if c.Audio.SampleRate <= 0 {
		errs = append(errs, errors.New("audio.sample_rate must be positive"))
	}
	if c.Audio.IOBufferDuration <= 0 {
		errs = append(errs, errors.New("audio.io_buffer_duration must be positive"))
	}
	if c.Ack.Timeout < 0 || c.Authority.ReportTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if c.API.Addr == "" {
		errs = append(errs, errors.New("api.addr is required"))
	}

	return errors.Join(errs...)
}

// isValidAddress checks if the address is a valid IP or resolvable hostname
func isValidAddress(addr string) bool {
	if ip := net.ParseIP(addr); ip != nil {
		return true
	}
	if ips, err := net.LookupIP(addr); err == nil && len(ips) > 0 {
		return true
	}
	return false
}

// getPrimaryInterfaceIP detects the primary network interface IP address
func getPrimaryInterfaceIP() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "127.0.0.1"
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}

	return "127.0.0.1"
}
