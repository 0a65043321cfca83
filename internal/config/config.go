package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port               int    `env:"PORT" envDefault:"8080"`
	DatabaseURL        string `env:"DATABASE_URL,required"`
	RedisURL           string `env:"REDIS_URL,required"`
	ConsentTTLSeconds  int    `env:"CONSENT_TTL_SECONDS" envDefault:"120"`
	DefaultDurationMin int    `env:"DEFAULT_DURATION_MINUTES" envDefault:"30"`
	StunURLs           string `env:"STUN_URLS" envDefault:"stun:stun.l.google.com:19302,stun:stun1.l.google.com:19302"`
	TurnURL            string `env:"TURN_URL" envDefault:""`
	TurnUsername       string `env:"TURN_USERNAME" envDefault:""`
	TurnCredential     string `env:"TURN_CREDENTIAL" envDefault:""`
	LogLevel           string `env:"LOG_LEVEL" envDefault:"info"`
}

// ConsentTTL is how long a PENDING request waits for the target before
// it expires.
func (c *Config) ConsentTTL() time.Duration {
	return time.Duration(c.ConsentTTLSeconds) * time.Second
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// IceServer mirrors the RTCIceServer shape handed to clients.
type IceServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// IceServers builds the ICE server list from config. The STUN entry is
// always present; the TURN entry only when a TURN_URL is set.
func (c *Config) IceServers() []IceServer {
	servers := []IceServer{
		{URLs: splitURLs(c.StunURLs)},
	}
	if c.TurnURL != "" {
		servers = append(servers, IceServer{
			URLs:       splitURLs(c.TurnURL),
			Username:   c.TurnUsername,
			Credential: c.TurnCredential,
		})
	}
	return servers
}

func splitURLs(s string) []string {
	parts := strings.Split(s, ",")
	urls := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	return urls
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
