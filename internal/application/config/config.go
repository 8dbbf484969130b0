package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pion/webrtc/v4"
)

type Config struct {
	Debug     bool   `env:"DEBUG" envDefault:"false"`
	Port      string `env:"PORT" envDefault:"5000"`
	Domain    string `env:"DOMAIN" envDefault:"http://localhost:5000"`
	JWTSecret string `env:"JWT_SECRET,required"`

	MetricsPort string `env:"METRICS_PORT" envDefault:"9090"`

	// StunURLs are handed to clients as-is; no TURN fallback is configured.
	StunURLs []string `env:"STUN_URLS" envDefault:"stun:stun1.l.google.com:19302,stun:stun2.l.google.com:19302,stun:stun3.l.google.com:19302,stun:stun4.l.google.com:19302"`

	Postgres PostgresConfig
	Exec     ExecConfig
	AI       AIConfig
}

type PostgresConfig struct {
	URL string `env:"POSTGRES_URL"`

	Host     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	User     string `env:"POSTGRES_USER" envDefault:"postgres"`
	Password string `env:"POSTGRES_PASSWORD" envDefault:"postgres"`
	Name     string `env:"POSTGRES_NAME" envDefault:"codemesh"`
	SSL      string `env:"POSTGRES_SSL" envDefault:"disable"`
}

func (p *PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}

	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		p.User,
		p.Password,
		p.Host,
		p.Port,
		p.Name,
		p.SSL,
	)
}

// ExecConfig bounds the sandboxed code runner.
type ExecConfig struct {
	Timeout   time.Duration `env:"EXEC_TIMEOUT" envDefault:"10s"`
	OutputCap int           `env:"EXEC_OUTPUT_CAP" envDefault:"65536"`
}

type AIConfig struct {
	Endpoint string `env:"AI_ENDPOINT" envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	APIKey   string `env:"AI_API_KEY"`
	Model    string `env:"AI_MODEL" envDefault:"gemini-2.5-flash"`
}

func (c *Config) ICEServers() []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(c.StunURLs))
	for _, u := range c.StunURLs {
		servers = append(servers, webrtc.ICEServer{URLs: []string{u}})
	}
	return servers
}

func New() (*Config, error) {
	c, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return &c, nil
}
