// Package nats journals conversation turns and session events to NATS
// JetStream.
package nats

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/capitalize-ai/realty-agent/pkg/logger"
)

const (
	defaultClientName    = "realty-agent"
	defaultReconnectWait = 2 * time.Second
	drainTimeout         = 5 * time.Second
)

// Config holds NATS connection configuration. TLS is enabled only when all
// three files are set.
type Config struct {
	URL      string
	CAFile   string
	CertFile string
	KeyFile  string
	Token    string

	// Name identifies the connection on the server; defaults to realty-agent.
	Name string
	// ReconnectWait is the pause between reconnect attempts.
	ReconnectWait time.Duration
}

func (cfg Config) tlsEnabled() bool {
	return cfg.CAFile != "" && cfg.CertFile != "" && cfg.KeyFile != ""
}

// Client wraps NATS connection and JetStream context.
type Client struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	logger *logger.Logger
}

// options builds the connection options for cfg. The journal must survive
// server restarts, so reconnects are unbounded and buffered.
func options(cfg Config, log *logger.Logger) ([]nats.Option, error) {
	name := cfg.Name
	if name == "" {
		name = defaultClientName
	}
	wait := cfg.ReconnectWait
	if wait <= 0 {
		wait = defaultReconnectWait
	}

	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(wait),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("journal connection lost", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("journal connection restored", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error("journal connection error", zap.Error(err))
		}),
	}

	if cfg.tlsEnabled() {
		tlsConfig, err := createTLSConfig(cfg.CAFile, cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts = append(opts, nats.Secure(tlsConfig))
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}
	return opts, nil
}

// Connect establishes a connection to NATS server.
func Connect(ctx context.Context, cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats url is required")
	}
	log = log.Named("journal")

	opts, err := options(cfg, log)
	if err != nil {
		return nil, err
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	log.Info("journal connected",
		zap.String("url", nc.ConnectedUrl()),
		zap.Bool("tls", cfg.tlsEnabled()),
	)

	return &Client{
		conn:   nc,
		js:     js,
		logger: log,
	}, nil
}

// JetStream returns the JetStream context.
func (c *Client) JetStream() jetstream.JetStream {
	return c.js
}

// Close drains pending publishes and closes the connection, falling back to
// a hard close if draining does not finish in time.
func (c *Client) Close() {
	if c.conn == nil || c.conn.IsClosed() {
		return
	}

	closed := make(chan struct{})
	c.conn.SetClosedHandler(func(*nats.Conn) { close(closed) })

	if err := c.conn.Drain(); err != nil {
		c.logger.Warn("journal drain failed", zap.Error(err))
		c.conn.Close()
		return
	}

	select {
	case <-closed:
	case <-time.After(drainTimeout):
		c.logger.Warn("journal drain timed out")
		c.conn.Close()
	}
}

// IsConnected returns true if connected to NATS.
func (c *Client) IsConnected() bool {
	return c != nil && c.conn != nil && c.conn.IsConnected()
}

// Status reports the connection state for readiness checks.
func (c *Client) Status() string {
	if c == nil || c.conn == nil {
		return "disabled"
	}
	return c.conn.Status().String()
}

func createTLSConfig(caFile, certFile, keyFile string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, errors.New("failed to parse CA certificate")
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client cert: %w", err)
	}

	return &tls.Config{
		RootCAs:      caCertPool,
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
