package nats

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/realty-agent/pkg/logger"
)

func TestOptionsDefaults(t *testing.T) {
	opts, err := options(Config{URL: "nats://localhost:4222"}, logger.NewNop())
	require.NoError(t, err)
	assert.Len(t, opts, 7)

	opts, err = options(Config{URL: "nats://localhost:4222", Token: "s3cret"}, logger.NewNop())
	require.NoError(t, err)
	assert.Len(t, opts, 8)
}

func TestOptionsTLSFilesMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := options(Config{
		URL:      "tls://localhost:4222",
		CAFile:   filepath.Join(dir, "ca.pem"),
		CertFile: filepath.Join(dir, "cert.pem"),
		KeyFile:  filepath.Join(dir, "key.pem"),
	}, logger.NewNop())
	assert.ErrorContains(t, err, "failed to read CA file")
}

func TestOptionsTLSBadCA(t *testing.T) {
	dir := t.TempDir()
	ca := filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(ca, []byte("not a certificate"), 0o600))

	_, err := options(Config{
		URL:      "tls://localhost:4222",
		CAFile:   ca,
		CertFile: filepath.Join(dir, "cert.pem"),
		KeyFile:  filepath.Join(dir, "key.pem"),
	}, logger.NewNop())
	assert.ErrorContains(t, err, "failed to parse CA certificate")
}

func TestTLSRequiresAllFiles(t *testing.T) {
	assert.False(t, Config{CAFile: "ca.pem"}.tlsEnabled())
	assert.True(t, Config{CAFile: "ca.pem", CertFile: "c.pem", KeyFile: "k.pem"}.tlsEnabled())
}

func TestConnectRequiresURL(t *testing.T) {
	_, err := Connect(context.Background(), Config{}, logger.NewNop())
	assert.Error(t, err)
}

func TestNilClientStatus(t *testing.T) {
	var c *Client
	assert.False(t, c.IsConnected())
	assert.Equal(t, "disabled", c.Status())
}
