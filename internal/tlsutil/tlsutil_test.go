package tlsutil

import (
	"crypto/tls"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTLSConfig(t *testing.T) {
	cfg := DefaultTLSConfig()
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	require.NotEmpty(t, cfg.CipherSuites)

	aead := map[uint16]bool{
		tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384: true,
		tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384:   true,
		tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256: true,
		tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256:   true,
		tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305:  true,
		tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305:    true,
	}
	for _, cs := range cfg.CipherSuites {
		assert.True(t, aead[cs], "unexpected non-AEAD cipher suite: %d", cs)
	}
}

func TestNewTransport_Defaults(t *testing.T) {
	tr := NewTransport(TransportOptions{})
	require.NotNil(t, tr.TLSClientConfig)
	assert.Equal(t, uint16(tls.VersionTLS12), tr.TLSClientConfig.MinVersion)
	assert.True(t, tr.ForceAttemptHTTP2)
	assert.Equal(t, 10*time.Second, tr.TLSHandshakeTimeout)
	assert.Equal(t, 32, tr.MaxIdleConns)
}

func TestNewTransport_Options(t *testing.T) {
	tr := NewTransport(TransportOptions{
		TLSHandshakeTimeout:   time.Second,
		ResponseHeaderTimeout: 5 * time.Second,
		MaxIdleConns:          4,
	})
	assert.Equal(t, time.Second, tr.TLSHandshakeTimeout)
	assert.Equal(t, 5*time.Second, tr.ResponseHeaderTimeout)
	assert.Equal(t, 4, tr.MaxIdleConns)
}

func TestSecureHTTPClient(t *testing.T) {
	client := SecureHTTPClient(15*time.Second, nil)
	assert.Equal(t, 15*time.Second, client.Timeout)
	assert.IsType(t, &http.Transport{}, client.Transport)

	custom := http.DefaultTransport
	client = SecureHTTPClient(time.Second, custom)
	assert.Same(t, custom, client.Transport)
}
