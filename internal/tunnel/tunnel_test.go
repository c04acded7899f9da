package tunnel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// controlServer fakes ngrok's local control API.
func controlServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tunnels" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// testManager returns a Manager that spawns a harmless binary instead of
// ngrok and skips the startup grace period.
func testManager(controlURL string) *Manager {
	m := New(controlURL)
	m.binary = "true"
	m.startupGrace = 0
	return m
}

func TestDiscoverPrefersHTTPS(t *testing.T) {
	srv := controlServer(t, `{"tunnels":[
		{"proto":"http","public_url":"http://abc.ngrok.io"},
		{"proto":"https","public_url":"https://abc.ngrok.io"}
	]}`)

	m := New(srv.URL)
	url, err := m.discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://abc.ngrok.io", url)
}

func TestDiscoverFallsBackToFirstTunnel(t *testing.T) {
	srv := controlServer(t, `{"tunnels":[
		{"proto":"http","public_url":"http://abc.ngrok.io"},
		{"proto":"tcp","public_url":"tcp://0.tcp.ngrok.io:12345"}
	]}`)

	m := New(srv.URL)
	url, err := m.discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "http://abc.ngrok.io", url)
}

func TestDiscoverNoTunnels(t *testing.T) {
	srv := controlServer(t, `{"tunnels":[]}`)

	m := New(srv.URL)
	_, err := m.discover(context.Background())
	assert.Error(t, err)
}

func TestStartReturnsPublicURL(t *testing.T) {
	srv := controlServer(t, `{"tunnels":[{"proto":"https","public_url":"https://xyz.ngrok.io"}]}`)

	m := testManager(srv.URL)
	defer m.Stop()

	url := m.Start(context.Background(), 5000)
	assert.Equal(t, "https://xyz.ngrok.io", url)
}

func TestStartFallsBackWhenControlAPIUnreachable(t *testing.T) {
	m := testManager("http://127.0.0.1:1")
	defer m.Stop()

	url := m.Start(context.Background(), 5000)
	assert.Equal(t, "http://localhost:5000", url)
}

func TestStartFallsBackWhenBinaryMissing(t *testing.T) {
	m := New("http://127.0.0.1:1")
	m.binary = "definitely-not-a-real-binary"
	m.startupGrace = 0

	url := m.Start(context.Background(), 8080)
	assert.Equal(t, "http://localhost:8080", url)
}

func TestStopWithoutStartIsHarmless(t *testing.T) {
	m := New("http://127.0.0.1:1")
	m.Stop()
}
