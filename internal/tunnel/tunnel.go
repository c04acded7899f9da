// Package tunnel manages an ngrok child process that exposes the local
// image server under a public URL.
package tunnel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"strconv"
	"time"
)

// Manager starts the ngrok process and discovers the public URL through
// ngrok's local control API.
type Manager struct {
	binary       string
	controlURL   string
	startupGrace time.Duration
	httpClient   *http.Client

	cmd *exec.Cmd
}

// descriptor mirrors one entry of the control API's tunnel list.
type descriptor struct {
	Proto     string `json:"proto"`
	PublicURL string `json:"public_url"`
}

type tunnelList struct {
	Tunnels []descriptor `json:"tunnels"`
}

// New creates a Manager querying the given control URL
// (e.g. http://localhost:4040).
func New(controlURL string) *Manager {
	return &Manager{
		binary:       "ngrok",
		controlURL:   controlURL,
		startupGrace: 3 * time.Second,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// Start launches ngrok for the given local port and returns the public
// base URL. On any failure it falls back to a localhost URL: the bot keeps
// working, but issued image links are not externally reachable.
func (m *Manager) Start(ctx context.Context, port int) string {
	fallback := "http://localhost:" + strconv.Itoa(port)

	cmd := exec.Command(m.binary, "http", strconv.Itoa(port), "--log=stdout")
	if err := cmd.Start(); err != nil {
		slog.Warn("Failed to start ngrok, falling back to localhost", "error", err)
		return fallback
	}
	m.cmd = cmd

	// Give ngrok a moment to come up before asking for its tunnels.
	select {
	case <-ctx.Done():
		return fallback
	case <-time.After(m.startupGrace):
	}

	publicURL, err := m.discover(ctx)
	if err != nil {
		slog.Warn("Failed to discover ngrok tunnel, falling back to localhost", "error", err)
		return fallback
	}

	slog.Info("Ngrok tunnel started", "url", publicURL)
	return publicURL
}

// discover queries the control API and picks a tunnel, preferring https.
func (m *Manager) discover(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.controlURL+"/api/tunnels", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("control API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("control API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	var list tunnelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return "", fmt.Errorf("failed to decode tunnel list: %w", err)
	}

	if len(list.Tunnels) == 0 {
		return "", fmt.Errorf("no active tunnels")
	}

	for _, t := range list.Tunnels {
		if t.Proto == "https" {
			return t.PublicURL, nil
		}
	}
	return list.Tunnels[0].PublicURL, nil
}

// Stop kills the ngrok process if one was started.
func (m *Manager) Stop() {
	if m.cmd == nil || m.cmd.Process == nil {
		return
	}
	if err := m.cmd.Process.Kill(); err != nil {
		slog.Warn("Failed to kill ngrok process", "error", err)
		return
	}
	_ = m.cmd.Wait()
}
