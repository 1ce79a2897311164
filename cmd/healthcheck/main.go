package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"
)

// healthBody is the subset of /api/v1/health the check inspects.
type healthBody struct {
	Status   string `json:"status"`
	Registry string `json:"registry"`
}

func main() {
	if err := checkHealth(context.Background(), healthURL(os.Getenv("GITLICENSE_LISTEN_ADDR"))); err != nil {
		fmt.Fprintln(os.Stderr, "unhealthy:", err)
		os.Exit(1)
	}
}

func healthURL(listenAddr string) string {
	return fmt.Sprintf("http://%s/api/v1/health", normalizeAddr(listenAddr))
}

// checkHealth reports an error unless the server answers 200 and can read the
// license registry.
func checkHealth(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var body healthBody
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<10)).Decode(&body); err != nil {
		return fmt.Errorf("status %d: decoding health response: %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || body.Status != "ok" {
		return fmt.Errorf("status %d: server %s, registry %s", resp.StatusCode, body.Status, body.Registry)
	}

	return nil
}

// normalizeAddr ensures the healthcheck connects to loopback rather than the
// bind-all address. Containers bind 0.0.0.0 (or ::) but the healthcheck runs
// inside the same container, so loopback is reachable and more correct.
func normalizeAddr(raw string) string {
	if raw == "" {
		return "127.0.0.1:8080"
	}

	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return "127.0.0.1:8080"
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	return net.JoinHostPort(host, port)
}
