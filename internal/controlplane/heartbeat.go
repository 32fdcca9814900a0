// Package controlplane implements the optional signed heartbeat reporter
// (spec.md §9's resolved Open Question on external reporting): when
// enabled, the running Supervisor periodically POSTs a JWT-signed status
// snapshot to an external control plane URL. Disabled by default — the
// orchestrator never depends on this for correctness.
package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/agent-forge/agent-forge/internal/config"
	"github.com/golang-jwt/jwt/v4"
)

// Status is a point-in-time snapshot of the running orchestrator, sourced
// from the Supervisor's Bus and Registry.
type Status struct {
	DisplayName    string `json:"display_name"`
	AgentsTotal    int    `json:"agents_total"`
	AgentsIdle     int    `json:"agents_idle"`
	BusSubscribers int    `json:"bus_subscribers"`
	BusDropped     int64  `json:"bus_dropped"`
}

// heartbeatClaims signs the status payload itself into the JWT so the
// receiving control plane can verify both authenticity and content with
// one check, rather than trusting an unsigned body alongside a bearer
// token.
type heartbeatClaims struct {
	jwt.RegisteredClaims
	Status Status `json:"status"`
}

// Reporter periodically signs and POSTs a Status snapshot.
type Reporter struct {
	cfg    config.ControlPlaneConfig
	client *http.Client
}

// New constructs a Reporter. Callers should only start it when
// cfg.Enabled is true.
func New(cfg config.ControlPlaneConfig) *Reporter {
	return &Reporter{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}
}

// Run ticks every cfg.Interval (default 1 minute) until ctx is cancelled,
// calling snapshot for the current Status and posting it. Send failures
// are logged and never retried early — the next tick will try again.
func (r *Reporter) Run(ctx context.Context, snapshot func() Status) {
	interval := r.cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.send(ctx, snapshot()); err != nil {
				slog.Warn("controlplane: heartbeat send failed", "error", err)
			}
		}
	}
}

func (r *Reporter) send(ctx context.Context, status Status) error {
	token, err := r.sign(status)
	if err != nil {
		return fmt.Errorf("controlplane: signing heartbeat: %w", err)
	}

	body, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("controlplane: marshaling status: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("controlplane: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("controlplane: posting heartbeat: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("controlplane: heartbeat rejected: %s", resp.Status)
	}
	return nil
}

// sign produces a short-lived (2 minute) HS256 JWT carrying status, signed
// with cfg.SigningKey, mirroring the GitHub App JWT pattern but with a
// shared-secret HMAC instead of an RSA app key since the control plane is
// a single known counterparty rather than GitHub's public verifier.
func (r *Reporter) sign(status Status) (string, error) {
	now := time.Now()
	claims := heartbeatClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    r.cfg.DisplayName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(2 * time.Minute)),
		},
		Status: status,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(r.cfg.SigningKey))
}
