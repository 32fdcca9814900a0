package controlplane

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/agent-forge/agent-forge/internal/config"
	"github.com/golang-jwt/jwt/v4"
)

func TestReporterSendSignsAndPostsStatus(t *testing.T) {
	var gotAuth string
	var gotBody Status

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decoding posted body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := config.ControlPlaneConfig{
		Enabled:     true,
		URL:         srv.URL,
		SigningKey:  "test-signing-key",
		DisplayName: "agent-forge-test",
	}
	r := New(cfg)

	status := Status{DisplayName: "agent-forge-test", AgentsTotal: 3, AgentsIdle: 2, BusSubscribers: 1, BusDropped: 4}
	if err := r.send(context.Background(), status); err != nil {
		t.Fatalf("send: %v", err)
	}

	if gotAuth == "" || len(gotAuth) < len("Bearer ") || gotAuth[:7] != "Bearer " {
		t.Fatalf("expected Bearer auth header, got %q", gotAuth)
	}
	if gotBody != status {
		t.Fatalf("posted body = %+v, want %+v", gotBody, status)
	}

	tokenStr := gotAuth[len("Bearer "):]
	var claims heartbeatClaims
	parsed, err := jwt.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.SigningKey), nil
	})
	if err != nil || !parsed.Valid {
		t.Fatalf("token did not verify against signing key: %v", err)
	}
	if claims.Issuer != cfg.DisplayName {
		t.Fatalf("issuer = %q, want %q", claims.Issuer, cfg.DisplayName)
	}
	if claims.Status != status {
		t.Fatalf("signed status = %+v, want %+v", claims.Status, status)
	}
}

func TestReporterTokenFailsVerificationWithWrongKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	r := New(config.ControlPlaneConfig{URL: srv.URL, SigningKey: "right-key"})
	if err := r.send(context.Background(), Status{}); err != nil {
		t.Fatalf("send: %v", err)
	}

	token, err := r.sign(Status{AgentsTotal: 1})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	var claims heartbeatClaims
	_, err = jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte("wrong-key"), nil
	})
	if err == nil {
		t.Fatal("expected verification failure with wrong signing key")
	}
}

func TestReporterSendNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := New(config.ControlPlaneConfig{URL: srv.URL, SigningKey: "k"})
	if err := r.send(context.Background(), Status{}); err == nil {
		t.Fatal("expected error on 5xx response")
	}
}

func TestReporterRunStopsOnContextCancel(t *testing.T) {
	calls := make(chan struct{}, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	r := New(config.ControlPlaneConfig{URL: srv.URL, SigningKey: "k", Interval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		r.Run(ctx, func() Status {
			select {
			case calls <- struct{}{}:
			default:
			}
			return Status{}
		})
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
	if len(calls) == 0 {
		t.Fatal("expected at least one heartbeat tick before cancellation")
	}
}
