package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/crypto"

	x402 "github.com/aarika/x402-arena"
	"github.com/aarika/x402-arena/arena"
	"github.com/aarika/x402-arena/evm"
	"github.com/aarika/x402-arena/x402test"
)

func TestRunCommandRouting(t *testing.T) {
	var out bytes.Buffer
	if err := run(nil, &out); err == nil {
		t.Fatal("expected error when command is missing")
	}
	if !strings.Contains(out.String(), "arenactl commands") {
		t.Fatalf("expected usage output, got %q", out.String())
	}

	out.Reset()
	if err := run([]string{"unknown"}, &out); err == nil {
		t.Fatal("expected error for unknown command")
	}
	if !strings.Contains(out.String(), "arenactl commands") {
		t.Fatalf("expected usage output for unknown command, got %q", out.String())
	}
}

func TestFees(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{"fees", "--reward", "100"}, &out); err != nil {
		t.Fatalf("run fees failed: %v", err)
	}
	for _, want := range []string{"advance:       10.00000", "platform fee:  0.10000", "due now:       10.10000", "due on payout: 90.00000"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("expected %q in output:\n%s", want, out.String())
		}
	}

	if err := run([]string{"fees"}, &out); err == nil {
		t.Error("expected error without reward")
	}
}

func TestFlagValidation(t *testing.T) {
	tests := [][]string{
		{"create", "--reward", "10"},
		{"create", "--prompt", "p"},
		{"select-winner", "--competition", "c"},
		{"delivery"},
		{"show"},
		{"create", "--bogus"},
	}
	for _, args := range tests {
		var out bytes.Buffer
		if err := run(args, &out); err == nil {
			t.Errorf("expected error for %v", args)
		}
	}
}

// withEnv replaces environment lookups for the duration of the test.
func withEnv(t *testing.T, env map[string]string) {
	t.Helper()
	prev := getenv
	getenv = func(key string) string { return env[key] }
	t.Cleanup(func() { getenv = prev })
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arenactl.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func newKeyHex(t *testing.T) string {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return hex.EncodeToString(crypto.FromECDSA(key))
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
core_endpoint: http://core.example:8000
default_chain_id: 43114
settle_delay: 25ms
poll_attempts: 3
poll_interval: 2s
debuglevel: debug
`)

	withEnv(t, nil)
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.CoreEndpoint != "http://core.example:8000" {
		t.Errorf("unexpected endpoint %s", cfg.CoreEndpoint)
	}
	if cfg.DefaultChainID != 43114 || cfg.SettleDelay != 25*time.Millisecond || cfg.PollInterval != 2*time.Second {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.DefaultAsset == "" || cfg.EventStream == "" {
		t.Errorf("expected defaults to survive, got %+v", cfg)
	}

	withEnv(t, map[string]string{
		"ARENA_CORE_ENDPOINT":    "https://core.override",
		"ARENA_DEFAULT_CHAIN_ID": "43113",
		"ARENA_REDIS_ADDR":       "127.0.0.1:6379",
	})
	cfg, err = loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.CoreEndpoint != "https://core.override" || cfg.DefaultChainID != 43113 || cfg.RedisAddr != "127.0.0.1:6379" {
		t.Errorf("expected environment overrides, got %+v", cfg)
	}

	withEnv(t, map[string]string{"ARENA_DEFAULT_CHAIN_ID": "fuji"})
	if _, err := loadConfig(path); err == nil {
		t.Error("expected error for invalid chain id")
	}

	withEnv(t, nil)
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := loadConfig(writeConfig(t, "settle_delay: [")); err == nil {
		t.Error("expected error for invalid yaml")
	}
}

func TestEndToEnd(t *testing.T) {
	backend := x402test.NewServer(x402test.Config{InlineDownload: true})
	server := httptest.NewServer(backend)
	defer server.Close()

	mr := miniredis.RunT(t)
	withEnv(t, map[string]string{"ARENA_REDIS_ADDR": mr.Addr()})

	cfgPath := writeConfig(t, "settle_delay: 1ms\npoll_interval: 1ms\ndebuglevel: off\n")
	common := []string{"--config", cfgPath, "--endpoint", server.URL, "--key", newKeyHex(t)}

	var out bytes.Buffer
	args := append([]string{"create", "--prompt", "Neon city at dusk", "--reward", "100", "--metrics"}, common...)
	if err := run(args, &out); err != nil {
		t.Fatalf("run create failed: %v\n%s", err, out.String())
	}
	for _, want := range []string{"escrow: advance 10.00000", "competitionId:", "is live", "Payment Required (x402)", "arena_actions_total"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("expected %q in output:\n%s", want, out.String())
		}
	}
	payments := backend.Payments()
	if len(payments) != 1 || payments[0].Authorization.Value != "10100" {
		t.Fatalf("expected one payment of 10100, got %+v", payments)
	}

	id := backend.AddCompetition("Neon", 50, "agent_7")

	out.Reset()
	if err := run(append([]string{"select-winner", "--competition", id, "--agent", "agent_7"}, common...), &out); err != nil {
		t.Fatalf("run select-winner failed: %v", err)
	}
	if !strings.Contains(out.String(), "winner: agent_7") || !strings.Contains(out.String(), "download: https://") {
		t.Errorf("unexpected select-winner output:\n%s", out.String())
	}

	out.Reset()
	if err := run(append([]string{"delivery", "--competition", id}, common...), &out); err != nil {
		t.Fatalf("run delivery failed: %v", err)
	}
	if !strings.Contains(out.String(), "download: https://") {
		t.Errorf("unexpected delivery output:\n%s", out.String())
	}

	out.Reset()
	if err := run(append([]string{"list"}, common...), &out); err != nil {
		t.Fatalf("run list failed: %v", err)
	}
	if !strings.Contains(out.String(), id) || !strings.Contains(out.String(), "COMPLETED") {
		t.Errorf("expected %s in list output:\n%s", id, out.String())
	}

	out.Reset()
	if err := run(append([]string{"show", "--competition", id}, common...), &out); err != nil {
		t.Fatalf("run show failed: %v", err)
	}
	if !strings.Contains(out.String(), `"winnerAgentId": "agent_7"`) {
		t.Errorf("unexpected show output:\n%s", out.String())
	}

	out.Reset()
	if err := run(append([]string{"login"}, common...), &out); err != nil {
		t.Fatalf("run login failed: %v", err)
	}
	if !strings.Contains(out.String(), "logged in as 0x") {
		t.Errorf("unexpected login output:\n%s", out.String())
	}
	if !mr.Exists("arena:token:v1") {
		t.Error("expected token persisted in redis")
	}

	out.Reset()
	if err := run(append([]string{"events", "--count", "50"}, common...), &out); err != nil {
		t.Fatalf("run events failed: %v", err)
	}
	for _, want := range []string{"Competition Created", "Winner Declared", "Original Asset Delivered"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("expected %q in events output:\n%s", want, out.String())
		}
	}
}

func TestCreateWithoutWallet(t *testing.T) {
	backend := x402test.NewServer(x402test.Config{})
	server := httptest.NewServer(backend)
	defer server.Close()
	withEnv(t, nil)

	cfgPath := writeConfig(t, "debuglevel: off\n")
	var out bytes.Buffer
	err := run([]string{"create", "--prompt", "p", "--reward", "1", "--config", cfgPath, "--endpoint", server.URL}, &out)
	if err == nil || !strings.Contains(err.Error(), "wallet-not-connected") {
		t.Fatalf("expected wallet-not-connected, got %v", err)
	}
	if n := len(backend.Requests("")); n != 0 {
		t.Errorf("expected no requests, got %d", n)
	}

	if err := run([]string{"events", "--config", cfgPath, "--endpoint", server.URL}, &out); err == nil {
		t.Error("expected events to require redis")
	}
	if err := run([]string{"list", "--config", cfgPath, "--debuglevel", "loud"}, &out); err == nil {
		t.Error("expected error for unknown debug level")
	}
}

func TestHTTPClientKeepsRefreshCookie(t *testing.T) {
	backend := x402test.NewServer(x402test.Config{})
	server := httptest.NewServer(backend)
	defer server.Close()

	httpClient, err := newHTTPClient(0)
	if err != nil {
		t.Fatalf("newHTTPClient failed: %v", err)
	}
	if httpClient.Jar == nil {
		t.Fatal("expected a cookie jar")
	}
	client, err := x402.NewClient(x402.Config{BaseURL: server.URL, HTTPClient: httpClient})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	wallet, err := evm.NewKeyWallet(newKeyHex(t))
	if err != nil {
		t.Fatalf("NewKeyWallet failed: %v", err)
	}

	ctx := context.Background()
	if _, err := arena.NewSession(client, wallet, nil).EnsureToken(ctx); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if _, err := arena.NewSession(client, wallet, nil).EnsureToken(ctx); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if n := len(backend.Requests(arena.EndpointAuthLogin)); n != 1 {
		t.Errorf("expected the second session to refresh instead of logging in, got %d logins", n)
	}
}

func TestMainExitsOnError(t *testing.T) {
	prevArgs, prevExit := os.Args, osExit
	t.Cleanup(func() { os.Args, osExit = prevArgs, prevExit })

	var code int
	osExit = func(c int) { code = c }
	os.Args = []string{"arenactl", "unknown"}

	main()
	if code != 1 {
		t.Errorf("expected exit code 1, got %d", code)
	}
}
