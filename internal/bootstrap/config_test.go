package bootstrap

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	if cfg.ServerAddr != ":9000" || cfg.GRPCAddr != ":50051" {
		t.Errorf("addrs = %q %q", cfg.ServerAddr, cfg.GRPCAddr)
	}
	if cfg.RingTimeout != 60*time.Second {
		t.Errorf("ring timeout = %v, want 60s", cfg.RingTimeout)
	}
	if len(cfg.ICEServers) != 1 || cfg.ICEServers[0].URLs[0] != "stun:stun.l.google.com:19302" {
		t.Errorf("ice servers = %+v", cfg.ICEServers)
	}
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":8081")
	t.Setenv("PEER_RATE_LIMIT", "2.5")
	t.Setenv("PEER_RATE_BURST", "not-a-number")
	t.Setenv("RING_TIMEOUT_SECONDS", "30")
	t.Setenv("REDIS_DB", "3")

	cfg := LoadConfig()

	if cfg.ServerAddr != ":8081" {
		t.Errorf("ServerAddr = %q", cfg.ServerAddr)
	}
	if cfg.PeerRateLimit != 2.5 {
		t.Errorf("PeerRateLimit = %v, want 2.5", cfg.PeerRateLimit)
	}
	if cfg.PeerRateBurst != 100 {
		t.Errorf("PeerRateBurst = %d, want default 100", cfg.PeerRateBurst)
	}
	if cfg.RingTimeout != 30*time.Second || cfg.RedisDB != 3 {
		t.Errorf("RingTimeout = %v, RedisDB = %d", cfg.RingTimeout, cfg.RedisDB)
	}
}

func TestParseICEServers(t *testing.T) {
	servers := parseICEServers(" stun:a.example:3478 , turn:b.example:3478,, turns:c.example:5349", "user", "secret")

	if len(servers) != 3 {
		t.Fatalf("got %d servers, want 3", len(servers))
	}
	if servers[0].URLs[0] != "stun:a.example:3478" || servers[0].Username != "" {
		t.Errorf("stun server = %+v", servers[0])
	}
	if servers[1].Username != "user" || servers[2].Credential != "secret" {
		t.Errorf("turn servers = %+v %+v", servers[1], servers[2])
	}

	if got := parseICEServers(" , ", "", ""); len(got) != 1 {
		t.Errorf("empty list should fall back to the default STUN server, got %+v", got)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLogLevel(in); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestProvideGatewayConfig(t *testing.T) {
	cfg := &Config{
		ICEServers:    []ICEServerConfig{{URLs: []string{"turn:t.example"}, Username: "u", Credential: "c"}},
		PeerRateLimit: 10,
		PeerRateBurst: 20,
	}

	got := ProvideGatewayConfig(cfg)
	if len(got.ICEServers) != 1 || got.ICEServers[0].Username != "u" {
		t.Errorf("ice servers = %+v", got.ICEServers)
	}
	if got.Rate.PerSecond != 10 || got.Rate.Burst != 20 {
		t.Errorf("rate = %+v", got.Rate)
	}
}
