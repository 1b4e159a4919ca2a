package bootstrap

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServerAddr string
	GRPCAddr   string
	LogLevel   string

	ICEServers []ICEServerConfig

	PeerRateLimit float64
	PeerRateBurst int

	RingTimeout    time.Duration
	HealthInterval time.Duration

	DatabaseDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

type ICEServerConfig struct {
	URLs       []string
	Username   string
	Credential string
}

func LoadConfig() *Config {
	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":9000"),
		GRPCAddr:   getEnv("GRPC_ADDR", ":50051"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		ICEServers: parseICEServers(getEnv("ICE_SERVERS", "stun:stun.l.google.com:19302"), getEnv("TURN_USERNAME", ""), getEnv("TURN_CREDENTIAL", "")),

		PeerRateLimit: getEnvFloat("PEER_RATE_LIMIT", 50),
		PeerRateBurst: getEnvInt("PEER_RATE_BURST", 100),

		RingTimeout:    time.Duration(getEnvInt("RING_TIMEOUT_SECONDS", 60)) * time.Second,
		HealthInterval: time.Duration(getEnvInt("HEALTH_INTERVAL_SECONDS", 15)) * time.Second,

		DatabaseDSN: getEnv("DATABASE_DSN", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// parseICEServers reads a comma-separated URL list. TURN credentials apply to
// turn: and turns: URLs only.
func parseICEServers(envValue, username, credential string) []ICEServerConfig {
	var servers []ICEServerConfig
	for _, url := range strings.Split(envValue, ",") {
		url = strings.TrimSpace(url)
		if url == "" {
			continue
		}
		server := ICEServerConfig{URLs: []string{url}}
		if strings.HasPrefix(url, "turn:") || strings.HasPrefix(url, "turns:") {
			server.Username = username
			server.Credential = credential
		}
		servers = append(servers, server)
	}

	if len(servers) == 0 {
		return []ICEServerConfig{{URLs: []string{"stun:stun.l.google.com:19302"}}}
	}

	return servers
}
