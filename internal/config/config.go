package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default configuration values
const (
	DefaultRelayURL = "http://localhost:8080"
	DefaultSTUN     = "stun:stun.l.google.com:19302"
	DefaultMaxPeers = 8
)

// Config holds client configuration.
type Config struct {
	// RelayURL is the HTTP base URL of the signaling relay.
	RelayURL string

	// DisplayName shown to other participants.
	DisplayName string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// MaxPeers is the soft cap on mesh size. The reconciler stops
	// initiating new links past this; inbound offers are still answered.
	MaxPeers int
}

// Options for loading config with CLI flag overrides.
type Options struct {
	RelayURL   string
	Name       string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	MaxPeers   int
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	relayURL := firstNonEmpty(opts.RelayURL, os.Getenv("MESHCALL_RELAY_URL"), DefaultRelayURL)
	if _, err := url.Parse(relayURL); err != nil {
		return nil, fmt.Errorf("invalid relay URL %q: %w", relayURL, err)
	}

	maxPeers := opts.MaxPeers
	if maxPeers == 0 {
		if v := os.Getenv("MESHCALL_MAX_PEERS"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("invalid MESHCALL_MAX_PEERS %q: %w", v, err)
			}
			maxPeers = n
		}
	}
	if maxPeers <= 0 {
		maxPeers = DefaultMaxPeers
	}

	return &Config{
		RelayURL:    strings.TrimRight(relayURL, "/"),
		DisplayName: firstNonEmpty(opts.Name, os.Getenv("MESHCALL_NAME")),
		STUNServer:  firstNonEmpty(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN),
		TURNServer:  firstNonEmpty(opts.TURNServer, os.Getenv("TURN_SERVER")),
		TURNUser:    firstNonEmpty(opts.TURNUser, os.Getenv("TURN_USERNAME")),
		TURNPass:    firstNonEmpty(opts.TURNPass, os.Getenv("TURN_PASSWORD")),
		MaxPeers:    maxPeers,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// WebSocketURL returns the relay websocket endpoint for a room.
func (c *Config) WebSocketURL(roomID string) string {
	ws := c.RelayURL
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	return fmt.Sprintf("%s/ws/rooms/%s", ws, roomID)
}

// RoomsURL returns the relay room management endpoint.
func (c *Config) RoomsURL() string {
	return c.RelayURL + "/api/rooms"
}

// GetSTUNServers returns STUN server URLs as strings.
func (c *Config) GetSTUNServers() []string {
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured.
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password.
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}

// RelayConfig holds relay server configuration, loaded from the
// environment only (the relay is deployed, not flag-driven).
type RelayConfig struct {
	Port           string
	Environment    string
	AllowedOrigins []string
	Redis          RedisConfig

	// RoomTTL bounds how long room metadata lives in the store.
	RoomTTL time.Duration

	// SignalTTL bounds how long undelivered signaling messages are
	// retained before the sweep discards them.
	SignalTTL time.Duration
}

// RedisConfig holds the optional Redis store settings. An empty Host
// selects the in-memory store.
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// LoadRelay reads the relay configuration from the environment.
func LoadRelay() *RelayConfig {
	origins := strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:3000"), ",")

	return &RelayConfig{
		Port:           getEnv("PORT", "8080"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		AllowedOrigins: origins,
		Redis: RedisConfig{
			Host:     os.Getenv("REDIS_HOST"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
		},
		RoomTTL:   getDurationEnv("ROOM_TTL", 24*time.Hour),
		SignalTTL: getDurationEnv("SIGNAL_TTL", 5*time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
