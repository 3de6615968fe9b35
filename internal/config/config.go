package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"
)

// =============================================================================
// ddscore Configuration with Environment Overrides
// =============================================================================

type Config struct {
	Server ServerConfig `yaml:"server"`
	DDS    DDSConfig    `yaml:"dds"`
}

type ServerConfig struct {
	Env              string   `yaml:"env"`
	Interface        string   `yaml:"interface"`
	ReadTimeoutSec   int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec  int      `yaml:"write_timeout_sec"`
	IdleTimeoutSec   int      `yaml:"idle_timeout_sec"`
	ShutdownTimeout  int      `yaml:"shutdown_timeout_sec"`
	CORSAllowOrigins []string `yaml:"cors_allow_origins"`
}

// DDSConfig controls one domain participant's transport, discovery, and
// monitor settings — the knobs spec.md §6 leaves to configuration rather
// than the wire protocol itself.
type DDSConfig struct {
	DomainID            int    `yaml:"domain_id"`
	ParticipantIndex     int    `yaml:"participant_index"`
	TransportSelector    string `yaml:"transport_selector"` // "udp", "tcp", or "udp+tcp"
	TCPReadTimeoutMS     int    `yaml:"tcp_read_timeout_ms"`
	TCPWriteTimeoutMS    int    `yaml:"tcp_write_timeout_ms"`
	MonitorPort          int    `yaml:"monitor_port"`
	MonitorEnabled       bool   `yaml:"monitor_enabled"`
	NRecvThreads         int    `yaml:"n_recv_threads"`
	RecvThreadMode       string `yaml:"recv_thread_mode"` // "shared" or "per-proxy"
	SSLEnable            bool   `yaml:"ssl_enable"`
	LeaseDurationMS      int    `yaml:"lease_duration_ms"`
	SPDPIntervalMS       int    `yaml:"spdp_interval_ms"`
	RedisDirectoryAddr   string `yaml:"redis_directory_addr"`
	RedisDirectoryEnable bool   `yaml:"redis_directory_enable"`
}

// =============================================================================
// Singleton Pattern with Environment Overrides
// =============================================================================

var (
	instance *Config
	once     sync.Once
)

// Get returns the singleton config instance
func Get() *Config {
	once.Do(func() {
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file (using defaults)", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		instance = cfg
	})
	return instance
}

// LoadConfig loads config from YAML file
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	// Server
	c.Server.Env = getEnv("DDS_ENV", c.Server.Env)
	c.Server.Interface = getEnv("DDS_INTERFACE", c.Server.Interface)
	if v := getEnvInt("SERVER_READ_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ReadTimeoutSec = v
	}
	if v := getEnvInt("SERVER_WRITE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.WriteTimeoutSec = v
	}
	if v := getEnvInt("SERVER_IDLE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.IdleTimeoutSec = v
	}
	if v := getEnvInt("SERVER_SHUTDOWN_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ShutdownTimeout = v
	}
	if origins := getEnv("CORS_ALLOW_ORIGINS", ""); origins != "" {
		c.Server.CORSAllowOrigins = splitCSV(origins)
	}

	// DDS domain
	if v := getEnvInt("DDS_DOMAIN_ID", -1); v >= 0 {
		c.DDS.DomainID = v
	}
	if v := getEnvInt("DDS_PARTICIPANT_INDEX", -1); v >= 0 {
		c.DDS.ParticipantIndex = v
	}
	c.DDS.TransportSelector = getEnv("DDS_TRANSPORT", c.DDS.TransportSelector)
	if v := getEnvInt("DDS_TCP_READ_TIMEOUT_MS", 0); v > 0 {
		c.DDS.TCPReadTimeoutMS = v
	}
	if v := getEnvInt("DDS_TCP_WRITE_TIMEOUT_MS", 0); v > 0 {
		c.DDS.TCPWriteTimeoutMS = v
	}
	if v := getEnvInt("DDS_MONITOR_PORT", 0); v > 0 {
		c.DDS.MonitorPort = v
	}
	c.DDS.MonitorEnabled = getEnvBool("DDS_MONITOR_ENABLED", c.DDS.MonitorEnabled)
	if v := getEnvInt("DDS_N_RECV_THREADS", 0); v > 0 {
		c.DDS.NRecvThreads = v
	}
	c.DDS.RecvThreadMode = getEnv("DDS_RECV_THREAD_MODE", c.DDS.RecvThreadMode)
	c.DDS.SSLEnable = getEnvBool("DDS_SSL_ENABLE", c.DDS.SSLEnable)
	if v := getEnvInt("DDS_LEASE_DURATION_MS", 0); v > 0 {
		c.DDS.LeaseDurationMS = v
	}
	if v := getEnvInt("DDS_SPDP_INTERVAL_MS", 0); v > 0 {
		c.DDS.SPDPIntervalMS = v
	}
	c.DDS.RedisDirectoryAddr = getEnv("DDS_REDIS_DIRECTORY_ADDR", c.DDS.RedisDirectoryAddr)
	c.DDS.RedisDirectoryEnable = getEnvBool("DDS_REDIS_DIRECTORY_ENABLE", c.DDS.RedisDirectoryEnable)

	// Apply defaults for zero values
	c.applyDefaults()
}

// applyDefaults sets sensible defaults for zero-valued config fields
func (c *Config) applyDefaults() {
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = 15
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = 15
	}
	if c.Server.IdleTimeoutSec == 0 {
		c.Server.IdleTimeoutSec = 60
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30
	}
	if len(c.Server.CORSAllowOrigins) == 0 {
		c.Server.CORSAllowOrigins = []string{"*"}
	}

	if c.DDS.TransportSelector == "" {
		c.DDS.TransportSelector = "udp+tcp"
	}
	if c.DDS.TCPReadTimeoutMS == 0 {
		c.DDS.TCPReadTimeoutMS = 5000
	}
	if c.DDS.TCPWriteTimeoutMS == 0 {
		c.DDS.TCPWriteTimeoutMS = 5000
	}
	if c.DDS.MonitorPort == 0 {
		c.DDS.MonitorPort = 8888
	}
	if c.DDS.NRecvThreads == 0 {
		c.DDS.NRecvThreads = 1
	}
	if c.DDS.RecvThreadMode == "" {
		c.DDS.RecvThreadMode = "shared"
	}
	if c.DDS.LeaseDurationMS == 0 {
		c.DDS.LeaseDurationMS = 10_000
	}
	if c.DDS.SPDPIntervalMS == 0 {
		c.DDS.SPDPIntervalMS = 2_000
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func splitCSV(s string) []string {
	parts := make([]string, 0)
	for _, p := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// =============================================================================
// Convenience Methods
// =============================================================================

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}
