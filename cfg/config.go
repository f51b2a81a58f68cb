package cfg

import (
	"flag"
	"fmt"
	"hash/fnv"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/denisbrodbeck/machineid"
	"github.com/maxpert/kvstream/common"
	"github.com/rs/zerolog/log"
)

// Sink types and formats understood by the publisher
const (
	SinkTypeNats  = "nats"
	SinkTypeKafka = "kafka"

	SinkFormatRaw     = "raw"
	SinkFormatMsgpack = "msgpack"

	SinkCompressionNone = "none"
	SinkCompressionZstd = "zstd"
)

// ServerConfiguration for the client-facing listener (RESP + HTTP on one port)
type ServerConfiguration struct {
	BindAddress      string `toml:"bind_address"`
	Port             int    `toml:"port"`
	MaxConnections   int    `toml:"max_connections"` // 0 = unlimited
	CommandTimeoutMS int    `toml:"command_timeout_ms"`
}

// RedisConfiguration for the backing store
type RedisConfiguration struct {
	Address        string `toml:"address"`
	Password       string `toml:"password"`
	DB             int    `toml:"db"`
	PoolSize       int    `toml:"pool_size"`
	DialTimeoutMS  int    `toml:"dial_timeout_ms"`
	ReadTimeoutMS  int    `toml:"read_timeout_ms"`
	WriteTimeoutMS int    `toml:"write_timeout_ms"`
}

// StreamingConfiguration controls aggregation output
type StreamingConfiguration struct {
	Channel          string `toml:"channel"`           // Notification channel for results
	CounterKey       string `toml:"counter_key"`       // Sorted set holding per-word counters
	MaxMessageBytes  int    `toml:"max_message_bytes"` // Upper bound for one published digest
	SkipEmptyWords   bool   `toml:"skip_empty_words"`  // Drop empty tokens from consecutive spaces
	PatternCacheSize int    `toml:"pattern_cache_size"`
}

// FilterConfiguration declares a filter at startup, equivalent to STREAM ADD
type FilterConfiguration struct {
	Type     string `toml:"type"`
	Function string `toml:"function"`
	Key      string `toml:"key"`
	Field    string `toml:"field"`
}

// SinkConfiguration describes an external sink fed from the publish log
type SinkConfiguration struct {
	Name            string   `toml:"name"`
	Type            string   `toml:"type"`   // "nats" or "kafka"
	Format          string   `toml:"format"`      // "raw" or "msgpack"
	Compression     string   `toml:"compression"` // "none" (or empty) or "zstd"
	NatsURL         string   `toml:"nats_url"`
	Brokers         []string `toml:"brokers"`
	TopicPrefix     string   `toml:"topic_prefix"`
	FilterChannels  []string `toml:"filter_channels"`
	FilterFunctions []string `toml:"filter_functions"`
	BatchSize       int      `toml:"batch_size"`
	PollIntervalMS  int      `toml:"poll_interval_ms"`
	RetryInitialMS  int      `toml:"retry_initial_ms"`
	RetryMaxMS      int      `toml:"retry_max_ms"`
	RetryMultiplier float64  `toml:"retry_multiplier"`
}

// AdminConfiguration for the HTTP admin API
type AdminConfiguration struct {
	Enabled bool   `toml:"enabled"`
	Secret  string `toml:"secret"` // Empty disables authentication
}

// LoggingConfiguration controls logging behavior
type LoggingConfiguration struct {
	Verbose bool   `toml:"verbose"`
	Format  string `toml:"format"` // "console" or "json"
}

// PrometheusConfiguration for metrics
type PrometheusConfiguration struct {
	Enabled bool `toml:"enabled"`
}

// Configuration is the main configuration structure
type Configuration struct {
	NodeID  uint64 `toml:"node_id"`
	DataDir string `toml:"data_dir"`

	Server     ServerConfiguration     `toml:"server"`
	Redis      RedisConfiguration      `toml:"redis"`
	Streaming  StreamingConfiguration  `toml:"streaming"`
	Filters    []FilterConfiguration   `toml:"filters"`
	Sinks      []SinkConfiguration     `toml:"sinks"`
	Admin      AdminConfiguration      `toml:"admin"`
	Logging    LoggingConfiguration    `toml:"logging"`
	Prometheus PrometheusConfiguration `toml:"prometheus"`
}

// Command line flags
var (
	ConfigPathFlag = flag.String("config", "config.toml", "Path to configuration file")
	DataDirFlag    = flag.String("data-dir", "", "Data directory (overrides config)")
	NodeIDFlag     = flag.Uint64("node-id", 0, "Node ID (overrides config, 0=auto)")
	PortFlag       = flag.Int("port", 0, "Listen port (overrides config)")
	RedisFlag      = flag.String("redis", "", "Backing Redis address (overrides config)")
)

// Default configuration
var Config = &Configuration{
	NodeID:  0, // Auto-generate
	DataDir: "./kvstream-data",

	Server: ServerConfiguration{
		BindAddress:      "0.0.0.0",
		Port:             6380,
		MaxConnections:   1000,
		CommandTimeoutMS: 5000,
	},

	Redis: RedisConfiguration{
		Address:        "127.0.0.1:6379",
		DB:             0,
		PoolSize:       10,
		DialTimeoutMS:  5000,
		ReadTimeoutMS:  3000,
		WriteTimeoutMS: 3000,
	},

	Streaming: StreamingConfiguration{
		Channel:          "streaming",
		CounterKey:       "_wordcounting",
		MaxMessageBytes:  1 << 20, // 1MB
		SkipEmptyWords:   false,
		PatternCacheSize: 1024,
	},

	Admin: AdminConfiguration{
		Enabled: true,
	},

	Logging: LoggingConfiguration{
		Verbose: false,
		Format:  "console",
	},

	Prometheus: PrometheusConfiguration{
		Enabled: true,
	},
}

// Load loads configuration from file and applies CLI overrides
func Load(configPath string) error {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			log.Info().Str("path", configPath).Msg("Loading configuration")
			if _, err := toml.DecodeFile(configPath, Config); err != nil {
				return fmt.Errorf("failed to decode config: %w", err)
			}
		} else {
			log.Warn().Str("path", configPath).Msg("Config file not found, using defaults")
		}
	}

	// Apply CLI overrides
	if *DataDirFlag != "" {
		Config.DataDir = *DataDirFlag
	}
	if *NodeIDFlag != 0 {
		Config.NodeID = *NodeIDFlag
	}
	if *PortFlag != 0 {
		Config.Server.Port = *PortFlag
	}
	if *RedisFlag != "" {
		Config.Redis.Address = *RedisFlag
	}

	if Config.NodeID == 0 {
		var err error
		Config.NodeID, err = generateNodeID()
		if err != nil {
			return fmt.Errorf("failed to generate node ID: %w", err)
		}
		log.Info().Uint64("node_id", Config.NodeID).Msg("Auto-generated node ID")
	}

	if err := os.MkdirAll(Config.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	return nil
}

// generateNodeID derives a stable node ID from the machine ID, falling back to
// the hostname on hosts without one (containers commonly lack /etc/machine-id)
func generateNodeID() (uint64, error) {
	id, err := machineid.ProtectedID("kvstream")
	if err != nil {
		hostname, herr := os.Hostname()
		if herr != nil {
			return 0, fmt.Errorf("no machine id (%v) and no hostname: %w", err, herr)
		}
		log.Debug().Err(err).Msg("Machine ID unavailable, deriving node ID from hostname")
		id = "kvstream:" + hostname
	}

	h := fnv.New64a()
	h.Write([]byte(id))
	return h.Sum64(), nil
}

// Validate checks configuration for errors
func Validate() error {
	if Config.Server.Port < 1 || Config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", Config.Server.Port)
	}

	if Config.Server.MaxConnections < 0 {
		return fmt.Errorf("max connections must be >= 0")
	}

	if Config.Server.CommandTimeoutMS < 1 {
		return fmt.Errorf("command timeout must be >= 1ms")
	}

	if Config.Redis.Address == "" {
		return fmt.Errorf("redis address is required")
	}

	if Config.Redis.PoolSize < 1 {
		return fmt.Errorf("redis pool size must be >= 1")
	}

	if Config.Redis.DialTimeoutMS < 0 || Config.Redis.ReadTimeoutMS < 0 || Config.Redis.WriteTimeoutMS < 0 {
		return fmt.Errorf("redis timeouts must be >= 0")
	}

	if Config.Streaming.Channel == "" {
		return fmt.Errorf("streaming channel is required")
	}

	if Config.Streaming.CounterKey == "" {
		return fmt.Errorf("streaming counter key is required")
	}

	if Config.Streaming.MaxMessageBytes < 1 {
		return fmt.Errorf("max message bytes must be >= 1")
	}

	if Config.Streaming.PatternCacheSize < 1 {
		return fmt.Errorf("pattern cache size must be >= 1")
	}

	for i, f := range Config.Filters {
		if err := validateFilter(f); err != nil {
			return fmt.Errorf("filter %d: %w", i, err)
		}
	}

	names := make(map[string]bool, len(Config.Sinks))
	for _, s := range Config.Sinks {
		if err := validateSink(s); err != nil {
			return fmt.Errorf("sink %q: %w", s.Name, err)
		}
		if names[s.Name] {
			return fmt.Errorf("duplicate sink name: %s", s.Name)
		}
		names[s.Name] = true
	}

	if Config.Logging.Format != "console" && Config.Logging.Format != "json" {
		return fmt.Errorf("invalid logging format: %s", Config.Logging.Format)
	}

	return nil
}

func validateFilter(f FilterConfiguration) error {
	keyType, ok := common.ParseKeyType(f.Type)
	if !ok || !keyType.Dispatchable() {
		return fmt.Errorf("unsupported key type: %s", f.Type)
	}
	if f.Function == "" {
		return fmt.Errorf("function is required")
	}
	if f.Key == "" {
		return fmt.Errorf("key pattern is required")
	}
	if keyType.HasFields() && f.Field == "" {
		return fmt.Errorf("field pattern is required for %s filters", keyType)
	}
	return nil
}

func validateSink(s SinkConfiguration) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	switch s.Type {
	case SinkTypeNats:
		if s.NatsURL == "" {
			return fmt.Errorf("nats sink requires nats_url")
		}
	case SinkTypeKafka:
		if len(s.Brokers) == 0 {
			return fmt.Errorf("kafka sink requires brokers")
		}
	default:
		return fmt.Errorf("unknown sink type: %s", s.Type)
	}

	switch s.Format {
	case SinkFormatRaw, SinkFormatMsgpack:
	default:
		return fmt.Errorf("unknown format: %s", s.Format)
	}

	switch s.Compression {
	case "", SinkCompressionNone, SinkCompressionZstd:
	default:
		return fmt.Errorf("unknown compression: %s", s.Compression)
	}

	if s.RetryMultiplier < 0 {
		return fmt.Errorf("retry multiplier must be >= 0")
	}

	return nil
}
