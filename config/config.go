package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"blocklotto/database"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL      string
	DatabaseName     string
	DatabaseMaxConns int32

	// HTTP boundary
	HTTPAddr string

	// NATS configuration
	NATSServers string // NATS server addresses (comma-separated)
	NATSEnabled bool

	// Randomness oracle
	OracleBackend      string // "bitcoind" or "memory"
	BitcoindHost       string
	BitcoindUser       string
	BitcoindPass       string
	BitcoindDisableTLS bool
	OracleStartHeight  int64 // Lowest height the relay answers for
	OracleCacheSize    int

	// Lottery rules
	ConfirmationDepth int64
	MaxTickets        int64
	MaxPerPurchase    int64 // Tickets one purchase may insert under the row lock
	PushSettlement    bool
	StallTimeout      time.Duration
	DriveInterval     time.Duration

	// OpenTelemetry
	OTelEnabled              bool
	OTelServiceName          string
	OTelExporterType         string // "console", "otlp" or "none"
	OTelOTLPEndpoint         string
	OTelExportIntervalMillis int

	LogLevel    string
	Environment string // "development", "production" or "test"
}

// fileConfig mirrors Config for the optional TOML file. Durations are strings
// such as "72h".
type fileConfig struct {
	Database struct {
		URL      string `toml:"url"`
		Name     string `toml:"name"`
		MaxConns int32  `toml:"max_conns"`
	} `toml:"database"`
	HTTP struct {
		Addr string `toml:"addr"`
	} `toml:"http"`
	NATS struct {
		Servers string `toml:"servers"`
		Enabled *bool  `toml:"enabled"`
	} `toml:"nats"`
	Oracle struct {
		Backend     string `toml:"backend"`
		Host        string `toml:"host"`
		User        string `toml:"user"`
		Pass        string `toml:"pass"`
		DisableTLS  *bool  `toml:"disable_tls"`
		StartHeight int64  `toml:"start_height"`
		CacheSize   int    `toml:"cache_size"`
	} `toml:"oracle"`
	Lottery struct {
		ConfirmationDepth int64  `toml:"confirmation_depth"`
		MaxTickets        int64  `toml:"max_tickets"`
		MaxPerPurchase    int64  `toml:"max_tickets_per_purchase"`
		PushSettlement    *bool  `toml:"push_settlement"`
		StallTimeout      string `toml:"stall_timeout"`
		DriveInterval     string `toml:"drive_interval"`
	} `toml:"lottery"`
	OTel struct {
		Enabled          *bool  `toml:"enabled"`
		ServiceName      string `toml:"service_name"`
		ExporterType     string `toml:"exporter_type"`
		OTLPEndpoint     string `toml:"otlp_endpoint"`
		ExportIntervalMs int    `toml:"export_interval_ms"`
	} `toml:"otel"`
	LogLevel    string `toml:"log_level"`
	Environment string `toml:"environment"`
}

var (
	instance *Config
	once     sync.Once
	mu       sync.Mutex // Protects instance for test setup
)

// Get returns the global configuration instance
func Get() *Config {
	mu.Lock()
	defer mu.Unlock()

	// If instance is already set (e.g., by tests), return it
	if instance != nil {
		return instance
	}

	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			if os.Getenv("GO_TEST") == "1" || os.Getenv("ENVIRONMENT") == "test" {
				instance = NewTestConfig()
			} else {
				panic(fmt.Sprintf("failed to load config: %v", err))
			}
		}
	})
	return instance
}

// GetDatabaseURL constructs the full database URL by combining base URL and database name
func (c *Config) GetDatabaseURL() string {
	return database.ConstructDatabaseURL(c.DatabaseURL, c.DatabaseName)
}

// defaults returns a config with every default applied
func defaults() *Config {
	return &Config{
		HTTPAddr:                 ":8080",
		NATSServers:              "nats://nats:4222",
		NATSEnabled:              true,
		OracleBackend:            "bitcoind",
		BitcoindHost:             "localhost:8332",
		OracleCacheSize:          1024,
		ConfirmationDepth:        6,
		MaxTickets:               10_000_000,
		MaxPerPurchase:           10_000,
		PushSettlement:           true,
		StallTimeout:             72 * time.Hour,
		DriveInterval:            30 * time.Second,
		OTelServiceName:          "blocklotto",
		OTelExporterType:         "none",
		OTelOTLPEndpoint:         "localhost:4317",
		OTelExportIntervalMillis: 60000,
		LogLevel:                 "info",
	}
}

// load reads the optional TOML file named by BLOCKLOTTO_CONFIG, then applies
// environment overrides
func load() (*Config, error) {
	config := defaults()

	if path := os.Getenv("BLOCKLOTTO_CONFIG"); path != "" {
		if err := loadFile(path, config); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(config); err != nil {
		return nil, err
	}

	if config.Environment == "" {
		config.Environment = "development"
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// loadFile decodes a TOML config file over config
func loadFile(path string, config *Config) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	setString(&config.DatabaseURL, fc.Database.URL)
	setString(&config.DatabaseName, fc.Database.Name)
	if fc.Database.MaxConns > 0 {
		config.DatabaseMaxConns = fc.Database.MaxConns
	}
	setString(&config.HTTPAddr, fc.HTTP.Addr)
	setString(&config.NATSServers, fc.NATS.Servers)
	setBool(&config.NATSEnabled, fc.NATS.Enabled)
	setString(&config.OracleBackend, fc.Oracle.Backend)
	setString(&config.BitcoindHost, fc.Oracle.Host)
	setString(&config.BitcoindUser, fc.Oracle.User)
	setString(&config.BitcoindPass, fc.Oracle.Pass)
	setBool(&config.BitcoindDisableTLS, fc.Oracle.DisableTLS)
	if fc.Oracle.StartHeight > 0 {
		config.OracleStartHeight = fc.Oracle.StartHeight
	}
	if fc.Oracle.CacheSize > 0 {
		config.OracleCacheSize = fc.Oracle.CacheSize
	}
	if fc.Lottery.ConfirmationDepth > 0 {
		config.ConfirmationDepth = fc.Lottery.ConfirmationDepth
	}
	if fc.Lottery.MaxTickets > 0 {
		config.MaxTickets = fc.Lottery.MaxTickets
	}
	if fc.Lottery.MaxPerPurchase > 0 {
		config.MaxPerPurchase = fc.Lottery.MaxPerPurchase
	}
	setBool(&config.PushSettlement, fc.Lottery.PushSettlement)
	if err := setDuration(&config.StallTimeout, fc.Lottery.StallTimeout); err != nil {
		return fmt.Errorf("invalid lottery.stall_timeout: %w", err)
	}
	if err := setDuration(&config.DriveInterval, fc.Lottery.DriveInterval); err != nil {
		return fmt.Errorf("invalid lottery.drive_interval: %w", err)
	}
	setBool(&config.OTelEnabled, fc.OTel.Enabled)
	setString(&config.OTelServiceName, fc.OTel.ServiceName)
	setString(&config.OTelExporterType, fc.OTel.ExporterType)
	setString(&config.OTelOTLPEndpoint, fc.OTel.OTLPEndpoint)
	if fc.OTel.ExportIntervalMs > 0 {
		config.OTelExportIntervalMillis = fc.OTel.ExportIntervalMs
	}
	setString(&config.LogLevel, fc.LogLevel)
	setString(&config.Environment, fc.Environment)

	return nil
}

// applyEnv overrides config with any environment variables that are set
func applyEnv(config *Config) error {
	setString(&config.DatabaseURL, os.Getenv("DATABASE_URL"))
	setString(&config.DatabaseName, os.Getenv("DATABASE_NAME"))
	setString(&config.HTTPAddr, os.Getenv("HTTP_ADDR"))
	setString(&config.NATSServers, os.Getenv("NATS_SERVERS"))
	setString(&config.OracleBackend, os.Getenv("ORACLE_BACKEND"))
	setString(&config.BitcoindHost, os.Getenv("BITCOIND_HOST"))
	setString(&config.BitcoindUser, os.Getenv("BITCOIND_USER"))
	setString(&config.BitcoindPass, os.Getenv("BITCOIND_PASS"))
	setString(&config.OTelServiceName, os.Getenv("OTEL_SERVICE_NAME"))
	setString(&config.OTelExporterType, os.Getenv("OTEL_EXPORTER_TYPE"))
	setString(&config.OTelOTLPEndpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	setString(&config.LogLevel, os.Getenv("LOG_LEVEL"))
	setString(&config.Environment, os.Getenv("ENVIRONMENT"))

	bools := []struct {
		key string
		dst *bool
	}{
		{"NATS_ENABLED", &config.NATSEnabled},
		{"BITCOIND_DISABLE_TLS", &config.BitcoindDisableTLS},
		{"LOTTERY_PUSH_SETTLEMENT", &config.PushSettlement},
		{"OTEL_ENABLED", &config.OTelEnabled},
	}
	for _, b := range bools {
		if v := os.Getenv(b.key); v != "" {
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", b.key, v, err)
			}
			*b.dst = parsed
		}
	}

	ints := []struct {
		key string
		dst *int64
	}{
		{"ORACLE_START_HEIGHT", &config.OracleStartHeight},
		{"LOTTERY_CONFIRMATION_DEPTH", &config.ConfirmationDepth},
		{"LOTTERY_MAX_TICKETS", &config.MaxTickets},
		{"LOTTERY_MAX_TICKETS_PER_PURCHASE", &config.MaxPerPurchase},
	}
	for _, i := range ints {
		if v := os.Getenv(i.key); v != "" {
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", i.key, v, err)
			}
			*i.dst = parsed
		}
	}

	if v := os.Getenv("DATABASE_MAX_CONNS"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 32); err == nil {
			config.DatabaseMaxConns = int32(parsed)
		}
	}
	if v := os.Getenv("ORACLE_CACHE_SIZE"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			config.OracleCacheSize = parsed
		}
	}
	if v := os.Getenv("OTEL_EXPORT_INTERVAL_MS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			config.OTelExportIntervalMillis = parsed
		}
	}

	if err := setDuration(&config.StallTimeout, os.Getenv("LOTTERY_STALL_TIMEOUT")); err != nil {
		return fmt.Errorf("invalid LOTTERY_STALL_TIMEOUT: %w", err)
	}
	if err := setDuration(&config.DriveInterval, os.Getenv("DRIVE_INTERVAL")); err != nil {
		return fmt.Errorf("invalid DRIVE_INTERVAL: %w", err)
	}

	return nil
}

func (c *Config) validate() error {
	if c.ConfirmationDepth <= 0 {
		return fmt.Errorf("LOTTERY_CONFIRMATION_DEPTH must be positive, got %d", c.ConfirmationDepth)
	}
	if c.MaxTickets <= 0 {
		return fmt.Errorf("LOTTERY_MAX_TICKETS must be positive, got %d", c.MaxTickets)
	}
	if c.MaxPerPurchase <= 0 || c.MaxPerPurchase > c.MaxTickets {
		return fmt.Errorf("LOTTERY_MAX_TICKETS_PER_PURCHASE must be in 1..%d, got %d", c.MaxTickets, c.MaxPerPurchase)
	}
	if c.StallTimeout <= 0 || c.DriveInterval <= 0 {
		return fmt.Errorf("LOTTERY_STALL_TIMEOUT and DRIVE_INTERVAL must be positive")
	}
	switch c.OracleBackend {
	case "bitcoind", "memory":
	default:
		return fmt.Errorf("unknown ORACLE_BACKEND %q", c.OracleBackend)
	}

	if c.Environment != "test" {
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
		if c.DatabaseName != "" && strings.TrimSpace(c.DatabaseName) == "" {
			return fmt.Errorf("DATABASE_NAME cannot be empty when provided")
		}
		if c.OracleBackend == "bitcoind" && c.BitcoindHost == "" {
			return fmt.Errorf("BITCOIND_HOST is required for the bitcoind oracle")
		}
	}

	return nil
}

// ConfigureLogging applies the log level and formatter to the standard logrus logger
func (c *Config) ConfigureLogging() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.WithField("log_level", c.LogLevel).Warn("Unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if c.Environment == "production" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// Test helpers - only use in tests

// SetTestConfig overrides the global config instance for testing
// This should only be called from test files
func SetTestConfig(testConfig *Config) {
	mu.Lock()
	defer mu.Unlock()
	instance = testConfig
}

// ResetConfig resets the global config instance and sync.Once for testing
// This should only be called from test files
func ResetConfig() {
	mu.Lock()
	defer mu.Unlock()
	instance = nil
	once = sync.Once{}
}

// NewTestConfig creates a minimal config suitable for unit tests
func NewTestConfig() *Config {
	config := defaults()
	config.Environment = "test"
	config.NATSEnabled = false
	config.OracleBackend = "memory"
	config.MaxTickets = 1000
	config.MaxPerPurchase = 100
	config.DriveInterval = 10 * time.Millisecond
	return config
}
