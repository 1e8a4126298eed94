package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "KPIDASH"

// Config represents the complete application configuration
type Config struct {
	Server       ServerConfig       `yaml:"server" split_words:"true"`
	Security     SecurityConfig     `yaml:"security" split_words:"true"`
	Logging      LoggingConfig      `yaml:"logging" split_words:"true"`
	Paths        PathsConfig        `yaml:"paths" split_words:"true"`
	Data         DataConfig         `yaml:"data" split_words:"true"`
	GoogleSheets GoogleSheetsConfig `yaml:"google_sheets" split_words:"true"`
	Telemetry    TelemetryConfig    `yaml:"telemetry" split_words:"true"`
	Snapshot     SnapshotConfig     `yaml:"snapshot" split_words:"true"`
	WebSocket    WebSocketConfig    `yaml:"websocket" split_words:"true"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" split_words:"true"`
	Port            int           `yaml:"port" split_words:"true"`
	ReadTimeout     time.Duration `yaml:"read_timeout" split_words:"true"`
	WriteTimeout    time.Duration `yaml:"write_timeout" split_words:"true"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" split_words:"true"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" split_words:"true"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" split_words:"true"`
	RenderTimeout   time.Duration `yaml:"render_timeout" split_words:"true"`
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" split_words:"true"`
	EnableCORS     bool            `yaml:"enable_cors" split_words:"true"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" split_words:"true"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" split_words:"true"`
	RPS     float64 `yaml:"rps" split_words:"true"`
	Burst   int     `yaml:"burst" split_words:"true"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       string `yaml:"level" split_words:"true"`
	Format      string `yaml:"format" split_words:"true"`
	Output      string `yaml:"output" split_words:"true"`
	FilePath    string `yaml:"file_path" split_words:"true"`
	Development bool   `yaml:"development" split_words:"true"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	BaseDir   string `yaml:"base_dir" split_words:"true"`
	DataDir   string `yaml:"data_dir" split_words:"true"`
	ExportDir string `yaml:"export_dir" split_words:"true"`
	LogsDir   string `yaml:"logs_dir" split_words:"true"`
}

// DataConfig describes the KPI source and the dashboard defaults.
type DataConfig struct {
	// Source is a file path (xlsx, xls, csv, csv.gz, csv.lz4, zip, db)
	// or a gsheet://<spreadsheet-id> reference.
	Source string   `yaml:"source" split_words:"true"`
	Sheets []string `yaml:"sheets" split_words:"true"`
	// MissingSheets is "warn" (skip and report) or "fail".
	MissingSheets string `yaml:"missing_sheets" split_words:"true"`

	IdentifierColumn string   `yaml:"identifier_column" split_words:"true"`
	TimeColumn       string   `yaml:"time_column" split_words:"true"`
	CardMetrics      []string `yaml:"card_metrics" split_words:"true"`

	PreviewRows    int    `yaml:"preview_rows" split_words:"true"`
	TopNMin        int    `yaml:"top_n_min" split_words:"true"`
	TopNMax        int    `yaml:"top_n_max" split_words:"true"`
	ExportFileName string `yaml:"export_file_name" split_words:"true"`

	CacheEntries int           `yaml:"cache_entries" split_words:"true"`
	CacheTTL     time.Duration `yaml:"cache_ttl" split_words:"true"`
}

// GoogleSheetsConfig holds credentials for gsheet:// sources.
type GoogleSheetsConfig struct {
	APIKey          string `yaml:"api_key" split_words:"true"`
	CredentialsFile string `yaml:"credentials_file" split_words:"true"`
	Endpoint        string `yaml:"endpoint" split_words:"true"`
}

// TelemetryConfig controls the OpenTelemetry providers.
type TelemetryConfig struct {
	EnableMetrics bool    `yaml:"enable_metrics" split_words:"true"`
	EnableTracing bool    `yaml:"enable_tracing" split_words:"true"`
	TraceExporter string  `yaml:"trace_exporter" split_words:"true"`
	SampleRatio   float64 `yaml:"sample_ratio" split_words:"true"`
	Environment   string  `yaml:"environment" split_words:"true"`
}

// SnapshotConfig controls headless browser captures of the dashboard.
type SnapshotConfig struct {
	Headless bool          `yaml:"headless" split_words:"true"`
	Timeout  time.Duration `yaml:"timeout" split_words:"true"`
	Width    int           `yaml:"width" split_words:"true"`
	Height   int           `yaml:"height" split_words:"true"`
	Quality  int           `yaml:"quality" split_words:"true"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int           `yaml:"read_buffer_size" split_words:"true"`
	WriteBufferSize int           `yaml:"write_buffer_size" split_words:"true"`
	MaxMessageSize  int64         `yaml:"max_message_size" split_words:"true"`
	PingPeriod      time.Duration `yaml:"ping_period" split_words:"true"`
	PongWait        time.Duration `yaml:"pong_wait" split_words:"true"`
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in increasing order of precedence. A .env file in the working
// directory is read first so its values behave like real environment
// variables.
func Load() (*Config, error) {
	return LoadFrom(getConfigFilePath())
}

// LoadFrom is Load with an explicit config file path. An empty path skips
// the file layer.
func LoadFrom(configFile string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()

	if configFile != "" {
		if err := mergeFile(configFile, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Fields without a matching variable are left untouched, so defaults
	// and file values survive. Keys are KPIDASH_<SECTION>_<FIELD>.
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads a dotenv file when it exists. Variables already present
// in the environment win.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// mergeFile overlays the YAML file onto cfg
func mergeFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Security.EnableCORS && len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified")
	}

	switch strings.ToLower(c.Data.MissingSheets) {
	case "warn", "fail":
		c.Data.MissingSheets = strings.ToLower(c.Data.MissingSheets)
	case "":
		c.Data.MissingSheets = "warn"
	default:
		return fmt.Errorf("invalid missing_sheets policy: %q", c.Data.MissingSheets)
	}

	if c.Data.PreviewRows < 0 {
		return fmt.Errorf("preview rows must not be negative")
	}

	if c.Data.TopNMin <= 0 || c.Data.TopNMax < c.Data.TopNMin {
		return fmt.Errorf("invalid top N bounds: %d..%d", c.Data.TopNMin, c.Data.TopNMax)
	}

	switch c.Logging.Output {
	case "console", "file", "both":
	default:
		c.Logging.Output = "console"
	}

	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		c.Logging.Format = "json"
	}

	if c.Logging.FilePath == "" {
		c.Logging.FilePath = "logs/kpidash.log"
	}

	return nil
}

// Address returns the listen address of the HTTP server
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if explicit := os.Getenv(EnvPrefix + "_CONFIG"); explicit != "" {
		return explicit
	}

	locations := []string{
		"kpidash.yaml",
		"config.yaml",
		"configs/kpidash.yaml",
		"configs/config.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: 30 * time.Second,
			RenderTimeout:   20 * time.Second,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:8080"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     100,
				Burst:   50,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/kpidash.log",
		},
		Paths: PathsConfig{
			DataDir:   "data",
			ExportDir: "exports",
			LogsDir:   "logs",
		},
		Data: DataConfig{
			Source:        "Updated_18_KPI_Dashboard.xlsx",
			MissingSheets: "warn",
			CardMetrics: []string{
				"Time_Low_Value_Tasks_Hours",
				"Total_Work_Time_Hours",
				"Cost_Per_Hour",
			},
			PreviewRows:    200,
			TopNMin:        3,
			TopNMax:        10,
			ExportFileName: "employee_filtered_data.csv",
			CacheEntries:   16,
			CacheTTL:       5 * time.Minute,
		},
		Telemetry: TelemetryConfig{
			EnableMetrics: true,
			EnableTracing: false,
			TraceExporter: "none",
			SampleRatio:   1.0,
			Environment:   "development",
		},
		Snapshot: SnapshotConfig{
			Headless: true,
			Timeout:  30 * time.Second,
			Width:    1440,
			Height:   900,
			Quality:  90,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			MaxMessageSize:  64 * 1024,
			PingPeriod:      54 * time.Second,
			PongWait:        60 * time.Second,
		},
	}
}
