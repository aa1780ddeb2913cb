package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete application configuration
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	RabbitMQ  RabbitMQConfig  `yaml:"rabbitmq"`
	Logging   LoggingConfig   `yaml:"logging"`
	Worker    WorkerConfig    `yaml:"worker"`
	Providers ProvidersConfig `yaml:"providers"`
	Storage   StorageConfig   `yaml:"storage"`
	Render    RenderConfig    `yaml:"render"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
}

// RabbitMQConfig holds the status-event broker configuration.
// When disabled, workers rely on polling alone.
type RabbitMQConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds the wake-up queue configuration. An empty name
// declares a server-named exclusive queue per worker.
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableSource bool   `yaml:"enable_source"`
}

// WorkerConfig holds stage worker configuration
type WorkerConfig struct {
	Stage             string        `yaml:"stage"`
	ID                string        `yaml:"id"`
	IdleInterval      time.Duration `yaml:"idle_interval"`
	ErrorInterval     time.Duration `yaml:"error_interval"`
	LeaseDuration     time.Duration `yaml:"lease_duration"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	JobTimeout        time.Duration `yaml:"job_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	TempDir           string        `yaml:"temp_dir"`
	Retry             RetryConfig   `yaml:"retry"`
}

// RetryConfig configures the script provider retry policy
type RetryConfig struct {
	Attempts int           `yaml:"attempts"`
	Wait     time.Duration `yaml:"wait"`
}

// ProvidersConfig holds the generative provider settings
type ProvidersConfig struct {
	Script ScriptProviderConfig `yaml:"script"`
	Gemini GeminiConfig         `yaml:"gemini"`
}

// ScriptProviderConfig selects the script generator. Kind "http" posts to
// an external script service; kind "gemini" asks the Gemini text model.
type ScriptProviderConfig struct {
	Kind    string        `yaml:"kind"`
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// GeminiConfig holds Gemini model and voice settings
type GeminiConfig struct {
	APIKey       string `yaml:"api_key"`
	BaseURL      string `yaml:"base_url"`
	ScriptModel  string `yaml:"script_model"`
	ImageModel   string `yaml:"image_model"`
	SpeechModel  string `yaml:"speech_model"`
	Voice        string `yaml:"voice"`
	LanguageCode string `yaml:"language_code"`
	AspectRatio  string `yaml:"aspect_ratio"`
}

// StorageConfig selects the blob backend
type StorageConfig struct {
	Backend         string        `yaml:"backend"`
	Bucket          string        `yaml:"bucket"`
	CredentialsFile string        `yaml:"credentials_file"`
	LocalRoot       string        `yaml:"local_root"`
	PublicBaseURL   string        `yaml:"public_base_url"`
	SigningSecret   string        `yaml:"signing_secret"`
	URLTTL          time.Duration `yaml:"url_ttl"`
}

// RenderConfig holds ffmpeg settings and the video stage policy
type RenderConfig struct {
	FFmpegBinary       string  `yaml:"ffmpeg_binary"`
	FFprobeBinary      string  `yaml:"ffprobe_binary"`
	FPS                int     `yaml:"fps"`
	Width              int     `yaml:"width"`
	Height             int     `yaml:"height"`
	MinRenderableRatio float64 `yaml:"min_renderable_ratio"`
}

// MetricsConfig holds the Prometheus endpoint settings for workers
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// Load reads the configuration file, expands ${VAR} references from the
// environment and fills unset values with defaults
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	return &config, nil
}

// ApplyDefaults fills zero values with the reference settings
func (c *Config) ApplyDefaults() {
	setDuration(&c.Worker.IdleInterval, 10*time.Second)
	setDuration(&c.Worker.ErrorInterval, 30*time.Second)
	setDuration(&c.Worker.LeaseDuration, 10*time.Minute)
	setDuration(&c.Worker.JobTimeout, 30*time.Minute)
	setDuration(&c.Worker.ShutdownTimeout, 30*time.Second)
	setDuration(&c.Worker.Retry.Wait, 15*time.Second)
	setDuration(&c.Server.ShutdownTimeout, 30*time.Second)
	if c.Worker.Retry.Attempts <= 0 {
		c.Worker.Retry.Attempts = 3
	}

	setString(&c.Providers.Script.Kind, "http")
	setDuration(&c.Providers.Script.Timeout, 90*time.Second)
	setString(&c.Providers.Gemini.AspectRatio, "16:9")

	setString(&c.Storage.Backend, "local")
	setDuration(&c.Storage.URLTTL, time.Hour)

	setString(&c.Render.FFmpegBinary, "ffmpeg")
	setString(&c.Render.FFprobeBinary, "ffprobe")
	if c.Render.FPS <= 0 {
		c.Render.FPS = 24
	}

	setString(&c.RabbitMQ.Exchange.Type, "topic")
	setString(&c.Metrics.Path, "/metrics")
	setString(&c.Logging.Level, "info")
	setString(&c.Logging.Format, "console")
	setString(&c.Database.SSLMode, "disable")
}

// ValidateAPIConfig checks the settings the API service needs
func (c *Config) ValidateAPIConfig() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	return c.validateStorage()
}

// ValidateWorkerConfig checks the settings a stage worker needs
func (c *Config) ValidateWorkerConfig() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateRabbitMQ(); err != nil {
		return err
	}

	if c.Worker.IdleInterval <= 0 {
		return fmt.Errorf("worker idle_interval must be greater than 0")
	}

	if c.Worker.ErrorInterval <= 0 {
		return fmt.Errorf("worker error_interval must be greater than 0")
	}

	if c.Worker.LeaseDuration <= 0 {
		return fmt.Errorf("worker lease_duration must be greater than 0")
	}

	if c.Worker.HeartbeatInterval >= c.Worker.LeaseDuration {
		return fmt.Errorf("worker heartbeat_interval (%s) must be shorter than lease_duration (%s)",
			c.Worker.HeartbeatInterval, c.Worker.LeaseDuration)
	}

	switch c.Providers.Script.Kind {
	case "http":
	case "gemini":
	default:
		return fmt.Errorf("unknown script provider kind: %q", c.Providers.Script.Kind)
	}

	if c.Render.MinRenderableRatio < 0 || c.Render.MinRenderableRatio > 1 {
		return fmt.Errorf("render min_renderable_ratio must be between 0 and 1, got %v", c.Render.MinRenderableRatio)
	}

	if c.Metrics.Enabled && (c.Metrics.Port < MinPort || c.Metrics.Port > MaxPort) {
		return fmt.Errorf("invalid metrics port: %d (must be between %d and %d)", c.Metrics.Port, MinPort, MaxPort)
	}

	return c.validateStorage()
}

// ValidateStageProviders checks the provider settings the given stage calls
func (c *Config) ValidateStageProviders(stage string) error {
	switch stage {
	case "script":
		if c.Providers.Script.Kind == "http" && c.Providers.Script.URL == "" {
			return fmt.Errorf("providers.script.url is required for the http script provider")
		}
		if c.Providers.Script.Kind == "gemini" && c.Providers.Gemini.APIKey == "" {
			return fmt.Errorf("providers.gemini.api_key is required for the gemini script provider")
		}
	case "asset":
		if c.Providers.Gemini.APIKey == "" {
			return fmt.Errorf("providers.gemini.api_key is required for the asset stage")
		}
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < MinPort || c.Database.Port > MaxPort {
		return fmt.Errorf("invalid database port: %d (must be between %d and %d)", c.Database.Port, MinPort, MaxPort)
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	return nil
}

func (c *Config) validateRabbitMQ() error {
	if !c.RabbitMQ.Enabled {
		return nil
	}

	if c.RabbitMQ.Host == "" {
		return fmt.Errorf("rabbitmq host is required")
	}

	if c.RabbitMQ.Port < MinPort || c.RabbitMQ.Port > MaxPort {
		return fmt.Errorf("invalid rabbitmq port: %d (must be between %d and %d)", c.RabbitMQ.Port, MinPort, MaxPort)
	}

	if c.RabbitMQ.Exchange.Name == "" {
		return fmt.Errorf("rabbitmq exchange name is required")
	}

	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage bucket is required for the gcs backend")
		}
	case "local":
		if c.Storage.LocalRoot == "" {
			return fmt.Errorf("storage local_root is required for the local backend")
		}
		if c.Storage.SigningSecret == "" {
			return fmt.Errorf("storage signing_secret is required for the local backend")
		}
	default:
		return fmt.Errorf("unknown storage backend: %q", c.Storage.Backend)
	}
	return nil
}

func setDuration(d *time.Duration, def time.Duration) {
	if *d <= 0 {
		*d = def
	}
}

func setString(s *string, def string) {
	if *s == "" {
		*s = def
	}
}
