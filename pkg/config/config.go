package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"reflect"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Journal  JournalConfig  `yaml:"journal" json:"journal"`
	Security SecurityConfig `yaml:"security" json:"security"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string          `yaml:"host" json:"host" env:"SERVER_HOST"`
	Port            string          `yaml:"port" json:"port" env:"SERVER_PORT" validate:"required,numeric"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" json:"read_timeout" env:"SERVER_READ_TIMEOUT" validate:"gte=0"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" json:"write_timeout" env:"SERVER_WRITE_TIMEOUT" validate:"gte=0"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout" json:"idle_timeout" env:"SERVER_IDLE_TIMEOUT" validate:"gte=0"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" json:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" validate:"gt=0"`
	TLS             TLSConfig       `yaml:"tls" json:"tls"`
	CORS            CORSConfig      `yaml:"cors" json:"cors"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
}

// TLSConfig holds TLS configuration
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled" env:"TLS_ENABLED"`
	CertFile string `yaml:"cert_file" json:"cert_file" env:"TLS_CERT_FILE" validate:"required_if=Enabled true"`
	KeyFile  string `yaml:"key_file" json:"key_file" env:"TLS_KEY_FILE" validate:"required_if=Enabled true"`
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled" env:"CORS_ENABLED"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins" env:"CORS_ORIGINS"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
	MaxAge         int      `yaml:"max_age" json:"max_age" env:"CORS_MAX_AGE" validate:"gte=0"`
}

// RateLimitConfig holds per-actor rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" json:"enabled" env:"RATE_LIMIT_ENABLED"`
	RequestsPerMinute int  `yaml:"requests_per_minute" json:"requests_per_minute" env:"RATE_LIMIT_RPM" validate:"required_if=Enabled true,gte=0"`
	BurstSize         int  `yaml:"burst_size" json:"burst_size" env:"RATE_LIMIT_BURST" validate:"required_if=Enabled true,gte=0"`
}

// StorageConfig selects the object store transport and the staging area
type StorageConfig struct {
	Type             string        `yaml:"type" json:"type" env:"STORAGE_TYPE" validate:"oneof=local s3 ftp"`
	StagingDir       string        `yaml:"staging_dir" json:"staging_dir" env:"STORAGE_STAGING_DIR" validate:"required"`
	MaxUploadSize    ByteSize      `yaml:"max_upload_size" json:"max_upload_size" env:"STORAGE_MAX_UPLOAD_SIZE" validate:"gte=0"`
	OperationTimeout time.Duration `yaml:"operation_timeout" json:"operation_timeout" env:"STORAGE_OPERATION_TIMEOUT" validate:"gt=0"`
	Local            LocalConfig   `yaml:"local" json:"local"`
	S3               S3Config      `yaml:"s3" json:"s3"`
	FTP              FTPConfig     `yaml:"ftp" json:"ftp"`
}

// LocalConfig holds the directory backing the local transport
type LocalConfig struct {
	Root string `yaml:"root" json:"root" env:"LOCAL_ROOT"`
}

// S3Config holds S3 configuration
type S3Config struct {
	Endpoint        string `yaml:"endpoint" json:"endpoint" env:"S3_ENDPOINT" validate:"omitempty,url"`
	Region          string `yaml:"region" json:"region" env:"S3_REGION"`
	Bucket          string `yaml:"bucket" json:"bucket" env:"S3_BUCKET"`
	Prefix          string `yaml:"prefix" json:"prefix" env:"S3_PREFIX"`
	AccessKey       string `yaml:"access_key" json:"access_key" env:"S3_ACCESS_KEY" sensitive:"true"`
	SecretKey       string `yaml:"secret_key" json:"secret_key" env:"S3_SECRET_KEY" sensitive:"true"`
	ForcePathStyle  bool   `yaml:"force_path_style" json:"force_path_style" env:"S3_FORCE_PATH_STYLE"`
	UseSSL          bool   `yaml:"use_ssl" json:"use_ssl" env:"S3_USE_SSL"`
	CreateIfMissing bool   `yaml:"create_if_missing" json:"create_if_missing" env:"S3_CREATE_BUCKET"`
}

// FTPConfig holds FTP configuration
type FTPConfig struct {
	Address     string        `yaml:"address" json:"address" env:"FTP_ADDRESS" validate:"omitempty,hostname_port"`
	Username    string        `yaml:"username" json:"username" env:"FTP_USERNAME"`
	Password    string        `yaml:"password" json:"password" env:"FTP_PASSWORD" sensitive:"true"`
	Root        string        `yaml:"root" json:"root" env:"FTP_ROOT"`
	ExplicitTLS bool          `yaml:"explicit_tls" json:"explicit_tls" env:"FTP_EXPLICIT_TLS"`
	DialTimeout time.Duration `yaml:"dial_timeout" json:"dial_timeout" env:"FTP_DIAL_TIMEOUT" validate:"gte=0"`
}

// DatabaseConfig holds catalog database configuration
type DatabaseConfig struct {
	Driver          string        `yaml:"driver" json:"driver" env:"DB_DRIVER" validate:"oneof=sqlite postgres"`
	DSN             string        `yaml:"dsn" json:"dsn" env:"DB_DSN" validate:"required" sensitive:"true"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns" env:"DB_MAX_OPEN_CONNS" validate:"gte=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" validate:"gte=0"`
}

// JournalConfig holds intent journal configuration
type JournalConfig struct {
	Path     string `yaml:"path" json:"path" env:"JOURNAL_PATH" validate:"required_without=InMemory"`
	InMemory bool   `yaml:"in_memory" json:"in_memory" env:"JOURNAL_IN_MEMORY"`
}

// SecurityConfig holds authentication configuration
type SecurityConfig struct {
	EnableAuth     bool     `yaml:"enable_auth" json:"enable_auth" env:"SECURITY_AUTH_ENABLED"`
	JWTSecret      string   `yaml:"jwt_secret" json:"jwt_secret" env:"JWT_SECRET" sensitive:"true" validate:"omitempty,min=32"`
	Issuer         string   `yaml:"issuer" json:"issuer" env:"JWT_ISSUER"`
	TrustedProxies []string `yaml:"trusted_proxies" json:"trusted_proxies" env:"TRUSTED_PROXIES" validate:"dive,ip|cidr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level" env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	Format     string `yaml:"format" json:"format" env:"LOG_FORMAT" validate:"oneof=json console"`
	Output     string `yaml:"output" json:"output" env:"LOG_OUTPUT" validate:"oneof=stdout stderr file"`
	File       string `yaml:"file" json:"file" env:"LOG_FILE" validate:"required_if=Output file"`
	MaxSize    int    `yaml:"max_size" json:"max_size" env:"LOG_MAX_SIZE" validate:"gte=0"` // MB
	MaxBackups int    `yaml:"max_backups" json:"max_backups" env:"LOG_MAX_BACKUPS" validate:"gte=0"`
	MaxAge     int    `yaml:"max_age" json:"max_age" env:"LOG_MAX_AGE" validate:"gte=0"` // days
	Compress   bool   `yaml:"compress" json:"compress" env:"LOG_COMPRESS"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" env:"METRICS_ENABLED"`
	Path    string `yaml:"path" json:"path" env:"METRICS_PATH" validate:"required_if=Enabled true,omitempty,startswith=/"`
}

// ConfigManager manages configuration loading and validation
type ConfigManager struct {
	mu         sync.RWMutex
	config     *Config
	configPath string
	watchers   []func(*Config)
	validator  *Validator
}

// NewConfigManager creates a new configuration manager
func NewConfigManager() *ConfigManager {
	return &ConfigManager{
		watchers:  make([]func(*Config), 0),
		validator: NewValidator(),
	}
}

// Load loads configuration from defaults, then the YAML file when it exists,
// then environment variables
func (cm *ConfigManager) Load(configPath string) (*Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := loadFromFile(config, configPath); err != nil {
				return nil, fmt.Errorf("failed to load config from file: %w", err)
			}
		}
	}

	if err := loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cm.validator.ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cm.mu.Lock()
	cm.configPath = configPath
	cm.config = config
	cm.mu.Unlock()

	return config, nil
}

// Reload re-reads the configuration and notifies watchers. The previous
// configuration stays active when the new one is invalid.
func (cm *ConfigManager) Reload() error {
	cm.mu.RLock()
	path := cm.configPath
	cm.mu.RUnlock()
	if path == "" {
		return fmt.Errorf("no config path set")
	}

	config, err := cm.Load(path)
	if err != nil {
		return err
	}

	cm.mu.RLock()
	watchers := append([]func(*Config){}, cm.watchers...)
	cm.mu.RUnlock()
	for _, watcher := range watchers {
		watcher(config)
	}
	return nil
}

// Watch adds a configuration change watcher
func (cm *ConfigManager) Watch(watcher func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.watchers = append(cm.watchers, watcher)
}

// GetConfig returns the current configuration
func (cm *ConfigManager) GetConfig() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// ConfigPath returns the path passed to the last Load
func (cm *ConfigManager) ConfigPath() string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.configPath
}

func loadFromFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, config)
}

func loadFromEnv(config *Config) error {
	return setEnvVars(reflect.ValueOf(config).Elem())
}

// setEnvVars recursively sets struct fields from the variables named by their env tags
func setEnvVars(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			if field.Kind() == reflect.Struct {
				if err := setEnvVars(field); err != nil {
					return err
				}
			}
			continue
		}

		envValue, ok := os.LookupEnv(envTag)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set field %s from %s: %w", fieldType.Name, envTag, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch field.Type() {
		case reflect.TypeOf(ByteSize(0)):
			size, err := ParseSize(value)
			if err != nil {
				return err
			}
			field.SetInt(size)
		case reflect.TypeOf(time.Duration(0)):
			duration, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(duration))
		default:
			var intValue int64
			if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
				return err
			}
			field.SetInt(intValue)
		}
	case reflect.Bool:
		boolValue := value == "true" || value == "1" || value == "yes" || value == "on"
		field.SetBool(boolValue)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			values := strings.Split(value, ",")
			for i, v := range values {
				values[i] = strings.TrimSpace(v)
			}
			field.Set(reflect.ValueOf(values))
		}
	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// DefaultConfig returns a configuration that runs on a single host with
// SQLite, a local object store and an on-disk journal
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORS: CORSConfig{
				Enabled:        false,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
				MaxAge:         86400,
			},
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerMinute: 120,
				BurstSize:         20,
			},
		},
		Storage: StorageConfig{
			Type:             "local",
			StagingDir:       "./data/staging",
			MaxUploadSize:    100 * 1024 * 1024, // 100MB
			OperationTimeout: 30 * time.Second,
			Local:            LocalConfig{Root: "./data/objects"},
			S3: S3Config{
				Region: "us-east-1",
				Bucket: "fileshare",
				UseSSL: true,
			},
			FTP: FTPConfig{
				DialTimeout: 10 * time.Second,
			},
		},
		Database: DatabaseConfig{
			Driver:          "sqlite",
			DSN:             "./data/catalog.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		},
		Journal: JournalConfig{
			Path: "./data/journal",
		},
		Security: SecurityConfig{
			EnableAuth: true,
			Issuer:     "fileshare",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// LogSummary logs the effective configuration without secrets. Secrets are
// reported as a short hash prefix so operators can tell them apart.
func (c *Config) LogSummary(logger *zap.Logger) {
	fields := []zap.Field{
		zap.String("listen", c.Server.Host+":"+c.Server.Port),
		zap.String("storage", c.Storage.Type),
		zap.String("staging_dir", c.Storage.StagingDir),
		zap.Stringer("max_upload_size", c.Storage.MaxUploadSize),
		zap.Duration("operation_timeout", c.Storage.OperationTimeout),
		zap.String("database", c.Database.Driver),
		zap.Bool("journal_in_memory", c.Journal.InMemory),
		zap.Bool("auth", c.Security.EnableAuth),
		zap.Bool("metrics", c.Metrics.Enabled),
	}
	if c.Security.JWTSecret != "" {
		fields = append(fields, zap.String("jwt_secret", secretHash(c.Security.JWTSecret)))
	}
	if c.Storage.S3.AccessKey != "" {
		fields = append(fields, zap.String("s3_access_key", secretHash(c.Storage.S3.AccessKey)))
	}
	logger.Info("configuration loaded", fields...)
}

func secretHash(secret string) string {
	hash := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(hash[:8]) + "..."
}
