// Package config loads and validates process configuration from environment
// variables, an optional .env file, and an optional YAML file.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/chatcore/server/internal/chaterr"
)

// DatabaseType selects the persistence driver.
type DatabaseType string

const (
	DatabaseMemory   DatabaseType = "memory"
	DatabaseDocument DatabaseType = "document"
	DatabaseSQL      DatabaseType = "sql"
)

// StorageType selects the blob storage backend.
type StorageType string

const (
	StorageLocal StorageType = "local"
	StorageS3    StorageType = "s3"
)

// Config is the fully resolved, validated process configuration.
type Config struct {
	Port        string
	Host        string
	Environment string

	DatabaseType DatabaseType
	DatabaseURL  string
	RedisURL     string

	StorageType StorageType
	StoragePath string
	S3Bucket    string
	S3Region    string

	JWTSecret            string
	JWTAlgorithm         string
	JWTExpirationMinutes int

	EnableEncryption bool
	EncryptionKey    string

	MaxFileSizeMB     int
	AllowedExtensions []string

	WebsocketPingInterval       int
	WebsocketOutboundQueueDepth int
}

// Load reads configuration from .env, environment variables, and an optional
// ./config.yaml, applies defaults, and validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file found, using environment variables")
	}

	viper.SetEnvPrefix("CHATCORE")
	viper.AutomaticEnv()
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		log.Debug().Msg("no config.yaml found, using environment variables and defaults")
	}

	cfg := &Config{
		Port:        viper.GetString("port"),
		Host:        viper.GetString("host"),
		Environment: viper.GetString("environment"),

		DatabaseType: DatabaseType(viper.GetString("database_type")),
		DatabaseURL:  viper.GetString("database_url"),
		RedisURL:     viper.GetString("redis_url"),

		StorageType: StorageType(viper.GetString("storage_type")),
		StoragePath: viper.GetString("storage_path"),
		S3Bucket:    viper.GetString("s3_bucket"),
		S3Region:    viper.GetString("s3_region"),

		JWTSecret:            viper.GetString("jwt_secret"),
		JWTAlgorithm:         viper.GetString("jwt_algorithm"),
		JWTExpirationMinutes: viper.GetInt("jwt_expiration_minutes"),

		EnableEncryption: viper.GetBool("enable_encryption"),
		EncryptionKey:    viper.GetString("encryption_key"),

		MaxFileSizeMB:     viper.GetInt("max_file_size_mb"),
		AllowedExtensions: viper.GetStringSlice("allowed_extensions"),

		WebsocketPingInterval:       viper.GetInt("websocket_ping_interval"),
		WebsocketOutboundQueueDepth: viper.GetInt("websocket_outbound_queue_depth"),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("database_type", string(cfg.DatabaseType)).
		Str("storage_type", string(cfg.StorageType)).
		Msg("configuration loaded")

	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("port", "8080")
	viper.SetDefault("host", "0.0.0.0")
	viper.SetDefault("environment", "development")

	viper.SetDefault("database_type", string(DatabaseMemory))
	viper.SetDefault("storage_type", string(StorageLocal))
	viper.SetDefault("storage_path", "./data/blobs")
	viper.SetDefault("s3_region", "us-east-1")

	viper.SetDefault("jwt_algorithm", "HS256")
	viper.SetDefault("jwt_expiration_minutes", 1440)

	viper.SetDefault("enable_encryption", false)

	viper.SetDefault("max_file_size_mb", 10)
	viper.SetDefault("allowed_extensions", []string{"jpg", "png", "gif", "pdf", "txt", "mp4", "mp3"})

	viper.SetDefault("websocket_ping_interval", 30)
	viper.SetDefault("websocket_outbound_queue_depth", 64)
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return chaterr.Config("jwt_secret is required")
	}
	if cfg.JWTAlgorithm != "HS256" {
		return chaterr.Config(fmt.Sprintf("unsupported jwt_algorithm %q", cfg.JWTAlgorithm))
	}

	switch cfg.DatabaseType {
	case DatabaseMemory, DatabaseSQL:
	case DatabaseDocument:
		return chaterr.Config("database_type \"document\" has no registered driver")
	default:
		return chaterr.Config(fmt.Sprintf("unknown database_type %q", cfg.DatabaseType))
	}
	if cfg.DatabaseType == DatabaseSQL && strings.TrimSpace(cfg.DatabaseURL) == "" {
		return chaterr.Config("database_url is required when database_type is \"sql\"")
	}

	switch cfg.StorageType {
	case StorageLocal, StorageS3:
	default:
		return chaterr.Config(fmt.Sprintf("unknown storage_type %q", cfg.StorageType))
	}
	if cfg.StorageType == StorageLocal && strings.TrimSpace(cfg.StoragePath) == "" {
		return chaterr.Config("storage_path is required when storage_type is \"local\"")
	}
	if cfg.StorageType == StorageS3 && strings.TrimSpace(cfg.S3Bucket) == "" {
		return chaterr.Config("s3_bucket is required when storage_type is \"s3\"")
	}

	if cfg.EnableEncryption && strings.TrimSpace(cfg.EncryptionKey) == "" {
		return chaterr.Config("encryption_key is required when enable_encryption is true")
	}

	if cfg.WebsocketPingInterval <= 0 {
		return chaterr.Config("websocket_ping_interval must be positive")
	}
	if cfg.WebsocketOutboundQueueDepth <= 0 {
		return chaterr.Config("websocket_outbound_queue_depth must be positive")
	}

	return nil
}
