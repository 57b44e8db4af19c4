package config

import (
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	MongoDB MongoDBConfig `mapstructure:"mongodb"`
	Redis   RedisConfig   `mapstructure:"redis"`
	JWT     JWTConfig     `mapstructure:"jwt"`
	Session SessionConfig `mapstructure:"session"`
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Host         string `mapstructure:"host"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// MongoDBConfig holds MongoDB connection configuration
type MongoDBConfig struct {
	URI            string `mapstructure:"uri"`
	Database       string `mapstructure:"database"`
	SessionColl    string `mapstructure:"session_collection"`
	EventColl      string `mapstructure:"event_collection"`
	VisibilityColl string `mapstructure:"visibility_collection"`
	HexColl        string `mapstructure:"hex_collection"`
	TokenColl      string `mapstructure:"token_collection"`
	MemberColl     string `mapstructure:"member_collection"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	URI      string `mapstructure:"uri"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret     string `mapstructure:"secret"`
	Expiration int    `mapstructure:"expiration"` // in hours
}

// SessionConfig holds session engine configuration
type SessionConfig struct {
	PersistTimeout  int `mapstructure:"persist_timeout"`   // in seconds
	EventQueueBatch int `mapstructure:"event_queue_batch"` // events drained per worker pass
}

// Load reads configuration from a file or environment variables
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/hexcrawl-backend")

	// Environment variables
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read the config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Config file not found; we'll just use environment and defaults
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults sets default values for configuration
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", 15)
	viper.SetDefault("server.write_timeout", 15)

	// MongoDB defaults
	viper.SetDefault("mongodb.uri", "mongodb://localhost:27017")
	viper.SetDefault("mongodb.database", "hexcrawl")
	viper.SetDefault("mongodb.session_collection", "game_sessions")
	viper.SetDefault("mongodb.event_collection", "session_events")
	viper.SetDefault("mongodb.visibility_collection", "hex_visibility")
	viper.SetDefault("mongodb.hex_collection", "campaign_hexes")
	viper.SetDefault("mongodb.token_collection", "campaign_tokens")
	viper.SetDefault("mongodb.member_collection", "campaign_members")

	// Redis defaults
	viper.SetDefault("redis.uri", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// JWT defaults
	viper.SetDefault("jwt.secret", "replace-with-secure-secret")
	viper.SetDefault("jwt.expiration", 24)

	// Session defaults
	viper.SetDefault("session.persist_timeout", 10)
	viper.SetDefault("session.event_queue_batch", 100)
}
