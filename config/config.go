package config

import (
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	Mail     MailConfig
	Tokens   TokenConfig
	Admin    AdminBootstrapConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port           string
	AllowedOrigins string
	// BaseURL is the public origin embedded in emailed magic links.
	BaseURL string
}

// DatabaseConfig holds the Postgres connection settings
type DatabaseConfig struct {
	DSN string
}

// JWTConfig holds admin-session token configuration
type JWTConfig struct {
	Secret    string
	ExpiresIn int // seconds
}

// MailConfig holds the outbound email-delivery collaborator settings.
// With an empty ServiceURL (or MockMail set) a logging mock is used.
type MailConfig struct {
	ServiceURL   string
	ServiceToken string
	MockMail     bool
}

// TokenConfig holds access-token lifetime settings. Pick tokens always
// expire at their round's lock time; only the admin login variant has a
// fixed window.
type TokenConfig struct {
	AdminLoginTTLMinutes int
}

// AdminBootstrapConfig seeds the first operator account when no admin
// user exists yet.
type AdminBootstrapConfig struct {
	Username string
	Email    string
	Password string
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// Config file is optional; environment variables cover everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults sets default values for configuration
func setDefaults() {
	viper.SetDefault("Server.Port", "5300")
	viper.SetDefault("Server.AllowedOrigins", "http://localhost:3000")
	viper.SetDefault("Server.BaseURL", "http://localhost:5300")
	viper.SetDefault("Database.DSN", "host=localhost user=picks password=picks dbname=make_your_picks port=5432 sslmode=disable")
	viper.SetDefault("JWT.ExpiresIn", 24*60*60) // 24 hours
	viper.SetDefault("Mail.MockMail", true)
	viper.SetDefault("Tokens.AdminLoginTTLMinutes", 15)
	viper.SetDefault("Admin.Username", "admin")
}
