package config

import (
	"fmt"
	"time"

	"github.com/Xena75/Gestione-Partesa-sub007/internal/db"
	"github.com/Xena75/Gestione-Partesa-sub007/internal/importer"
	"github.com/spf13/viper"
)

// Config gathers everything the server needs at startup.
type Config struct {
	DB             db.Config
	ListenAddr     string
	AllowedOrigins []string
	BatchSize      int
	// Retention is how long completed progress records stay readable.
	Retention time.Duration
}

// Defaults returns the configuration used when no file or environment
// overrides are present.
func Defaults() Config {
	return Config{
		DB:             db.DefaultConfig(),
		ListenAddr:     ":8080",
		AllowedOrigins: []string{"http://localhost:3000"},
		BatchSize:      importer.DefaultBatchSize,
		Retention:      24 * time.Hour,
	}
}

// Load reads config.yaml from configPath with environment overrides
// (prefix GP, e.g. GP_DATABASE_HOST). A missing file is not an error.
func Load(configPath string) (Config, error) {
	cfg := Defaults()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("GP")

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("server.addr")
	v.BindEnv("import.batch_size")
	v.BindEnv("import.retention")

	if err := v.ReadInConfig(); err != nil {
		fmt.Println("No config.yaml found, using defaults and env vars")
	} else {
		fmt.Println("Loaded config.yaml")
	}

	if v.IsSet("database.host") {
		cfg.DB.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.DB.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.DB.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.DB.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.DB.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.DB.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("server.addr") {
		cfg.ListenAddr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}
	if v.IsSet("import.batch_size") {
		cfg.BatchSize = v.GetInt("import.batch_size")
	}
	if v.IsSet("import.retention") {
		cfg.Retention = v.GetDuration("import.retention")
	}

	return cfg, nil
}
