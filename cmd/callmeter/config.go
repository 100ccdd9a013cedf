package main

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/nvoloshin/callmeter/internal/logger"
)

const (
	defaultListenAddr     = "localhost:8000"
	defaultLoggingLevel   = logger.LevelInfo
	defaultMediaAddr      = "localhost:3000"
	defaultEnvironment    = logger.EnvProduction
	defaultSettleInterval = time.Minute
	defaultSettleWorkers  = 8
)

type Config struct {
	// Default logging level
	LogLevel string

	// Address on which the billing service will be run
	ListenAddr string

	// Media service address to send room termination signals to
	MediaAddr string

	// Database to connect to
	DatabaseDSN string

	// Redis address for the settings cache; empty disables caching and
	// settings are read straight from the database
	RedisAddr string

	// Secret key
	// Shared HMAC key the external auth system signs bearer tokens with
	SecretKey string

	// Environment
	Environment string

	// Interval between settlement passes
	SettleInterval time.Duration

	// Size of the settlement worker pool
	SettleWorkers int
}

func NewConfig() *Config {
	return &Config{
		LogLevel:       defaultLoggingLevel,
		ListenAddr:     defaultListenAddr,
		MediaAddr:      defaultMediaAddr,
		Environment:    defaultEnvironment,
		SettleInterval: defaultSettleInterval,
		SettleWorkers:  defaultSettleWorkers,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		c.LoadEnv(func(key string) string {
			return envMap[key]
		})
		return nil
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) {
	// Set option to value if it not empty
	setString := func(o *string) func(value string) {
		return func(value string) {
			if value != "" {
				*o = value
			}
		}
	}
	setDuration := func(o *time.Duration) func(value string) {
		return func(value string) {
			if parsed, err := time.ParseDuration(value); err == nil {
				*o = parsed
			}
		}
	}
	setInt := func(o *int) func(value string) {
		return func(value string) {
			if parsed, err := strconv.Atoi(value); err == nil {
				*o = parsed
			}
		}
	}

	envMap := map[string]func(string){
		"RUN_ADDRESS":          setString(&c.ListenAddr),
		"DATABASE_URI":         setString(&c.DatabaseDSN),
		"REDIS_ADDRESS":        setString(&c.RedisAddr),
		"SECRET_KEY":           setString(&c.SecretKey),
		"LOG_LEVEL":            setString(&c.LogLevel),
		"MEDIA_SYSTEM_ADDRESS": setString(&c.MediaAddr),
		"ENVIRONMENT":          setString(&c.Environment),
		"SETTLEMENT_INTERVAL":  setDuration(&c.SettleInterval),
		"SETTLEMENT_WORKERS":   setInt(&c.SettleWorkers),
	}

	for key, parseFn := range envMap {
		parseFn(getenv(key))
	}
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("callmeter", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string")
	fs.StringVar(&c.RedisAddr, "redis", c.RedisAddr, "Redis address for the settings cache")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.MediaAddr, "media", "m", c.MediaAddr, "Media service address")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.DurationVar(&c.SettleInterval, "settle-interval", c.SettleInterval, "Interval between settlement passes")
	fs.IntVar(&c.SettleWorkers, "settle-workers", c.SettleWorkers, "Settlement worker pool size")

	return fs.Parse(args)
}
