// Package config loads runtime settings from a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/erazemk/oskrba/internal/syncchan"
)

// Config holds every setting. Command-line flags override these values.
type Config struct {
	// Blob server.
	DBPath string // OSKRBA_DB
	Addr   string // OSKRBA_ADDR
	// Auth enables bearer tokens on the blob API. The signing key is
	// OSKRBA_JWT_SECRET, or one generated and kept in the database.
	Auth      bool   // OSKRBA_AUTH
	JWTSecret string // OSKRBA_JWT_SECRET

	// Client.
	LocalPath string // OSKRBA_LOCAL
	// RemoteURL is the blob API base URL. Empty keeps the state only in
	// local storage.
	RemoteURL string        // OSKRBA_REMOTE_URL
	Token     string        // OSKRBA_TOKEN
	Timeout   time.Duration // OSKRBA_TIMEOUT

	// Sync channel.
	RedisAddr     string // OSKRBA_REDIS_ADDR
	RedisPassword string // OSKRBA_REDIS_PASSWORD
	RedisDB       int    // OSKRBA_REDIS_DB
	AMQPURL       string // OSKRBA_AMQP_URL
	Channel       string // OSKRBA_CHANNEL

	LogPath string // OSKRBA_LOG
	Debug   bool   // OSKRBA_DEBUG
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		DBPath:    "oskrba.sqlite3",
		Addr:      ":8080",
		LocalPath: "oskrba-local.sqlite3",
		RemoteURL: "http://localhost:8080",
		Timeout:   10 * time.Second,
		Channel:   syncchan.DefaultName,
	}
}

// Load reads envFile if it exists, then the OSKRBA_* environment variables.
// Variables already set in the environment win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("reading %s: %w", envFile, err)
		}
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, starting from Defaults.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	c := Defaults()
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid boolean %q", key, v))
				return
			}
			*dst = b
		}
	}

	str("OSKRBA_DB", &c.DBPath)
	str("OSKRBA_ADDR", &c.Addr)
	boolean("OSKRBA_AUTH", &c.Auth)
	str("OSKRBA_JWT_SECRET", &c.JWTSecret)
	str("OSKRBA_LOCAL", &c.LocalPath)
	str("OSKRBA_REMOTE_URL", &c.RemoteURL)
	str("OSKRBA_TOKEN", &c.Token)
	str("OSKRBA_REDIS_ADDR", &c.RedisAddr)
	str("OSKRBA_REDIS_PASSWORD", &c.RedisPassword)
	str("OSKRBA_AMQP_URL", &c.AMQPURL)
	str("OSKRBA_CHANNEL", &c.Channel)
	str("OSKRBA_LOG", &c.LogPath)
	boolean("OSKRBA_DEBUG", &c.Debug)

	if v, ok := lookup("OSKRBA_REDIS_DB"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs = append(errs, fmt.Errorf("OSKRBA_REDIS_DB: invalid database number %q", v))
		} else {
			c.RedisDB = n
		}
	}
	if v, ok := lookup("OSKRBA_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("OSKRBA_TIMEOUT: invalid duration %q", v))
		} else {
			c.Timeout = d
		}
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return c, nil
}
