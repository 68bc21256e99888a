package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type fileConfig struct {
	Port        int    `yaml:"port"`
	Environment string `yaml:"environment"`
	SentryDSN   string `yaml:"sentry_dsn"`
	Database    struct {
		Backend string `yaml:"backend"`
		DSN     string `yaml:"dsn"`
	} `yaml:"database"`
	RedisURL  string `yaml:"redis_url"`
	JWTSecret string `yaml:"jwt_secret"`
	Storage   struct {
		Backend         string `yaml:"backend"`
		Dir             string `yaml:"dir"`
		Endpoint        string `yaml:"endpoint"`
		AccessKeyID     string `yaml:"access_key_id"`
		SecretAccessKey string `yaml:"secret_access_key"`
		Bucket          string `yaml:"bucket"`
		Region          string `yaml:"region"`
	} `yaml:"storage"`
	Stream struct {
		DefaultURL         string `yaml:"default_url"`
		ConnectTimeout     string `yaml:"connect_timeout"`
		StallThreshold     string `yaml:"stall_threshold"`
		StallCheckInterval string `yaml:"stall_check_interval"`
		SeedFile           string `yaml:"config_file"`
	} `yaml:"stream"`
}

// LoadFile applies the values present in a YAML file on top of c. Missing keys keep c's values.
func LoadFile(path string, c *Config) error {
	data, readFileErr := os.ReadFile(path)
	if readFileErr != nil {
		return fmt.Errorf("failed to read config file: %w", readFileErr)
	}

	var f fileConfig
	if unmarshalErr := yaml.Unmarshal(data, &f); unmarshalErr != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, unmarshalErr)
	}

	if f.Port != 0 {
		c.Port = f.Port
	}
	overlay(&c.Environment, f.Environment)
	overlay(&c.SentryDSN, f.SentryDSN)
	overlay(&c.DBBackend, f.Database.Backend)
	overlay(&c.DBDSN, f.Database.DSN)
	overlay(&c.RedisURL, f.RedisURL)
	overlay(&c.JWTSecret, f.JWTSecret)

	overlay(&c.Storage.Backend, f.Storage.Backend)
	overlay(&c.Storage.Dir, f.Storage.Dir)
	overlay(&c.Storage.Endpoint, f.Storage.Endpoint)
	overlay(&c.Storage.AccessKeyID, f.Storage.AccessKeyID)
	overlay(&c.Storage.SecretAccessKey, f.Storage.SecretAccessKey)
	overlay(&c.Storage.Bucket, f.Storage.Bucket)
	overlay(&c.Storage.Region, f.Storage.Region)

	overlay(&c.Stream.DefaultURL, f.Stream.DefaultURL)
	overlay(&c.Stream.SeedFile, f.Stream.SeedFile)
	for _, d := range []struct {
		dst *time.Duration
		raw string
		key string
	}{
		{&c.Stream.ConnectTimeout, f.Stream.ConnectTimeout, "stream.connect_timeout"},
		{&c.Stream.StallThreshold, f.Stream.StallThreshold, "stream.stall_threshold"},
		{&c.Stream.StallCheckInterval, f.Stream.StallCheckInterval, "stream.stall_check_interval"},
	} {
		if d.raw == "" {
			continue
		}
		parsed, parseErr := time.ParseDuration(d.raw)
		if parseErr != nil {
			return fmt.Errorf("invalid %s in %s: %w", d.key, path, parseErr)
		}
		*d.dst = parsed
	}

	return nil
}

func overlay(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}
