package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type DatabaseConfig struct {
	URI  string `mapstructure:"uri"`
	Name string `mapstructure:"name"`
}

// RedisConfig configures the optional settings cache. An empty Address disables it.
type RedisConfig struct {
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// RegionConfig describes one deployment of the object store.
// Endpoint may be empty for providers that resolve endpoints from the region code.
type RegionConfig struct {
	Code     string `mapstructure:"code"`
	Endpoint string `mapstructure:"endpoint"`
	Label    string `mapstructure:"label"`
}

type StorageConfig struct {
	Driver          string         `mapstructure:"driver"` // "aws" or "minio"
	Bucket          string         `mapstructure:"bucket"`
	Domain          string         `mapstructure:"domain"` // public base URL handed to clients
	AccessKeyID     string         `mapstructure:"access_key_id"`
	SecretAccessKey string         `mapstructure:"secret_access_key"`
	Region          string         `mapstructure:"region"`  // operator-configured region
	Regions         []RegionConfig `mapstructure:"regions"` // failover order
	UseSSL          bool           `mapstructure:"use_ssl"`
	CredentialTTL   time.Duration  `mapstructure:"credential_ttl"`
	DeleteTimeout   time.Duration  `mapstructure:"delete_timeout"`
}

// JWTConfig defines JWT specific configuration
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

// AuthConfig lists the accounts that are promoted to admin when they register.
type AuthConfig struct {
	AdminEmails []string `mapstructure:"admin_emails"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// defaultRegions mirrors the zones the store exposes; order is the failover order.
var defaultRegions = []map[string]interface{}{
	{"code": "z0", "label": "east-china"},
	{"code": "z1", "label": "north-china"},
	{"code": "z2", "label": "south-china"},
	{"code": "na0", "label": "north-america"},
	{"code": "as0", "label": "southeast-asia"},
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// storage.bucket -> STORAGE_BUCKET
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	v.SetDefault("server.address", ":8080")
	v.SetDefault("database.uri", "mongodb://localhost:27017")
	v.SetDefault("database.name", "picmark")
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "30s")
	v.SetDefault("storage.driver", "aws")
	v.SetDefault("storage.region", "z2")
	v.SetDefault("storage.regions", defaultRegions)
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.credential_ttl", "3600s")
	v.SetDefault("storage.delete_timeout", "5s")
	v.SetDefault("jwt.expiration", "24h")
	v.SetDefault("auth.admin_emails", []string{})
	v.SetDefault("log.level", "info")

	// AutomaticEnv only applies to keys viper already knows about.
	for _, key := range []string{"storage.bucket", "storage.domain", "storage.access_key_id", "storage.secret_access_key", "jwt.secret", "redis.password", "auth.admin_emails"} {
		_ = v.BindEnv(key)
	}

	err = v.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// No file; defaults and env vars only.
		err = nil
	} else if err != nil {
		return
	}

	err = v.Unmarshal(&config)
	if err != nil {
		return
	}

	return config, nil
}
