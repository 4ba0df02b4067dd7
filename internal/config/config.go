package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации сервиса.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Tilesets  TilesetConfig   `yaml:"tilesets"`
	Cache     CacheConfig     `yaml:"cache"`
	EventBus  EventBusConfig  `yaml:"eventbus"`
	Feed      FeedConfig      `yaml:"feed"`
	Auth      AuthConfig      `yaml:"auth"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Generator GeneratorConfig `yaml:"generator"`
}

type ServerConfig struct {
	NodeID   string `yaml:"node_id"`
	RESTPort int    `yaml:"rest_port"`
	FeedPort int    `yaml:"feed_port"`
	GRPCPort int    `yaml:"grpc_port"`
	LogLevel string `yaml:"log_level"`
}

type StorageConfig struct {
	DataPath     string `yaml:"data_path"`
	SaveEverySec int    `yaml:"save_every_seconds"`
}

// TilesetConfig выбирает источник определений тайлов.
type TilesetConfig struct {
	Backend string      `yaml:"backend"` // memory | json | maria | mongo
	JSONDir string      `yaml:"json_dir"`
	Maria   MariaConfig `yaml:"maria"`
	Mongo   MongoConfig `yaml:"mongo"`
}

type MariaConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type MongoConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type CacheConfig struct {
	Enabled       bool          `yaml:"enabled"`
	RedisURL      string        `yaml:"redis_url"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	TTL           time.Duration `yaml:"ttl"`
	NATSURL       string        `yaml:"nats_url"`
	Subject       string        `yaml:"subject"`
}

type EventBusConfig struct {
	Backend   string `yaml:"backend"` // memory | jetstream
	URL       string `yaml:"url"`
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
	Buffer    int    `yaml:"buffer"`
}

type FeedConfig struct {
	Enabled      bool `yaml:"enabled"`
	FlushEvery   int  `yaml:"flush_every_ms"`
	BatchSize    int  `yaml:"batch_size"`
	RequireToken bool `yaml:"require_token"` // подписка только с JWT
}

type AuthConfig struct {
	JWTSecret string       `yaml:"jwt_secret"` // base64, минимум 32 байта
	Users     []UserConfig `yaml:"users"`
}

// UserConfig учётная запись, создаваемая при старте
type UserConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Admin    bool   `yaml:"admin"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

type GeneratorConfig struct {
	Seed       int64   `yaml:"seed"`
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	NoiseScale float64 `yaml:"noise_scale"`
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "AUTOTILE_REST_PORT", 8088)
}

// GetFeedPort возвращает KCP порт ленты перерисовок
func (s *ServerConfig) GetFeedPort() int {
	return getPortWithEnvFallback(s.FeedPort, "AUTOTILE_FEED_PORT", 7780)
}

// GetGRPCPort возвращает порт gRPC health сервиса
func (s *ServerConfig) GetGRPCPort() int {
	return getPortWithEnvFallback(s.GRPCPort, "AUTOTILE_GRPC_PORT", 9090)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Default возвращает конфигурацию для локального запуска без внешних сервисов.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.NodeID == "" {
		if host, err := os.Hostname(); err == nil {
			c.Server.NodeID = host
		} else {
			c.Server.NodeID = "autotile-node"
		}
	}
	if c.Storage.DataPath == "" {
		c.Storage.DataPath = "data"
	}
	if c.Storage.SaveEverySec == 0 {
		c.Storage.SaveEverySec = 30
	}
	if c.Tilesets.Backend == "" {
		c.Tilesets.Backend = "memory"
	}
	if c.Tilesets.JSONDir == "" {
		c.Tilesets.JSONDir = "assets/tilesets"
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = 30 * time.Second
	}
	if c.Cache.Subject == "" {
		c.Cache.Subject = "autotile.cache.invalidation"
	}
	if c.EventBus.Backend == "" {
		c.EventBus.Backend = "memory"
	}
	if c.EventBus.Buffer == 0 {
		c.EventBus.Buffer = 1024
	}
	if c.EventBus.Retention == 0 {
		c.EventBus.Retention = 24
	}
	if c.Feed.FlushEvery == 0 {
		c.Feed.FlushEvery = 50
	}
	if c.Feed.BatchSize == 0 {
		c.Feed.BatchSize = 256
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "autotile"
	}
	if c.Generator.Width == 0 {
		c.Generator.Width = 64
	}
	if c.Generator.Height == 0 {
		c.Generator.Height = 64
	}
	if c.Generator.NoiseScale == 0 {
		c.Generator.NoiseScale = 0.08
	}
}

// Load читает YAML файл конфигурации.
// Если path == "", пытается прочитать из ENV AUTOTILE_CONFIG, иначе
// возвращает конфигурацию по умолчанию.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("AUTOTILE_CONFIG")
		if path == "" {
			return Default(), nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return &cfg, nil
}
