// Package config defines environment configuration structs and loaders.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type AppConfig struct {
	SweepEnvConfig
	StoreEnvConfig
	RedisEnvConfig
	EmbedServiceEnvConfig
	ServerEnvConfig
	Environment string `env:"ENVIRONMENT" envDefault:"dev"`
}

func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SweepEnvConfig selects the dataset, kernel and grid of a sweep.
type SweepEnvConfig struct {
	Dataset         string        `env:"SWEEP_DATASET" envDefault:"swiss_roll"`
	DatasetPath     string        `env:"SWEEP_DATASET_PATH"`
	SyntheticPoints int           `env:"SWEEP_SYNTHETIC_POINTS" envDefault:"500"`
	Scaling         string        `env:"SWEEP_SCALING" envDefault:"none"`
	Kernel          string        `env:"SWEEP_KERNEL" envDefault:"mds"`
	GridFile        string        `env:"SWEEP_GRID_FILE"`
	Metrics         []string      `env:"SWEEP_METRICS" envDefault:"euclidean" envSeparator:","`
	Objectives      []string      `env:"SWEEP_OBJECTIVES" envSeparator:","`
	KMin            int           `env:"SWEEP_K_MIN" envDefault:"2"`
	KMax            int           `env:"SWEEP_K_MAX" envDefault:"5"`
	GeodesicStress  bool          `env:"SWEEP_GEODESIC_STRESS" envDefault:"false"`
	CheckpointSize  int           `env:"SWEEP_CHECKPOINT_SIZE" envDefault:"10"`
	Workers         int           `env:"SWEEP_WORKERS" envDefault:"0"`
	Seed            uint64        `env:"SWEEP_SEED" envDefault:"0"`
	ReportPath      string        `env:"SWEEP_REPORT_PATH"`
	Timeout         time.Duration `env:"SWEEP_TIMEOUT" envDefault:"0s"`
}

// StoreEnvConfig locates the result databases.
type StoreEnvConfig struct {
	StoreDir string `env:"STORE_DIR" envDefault:"results"`
}

// RedisEnvConfig configures the optional progress publisher.
type RedisEnvConfig struct {
	RedisEnabled     bool          `env:"REDIS_ENABLED" envDefault:"false"`
	RedisHost        string        `env:"REDIS_HOST" envDefault:"127.0.0.1"`
	RedisPort        int           `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword    string        `env:"REDIS_PASSWORD"`
	RedisDB          int           `env:"REDIS_DB" envDefault:"0"`
	RedisUsername    string        `env:"REDIS_USERNAME"`
	RedisKeyPrefix   string        `env:"REDIS_KEY_PREFIX" envDefault:"drsweep"`
	RedisProgressTTL time.Duration `env:"REDIS_PROGRESS_TTL" envDefault:"24h"`
}

// EmbedServiceEnvConfig points the remote kernel at an embedding service.
type EmbedServiceEnvConfig struct {
	EmbedServiceURL      string        `env:"EMBED_SERVICE_URL" envDefault:"http://127.0.0.1:8090"`
	EmbedServiceKernel   string        `env:"EMBED_SERVICE_KERNEL" envDefault:"smacof"`
	EmbedServiceTimeout  time.Duration `env:"EMBED_SERVICE_TIMEOUT" envDefault:"60s"`
	EmbedServiceRetryMax int           `env:"EMBED_SERVICE_RETRY_MAX" envDefault:"3"`
}

// ServerEnvConfig configures the embedding service.
type ServerEnvConfig struct {
	Address       string `env:"SERVER_ADDRESS" envDefault:"127.0.0.1"`
	Port          int    `env:"SERVER_PORT" envDefault:"8090"`
	BodySizeLimit int    `env:"SERVER_BODY_LIMIT" envDefault:"67108864"`
}
