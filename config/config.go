package config

import (
	"os"

	postgres_wrapper "github.com/evergrid/creditbook/pkg/infra/postgres"
	redis_wrapper "github.com/evergrid/creditbook/pkg/infra/redis"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type MarketConfig struct {
	ScanWindow      uint64 `yaml:"scan_window"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

type JournalConfig struct {
	FlushIntervalMiliseconds int64 `yaml:"flush_interval_ms"`
}

type AppConfig struct {
	ServiceName    string                           `yaml:"service_name"`
	CustodyAccount string                           `yaml:"custody_account"`
	Server         *ServerConfig                    `yaml:"server"`
	Market         *MarketConfig                    `yaml:"market"`
	Journal        *JournalConfig                   `yaml:"journal"`
	LedgerDB       *postgres_wrapper.PostgresConfig `yaml:"ledger_db"`
	Redis          *redis_wrapper.RedisConfig       `yaml:"redis"`
}

// Load load config from file and environment variables.
func Load(filePath string) (*AppConfig, error) {
	if len(filePath) == 0 {
		filePath = os.Getenv("CONFIG_FILE")
	}

	fields := []interface{}{
		"func",
		"config.readFromFile",
		"filePath",
		filePath,
	}

	sugar := zap.S().With(fields...)

	sugar.Debug("Load config...")
	zap.S().Debugf("CONFIG_FILE=%v", filePath)

	configBytes, err := os.ReadFile(filePath)
	if err != nil {
		sugar.Error("Failed to load config file")
		return nil, err
	}
	configBytes = []byte(os.ExpandEnv(string(configBytes)))

	cfg := &AppConfig{}

	err = yaml.Unmarshal(configBytes, cfg)
	if err != nil {
		sugar.Error("Failed to parse config file")
		return nil, err
	}

	zap.S().Debugf("config: %+v", cfg)

	return cfg, nil
}
