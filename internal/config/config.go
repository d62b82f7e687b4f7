package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"raffle/internal/logger"
)

// Configuration is read from the process environment, optionally seeded from a .env file.
type Configuration struct {
	DatabasePath string `env:"RAFFLE_DB_PATH" envDefault:"persistent.db"`
	Operator     string `env:"RAFFLE_OPERATOR" envDefault:"operator"`

	WinnerPct   uint64 `env:"RAFFLE_WINNER_PCT" envDefault:"85"`
	CreatorPct  uint64 `env:"RAFFLE_CREATOR_PCT" envDefault:"5"`
	OperatorPct uint64 `env:"RAFFLE_OPERATOR_PCT" envDefault:"10"`

	OracleInterval time.Duration `env:"RAFFLE_ORACLE_INTERVAL" envDefault:"5s"`
	RevealDelay    time.Duration `env:"RAFFLE_REVEAL_DELAY" envDefault:"0s"`

	LogLevel     string `env:"RAFFLE_LOG_LEVEL" envDefault:"info"`
	LogFile      string `env:"RAFFLE_LOG_FILE"`
	LogErrorFile string `env:"RAFFLE_LOG_ERROR_FILE"`
	LogConsole   bool   `env:"RAFFLE_LOG_CONSOLE" envDefault:"true"`
}

// Load reads the given .env files (a missing file is not an error) and parses the environment.
func Load(files ...string) (Configuration, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Configuration{}, fmt.Errorf("load %s: %w", file, err)
		}
	}

	var configuration Configuration
	if err := env.Parse(&configuration); err != nil {
		return Configuration{}, fmt.Errorf("parse env: %w", err)
	}

	if configuration.OracleInterval <= 0 {
		return Configuration{}, fmt.Errorf("parse env: RAFFLE_ORACLE_INTERVAL must be positive, got %s", configuration.OracleInterval)
	}

	return configuration, nil
}

func (c Configuration) Logger() logger.Configuration {
	return logger.Configuration{
		LogFile:   c.LogFile,
		ErrorFile: c.LogErrorFile,
		Level:     c.LogLevel,
		Console:   c.LogConsole,
	}
}
