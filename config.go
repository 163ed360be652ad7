package sqlfrag

import (
	"fmt"
	"os"

	"github.com/go-pkgz/lgr"
	"gopkg.in/yaml.v3"

	"github.com/canonical/sqlfrag/engine"
	"github.com/canonical/sqlfrag/engine/sqldb"
	"github.com/canonical/sqlfrag/engine/sqlite"
)

// Engine names accepted in Config.Engine.
const (
	// EngineSQLite opens databases with the built in SQLite engine.
	EngineSQLite = "sqlite"
	// EngineSQL opens databases through a database/sql driver named by
	// Config.Driver. The driver must be registered by the program.
	EngineSQL = "sql"
)

const (
	engineEnv = "SQLFRAG_ENGINE"
	driverEnv = "SQLFRAG_DRIVER"
	dsnEnv    = "SQLFRAG_DSN"
)

// Config describes a database to open.
type Config struct {
	Engine      string `yaml:"engine"`
	Driver      string `yaml:"driver"`
	DSN         string `yaml:"dsn"`
	AutoRelease bool   `yaml:"auto_release"`
}

// LoadConfig reads a YAML configuration file. An empty fname skips the
// file. SQLFRAG_ENGINE, SQLFRAG_DRIVER and SQLFRAG_DSN override the values
// read, and the engine defaults to EngineSQLite.
func LoadConfig(fname string) (*Config, error) {
	cfg := &Config{}
	if fname != "" {
		data, err := os.ReadFile(fname) // nolint
		if err != nil {
			return nil, fmt.Errorf("can't read config %s: %w", fname, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("can't parse config %s: %w", fname, err)
		}
	}
	if v := os.Getenv(engineEnv); v != "" {
		cfg.Engine = v
	}
	if v := os.Getenv(driverEnv); v != "" {
		cfg.Driver = v
	}
	if v := os.Getenv(dsnEnv); v != "" {
		cfg.DSN = v
	}
	if cfg.Engine == "" {
		cfg.Engine = EngineSQLite
	}
	return cfg, nil
}

// NewEngine returns the engine selected by the configuration.
func (cfg *Config) NewEngine(logger lgr.L) (engine.Engine, error) {
	switch cfg.Engine {
	case EngineSQLite, "":
		return sqlite.New(), nil
	case EngineSQL:
		if cfg.Driver == "" {
			return nil, fmt.Errorf("engine %q requires a driver", cfg.Engine)
		}
		return sqldb.New(cfg.Driver).WithLogger(logger), nil
	}
	return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
}

// OpenConfig opens the database described by cfg.
func OpenConfig(cfg *Config, opts ...Option) (*DB, error) {
	probe := &DB{logger: lgr.NoOp}
	for _, opt := range opts {
		opt(probe)
	}
	eng, err := cfg.NewEngine(probe.logger)
	if err != nil {
		return nil, err
	}
	if cfg.AutoRelease {
		opts = append(opts, WithAutoRelease())
	}
	return Open(eng, cfg.DSN, opts...)
}
