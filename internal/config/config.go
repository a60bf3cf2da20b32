// Package config loads deployment settings: built-in defaults, then an
// optional YAML file, then DUNGEON_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/afurourrego/dungeonflip/internal/chain"
	"github.com/afurourrego/dungeonflip/internal/engine"
	"github.com/afurourrego/dungeonflip/internal/run"
	"github.com/afurourrego/dungeonflip/internal/units"
)

// PathEnv names the variable holding the YAML file path.
const PathEnv = "DUNGEON_CONFIG"

// Addresses identifies the deployment's owner and components.
type Addresses struct {
	Owner     string `yaml:"owner"      env:"OWNER"`
	Fees      string `yaml:"fees"       env:"FEES"`
	Ledger    string `yaml:"ledger"     env:"LEDGER"`
	Rewards   string `yaml:"rewards"    env:"REWARDS"`
	RunEngine string `yaml:"run_engine" env:"RUN_ENGINE"`
}

// Config is the full deployment configuration.
type Config struct {
	ListenAddr      string        `yaml:"listen_addr"       env:"LISTEN_ADDR"`
	DBPath          string        `yaml:"db_path"           env:"DB_PATH"`
	SnapshotDir     string        `yaml:"snapshot_dir"      env:"SNAPSHOT_DIR"`
	ArchiveDir      string        `yaml:"archive_dir"       env:"ARCHIVE_DIR"`
	SnapshotKeep    int           `yaml:"snapshot_keep"     env:"SNAPSHOT_KEEP"`
	Addresses       Addresses     `yaml:"addresses"         envPrefix:"ADDR_"`
	EntryFee        string        `yaml:"entry_fee"         env:"ENTRY_FEE"`
	TokenDecimals   int           `yaml:"token_decimals"    env:"TOKEN_DECIMALS"`
	MaxRooms        uint64        `yaml:"max_rooms"         env:"MAX_ROOMS"`
	CardsPerRoom    uint8         `yaml:"cards_per_room"    env:"CARDS_PER_ROOM"`
	MinWeekInterval time.Duration `yaml:"min_week_interval" env:"MIN_WEEK_INTERVAL"`
	EntropySeed     string        `yaml:"entropy_seed"      env:"ENTROPY_SEED"`
	DevFaucet       bool          `yaml:"dev_faucet"        env:"DEV_FAUCET"`
	AdminToken      string        `yaml:"admin_token"       env:"ADMIN_TOKEN"`
	CORSOrigin      string        `yaml:"cors_origin"       env:"CORS_ORIGIN"`
	RequestTimeout  time.Duration `yaml:"request_timeout"   env:"REQUEST_TIMEOUT"`
}

// Defaults returns a configuration that runs a local development node.
func Defaults() Config {
	return Config{
		ListenAddr:   "127.0.0.1:8787",
		DBPath:       "data/dungeon.db",
		SnapshotDir:  "data/snapshots",
		ArchiveDir:   "data/archives",
		SnapshotKeep: 10,
		Addresses: Addresses{
			Owner:     "0x00000000000000000000000000000000000000a0",
			Fees:      "0x00000000000000000000000000000000000000f1",
			Ledger:    "0x00000000000000000000000000000000000000f2",
			Rewards:   "0x00000000000000000000000000000000000000f3",
			RunEngine: "0x00000000000000000000000000000000000000f4",
		},
		EntryFee:        "0.00001",
		TokenDecimals:   units.DefaultDecimals,
		MaxRooms:        run.DefaultMaxRooms,
		CardsPerRoom:    run.DefaultCardsPerRoom,
		MinWeekInterval: 7 * 24 * time.Hour,
		DevFaucet:       false,
		CORSOrigin:      "*",
		RequestTimeout:  30 * time.Second,
	}
}

// Load resolves the configuration. path overrides DUNGEON_CONFIG when set.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		path = os.Getenv(PathEnv)
	}
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "DUNGEON_"}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Resolved holds the parsed forms of the string-typed settings.
type Resolved struct {
	Owner     chain.Address
	Fees      chain.Address
	Ledger    chain.Address
	Rewards   chain.Address
	RunEngine chain.Address
	EntryFee  uint64
	Units     units.Converter
}

// Resolve parses addresses and the entry fee.
func (c Config) Resolve() (Resolved, error) {
	var r Resolved
	conv, err := units.New(c.TokenDecimals)
	if err != nil {
		return r, fmt.Errorf("token_decimals: %w", err)
	}
	r.Units = conv
	if r.EntryFee, err = conv.Parse(c.EntryFee); err != nil {
		return r, fmt.Errorf("entry_fee: %w", err)
	}
	fields := []struct {
		name string
		in   string
		out  *chain.Address
	}{
		{"addresses.owner", c.Addresses.Owner, &r.Owner},
		{"addresses.fees", c.Addresses.Fees, &r.Fees},
		{"addresses.ledger", c.Addresses.Ledger, &r.Ledger},
		{"addresses.rewards", c.Addresses.Rewards, &r.Rewards},
		{"addresses.run_engine", c.Addresses.RunEngine, &r.RunEngine},
	}
	for _, f := range fields {
		a, err := chain.ParseAddress(f.in)
		if err != nil {
			return r, fmt.Errorf("%s: %w", f.name, err)
		}
		if a.IsZero() {
			return r, fmt.Errorf("%s: zero address", f.name)
		}
		*f.out = a
	}
	return r, nil
}

// Validate rejects inconsistent settings.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ListenAddr) == "" {
		errs = append(errs, errors.New("listen_addr is required"))
	}
	if strings.TrimSpace(c.DBPath) == "" {
		errs = append(errs, errors.New("db_path is required"))
	}
	if c.MaxRooms == 0 {
		errs = append(errs, errors.New("max_rooms must be positive"))
	}
	if c.CardsPerRoom == 0 {
		errs = append(errs, errors.New("cards_per_room must be positive"))
	}
	if c.MinWeekInterval <= 0 {
		errs = append(errs, errors.New("min_week_interval must be positive"))
	}
	if c.SnapshotKeep < 0 {
		errs = append(errs, errors.New("snapshot_keep must not be negative"))
	}
	if c.EntropySeed != "" {
		if _, err := engine.ParseHash(c.EntropySeed); err != nil {
			errs = append(errs, fmt.Errorf("entropy_seed: %w", err))
		}
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout must be positive"))
	}
	r, err := c.Resolve()
	if err != nil {
		errs = append(errs, err)
	} else {
		if r.EntryFee == 0 {
			errs = append(errs, errors.New("entry_fee must be positive"))
		}
		seen := map[chain.Address]string{}
		for _, comp := range []struct {
			name string
			addr chain.Address
		}{{"fees", r.Fees}, {"ledger", r.Ledger}, {"rewards", r.Rewards}, {"run_engine", r.RunEngine}} {
			if other, dup := seen[comp.addr]; dup {
				errs = append(errs, fmt.Errorf("addresses.%s duplicates addresses.%s", comp.name, other))
			}
			seen[comp.addr] = comp.name
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
