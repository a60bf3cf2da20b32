// Package simulate plays whole reward weeks in process: scripted players
// run adventurers against a fresh world on a manual clock, weeks are
// advanced and the resulting payouts are reported.
package simulate

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/afurourrego/dungeonflip/internal/chain"
	"github.com/afurourrego/dungeonflip/internal/config"
	"github.com/afurourrego/dungeonflip/internal/engine"
)

// PlayerSpec describes one simulated wallet.
type PlayerSpec struct {
	Name        string `yaml:"name"`
	Address     string `yaml:"address"`
	Adventurers int    `yaml:"adventurers"`
	RunsPerWeek int    `yaml:"runs_per_week"`
	// Strategy is a path to a decide(run) script, relative to the
	// scenario file. Empty uses the built-in strategy.
	Strategy string `yaml:"strategy"`

	script string
}

// Scenario is a simulation plan.
type Scenario struct {
	Seed            string        `yaml:"seed"`
	Weeks           int           `yaml:"weeks"`
	EntryFee        string        `yaml:"entry_fee"`
	TokenDecimals   *int          `yaml:"token_decimals"`
	MaxRooms        uint64        `yaml:"max_rooms"`
	CardsPerRoom    uint8         `yaml:"cards_per_room"`
	MinWeekInterval time.Duration `yaml:"min_week_interval"`
	Players         []PlayerSpec  `yaml:"players"`
}

// LoadScenario reads a YAML scenario. Strategy paths resolve against the
// scenario's directory.
func LoadScenario(path string) (Scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("read scenario: %w", err)
	}
	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return Scenario{}, fmt.Errorf("%s: %w", path, err)
	}
	base := filepath.Dir(path)
	for i := range sc.Players {
		p := &sc.Players[i]
		if p.Strategy == "" {
			continue
		}
		sp := p.Strategy
		if !filepath.IsAbs(sp) {
			sp = filepath.Join(base, sp)
		}
		b, err := os.ReadFile(sp)
		if err != nil {
			return Scenario{}, fmt.Errorf("player %s strategy: %w", p.Name, err)
		}
		p.script = string(b)
	}
	return sc, sc.Validate()
}

// WithScript sets a player's strategy source directly.
func (p PlayerSpec) WithScript(src string) PlayerSpec {
	p.script = src
	return p
}

// Validate rejects unusable scenarios.
func (sc Scenario) Validate() error {
	var errs []error
	if sc.Weeks <= 0 {
		errs = append(errs, errors.New("weeks must be positive"))
	}
	if len(sc.Players) == 0 {
		errs = append(errs, errors.New("at least one player is required"))
	}
	seen := map[chain.Address]string{}
	for i, p := range sc.Players {
		if strings.TrimSpace(p.Name) == "" {
			errs = append(errs, fmt.Errorf("players[%d]: name is required", i))
			continue
		}
		if p.Adventurers <= 0 || p.RunsPerWeek < 0 {
			errs = append(errs, fmt.Errorf("player %s: adventurers must be positive and runs_per_week non-negative", p.Name))
		}
		addr, err := p.address()
		if err != nil {
			errs = append(errs, fmt.Errorf("player %s: %w", p.Name, err))
			continue
		}
		if other, dup := seen[addr]; dup {
			errs = append(errs, fmt.Errorf("player %s shares an address with %s", p.Name, other))
		}
		seen[addr] = p.Name
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid scenario: %w", err)
	}
	return nil
}

// address is the configured address, or one derived from the name.
func (p PlayerSpec) address() (chain.Address, error) {
	if p.Address != "" {
		return chain.ParseAddress(p.Address)
	}
	h := engine.Keccak256([]byte("player:" + p.Name))
	return chain.ParseAddress(fmt.Sprintf("0x%x", h[12:]))
}

// config applies the scenario's overrides on top of the node defaults.
// Nothing is written to disk during a simulation.
func (sc Scenario) config() (config.Config, error) {
	cfg := config.Defaults()
	cfg.ArchiveDir = ""
	cfg.SnapshotDir = ""
	if sc.EntryFee != "" {
		cfg.EntryFee = sc.EntryFee
	}
	if sc.TokenDecimals != nil {
		cfg.TokenDecimals = *sc.TokenDecimals
	}
	if sc.MaxRooms > 0 {
		cfg.MaxRooms = sc.MaxRooms
	}
	if sc.CardsPerRoom > 0 {
		cfg.CardsPerRoom = sc.CardsPerRoom
	}
	if sc.MinWeekInterval > 0 {
		cfg.MinWeekInterval = sc.MinWeekInterval
	}
	if sc.Seed != "" {
		cfg.EntropySeed = engine.Keccak256([]byte(sc.Seed)).Hex()
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
