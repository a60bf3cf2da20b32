package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dungeon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	t.Setenv(PathEnv, "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)

	r, err := cfg.Resolve()
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000_000_000_000), r.EntryFee)
	assert.Equal(t, 18, r.Units.Decimals())
}

func TestYAMLThenEnv(t *testing.T) {
	path := writeYAML(t, `
listen_addr: 0.0.0.0:9000
entry_fee: "2"
token_decimals: 2
min_week_interval: 1h
dev_faucet: true
addresses:
  owner: "0x00000000000000000000000000000000000000b0"
`)
	t.Setenv(PathEnv, path)
	t.Setenv("DUNGEON_LISTEN_ADDR", "127.0.0.1:9100")
	t.Setenv("DUNGEON_ADDR_REWARDS", "0x00000000000000000000000000000000000000c3")
	t.Setenv("DUNGEON_ADMIN_TOKEN", "s3cret")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9100", cfg.ListenAddr, "env wins over yaml")
	assert.Equal(t, time.Hour, cfg.MinWeekInterval)
	assert.True(t, cfg.DevFaucet)
	assert.Equal(t, "s3cret", cfg.AdminToken)
	assert.Equal(t, "data/dungeon.db", cfg.DBPath, "unset keys keep defaults")

	r, err := cfg.Resolve()
	require.NoError(t, err)
	assert.Equal(t, uint64(200), r.EntryFee)
	assert.Equal(t, "0x00000000000000000000000000000000000000b0", r.Owner.String())
	assert.Equal(t, "0x00000000000000000000000000000000000000c3", r.Rewards.String())
}

func TestExplicitPathOverridesEnv(t *testing.T) {
	t.Setenv(PathEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	path := writeYAML(t, "max_rooms: 12\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), cfg.MaxRooms)
}

func TestLoadErrors(t *testing.T) {
	t.Setenv(PathEnv, "")

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")

	_, err = Load(writeYAML(t, "listen_addr: [unclosed\n"))
	assert.Error(t, err)

	t.Setenv("DUNGEON_MAX_ROOMS", "many")
	_, err = Load("")
	assert.ErrorContains(t, err, "parse env")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty listen", func(c *Config) { c.ListenAddr = " " }, "listen_addr"},
		{"zero rooms", func(c *Config) { c.MaxRooms = 0 }, "max_rooms"},
		{"zero cards", func(c *Config) { c.CardsPerRoom = 0 }, "cards_per_room"},
		{"zero interval", func(c *Config) { c.MinWeekInterval = 0 }, "min_week_interval"},
		{"zero fee", func(c *Config) { c.EntryFee = "0" }, "entry_fee must be positive"},
		{"bad fee", func(c *Config) { c.EntryFee = "abc" }, "entry_fee"},
		{"too precise fee", func(c *Config) { c.TokenDecimals = 2; c.EntryFee = "0.001" }, "entry_fee"},
		{"bad decimals", func(c *Config) { c.TokenDecimals = 40 }, "token_decimals"},
		{"bad owner", func(c *Config) { c.Addresses.Owner = "0x12" }, "addresses.owner"},
		{"zero address", func(c *Config) { c.Addresses.Fees = "0x0000000000000000000000000000000000000000" }, "zero address"},
		{"duplicate", func(c *Config) { c.Addresses.Ledger = c.Addresses.Fees }, "addresses.ledger duplicates addresses.fees"},
		{"bad seed", func(c *Config) { c.EntropySeed = "0xabc" }, "entropy_seed"},
		{"negative keep", func(c *Config) { c.SnapshotKeep = -1 }, "snapshot_keep"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
