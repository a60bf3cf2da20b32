// Package daemon owns a running node: the journal, the wired world and
// the HTTP server in front of it.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/afurourrego/dungeonflip/internal/api"
	"github.com/afurourrego/dungeonflip/internal/config"
	"github.com/afurourrego/dungeonflip/internal/events"
	"github.com/afurourrego/dungeonflip/internal/store"
	"github.com/afurourrego/dungeonflip/internal/world"
)

// Module is one node. NewModule opens storage and restores state; Startup
// binds the listener.
type Module struct {
	cfg    config.Config
	store  *store.Store
	world  *world.World
	api    *api.Server
	logger *log.Logger

	httpServer *http.Server
	addr       net.Addr

	snapMu sync.Mutex
}

// NewModule opens the journal, builds the world and restores the newest
// snapshot. logOut receives every log line; nil means stderr.
func NewModule(cfg config.Config, logOut io.Writer) (*Module, error) {
	if logOut == nil {
		logOut = os.Stderr
	}
	logger := log.New(logOut, "[NODE] ", log.LstdFlags|log.LUTC)

	for _, dir := range []string{filepath.Dir(cfg.DBPath), cfg.SnapshotDir, cfg.ArchiveDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	opts, err := world.FromConfig(cfg)
	if err != nil {
		st.Close()
		return nil, err
	}
	opts.LogOutput = logOut
	opts.History = st
	opts.Sinks = []events.Sink{st}

	w, err := world.New(opts)
	if err != nil {
		st.Close()
		return nil, err
	}

	m := &Module{cfg: cfg, store: st, world: w, logger: logger}
	if err := m.restore(context.Background()); err != nil {
		st.Close()
		return nil, err
	}

	m.api, err = api.NewServer(w, api.Options{
		Journal:        st,
		AdminToken:     cfg.AdminToken,
		DevFaucet:      cfg.DevFaucet,
		CORSOrigin:     cfg.CORSOrigin,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         log.New(logOut, "[API] ", log.LstdFlags|log.LUTC),
		OnWeekAdvanced: m.onWeekAdvanced,
	})
	if err != nil {
		st.Close()
		return nil, err
	}
	return m, nil
}

// restore loads the newest snapshot and lines the bus up with the journal
// so sequence numbers never repeat.
func (m *Module) restore(ctx context.Context) error {
	var loaded bool
	if m.cfg.SnapshotDir != "" {
		var err error
		if loaded, err = m.world.LoadLatest(m.cfg.SnapshotDir); err != nil {
			return err
		}
	}
	last, err := m.store.LastSeq(ctx)
	if err != nil {
		return fmt.Errorf("journal seq: %w", err)
	}
	seq := m.world.Bus.Seq()
	switch {
	case last > seq:
		m.logger.Printf("journal ahead of snapshot, events after seq=%d are not reflected in state: journal=%d", seq, last)
		m.world.Bus.SetSeq(last)
	case last < seq:
		m.logger.Printf("journal behind snapshot: journal=%d snapshot=%d", last, seq)
	}
	m.logger.Printf("state ready: restored=%t seq=%d week=%d", loaded, m.world.Bus.Seq(), m.world.Ledger.CurrentWeek())
	return nil
}

// World exposes the running world.
func (m *Module) World() *world.World { return m.world }

// Addr is the bound listener address once Startup returns.
func (m *Module) Addr() net.Addr { return m.addr }

// Startup begins listening in a goroutine. It returns when the socket is bound.
func (m *Module) Startup(ctx context.Context) error {
	m.httpServer = &http.Server{
		Addr:              m.cfg.ListenAddr,
		Handler:           m.api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	ln, err := net.Listen("tcp", m.cfg.ListenAddr)
	if err != nil {
		return err
	}
	m.addr = ln.Addr()
	go func() {
		if err := m.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Printf("serve failed: err=%v", err)
		}
	}()
	m.logger.Printf("listening: addr=%s", m.addr)
	return nil
}

// Shutdown stops the HTTP server, writes a final snapshot and closes the
// journal.
func (m *Module) Shutdown(ctx context.Context) error {
	var errs []error
	if m.httpServer != nil {
		if err := m.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if _, err := m.Snapshot(); err != nil {
		errs = append(errs, err)
	}
	if err := m.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close journal: %w", err))
	}
	return errors.Join(errs...)
}

// Snapshot writes the current state to the snapshot directory.
func (m *Module) Snapshot() (string, error) {
	if m.cfg.SnapshotDir == "" {
		return "", nil
	}
	m.snapMu.Lock()
	defer m.snapMu.Unlock()
	path, err := m.world.SaveSnapshot(m.cfg.SnapshotDir, m.cfg.SnapshotKeep)
	if err != nil {
		return "", err
	}
	m.logger.Printf("snapshot written: path=%s seq=%d", path, m.world.Bus.Seq())
	return path, nil
}

func (m *Module) onWeekAdvanced(week uint64) {
	if _, err := m.Snapshot(); err != nil {
		m.logger.Printf("snapshot after week advance failed: week=%d err=%v", week, err)
	}
}
