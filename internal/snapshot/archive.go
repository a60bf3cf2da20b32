package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/afurourrego/dungeonflip/internal/rewards"
)

const historyFile = "history.json.zst"

// ArchiveMeta sits uncompressed next to each archived week.
type ArchiveMeta struct {
	Week       uint64 `json:"week"`
	TotalPrize uint64 `json:"total_prize"`
	Winners    int    `json:"winners"`
	History    string `json:"history"`
	CreatedAt  string `json:"created_at"`
}

// Archiver writes settled weeks into `dir/week_<NNN>/`.
type Archiver struct {
	dir string
	now func() time.Time
}

// NewArchiver returns an archiver rooted at dir.
func NewArchiver(dir string) *Archiver {
	return &Archiver{dir: dir, now: time.Now}
}

// Dir is the archive root.
func (a *Archiver) Dir() string { return a.dir }

// WeekDir is the directory holding one week's archive.
func (a *Archiver) WeekDir(week uint64) string {
	return filepath.Join(a.dir, fmt.Sprintf("week_%03d", week))
}

// ArchiveWeek writes h and its meta file. An existing archive is overwritten.
func (a *Archiver) ArchiveWeek(ctx context.Context, h rewards.WeekHistory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := a.WeekDir(h.WeekNumber)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("archive week %d: %w", h.WeekNumber, err)
	}
	path := filepath.Join(dir, historyFile)
	tmp := path + ".tmp"
	header := struct {
		Version int    `json:"version"`
		Week    uint64 `json:"week"`
	}{Version, h.WeekNumber}
	if err := writeCompressed(tmp, header, h); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("archive week %d: %w", h.WeekNumber, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("archive week %d: %w", h.WeekNumber, err)
	}

	meta := ArchiveMeta{
		Week:       h.WeekNumber,
		TotalPrize: h.TotalPrize,
		Winners:    len(h.Winners),
		History:    historyFile,
		CreatedAt:  a.now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644)
	}
	return nil
}

// ReadWeek loads an archived week.
func (a *Archiver) ReadWeek(week uint64) (rewards.WeekHistory, error) {
	var h rewards.WeekHistory
	if err := readCompressed(filepath.Join(a.WeekDir(week), historyFile), &h); err != nil {
		return h, fmt.Errorf("read archived week %d: %w", week, err)
	}
	return h, nil
}
