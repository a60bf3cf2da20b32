// Package snapshot persists whole-deployment state as zstd-compressed JSON
// and archives settled weeks next to it.
package snapshot

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/afurourrego/dungeonflip/internal/chain"
	"github.com/afurourrego/dungeonflip/internal/fees"
	"github.com/afurourrego/dungeonflip/internal/progress"
	"github.com/afurourrego/dungeonflip/internal/rewards"
	"github.com/afurourrego/dungeonflip/internal/run"
	"github.com/afurourrego/dungeonflip/internal/token"
)

// Version is bumped whenever a state struct changes incompatibly.
const Version = 1

const (
	filePrefix = "snapshot_"
	fileSuffix = ".json.zst"
)

// ErrNoSnapshot is returned by Latest when the directory holds none.
var ErrNoSnapshot = errors.New("no snapshot found")

// Header is written as the first line of every snapshot so tools can
// inspect it without decoding the body.
type Header struct {
	Version int       `json:"version"`
	Seq     uint64    `json:"seq"`
	Week    uint64    `json:"week"`
	TakenAt time.Time `json:"taken_at"`
}

// World is the complete state of one deployment.
type World struct {
	Header   Header          `json:"header"`
	Accounts []chain.Account `json:"accounts"`
	Tokens   token.State     `json:"tokens"`
	Fees     fees.State      `json:"fees"`
	Ledger   progress.State  `json:"ledger"`
	Rewards  rewards.State   `json:"rewards"`
	Runs     run.State       `json:"runs"`
}

// FileName is the canonical name of a snapshot taken at event seq.
func FileName(seq uint64) string {
	return fmt.Sprintf("%s%012d%s", filePrefix, seq, fileSuffix)
}

// Write stores w at path. The file is written beside the target and renamed
// into place so a crash never leaves a truncated snapshot.
func Write(path string, w World) error {
	if w.Header.Version == 0 {
		w.Header.Version = Version
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := writeCompressed(tmp, w.Header, w); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Read loads a snapshot written by Write.
func Read(path string) (World, error) {
	var w World
	if err := readCompressed(path, &w); err != nil {
		return w, err
	}
	if w.Header.Version != Version {
		return w, fmt.Errorf("snapshot %s: unsupported version %d", filepath.Base(path), w.Header.Version)
	}
	return w, nil
}

// ReadHeader decodes only the header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

// List returns snapshot paths in dir ordered by seq, oldest first.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	type item struct {
		seq  uint64
		path string
	}
	var items []item
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		seq, err := strconv.ParseUint(strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix), 10, 64)
		if err != nil {
			continue
		}
		items = append(items, item{seq: seq, path: filepath.Join(dir, name)})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].seq < items[j].seq })
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.path
	}
	return out, nil
}

// Latest returns the newest snapshot in dir.
func Latest(dir string) (string, World, error) {
	paths, err := List(dir)
	if err != nil {
		return "", World{}, err
	}
	if len(paths) == 0 {
		return "", World{}, ErrNoSnapshot
	}
	path := paths[len(paths)-1]
	w, err := Read(path)
	return path, w, err
}

// Prune keeps the newest keep snapshots in dir and removes the rest.
func Prune(dir string, keep int) (int, error) {
	paths, err := List(dir)
	if err != nil || len(paths) <= keep {
		return 0, err
	}
	removed := 0
	for _, p := range paths[:len(paths)-keep] {
		if err := os.Remove(p); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func writeCompressed(path string, header any, body any) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(header)
	if err != nil {
		return err
	}
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := json.NewEncoder(bw).Encode(body); err != nil {
		return fmt.Errorf("json encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return enc.Close()
}

func readCompressed(path string, body any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	// Header line is repeated inside the body.
	if _, err := br.ReadBytes('\n'); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if err := json.NewDecoder(br).Decode(body); err != nil {
		return fmt.Errorf("json decode: %w", err)
	}
	return nil
}
