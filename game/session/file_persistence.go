package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/wricardo/tank-tactics/game/engine"
)

var ErrInvalidMatchID = errors.New("invalid match ID")

const (
	snapshotExt = ".json"
	actionsExt  = ".actions.jsonl"
)

// FilePersistence implements MatchPersistence with one JSON snapshot file and
// one JSON lines action log per match
type FilePersistence struct {
	dir string

	// seqs holds the action seqs already on disk per match, loaded on the
	// first append
	mu   sync.Mutex
	seqs map[string]map[int64]struct{}
}

// NewFilePersistence creates a new file-based persistence layer
func NewFilePersistence(dir string) (*FilePersistence, error) {
	// Create matches directory if it doesn't exist
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create matches directory: %w", err)
	}

	return &FilePersistence{
		dir:  dir,
		seqs: make(map[string]map[int64]struct{}),
	}, nil
}

// SaveSnapshot writes the snapshot to a temp file and renames it over the
// previous one, so readers never see a half-written file
func (fp *FilePersistence) SaveSnapshot(ctx context.Context, snapshot engine.MatchSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateID(snapshot.ID); err != nil {
		return err
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	path := fp.snapshotPath(snapshot.ID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace snapshot file: %w", err)
	}

	return nil
}

// AppendActions appends one JSON line per entry that is not stored yet
func (fp *FilePersistence) AppendActions(ctx context.Context, matchID string, entries []engine.ActionLogEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateID(matchID); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()

	stored, err := fp.storedSeqs(ctx, matchID)
	if err != nil {
		return err
	}

	var (
		buf   bytes.Buffer
		added []int64
	)
	for _, e := range entries {
		if _, ok := stored[e.Seq]; ok || slices.Contains(added, e.Seq) {
			continue
		}
		line, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to marshal action %d: %w", e.Seq, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
		added = append(added, e.Seq)
	}
	if len(added) == 0 {
		return nil
	}

	f, err := os.OpenFile(fp.actionsPath(matchID), os.O_CREATE|os.O_APPEND|os.O_RDWR, 0644)
	if err != nil {
		return fmt.Errorf("failed to open action log: %w", err)
	}
	if err := trimTornTail(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to repair action log: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to append actions: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	for _, seq := range added {
		stored[seq] = struct{}{}
	}
	return nil
}

// storedSeqs returns the set of seqs in a match's log. Callers hold fp.mu.
func (fp *FilePersistence) storedSeqs(ctx context.Context, matchID string) (map[int64]struct{}, error) {
	if seqs, ok := fp.seqs[matchID]; ok {
		return seqs, nil
	}

	existing, err := fp.LoadActions(ctx, matchID)
	if err != nil {
		return nil, err
	}
	seqs := make(map[int64]struct{}, len(existing))
	for _, e := range existing {
		seqs[e.Seq] = struct{}{}
	}
	fp.seqs[matchID] = seqs
	return seqs, nil
}

// trimTornTail cuts a partial last line, left by an interrupted append, so
// the next entry starts on a line of its own
func trimTornTail(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size == 0 {
		return nil
	}

	last := make([]byte, 1)
	if _, err := f.ReadAt(last, size-1); err != nil {
		return err
	}
	if last[0] == '\n' {
		return nil
	}

	const chunk = 4096
	buf := make([]byte, chunk)
	end := size - 1
	for end > 0 {
		start := max(0, end-chunk)
		n := end - start
		if _, err := f.ReadAt(buf[:n], start); err != nil {
			return err
		}
		if i := bytes.LastIndexByte(buf[:n], '\n'); i >= 0 {
			return f.Truncate(start + int64(i) + 1)
		}
		end = start
	}
	return f.Truncate(0)
}

// Load retrieves a snapshot from its JSON file
func (fp *FilePersistence) Load(ctx context.Context, id string) (*engine.MatchSnapshot, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fp.snapshotPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var snapshot engine.MatchSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &snapshot, nil
}

// LoadActions reads the action log. A torn final line, left by a crash in
// the middle of an append, is ignored.
func (fp *FilePersistence) LoadActions(ctx context.Context, id string) ([]engine.ActionLogEntry, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	f, err := os.Open(fp.actionsPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open action log: %w", err)
	}
	defer f.Close()

	var (
		entries []engine.ActionLogEntry
		badLine int
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if badLine != 0 {
			return nil, fmt.Errorf("corrupt action log %s at line %d", id, badLine)
		}
		var e engine.ActionLogEntry
		if err := json.Unmarshal(line, &e); err != nil {
			badLine = lineNo
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read action log: %w", err)
	}

	return dedupeActions(entries), nil
}

// Delete removes the snapshot and action log of a match
func (fp *FilePersistence) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if !fp.Exists(ctx, id) {
		return ErrSessionNotFound
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()
	delete(fp.seqs, id)

	if err := os.Remove(fp.snapshotPath(id)); err != nil {
		return fmt.Errorf("failed to remove snapshot file: %w", err)
	}
	if err := os.Remove(fp.actionsPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove action log: %w", err)
	}

	return nil
}

// ListAll returns all persisted match IDs
func (fp *FilePersistence) ListAll(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(fp.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read matches directory: %w", err)
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if strings.HasSuffix(name, snapshotExt) {
			ids = append(ids, strings.TrimSuffix(name, snapshotExt))
		}
	}

	return ids, nil
}

// Exists checks if a snapshot file exists
func (fp *FilePersistence) Exists(ctx context.Context, id string) bool {
	if validateID(id) != nil {
		return false
	}
	_, err := os.Stat(fp.snapshotPath(id))
	return err == nil
}

// Dir returns the directory holding the match files
func (fp *FilePersistence) Dir() string {
	return fp.dir
}

func (fp *FilePersistence) snapshotPath(id string) string {
	return filepath.Join(fp.dir, id+snapshotExt)
}

func (fp *FilePersistence) actionsPath(id string) string {
	return filepath.Join(fp.dir, id+actionsExt)
}

// validateID keeps ids inside the storage directory
func validateID(id string) error {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidMatchID, id)
	}
	return nil
}
