package journal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	logx "eventcat/pkg/logx"
)

// fileStore keeps one JSON document per event in a directory.
//
// Layout under Path:
//   - events/<escaped name>.json  (one document per event, atomic replace)
//   - aliases.snapshot.json      (periodic snapshot of alias -> name)
//   - aliases.journal.jsonl      (append-only alias journal)
//
// The alias journal is periodically compacted into the snapshot.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	eventsDir         string
	aliasSnapshotPath string
	aliasJournalPath  string
	aliasJournalFile  *os.File

	aliases map[string]string // alias -> canonical name
	names   map[string]struct{}

	aliasWrites int
}

// aliasRecord is one alias journal line. An empty Name deletes the alias.
type aliasRecord struct {
	Alias string `json:"alias"`
	Name  string `json:"name,omitempty"`
}

const (
	eventExt            = ".json"
	aliasCompactEvery   = 1000
	eventsDirName       = "events"
	aliasSnapshotName   = "aliases.snapshot.json"
	aliasJournalName    = "aliases.journal.jsonl"
	tmpSuffix           = ".tmp"
	fileStorePermission = 0o644
)

func openFile(cfg Config, log logx.Logger) (Store, error) {
	root := strings.TrimSpace(cfg.Path)
	if root == "" {
		return nil, errors.New("journal path is required for file driver")
	}
	eventsDir := filepath.Join(root, eventsDirName)
	if err := os.MkdirAll(eventsDir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:               log,
		eventsDir:         eventsDir,
		aliasSnapshotPath: filepath.Join(root, aliasSnapshotName),
		aliasJournalPath:  filepath.Join(root, aliasJournalName),
		aliases:           map[string]string{},
		names:             map[string]struct{}{},
	}

	if err := s.scanNames(); err != nil {
		return nil, err
	}
	loadErr := s.loadAliases()

	jf, err := os.OpenFile(s.aliasJournalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	s.aliasJournalFile = jf

	if loadErr != nil {
		log.Warn("alias index unreadable; rebuilding from event documents", logx.Err(loadErr))
		if err := s.rebuildAliasesLocked(); err != nil {
			_ = jf.Close()
			return nil, fmt.Errorf("rebuild alias index: %w", err)
		}
	}
	return s, nil
}

// loadAliases reads the snapshot then replays the journal on top of it. A
// missing file is not an error.
func (s *fileStore) loadAliases() error {
	if err := loadAliasSnapshot(s.aliasSnapshotPath, s.aliases); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("alias snapshot: %w", err)
	}
	if err := replayAliasJournal(s.aliasJournalPath, s.aliases); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("alias journal: %w", err)
	}
	return nil
}

// rebuildAliasesLocked derives the alias index from the event documents and
// compacts it into a fresh snapshot.
func (s *fileStore) rebuildAliasesLocked() error {
	s.aliases = map[string]string{}
	for name := range s.names {
		b, err := os.ReadFile(s.eventPath(name))
		if err != nil {
			return err
		}
		rec, err := decodeRecord(b)
		if err != nil {
			s.log.Warn("skipping unreadable event document", logx.String("event", name), logx.Err(err))
			continue
		}
		for _, a := range aliasNames(rec)[1:] {
			s.aliases[a] = name
		}
		s.aliases[name] = name
	}
	return s.compactLocked()
}

func (s *fileStore) scanNames() error {
	entries, err := os.ReadDir(s.eventsDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), eventExt) {
			continue
		}
		name, err := url.PathUnescape(strings.TrimSuffix(e.Name(), eventExt))
		if err != nil || name == "" {
			continue
		}
		s.names[name] = struct{}{}
	}
	return nil
}

func (s *fileStore) eventPath(name string) string {
	return filepath.Join(s.eventsDir, url.PathEscape(name)+eventExt)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aliasJournalFile == nil {
		return nil
	}
	err := s.aliasJournalFile.Close()
	s.aliasJournalFile = nil
	return err
}

func (s *fileStore) Put(ctx context.Context, name string, aliases []string, data []byte) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aliasJournalFile == nil {
		return ErrClosed
	}
	recs := make([]aliasRecord, 0, len(aliases)+1)
	want := map[string]struct{}{name: {}}
	for _, a := range aliases {
		want[a] = struct{}{}
	}
	// Drop aliases that no longer belong to this event.
	for alias, owner := range s.aliases {
		if owner != name {
			continue
		}
		if _, ok := want[alias]; !ok {
			recs = append(recs, aliasRecord{Alias: alias})
		}
	}
	for alias := range want {
		if s.aliases[alias] != name {
			recs = append(recs, aliasRecord{Alias: alias, Name: name})
		}
	}
	// Aliases go first: a crash before the document lands leaves aliases
	// pointing at a name Get does not find, never a document without them.
	if err := s.appendAliasesLocked(recs); err != nil {
		return err
	}
	if err := writeFileAtomic(s.eventPath(name), data); err != nil {
		return err
	}
	s.names[name] = struct{}{}
	return nil
}

func (s *fileStore) Get(ctx context.Context, name string) ([]byte, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.names[name]; !ok {
		return nil, false, nil
	}
	b, err := os.ReadFile(s.eventPath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

func (s *fileStore) Delete(ctx context.Context, name string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aliasJournalFile == nil {
		return ErrClosed
	}
	if err := os.Remove(s.eventPath(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	delete(s.names, name)

	var recs []aliasRecord
	for alias, owner := range s.aliases {
		if owner == name {
			recs = append(recs, aliasRecord{Alias: alias})
		}
	}
	return s.appendAliasesLocked(recs)
}

func (s *fileStore) ResolveAlias(ctx context.Context, alias string) (string, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if name, ok := s.aliases[alias]; ok {
		return name, true, nil
	}
	if _, ok := s.names[alias]; ok {
		return alias, true, nil
	}
	return "", false, nil
}

func (s *fileStore) Names(ctx context.Context) ([]string, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

func (s *fileStore) Reset(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aliasJournalFile == nil {
		return ErrClosed
	}
	if err := os.RemoveAll(s.eventsDir); err != nil {
		return err
	}
	if err := os.MkdirAll(s.eventsDir, 0o755); err != nil {
		return err
	}
	s.names = map[string]struct{}{}
	s.aliases = map[string]string{}
	if err := os.Remove(s.aliasSnapshotPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := s.aliasJournalFile.Truncate(0); err != nil {
		return err
	}
	_, err := s.aliasJournalFile.Seek(0, io.SeekEnd)
	return err
}

func (s *fileStore) appendAliasesLocked(recs []aliasRecord) error {
	if len(recs) == 0 {
		return nil
	}
	w := bufio.NewWriter(s.aliasJournalFile)
	enc := codec.NewEncoder(w)
	for _, r := range recs {
		if err := enc.Encode(r); err != nil {
			return err
		}
		if r.Name == "" {
			delete(s.aliases, r.Alias)
		} else {
			s.aliases[r.Alias] = r.Name
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if err := s.aliasJournalFile.Sync(); err != nil {
		return err
	}
	s.aliasWrites += len(recs)
	if s.aliasWrites >= aliasCompactEvery {
		s.aliasWrites = 0
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("alias compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	b, err := codec.Marshal(s.aliases)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.aliasSnapshotPath, b); err != nil {
		return err
	}
	if err := s.aliasJournalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.aliasJournalFile.Seek(0, io.SeekEnd)
	return err
}

func loadAliasSnapshot(path string, out map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]string
	if err := codec.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayAliasJournal(path string, out map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		var r aliasRecord
		if err := codec.Unmarshal(sc.Bytes(), &r); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if r.Alias == "" {
			continue
		}
		if r.Name == "" {
			delete(out, r.Alias)
			continue
		}
		out[r.Alias] = r.Name
	}
	return sc.Err()
}

// writeFileAtomic replaces path with data: write tmp, fsync, rename, fsync dir.
func writeFileAtomic(path string, data []byte) error {
	tmp := path + tmpSuffix
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fileStorePermission)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if d, err := os.Open(filepath.Dir(path)); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
