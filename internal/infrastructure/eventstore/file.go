package eventstore

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/relicta-tech/notebase/internal/domain/eventsource"
)

const (
	journalKind = "notebase-journal"
	// JournalFormat is the format version written into new journals.
	JournalFormat = "1.1.0"
	// journalConstraint is the range of journal formats this build can read.
	journalConstraint = ">= 1.0.0, < 2.0.0"
)

// ErrJournalFormat indicates a journal written in an unsupported format.
var ErrJournalFormat = errors.New("unsupported journal format")

// journalHeader is the first line of every journal.
type journalHeader struct {
	Kind      string    `json:"kind"`
	Format    string    `json:"format"`
	CreatedAt time.Time `json:"created_at"`
}

// FileStore implements EventStore on a single append-only JSON lines file.
// Every append is fsynced before it is acknowledged. The whole log is indexed
// in memory on open and kept current by tailing the file, so a read-only
// store observes appends made by the writer process.
type FileStore struct {
	mu       sync.Mutex
	path     string
	readOnly bool
	logger   *slog.Logger
	now      func() time.Time

	file    *os.File // append handle, nil when read-only
	offset  int64    // bytes of the journal consumed so far
	log     []eventsource.Record
	streams map[eventsource.ID][]int
	release func()
}

var _ eventsource.EventStore = (*FileStore)(nil)

// FileOption configures a FileStore.
type FileOption func(*FileStore)

// WithReadOnly opens the journal without taking the writer lock.
func WithReadOnly() FileOption {
	return func(s *FileStore) { s.readOnly = true }
}

// WithFileLogger sets the logger used for recovery warnings.
func WithFileLogger(logger *slog.Logger) FileOption {
	return func(s *FileStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// OpenFileStore opens or creates the journal at path.
func OpenFileStore(path string, opts ...FileOption) (*FileStore, error) {
	s := &FileStore{
		path:    path,
		logger:  slog.Default(),
		now:     time.Now,
		streams: make(map[eventsource.ID][]int),
	}
	for _, opt := range opts {
		opt(s)
	}

	if !s.readOnly {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
		release, err := acquireLock(path+".lock", s.now())
		if err != nil {
			return nil, err
		}
		s.release = release
	}

	if err := s.open(); err != nil {
		s.releaseLock()
		return nil, err
	}
	return s, nil
}

func (s *FileStore) open() error {
	if !s.readOnly {
		f, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		info, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return fmt.Errorf("failed to stat journal: %w", err)
		}
		if info.Size() == 0 {
			if err := writeHeader(f, s.now()); err != nil {
				_ = f.Close()
				return err
			}
		}
		s.file = f
	}

	if err := s.readHeader(); err != nil {
		s.closeFile()
		return err
	}
	torn, err := s.tail()
	if err != nil {
		s.closeFile()
		return err
	}
	if torn > 0 && !s.readOnly {
		s.logger.Warn("discarding incomplete journal entry", "path", s.path, "bytes", torn)
		if err := s.file.Truncate(s.offset); err != nil {
			s.closeFile()
			return fmt.Errorf("failed to truncate torn journal entry: %w", err)
		}
	}
	return nil
}

func writeHeader(f *os.File, now time.Time) error {
	data, err := json.Marshal(journalHeader{Kind: journalKind, Format: JournalFormat, CreatedAt: now.UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal journal header: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write journal header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync journal header: %w", err)
	}
	return nil
}

// readHeader validates the first line and positions offset after it.
func (s *FileStore) readHeader() error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("%w: missing header", ErrJournalFormat)
	}

	var h journalHeader
	if err := json.Unmarshal(line, &h); err != nil || h.Kind != journalKind {
		return fmt.Errorf("%w: %s is not a notebase journal", ErrJournalFormat, s.path)
	}
	v, err := semver.NewVersion(h.Format)
	if err != nil {
		return fmt.Errorf("%w: invalid version %q", ErrJournalFormat, h.Format)
	}
	c, err := semver.NewConstraint(journalConstraint)
	if err != nil {
		return err
	}
	if !c.Check(v) {
		return fmt.Errorf("%w: version %s does not satisfy %s", ErrJournalFormat, v, journalConstraint)
	}

	s.offset = int64(len(line))
	return nil
}

// tail indexes complete lines written after offset. It returns the number of
// trailing bytes that do not form a complete record.
func (s *FileStore) tail() (int64, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return 0, fmt.Errorf("failed to open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(s.offset, io.SeekStart); err != nil {
		return 0, fmt.Errorf("failed to seek journal: %w", err)
	}

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadBytes('\n')
		if errors.Is(err, io.EOF) {
			return int64(len(line)), nil
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read journal: %w", err)
		}

		var rec eventsource.Record
		if jsonErr := json.Unmarshal(bytes.TrimSpace(line), &rec); jsonErr != nil {
			rest, _ := io.Copy(io.Discard, r)
			if rest == 0 {
				// Last line is garbage: a write torn by a crash.
				return int64(len(line)), nil
			}
			return 0, fmt.Errorf("journal corrupt at byte %d: %w", s.offset, jsonErr)
		}
		s.index(rec)
		s.offset += int64(len(line))
	}
}

func (s *FileStore) index(rec eventsource.Record) {
	s.streams[rec.AggregateID] = append(s.streams[rec.AggregateID], len(s.log))
	s.log = append(s.log, rec)
}

// refresh picks up records appended by another process.
func (s *FileStore) refresh() error {
	if !s.readOnly {
		return nil
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("failed to stat journal: %w", err)
	}
	if info.Size() <= s.offset {
		return nil
	}
	_, err = s.tail()
	return err
}

// Path returns the journal location.
func (s *FileStore) Path() string {
	return s.path
}

// Load returns the stream for id.
func (s *FileStore) Load(ctx context.Context, id eventsource.ID) ([]eventsource.Record, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refresh(); err != nil {
		return nil, 0, err
	}
	idx := s.streams[id]
	if len(idx) == 0 {
		return nil, 0, eventsource.ErrNotFound
	}
	out := make([]eventsource.Record, len(idx))
	for i, n := range idx {
		out[i] = s.log[n]
	}
	return out, eventsource.Version(out), nil
}

// Append writes events as one fsynced batch.
func (s *FileStore) Append(ctx context.Context, aggregateType string, id eventsource.ID, expectedVersion int64, events []eventsource.Event) ([]eventsource.Record, error) {
	if len(events) == 0 {
		return nil, nil
	}
	if s.readOnly {
		return nil, fmt.Errorf("journal %s is open read-only", s.path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := int64(len(s.streams[id]))
	if current != expectedVersion {
		return nil, &eventsource.ConflictError{AggregateID: id, Expected: expectedVersion, Actual: current}
	}

	records, err := eventsource.EncodeRecords(aggregateType, id, current, events, s.now())
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range records {
		records[i].Position = int64(len(s.log) + i + 1)
		if err := enc.Encode(records[i]); err != nil {
			return nil, fmt.Errorf("failed to encode event: %w", err)
		}
	}

	if _, err := s.file.Write(buf.Bytes()); err != nil {
		// Drop whatever part of the batch reached the file.
		_ = s.file.Truncate(s.offset)
		return nil, fmt.Errorf("failed to write events: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		_ = s.file.Truncate(s.offset)
		return nil, fmt.Errorf("failed to sync journal: %w", err)
	}

	s.offset += int64(buf.Len())
	for _, rec := range records {
		s.index(rec)
	}
	return records, nil
}

// ReadAll returns up to limit records after the given position.
func (s *FileStore) ReadAll(ctx context.Context, after int64, limit int) ([]eventsource.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.refresh(); err != nil {
		return nil, err
	}
	if after < 0 {
		after = 0
	}
	if after >= int64(len(s.log)) {
		return nil, nil
	}
	end := int64(len(s.log))
	if limit > 0 && after+int64(limit) < end {
		end = after + int64(limit)
	}
	out := make([]eventsource.Record, end-after)
	copy(out, s.log[after:end])
	return out, nil
}

// Head returns the position of the last record.
func (s *FileStore) Head(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refresh(); err != nil {
		return 0, err
	}
	return int64(len(s.log)), nil
}

// Close closes the journal and releases the writer lock.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if s.file != nil {
		err = s.file.Close()
		s.file = nil
	}
	s.releaseLock()
	return err
}

func (s *FileStore) closeFile() {
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
}

func (s *FileStore) releaseLock() {
	if s.release != nil {
		s.release()
		s.release = nil
	}
}
