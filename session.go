// Session: the outside-world façade over Catalog and ArchiveStore.
//
// Session is the only component a caller touches directly. It owns the
// directory-level advisory lock, the eagerly-loaded shard cache (§9: the
// engine keeps every shard's header resident once loaded — "preserve the
// eager behavior to keep tests comparable" — rather than evicting cold
// shards), and the single mutex serializing calls against the
// synchronous, single-writer engine underneath (§5: the core itself
// assumes exclusive access; Session adds just enough locking to let one
// process's goroutines share a handle safely).
package strata

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Session is an open handle on one database directory.
type Session struct {
	mu       sync.Mutex
	fu       *fileUtil
	catalog  *Catalog
	archives map[uint16]*ArchiveStore
	lock     *directoryLock
	lockFile *os.File
	config   Config
	dir      string
	closed   bool
}

const lockFileName = ".lock"

// New creates a brand new database at <baseDir>/<name>/, with an empty
// schema and an empty shard table. Fails with ErrDatabaseExists if the
// directory is already present.
func New(baseDir, name string, archiveRange ArchiveRange, config Config) (*Session, error) {
	config = config.withDefaults()
	if !archiveRange.Valid() {
		archiveRange = RangeWeek
	}

	dir := filepath.Join(baseDir, name)
	if _, err := os.Stat(dir); err == nil {
		return nil, ErrDatabaseExists
	} else if !os.IsNotExist(err) {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	fu, err := openFileUtil(dir)
	if err != nil {
		return nil, err
	}

	s := &Session{fu: fu, config: config, dir: dir, archives: make(map[uint16]*ArchiveStore)}
	if err := s.acquireLock(); err != nil {
		fu.Close()
		return nil, err
	}

	catalog, err := createCatalog(fu, name, nil, archiveRange, config.IndexInterval, config)
	if err != nil {
		s.releaseLock()
		fu.Close()
		return nil, err
	}
	s.catalog = catalog

	return s, nil
}

// Load opens an existing database at <baseDir>/<name>/, recovering the
// catalog via its .old backup or a full rebuild if necessary (§4.4), then
// eagerly loads every registered shard.
func Load(baseDir, name string, config Config) (*Session, error) {
	config = config.withDefaults()
	dir := filepath.Join(baseDir, name)

	fu, err := openFileUtil(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrDatabaseNotFound
		}
		return nil, err
	}

	s := &Session{fu: fu, config: config, dir: dir, archives: make(map[uint16]*ArchiveStore)}
	if err := s.acquireLock(); err != nil {
		fu.Close()
		return nil, err
	}

	catalog, err := loadCatalog(fu, config)
	if err != nil {
		s.releaseLock()
		fu.Close()
		return nil, err
	}
	s.catalog = catalog

	if err := s.loadArchives(); err != nil {
		s.releaseLock()
		fu.Close()
		return nil, err
	}

	return s, nil
}

func (s *Session) acquireLock() error {
	if !s.config.AdvisoryLock {
		return nil
	}
	f, err := s.fu.root.OpenFile(lockFileName, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	lock := &directoryLock{f: f}
	if err := lock.Lock(LockExclusive); err != nil {
		f.Close()
		return ErrLocked
	}
	s.lock = lock
	s.lockFile = f
	return nil
}

func (s *Session) releaseLock() {
	if s.lock == nil {
		return
	}
	s.lock.Unlock()
	s.lock.setFile(nil)
	if s.lockFile != nil {
		s.lockFile.Close()
	}
}

func (s *Session) loadArchives() error {
	for _, d := range s.catalog.Archives() {
		store, err := s.catalog.loadArchive(d)
		if err != nil {
			return err
		}
		s.archives[d.Index] = store
	}
	return nil
}

// Close releases the advisory lock and every open resource. Subsequent
// calls on s return ErrClosed; Close itself is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.releaseLock()
	return s.fu.Close()
}

func (s *Session) checkOpen() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

// shardFor returns the ArchiveStore owning ts, creating and registering a
// new shard if none does yet.
func (s *Session) shardFor(ts uint32) (*ArchiveStore, error) {
	if d, ok := s.catalog.findArchive(ts); ok {
		if store, cached := s.archives[d.Index]; cached {
			return store, nil
		}
		store, err := s.catalog.loadArchive(d)
		if err != nil {
			return nil, err
		}
		s.archives[d.Index] = store
		return store, nil
	}
	store, d, err := s.catalog.createArchive(ts)
	if err != nil {
		return nil, err
	}
	s.archives[d.Index] = store
	return store, nil
}

// buildRow projects the catalog's columns, in schema order, onto fields:
// a present field is coerced to its column's physical type; an absent one
// substitutes the type's zero value.
func (s *Session) buildRow(ts uint32, fields map[string]any) (Row, error) {
	keys := s.catalog.Keys()
	values := make([]any, len(keys))
	for i, c := range keys {
		if v, ok := fields[c.Name]; ok {
			coerced, err := c.Type.coerce(v)
			if err != nil {
				return Row{}, err
			}
			values[i] = coerced
		} else {
			values[i] = c.Type.zeroValue()
		}
	}
	return Row{Timestamp: ts, Values: values}, nil
}

// Add appends a single record, dispatching to the shard owning ts,
// creating it first if this is the first record in that period.
func (s *Session) Add(ts uint32, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(fields) == 0 {
		return ErrEmptyPayload
	}

	row, err := s.buildRow(ts, fields)
	if err != nil {
		return err
	}

	store, err := s.shardFor(ts)
	if err != nil {
		return err
	}
	return store.writeRecords([]Row{row})
}

// Entry is one input to BulkAdd: a timestamp and its field values. Callers
// supply entries pre-sorted by Timestamp — BulkAdd does not sort them,
// matching writeRecords' own monotonicity requirement.
type Entry struct {
	Timestamp uint32
	Fields    map[string]any
}

// BulkAdd consumes a time-ordered run of entries, partitions it into
// per-shard batches, and emits exactly one writeRecords call per shard the
// run touches. A partition boundary is crossed whenever the next entry's
// timestamp falls outside the current shard's [MinRange, MaxRange) span.
func (s *Session) BulkAdd(entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}

	i := 0
	for i < len(entries) {
		store, err := s.shardFor(entries[i].Timestamp)
		if err != nil {
			return err
		}
		maxRange := store.MaxRange()

		var batch []Row
		for i < len(entries) && entries[i].Timestamp < maxRange {
			row, err := s.buildRow(entries[i].Timestamp, entries[i].Fields)
			if err != nil {
				return err
			}
			batch = append(batch, row)
			i++
		}
		if err := store.writeRecords(batch); err != nil {
			return err
		}
	}
	return nil
}

// Query reads the half-open range [start, end), spanning as many shards as
// necessary. If key is non-empty, the result is a map of timestamp to that
// single column's value, regardless of raw/asArrays. Otherwise, if
// asArrays, the result is a column-oriented map[string]any with a "time"
// column prepended; if raw, a []Row of undecorated tuples; otherwise a
// []NamedRow.
func (s *Session) Query(start, end uint32, key string, raw bool, asArrays bool) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	effectiveRaw := raw
	if asArrays && key == "" {
		effectiveRaw = false
	}

	var combinedRaw []Row
	var combinedNamed []NamedRow
	combinedKeyed := make(map[uint32]any)

	ar := s.catalog.ArchiveRange()
	seen := make(map[uint16]bool)

	for t := start; t < end; {
		d, ok := s.catalog.findArchive(t)
		if !ok {
			p := period(ar, t)
			if p == 0 {
				break
			}
			t = shardKey(ar, t) + p
			continue
		}
		if !seen[d.Index] {
			seen[d.Index] = true
			store, cached := s.archives[d.Index]
			if !cached {
				var err error
				store, err = s.catalog.loadArchive(d)
				if err != nil {
					return nil, err
				}
				s.archives[d.Index] = store
			}
			res, err := store.readRecords(start, end, key, effectiveRaw, s.config.RecordBatchSize)
			if err != nil {
				return nil, err
			}
			switch {
			case key != "":
				for ts, v := range res.Keyed {
					combinedKeyed[ts] = v
				}
			case effectiveRaw:
				combinedRaw = append(combinedRaw, res.Raw...)
			default:
				combinedNamed = append(combinedNamed, res.Named...)
			}
		}
		p := period(ar, d.MinRange)
		if p == 0 {
			break
		}
		t = d.MinRange + p
	}

	if key != "" {
		return combinedKeyed, nil
	}
	if asArrays {
		return transposeRows(s.catalog.Keys(), combinedNamed), nil
	}
	if raw {
		return combinedRaw, nil
	}
	return combinedNamed, nil
}

// transposeRows converts row-oriented results into the column-oriented
// shape asArrays callers expect, with "time" prepended.
func transposeRows(cols []Column, rows []NamedRow) map[string]any {
	out := make(map[string]any, len(cols)+1)

	times := make([]uint32, len(rows))
	for i, r := range rows {
		times[i] = r.Timestamp
	}
	out["time"] = times

	for _, c := range cols {
		values := make([]any, len(rows))
		for i, r := range rows {
			values[i] = r.Fields[c.Name]
		}
		out[c.Name] = values
	}
	return out
}

// AddKey registers a new column in the catalog's schema, then widens only
// the shard currently accepting writes (the one whose range contains the
// present moment). Older shards keep their narrower record width; a query
// spanning the boundary sees fewer fields in its older rows.
func (s *Session) AddKey(name string, typ ColumnType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	if !typ.Valid() {
		return ErrInvalidValue
	}

	column := Column{Name: name, Type: typ}
	if err := s.catalog.addKey(column); err != nil {
		return err
	}

	now := uint32(time.Now().Unix())
	if _, ok := s.catalog.findArchive(now); ok {
		store, err := s.shardFor(now)
		if err != nil {
			return err
		}
		return store.addKey(column)
	}
	return nil
}

// SetIndexInterval changes the sparse-index gap applied to shards created
// from this point forward.
func (s *Session) SetIndexInterval(n uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.catalog.setIndexInterval(n)
}

// Verify fingerprints the record file of the shard owning ts, using the
// algorithm selected by Config.ChecksumAlgorithm.
func (s *Session) Verify(ts uint32) (Fingerprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return Fingerprint{}, err
	}

	d, ok := s.catalog.findArchive(ts)
	if !ok {
		return Fingerprint{}, ErrArchiveNotFound
	}
	store, cached := s.archives[d.Index]
	if !cached {
		var err error
		store, err = s.catalog.loadArchive(d)
		if err != nil {
			return Fingerprint{}, err
		}
		s.archives[d.Index] = store
	}
	return store.verify(s.config.ChecksumAlgorithm)
}

// Describe returns a JSON-serializable snapshot of the catalog and every
// loaded shard's header metadata.
func (s *Session) Describe() (CatalogSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return CatalogSnapshot{}, err
	}
	return s.catalog.describe(s.archives), nil
}

// Rebuild forces the best-effort catalog recovery described in §4.4,
// discarding the current catalog (however it was loaded) in favor of one
// reconstructed from the .strdridx files on disk.
func (s *Session) Rebuild() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpen(); err != nil {
		return err
	}
	c, err := rebuildCatalog(s.fu, s.config)
	if err != nil {
		return err
	}
	s.catalog = c
	s.archives = make(map[uint16]*ArchiveStore)
	return s.loadArchives()
}
