// Catalog: the database-level directory of shards and the schema they
// share, backed by the db.strdr file. Catalog is the only component that
// decides which shard a timestamp belongs to and when a new one must be
// created.
package strata

import (
	"fmt"
	"sort"
	"strings"
)

// Catalog owns the parsed db.strdr contents for one database directory.
type Catalog struct {
	fu     *fileUtil
	file   *DatabaseFile
	config Config

	recovered bool // true if Load fell back to the .old backup or a rebuild
}

// Recovered reports whether this catalog was loaded via backup restore or
// full rebuild rather than a clean parse of db.strdr.
func (c *Catalog) Recovered() bool { return c.recovered }

func (c *Catalog) Name() string             { return c.file.DatabaseName }
func (c *Catalog) ArchiveRange() ArchiveRange { return c.file.ArchiveRange }
func (c *Catalog) IndexInterval() uint32    { return c.file.IndexInterval }
func (c *Catalog) Keys() []Column           { return append([]Column(nil), c.file.Keys...) }
func (c *Catalog) Archives() []ShardDescriptor {
	return append([]ShardDescriptor(nil), c.file.Archives...)
}

// createCatalog materializes a brand new db.strdr file. Returns
// ErrDatabaseExists if one is already present.
func createCatalog(fu *fileUtil, name string, keys []Column, archiveRange ArchiveRange, indexInterval uint32, config Config) (*Catalog, error) {
	if fu.exists(fu.catalogPath()) {
		return nil, ErrDatabaseExists
	}
	if !archiveRange.Valid() {
		return nil, fmt.Errorf("invalid archive range %d", archiveRange)
	}
	file := &DatabaseFile{
		Revision:      CurrentRevision,
		DatabaseName:  name,
		IndexInterval: indexInterval,
		ArchiveRange:  archiveRange,
		Keys:          append([]Column(nil), keys...),
	}
	c := &Catalog{fu: fu, file: file, config: config}
	if err := c.save(); err != nil {
		return nil, err
	}
	return c, nil
}

// loadCatalog opens an existing db.strdr file, falling back to the .old
// backup on a corrupt parse, and to a full directory rebuild if the backup
// is unusable too (§7 recovery chain). A restored backup also picks up any
// shard files on disk that were registered after it was taken, and is
// saved back as the live catalog.
func loadCatalog(fu *fileUtil, config Config) (*Catalog, error) {
	if !fu.exists(fu.catalogPath()) {
		return nil, ErrDatabaseNotFound
	}

	file, err := readDatabaseFile(fu, fu.catalogPath())
	if err == nil {
		return &Catalog{fu: fu, file: file, config: config}, nil
	}
	if !isCorrupt(err) {
		return nil, err
	}

	if fu.exists(fu.catalogBackupPath()) {
		if restoreErr := copyFile(fu, fu.catalogPath(), fu.catalogBackupPath(), config.SyncWrites); restoreErr == nil {
			if file, err := readDatabaseFile(fu, fu.catalogPath()); err == nil {
				// The backup is one save behind: shards registered by the lost
				// save are re-registered from their own headers.
				for next := uint16(len(file.Archives) + 1); fu.exists(archiveIndexPath(next, 0)); next++ {
					store, err := loadArchiveStore(fu, ShardDescriptor{Index: next}, config)
					if err != nil {
						break
					}
					h := store.header
					file.Archives = append(file.Archives, ShardDescriptor{MinRange: h.MinRange, MaxRange: h.MaxRange, Index: h.Index, Resolution: h.Resolution})
				}
				c := &Catalog{fu: fu, file: file, config: config, recovered: true}
				if err := c.save(); err != nil {
					return nil, err
				}
				return c, nil
			}
		}
	}

	c, err := rebuildCatalog(fu, config)
	if err != nil {
		return nil, ErrDatabaseCorrupt
	}
	return c, nil
}

func readDatabaseFile(fu *fileUtil, path string) (*DatabaseFile, error) {
	f, err := fu.root.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeDatabaseFile(f)
}

func isCorrupt(err error) bool {
	_, ok := err.(*CorruptError)
	return ok
}

// rebuildCatalog reconstructs a best-effort catalog from the .strdridx
// files discoverable in fu's directory, used when both db.strdr and its
// .old backup are unusable (§4.4):
//  1. list every achv_*.strdridx file
//  2. parse each header to recover its column schema and range
//  3. the archive with the largest MinRange is taken as the authoritative
//     schema source — it has seen every addKey applied to the database
//  4. the archive range (day/week/month) is inferred from shard span width
//  5. the fresh catalog is named "rebuilt"
//
// This is explicitly lossy: the original database name is not recoverable,
// and the archive range comes from span width alone (up to one day is Day,
// up to one week is Week, anything longer is Month).
func rebuildCatalog(fu *fileUtil, config Config) (*Catalog, error) {
	dir, err := fu.root.Open(".")
	if err != nil {
		return nil, err
	}
	defer dir.Close()

	entries, err := dir.ReadDir(-1)
	if err != nil {
		return nil, err
	}

	var descriptors []ShardDescriptor
	var authoritative *ArchiveHeader

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".strdridx") {
			continue
		}
		var index uint16
		var resolution uint8
		if _, err := fmt.Sscanf(name, "achv_i%d_r%d.strdridx", &index, &resolution); err != nil {
			continue
		}

		f, err := fu.root.Open(name)
		if err != nil {
			continue
		}
		header, err := decodeArchiveHeader(f)
		f.Close()
		if err != nil {
			continue
		}

		descriptors = append(descriptors, ShardDescriptor{
			MinRange:   header.MinRange,
			MaxRange:   header.MaxRange,
			Index:      header.Index,
			Resolution: header.Resolution,
		})
		if authoritative == nil || header.MinRange > authoritative.MinRange {
			authoritative = header
		}
	}

	if len(descriptors) == 0 || authoritative == nil {
		return nil, ErrDatabaseCorrupt
	}

	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].MinRange < descriptors[j].MinRange
	})

	file := &DatabaseFile{
		Revision:      CurrentRevision,
		DatabaseName:  "rebuilt",
		IndexInterval: authoritative.IndexInterval,
		ArchiveRange:  inferArchiveRange(descriptors[len(descriptors)-1]),
		Archives:      descriptors,
		Keys:          authoritative.Keys,
	}

	c := &Catalog{fu: fu, file: file, config: config, recovered: true}
	if err := c.save(); err != nil {
		return nil, err
	}
	return c, nil
}

// inferArchiveRange guesses the shard period enum from a recovered
// descriptor's span width, since the rebuild path has no other source for
// it once db.strdr and its backup are both gone.
func inferArchiveRange(d ShardDescriptor) ArchiveRange {
	span := d.MaxRange - d.MinRange
	switch {
	case span <= secondsPerDay:
		return RangeDay
	case span <= secondsPerWeek:
		return RangeWeek
	default:
		return RangeMonth
	}
}

// save persists the catalog using the backup-then-swap protocol: the
// current db.strdr (if any) is copied to db.strdr.old before the new
// contents replace it, so a crash mid-write always leaves a readable
// catalog behind.
func (c *Catalog) save() error {
	buf, err := c.file.bytes()
	if err != nil {
		return err
	}

	if c.fu.exists(c.fu.catalogPath()) {
		if err := copyFile(c.fu, c.fu.catalogBackupPath(), c.fu.catalogPath(), c.config.SyncWrites); err != nil {
			return err
		}
	}

	tmp := c.fu.catalogPath() + ".new"
	f, err := c.fu.root.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := f.Write(buf); err != nil {
		f.Close()
		return err
	}
	if c.config.SyncWrites {
		if err := f.Sync(); err != nil {
			f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}

	return c.fu.safeOverwrite(c.fu.catalogPath(), tmp)
}

// copyFile copies src to dst within fu's root, leaving src intact — unlike
// safeOverwrite, which consumes its source. sync requests an fsync of dst
// before close, mirroring Config.SyncWrites.
func copyFile(fu *fileUtil, dst, src string, sync bool) error {
	s, err := fu.root.Open(src)
	if err != nil {
		return err
	}
	defer s.Close()

	d, err := fu.root.Create(dst)
	if err != nil {
		return err
	}
	if _, err := d.ReadFrom(s); err != nil {
		d.Close()
		return err
	}
	if sync {
		if err := d.Sync(); err != nil {
			d.Close()
			return err
		}
	}
	return d.Close()
}

// findArchive returns the shard descriptor owning timestamp ts, if one has
// been created.
func (c *Catalog) findArchive(ts uint32) (ShardDescriptor, bool) {
	for _, d := range c.file.Archives {
		if ts >= d.MinRange && ts < d.MaxRange {
			return d, true
		}
	}
	return ShardDescriptor{}, false
}

// createArchive allocates and persists a new shard descriptor covering ts,
// then materializes its backing ArchiveStore. Shard indices only ever grow
// (§Non-goals: no deletion of historical records), so the next index is one
// past the highest ever issued.
func (c *Catalog) createArchive(ts uint32) (*ArchiveStore, ShardDescriptor, error) {
	minRange := shardKey(c.file.ArchiveRange, ts)
	maxRange := minRange + period(c.file.ArchiveRange, minRange)

	var nextIndex uint16 = 1
	for _, d := range c.file.Archives {
		if d.Index >= nextIndex {
			nextIndex = d.Index + 1
		}
	}

	desc := ShardDescriptor{MinRange: minRange, MaxRange: maxRange, Index: nextIndex, Resolution: 0}

	store, err := createArchiveStore(c.fu, desc, c.file.Keys, c.file.IndexInterval, c.config)
	if err != nil {
		return nil, ShardDescriptor{}, err
	}

	c.file.Archives = append(c.file.Archives, desc)
	if err := c.save(); err != nil {
		return nil, ShardDescriptor{}, err
	}

	return store, desc, nil
}

// loadArchive opens the ArchiveStore for an already-registered shard.
func (c *Catalog) loadArchive(desc ShardDescriptor) (*ArchiveStore, error) {
	return loadArchiveStore(c.fu, desc, c.config)
}

// addKey registers a new column in the catalog's shared schema. It does
// not retroactively widen any shard's record file — widening an existing
// shard is a separate, explicit ArchiveStore.addKey call against the
// shard currently accepting writes.
func (c *Catalog) addKey(column Column) error {
	for _, k := range c.file.Keys {
		if k.Name == column.Name {
			return ErrKeyAlreadyExists
		}
	}
	c.file.Keys = append(c.file.Keys, column)
	return c.save()
}

// setIndexInterval updates the interval applied to shards created from
// this point forward.
func (c *Catalog) setIndexInterval(n uint32) error {
	c.file.IndexInterval = n
	return c.save()
}
