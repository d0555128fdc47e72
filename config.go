// Session-level tuning knobs. None of these are persisted — every field
// here affects only how the engine accesses the on-disk formats fixed in
// header.go, databasefile.go and record.go, never what gets written to them.
package strata

// Checksum algorithm selectors for Config.ChecksumAlgorithm, mirroring the
// selectable-algorithm pattern the hash package uses for document IDs.
const (
	AlgXXHash3 = 1 // Default, fastest.
	AlgBlake2b = 2 // Best distribution.
)

// Config tunes a Session's I/O behavior. New and Load fill zero-valued
// numeric fields with their defaults; the boolean fields are used as given,
// so the zero Config has AdvisoryLock off. DefaultConfig returns every
// default, AdvisoryLock on.
type Config struct {
	// ReadBuffer is the buffered-read chunk size, in bytes, for range scans,
	// used when it is larger than RecordBatchSize records.
	ReadBuffer int

	// RecordBatchSize is the minimum number of records read per bulk read
	// syscall during readRecords; a larger ReadBuffer takes precedence.
	RecordBatchSize int

	// SyncWrites forces an fsync after every append and header rewrite.
	SyncWrites bool

	// ChecksumAlgorithm selects the algorithm Verify uses to fingerprint an
	// archive's record file.
	ChecksumAlgorithm int

	// AdvisoryLock takes a best-effort OS file lock on the database
	// directory for the lifetime of the Session, guarding against a second
	// Session on the same directory corrupting the catalog. It is not a
	// substitute for real multi-writer coordination across hosts.
	AdvisoryLock bool

	// IndexInterval is the default sparse-index gap (in seconds) applied to
	// newly created databases and shards.
	IndexInterval uint32
}

// DefaultConfig returns the Config a new Session should use absent explicit
// overrides.
func DefaultConfig() Config {
	return Config{
		ReadBuffer:        64 * 1024,
		RecordBatchSize:   50,
		SyncWrites:        false,
		ChecksumAlgorithm: AlgXXHash3,
		AdvisoryLock:      true,
		IndexInterval:     3600,
	}
}

func (c Config) withDefaults() Config {
	if c.RecordBatchSize <= 0 {
		c.RecordBatchSize = 50
	}
	if c.ReadBuffer <= 0 {
		c.ReadBuffer = 64 * 1024
	}
	if c.ChecksumAlgorithm == 0 {
		c.ChecksumAlgorithm = AlgXXHash3
	}
	if c.IndexInterval == 0 {
		c.IndexInterval = 3600
	}
	return c
}
