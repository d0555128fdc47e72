// Archive range: the shard-period enum and the alignment functions that map
// a timestamp to the shard key (minRange) owning it.
package strata

import "time"

// ArchiveRange selects the period a shard spans. Values are persisted in
// DatabaseFile — never renumber.
type ArchiveRange uint16

const (
	RangeDay ArchiveRange = iota + 1
	RangeWeek
	RangeMonth
)

func (r ArchiveRange) Valid() bool {
	return r >= RangeDay && r <= RangeMonth
}

func (r ArchiveRange) String() string {
	switch r {
	case RangeDay:
		return "Day"
	case RangeWeek:
		return "Week"
	case RangeMonth:
		return "Month"
	default:
		return "Unknown"
	}
}

const secondsPerDay = 86400
const secondsPerWeek = 7 * secondsPerDay

// daysInMonth returns the number of days in the civil month containing ts
// (interpreted as UTC Unix seconds), per calendar.monthrange semantics.
func daysInMonth(ts uint32) int {
	t := time.Unix(int64(ts), 0).UTC()
	firstOfNextMonth := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
	firstOfThisMonth := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return int(firstOfNextMonth.Sub(firstOfThisMonth).Hours() / 24)
}

// period returns the shard period length, in seconds, for a shard whose
// alignment is computed from timestamp ts.
//
// For Month, the divisor is the number of days in the civil month of ts
// itself, not of any particular shard's start — this is the "mathematically
// surprising" behavior flagged in the spec's design notes (§9) and is kept
// intentionally for bit-identical shard alignment: two months of different
// length produce differently-sized shards, and a timestamp near a month
// boundary is aligned using its own month's length rather than its shard's.
func period(r ArchiveRange, ts uint32) uint32 {
	switch r {
	case RangeDay:
		return secondsPerDay
	case RangeWeek:
		return secondsPerWeek
	case RangeMonth:
		return uint32(secondsPerDay * daysInMonth(ts))
	default:
		return 0
	}
}

// shardKey aligns ts to the start of its owning shard under range r.
func shardKey(r ArchiveRange, ts uint32) uint32 {
	p := period(r, ts)
	if p == 0 {
		return ts
	}
	return (ts / p) * p
}
