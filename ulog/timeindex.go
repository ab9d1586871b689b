package ulog

import "sort"

// EntryKind classifies a TimeIndex entry for filtering during ReadMessages.
type EntryKind int

const (
	// EntryData is a Data record carrying a bound msg_id.
	EntryData EntryKind = iota
	// EntryLog is an L or C (log / log-tagged) record.
	EntryLog
	// EntryOther is any other Data-section record (AddLogged, RemoveLogged,
	// Synchronization, Dropout).
	EntryOther
)

// TimeIndexEntry is one (timestamp, file offset, kind) tuple in the
// TimeIndex. Entries for non-time-bearing records carry the last seen
// maximum timestamp, so sort order stays stable against neighboring
// time-bearing records (§3).
type TimeIndexEntry struct {
	Timestamp uint64
	Offset    int64
	Kind      EntryKind
	MsgID     uint16 // valid when Kind == EntryData
}

// TimeIndex is a sorted array of entries supporting binary-search range
// lookup, the secondary index built once per Engine.Open.
type TimeIndex []TimeIndexEntry

// sortIndex orders the index by (timestamp, offset) ascending, the offset
// tiebreak preserving file order across records sharing a timestamp (§4.6).
func sortIndex(idx TimeIndex) {
	sort.Slice(idx, func(i, j int) bool {
		if idx[i].Timestamp != idx[j].Timestamp {
			return idx[i].Timestamp < idx[j].Timestamp
		}
		return idx[i].Offset < idx[j].Offset
	})
}

// findRange binary-searches idx for the contiguous range [i, j] of entries
// whose timestamps lie in [start, end] inclusive: the smallest i with
// ts[i] >= start, and the largest j with ts[j] <= end. It returns ok=false
// if no entry qualifies (including on an empty index), per §4.7.
func findRange(idx TimeIndex, start, end uint64) (i, j int, ok bool) {
	n := len(idx)
	if n == 0 || start > end {
		return 0, 0, false
	}

	lo := sort.Search(n, func(k int) bool { return idx[k].Timestamp >= start })
	if lo == n {
		return 0, 0, false
	}

	hi := sort.Search(n, func(k int) bool { return idx[k].Timestamp > end }) - 1
	if hi < lo {
		return 0, 0, false
	}
	return lo, hi, true
}
