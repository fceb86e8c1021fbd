package tablelog

import (
	"fmt"
	"math/rand"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// RecordPrefix and RecordSuffix frame every append record name:
	// rec-<0..999>-<epochMillis>.adb
	RecordPrefix = "rec-"
	RecordSuffix = ".adb"

	// AppendFolderPrefix marks the sibling folder holding a table's records.
	AppendFolderPrefix = "~"

	// TempSuffix is appended to the table path for crash-safe snapshot writes.
	TempSuffix = "~"

	// Disambiguators are drawn from [0, disambiguatorRange).
	disambiguatorRange = 1000
)

// AppendFolder returns the folder holding tablePath's append records:
// "~<basename>" in the same directory as the table.
func AppendFolder(tablePath string) string {
	dir, base := path.Split(tablePath)
	return path.Join(dir, AppendFolderPrefix+base)
}

// TempPath returns the crash-safe temporary path for tablePath.
func TempPath(tablePath string) string {
	return tablePath + TempSuffix
}

// RecordName formats an append record name.
func RecordName(disambiguator int, epochMillis int64) string {
	return fmt.Sprintf("%s%d-%d%s", RecordPrefix, disambiguator, epochMillis, RecordSuffix)
}

// ParseRecordTimestamp extracts the epoch millis between the last "-" and
// ".adb". Names that are not append records report ok == false.
func ParseRecordTimestamp(name string) (ts int64, ok bool) {
	base := path.Base(name)
	if !strings.HasPrefix(base, RecordPrefix) || !strings.HasSuffix(base, RecordSuffix) {
		return 0, false
	}
	stem := strings.TrimSuffix(base, RecordSuffix)
	i := strings.LastIndexByte(stem, '-')
	ts, err := strconv.ParseInt(stem[i+1:], 10, 64)
	if err != nil || ts < 0 {
		return 0, false
	}
	return ts, true
}

// Record is one parsed append record.
type Record struct {
	Name      string
	Timestamp int64
}

// SortRecords parses names, drops anything that is not a record and orders the
// rest by timestamp. Equal timestamps fall back to name order so merges are
// deterministic.
func SortRecords(names []string) []Record {
	records := make([]Record, 0, len(names))
	for _, n := range names {
		ts, ok := ParseRecordTimestamp(n)
		if !ok {
			continue
		}
		records = append(records, Record{Name: n, Timestamp: ts})
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Timestamp != records[j].Timestamp {
			return records[i].Timestamp < records[j].Timestamp
		}
		return records[i].Name < records[j].Name
	})
	return records
}

// SelectCompactable returns at most max records, oldest first, whose
// timestamp is strictly before cutoff. records must already be sorted.
func SelectCompactable(records []Record, cutoff int64, max int) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if max > 0 && len(out) >= max {
			break
		}
		if r.Timestamp < cutoff {
			out = append(out, r)
		}
	}
	return out
}

// RecordNamer hands out record names whose timestamps strictly increase
// within the process, so two appends to one table from the same process can
// never share a name or swap order.
type RecordNamer struct {
	mu    sync.Mutex
	clock func() time.Time
	rng   *rand.Rand
	last  int64
}

// NewRecordNamer creates a namer reading time from clock (time.Now when nil).
func NewRecordNamer(clock func() time.Time) *RecordNamer {
	if clock == nil {
		clock = time.Now
	}
	return &RecordNamer{
		clock: clock,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns a fresh record name and the timestamp embedded in it.
func (n *RecordNamer) Next() (string, int64) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ms := n.clock().UnixMilli()
	if ms <= n.last {
		ms = n.last + 1
	}
	n.last = ms
	return RecordName(n.rng.Intn(disambiguatorRange), ms), ms
}

// Cutoff returns the compaction cutoff for a snapshot starting now: the
// later of the clock and one past the last timestamp handed out. Every record
// named before the call falls strictly below it, and every later name is at
// or above it.
func (n *RecordNamer) Cutoff() int64 {
	n.mu.Lock()
	defer n.mu.Unlock()

	cutoff := n.clock().UnixMilli()
	if cutoff <= n.last {
		cutoff = n.last + 1
	}
	n.last = cutoff - 1
	return cutoff
}
