// Package monitor turns the controller's text log into pump activations.
//
// The controller prints "Pumps since power up: N" after every actuation. The
// Tracker follows that counter across controller resets and repeated lines
// and reports how many new activations each line represents. It is pure:
// time is passed in and nothing is logged or stored here.
package monitor

import (
	"regexp"
	"strconv"
	"time"
)

var countPattern = regexp.MustCompile(`Pumps since power up: (\d+)$`)

// ParseCount extracts the pump counter from a log line. Any prefix (such as
// a log timestamp) is allowed; the counter must end the line.
func ParseCount(line string) (uint32, bool) {
	m := countPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// Config tunes duplicate suppression.
type Config struct {
	// MinInterval is the shortest gap between two recorded detections. A
	// repeated serial line inside it is ignored.
	MinInterval time.Duration
	// MaxReasonable is the largest increase expected from a single line.
	// Larger jumps are still recorded but flagged.
	MaxReasonable int
	// DedupWindow is how many recent detection seconds are remembered.
	DedupWindow int
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		MinInterval:   400 * time.Millisecond,
		MaxReasonable: 3,
		DedupWindow:   100,
	}
}

// Skip reasons.
const (
	SkipNone      = ""
	SkipDuplicate = "duplicate"
	SkipTooSoon   = "too soon"
)

// Result describes what one line meant.
type Result struct {
	Matched  bool
	Count    uint32
	Previous uint32
	Baseline bool // first counter seen; nothing recorded
	Reset    bool // counter went backwards
	NewPumps int  // activations this line represents
	Unusual  bool // NewPumps > MaxReasonable
	Skipped  string
}

// Record reports whether the caller should store NewPumps activations.
func (r Result) Record() bool {
	return r.NewPumps > 0 && r.Skipped == SkipNone
}

// Stats are running totals since the tracker started.
type Stats struct {
	Lines    int64
	Matches  int64
	Resets   int64
	Recorded int64
	Skipped  int64
	Last     uint32
	Highest  uint32
}

// Tracker follows the controller's pump counter.
type Tracker struct {
	cfg       Config
	seenFirst bool
	last      uint32
	lastPump  time.Time
	seen      map[int64]struct{}
	order     []int64
	stats     Stats
}

// NewTracker creates a Tracker. start seeds the MinInterval check so a line
// arriving right after startup is treated like any other.
func NewTracker(cfg Config, start time.Time) *Tracker {
	if cfg.DedupWindow < 1 {
		cfg.DedupWindow = 1
	}
	return &Tracker{
		cfg:      cfg,
		lastPump: start,
		seen:     make(map[int64]struct{}),
	}
}

// Feed processes one line received at now.
func (t *Tracker) Feed(line string, now time.Time) Result {
	t.stats.Lines++

	count, ok := ParseCount(line)
	if !ok {
		return Result{}
	}
	t.stats.Matches++
	if count > t.stats.Highest {
		t.stats.Highest = count
	}

	res := Result{Matched: true, Count: count, Previous: t.last}

	if !t.seenFirst {
		t.seenFirst = true
		t.last = count
		t.stats.Last = count
		res.Baseline = true
		return res
	}

	if count < t.last {
		res.Reset = true
		t.stats.Resets++
		t.stats.Highest = count
		t.last = 0
	}

	if count > t.last {
		res.NewPumps = int(count - t.last)
		res.Unusual = res.NewPumps > t.cfg.MaxReasonable

		key := now.Unix()
		switch {
		case t.isSeen(key):
			res.Skipped = SkipDuplicate
		case now.Sub(t.lastPump) < t.cfg.MinInterval:
			res.Skipped = SkipTooSoon
		default:
			t.remember(key)
			t.lastPump = now
			t.stats.Recorded += int64(res.NewPumps)
		}
		if res.Skipped != SkipNone {
			t.stats.Skipped += int64(res.NewPumps)
		}
	}

	// The counter advances even when activations were skipped, so a
	// repeated line is never counted twice.
	t.last = count
	t.stats.Last = count
	return res
}

func (t *Tracker) isSeen(key int64) bool {
	_, ok := t.seen[key]
	return ok
}

func (t *Tracker) remember(key int64) {
	t.seen[key] = struct{}{}
	t.order = append(t.order, key)
	if len(t.order) > t.cfg.DedupWindow {
		delete(t.seen, t.order[0])
		t.order = t.order[1:]
	}
}

// Stats returns the running totals.
func (t *Tracker) Stats() Stats {
	return t.stats
}
