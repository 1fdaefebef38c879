package stats

import (
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"
)

// Type identifies a counter.
type Type int

const (
	Traversed Type = iota
	Matched
	Formatted
	Changed
	Skipped
	Failed
)

type Stats struct {
	start    time.Time
	counters map[Type]*atomic.Int32
}

func New() Stats {
	counters := make(map[Type]*atomic.Int32)
	for _, t := range []Type{Traversed, Matched, Formatted, Changed, Skipped, Failed} {
		counters[t] = &atomic.Int32{}
	}

	return Stats{
		start:    time.Now(),
		counters: counters,
	}
}

func (s *Stats) Add(t Type, delta int32) int32 {
	return s.counters[t].Add(delta)
}

func (s *Stats) Value(t Type) int32 {
	return s.counters[t].Load()
}

func (s *Stats) Elapsed() time.Duration {
	return time.Since(s.start)
}

func (s *Stats) Print(w io.Writer) {
	components := []string{
		"traversed %d files",
		"matched %d files",
		"formatted %d files (%d changed, %d skipped, %d failed) in %v",
		"",
	}

	_, _ = fmt.Fprintf(w,
		strings.Join(components, "\n"),
		s.Value(Traversed),
		s.Value(Matched),
		s.Value(Formatted),
		s.Value(Changed),
		s.Value(Skipped),
		s.Value(Failed),
		s.Elapsed().Round(time.Millisecond),
	)
}
