package stats_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/numtide/elm-format-on-save/stats"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	as := require.New(t)

	statz := stats.New()

	var wg sync.WaitGroup

	for range 10 {
		wg.Add(1)

		go func() {
			defer wg.Done()
			statz.Add(stats.Traversed, 1)
		}()
	}

	wg.Wait()

	statz.Add(stats.Formatted, 3)
	statz.Add(stats.Failed, 1)

	as.Equal(int32(10), statz.Value(stats.Traversed))
	as.Equal(int32(3), statz.Value(stats.Formatted))
	as.Equal(int32(0), statz.Value(stats.Skipped))

	var sb strings.Builder
	statz.Print(&sb)

	as.Contains(sb.String(), "traversed 10 files\n")
	as.Contains(sb.String(), "formatted 3 files (0 changed, 0 skipped, 1 failed)")
}
