package atlas

import (
	"io"
	"log/slog"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

// fastTiming shrinks the polling policy to test scale and restores the
// defaults afterwards.
func fastTiming(t *testing.T, timing pollTiming) {
	t.Helper()
	saved := defaultTiming
	defaultTiming = timing
	t.Cleanup(func() { defaultTiming = saved })
}

// allocationTiming is fast enough for allocation-poll tests while keeping
// a measurable doubling delay.
func allocationTiming() pollTiming {
	return pollTiming{
		fieldsBase:     time.Millisecond,
		fieldsFactor:   time.Millisecond,
		fieldsAttempts: 30,
		resultsBase:    time.Millisecond,
		resultsFactor:  0,
		ceilingBase:    time.Second,
		ceilingFactor:  0,
	}
}
