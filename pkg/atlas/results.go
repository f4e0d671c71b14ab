package atlas

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sycured/blaeu/pkg/models"
)

// ResultOptions controls result collection.
type ResultOptions struct {
	// NoWait fetches whatever is available right now instead of polling
	// until enough probes reported.
	NoWait bool
	// Percentage is the fraction of allocated probes that must report
	// before the blocking path returns. Zero means DefaultPercentage.
	// The measurement may stop before the threshold is reached, so
	// callers must still check the actual number of reporting probes.
	Percentage float64
	// Latest fetches only the last N results per probe, from the
	// latest-results endpoint. It forces NoWait.
	Latest int
}

// Results retrieves the per-probe result records for the measurement.
//
// The blocking path polls with a doubling delay under a wall-clock
// ceiling: results collection can legitimately run for many minutes and
// must not spin forever. A 404 while fetching is tolerated as "not ready
// yet" since the result resource may not exist momentarily after
// submission; every other failure is fatal.
func (m *Measurement) Results(ctx context.Context, opts ResultOptions) ([]models.Result, error) {
	pct := opts.Percentage
	if pct == 0 {
		pct = DefaultPercentage
	}

	url := m.client.resultsURL(m.ID)
	wait := !opts.NoWait
	if opts.Latest > 0 {
		wait = false
		url = m.client.latestURL(m.ID, opts.Latest)
	}

	if !wait {
		var results []models.Result
		if err := m.client.GetJSON(ctx, url, &results); err != nil {
			return nil, &ResultError{ID: m.ID, Reason: err.Error(), Err: err}
		}
		return results, nil
	}

	delay := m.timing.resultsBase + time.Duration(m.NumProbes)*m.timing.resultsFactor
	ceiling := m.timing.ceilingBase + time.Duration(m.NumProbes)*m.timing.ceilingFactor
	start := time.Now()

	var results []models.Result
	retrieved := false
	for {
		if m.notify != nil {
			m.notify(delay)
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return nil, &ResultError{ID: m.ID, Reason: "cancelled", Err: err}
		}
		delay *= 2

		var fetched []models.Result
		err := m.client.GetJSON(ctx, url, &fetched)
		if err != nil {
			var httpErr *HTTPError
			if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusNotFound {
				return nil, &ResultError{ID: m.ID, Reason: err.Error(), Err: err}
			}
			// No result file yet.
		} else {
			results = fetched
			retrieved = true
			if float64(len(results)) >= float64(m.NumProbes)*pct {
				// Requiring strict completeness would mean waiting many
				// minutes for the measurement to stop whenever one
				// allocated probe stays silent.
				return results, nil
			}
			status, serr := m.RefreshStatus(ctx)
			if serr != nil {
				return nil, &ResultError{ID: m.ID, Reason: serr.Error(), Err: serr}
			}
			switch status {
			case StatusOngoing:
				m.logger.Debug("waiting for more results", "id", m.ID, "have", len(results), "probes", m.NumProbes)
			case StatusStopped:
				// The remote system ended the measurement on its own;
				// return the partial set.
				return results, nil
			default:
				return nil, &InternalError{ID: m.ID, Status: string(status)}
			}
		}

		if time.Since(start) >= ceiling {
			break
		}
	}

	if !retrieved {
		return nil, &ResultError{ID: m.ID, Reason: "no results retrieved"}
	}
	return results, nil
}
