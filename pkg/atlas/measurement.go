package atlas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/sycured/blaeu/pkg/models"
)

// Status is the remote measurement state. Anything outside this vocabulary
// is an InternalError.
type Status string

const (
	StatusSpecified Status = "Specified"
	StatusScheduled Status = "Scheduled"
	StatusOngoing   Status = "Ongoing"
	StatusStopped   Status = "Stopped"
)

// NotifyFunc is invoked synchronously with the upcoming delay before every
// sleep in the polling loops. It runs on the critical timing path and must
// not block.
type NotifyFunc func(delay time.Duration)

// pollTiming carries the polling policy. There is no reliable way to know
// when the remote system is done, either for probe allocation or for the
// results, so the only solution is to wait long enough; these values come
// from trial and error and scale with the probe count.
type pollTiming struct {
	fieldsBase     time.Duration // before the first allocation poll
	fieldsFactor   time.Duration // per requested probe
	fieldsAttempts int           // allocation polls before giving up
	resultsBase    time.Duration // before the first results poll
	resultsFactor  time.Duration // per allocated probe
	ceilingBase    time.Duration // results wall-clock budget
	ceilingFactor  time.Duration // per allocated probe
}

// Overridden by tests; every Measurement takes a copy at construction.
var defaultTiming = pollTiming{
	fieldsBase:     6 * time.Second,
	fieldsFactor:   200 * time.Millisecond,
	fieldsAttempts: 30,
	resultsBase:    3 * time.Second,
	resultsFactor:  150 * time.Millisecond,
	ceilingBase:    30 * time.Second,
	ceilingFactor:  5 * time.Second,
}

// Options controls measurement creation.
type Options struct {
	// NoWait skips allocation polling after submission. Use it for
	// recurring rather than one-shot measurements.
	NoWait bool
	// Notify, if set, is called with the delay before every sleep.
	Notify NotifyFunc
	// Logger defaults to the client's logger.
	Logger *slog.Logger
}

// Measurement is a remote measurement identified by its numeric ID.
// Identity and allocation count are immutable once established; Status is
// a snapshot that may go stale and is refreshed on demand.
type Measurement struct {
	ID          int64
	Status      Status
	NumProbes   int
	StartTime   time.Time
	Description string
	Interval    int
	Probes      []models.ProbeInfo

	client *Client
	notify NotifyFunc
	logger *slog.Logger
	timing pollTiming
}

// Create submits the request to the creation endpoint and, unless NoWait
// is set, polls until the remote system has allocated probes, then loads
// the measurement metadata.
//
// If submission succeeded but a later step failed, the returned
// Measurement is still non-nil so the caller keeps the ID for manual
// follow-up: the remote measurement exists regardless of our timeout.
func Create(ctx context.Context, client *Client, req *models.MeasurementRequest, opts Options) (*Measurement, error) {
	logger := opts.Logger
	if logger == nil {
		logger = client.logger
	}
	m := &Measurement{
		client: client,
		notify: opts.Notify,
		logger: logger,
		timing: defaultTiming,
	}

	var created models.CreateResponse
	if err := client.PostJSON(ctx, client.createURL(), req, &created); err != nil {
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			return nil, &SubmissionError{StatusCode: httpErr.StatusCode, Reason: httpErr.Error(), Err: err}
		}
		return nil, &SubmissionError{Reason: err.Error(), Err: err}
	}
	if len(created.Measurements) == 0 {
		return nil, &SubmissionError{Reason: "no measurement ID in creation response"}
	}
	m.ID = created.Measurements[0]
	logger.Debug("measurement created", "id", m.ID)

	if opts.NoWait {
		return m, nil
	}

	if err := m.waitForAllocation(ctx, req.Probes[0].Requested); err != nil {
		return m, err
	}
	if err := m.fetchMeta(ctx); err != nil {
		return m, err
	}
	return m, nil
}

// Attach maps an existing measurement ID instead of submitting a new
// request. The remote status must already be Ongoing or Stopped.
func Attach(ctx context.Context, client *Client, id int64, opts Options) (*Measurement, error) {
	logger := opts.Logger
	if logger == nil {
		logger = client.logger
	}
	m := &Measurement{
		ID:     id,
		client: client,
		notify: opts.Notify,
		logger: logger,
		timing: defaultTiming,
	}

	var st models.StatusResponse
	if err := client.GetJSON(ctx, client.statusURL(id), &st); err != nil {
		return nil, accessError(id, err)
	}
	m.Status = Status(st.Status.Name)
	if m.Status != StatusOngoing && m.Status != StatusStopped {
		return nil, &AccessError{ID: id, Err: fmt.Errorf("invalid status %q", st.Status.Name)}
	}

	var pr models.ProbesResponse
	if err := client.GetJSON(ctx, client.probesURL(id), &pr); err != nil {
		return nil, accessError(id, err)
	}
	m.NumProbes = len(pr.Probes)
	m.Probes = pr.Probes

	if err := m.fetchMeta(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// waitForAllocation polls the probes/status fields until the measurement
// is Ongoing. The delay doubles after every attempt, without a cap: it
// mirrors the real latency profile of the remote scheduler.
func (m *Measurement) waitForAllocation(ctx context.Context, requested int) error {
	delay := m.timing.fieldsBase + time.Duration(requested)*m.timing.fieldsFactor
	left := m.timing.fieldsAttempts
	for {
		if m.notify != nil {
			m.notify(delay)
		}
		if err := sleepCtx(ctx, delay); err != nil {
			return &AllocationError{ID: m.ID, Reason: "cancelled", Err: err}
		}
		delay *= 2

		// The API has no consistency guarantee for this endpoint and
		// intermediate caches ignore Cache-Control, hence the random
		// query parameter.
		url := fmt.Sprintf("%s&defeatcaching=dc%d", m.client.probesURL(m.ID), rand.Intn(10000)+1)
		var meta models.ProbesResponse
		if err := m.client.GetJSON(ctx, url, &meta); err != nil {
			return &AllocationError{ID: m.ID, Reason: err.Error(), Err: err}
		}
		m.Status = Status(meta.Status.Name)

		switch m.Status {
		case StatusSpecified, StatusScheduled:
			left--
			if left <= 0 {
				return &AllocationError{ID: m.ID, Reason: "maximum number of status queries reached"}
			}
			m.logger.Debug("allocation not ready", "id", m.ID, "status", m.Status, "left", left)
		case StatusOngoing:
			m.NumProbes = len(meta.Probes)
			m.Probes = meta.Probes
			m.logger.Debug("probes allocated", "id", m.ID, "probes", m.NumProbes)
			return nil
		default:
			return &InternalError{ID: m.ID, Status: meta.Status.Name}
		}
	}
}

// RefreshStatus fetches the live status field and updates the snapshot.
func (m *Measurement) RefreshStatus(ctx context.Context) (Status, error) {
	var st models.StatusResponse
	if err := m.client.GetJSON(ctx, m.client.statusURL(m.ID), &st); err != nil {
		return "", err
	}
	m.Status = Status(st.Status.Name)
	return m.Status, nil
}

func (m *Measurement) fetchMeta(ctx context.Context) error {
	var info models.MeasurementInfo
	if err := m.client.GetJSON(ctx, m.client.measurementURL(m.ID), &info); err != nil {
		return accessError(m.ID, err)
	}
	m.StartTime = info.Start()
	m.Description = info.Description
	m.Interval = info.Interval
	return nil
}

func accessError(id int64, err error) error {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
		return &AccessError{ID: id, Err: ErrNotFound}
	}
	return &AccessError{ID: id, Err: err}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
