package atlas

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/sycured/blaeu/pkg/models"
)

const (
	// DefaultRequested is the probe count used when the caller does not
	// ask for a specific number.
	DefaultRequested = 5

	// DefaultPercentage is the fraction of allocated probes that must
	// report before blocking result collection returns.
	DefaultPercentage = 0.9

	// reusedRequested is the sentinel count sent when reusing the probes
	// of an earlier measurement. The API needs a value large enough to
	// cover whatever that measurement used. It also makes the allocation
	// poll wait for a long time, a known inefficiency.
	reusedRequested = 500

	tagIPv4Works = "system-ipv4-works"
	tagIPv6Works = "system-ipv6-works"
)

// Config holds the selection criteria and measurement parameters used to
// build one measurement request. Populate it, then call BuildRequest; the
// request is immutable after construction.
//
// At most one of ProbeIDs, Country, Area, ASN, and Prefix may be set.
// OldMeasurement is a separate mode that reuses the probes of an earlier
// measurement and overrides any selector.
type Config struct {
	// Measurement definition.
	Type        string
	Target      string
	Description string
	Port        int
	Size        int
	Spread      int
	IPv4        bool
	Private     bool
	OneOff      bool

	// Probe selection, mutually exclusive.
	ProbeIDs []int64
	Country  string
	Area     string
	ASN      uint32
	Prefix   string

	// OldMeasurement reuses the probes of this measurement ID.
	OldMeasurement int64

	// Requested probe count. Zero means DefaultRequested. Ignored, with
	// a warning, when ProbeIDs or OldMeasurement is set.
	Requested int

	// Tag filters, copied into the request alongside the address-family
	// capability tag.
	Include []string
	Exclude []string
}

// selectorCount reports how many of the mutually exclusive selection
// criteria are set.
func (c *Config) selectorCount() int {
	n := 0
	if len(c.ProbeIDs) > 0 {
		n++
	}
	if c.Country != "" {
		n++
	}
	if c.Area != "" {
		n++
	}
	if c.ASN != 0 {
		n++
	}
	if c.Prefix != "" {
		n++
	}
	return n
}

// BuildRequest translates the configuration into the wire payload.
// Warnings about ignored parameters are logged; conflicting selection
// criteria fail with ConfigError before any network call.
func (c *Config) BuildRequest(logger *slog.Logger) (*models.MeasurementRequest, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if c.selectorCount() > 1 {
		return nil, &ConfigError{Reason: "specify country *or* area *or* ASN *or* prefix *or* the list of probes"}
	}

	requested := c.Requested
	if requested == 0 {
		requested = DefaultRequested
	} else if len(c.ProbeIDs) > 0 || c.OldMeasurement != 0 {
		logger.Warn("requested probe count ignored since a list of probes was given", "requested", c.Requested)
	}

	def := models.Definition{
		Description: c.Description,
		Port:        c.Port,
		Size:        c.Size,
		Spread:      c.Spread,
		Type:        c.Type,
		Target:      c.Target,
	}
	if c.IPv4 {
		def.AF = 4
	} else {
		def.AF = 6
	}
	if c.Private {
		public := false
		def.IsPublic = &public
	}

	set := models.ProbeSet{Requested: requested}

	if c.OldMeasurement != 0 {
		for name, used := range map[string]bool{
			"country": c.Country != "",
			"area":    c.Area != "",
			"asn":     c.ASN != 0,
			"prefix":  c.Prefix != "",
			"probes":  len(c.ProbeIDs) > 0,
		} {
			if used {
				logger.Warn("selector ignored since we use probes from a previous measurement", "selector", name)
			}
		}
		set.Requested = reusedRequested
		set.Type = "msm"
		set.Value = fmt.Sprintf("%d", c.OldMeasurement)
		def.Description += fmt.Sprintf(" from probes of measurement #%d", c.OldMeasurement)
	} else {
		switch {
		case len(c.ProbeIDs) > 0:
			set.Requested = len(c.ProbeIDs)
			set.Type = "probes"
			set.Value = joinIDs(c.ProbeIDs)
		case c.Country != "":
			set.Type = "country"
			set.Value = c.Country
			def.Description += " from " + c.Country
		case c.Area != "":
			set.Type = "area"
			set.Value = c.Area
			def.Description += " from " + c.Area
		case c.ASN != 0:
			set.Type = "asn"
			set.Value = fmt.Sprintf("%d", c.ASN)
			def.Description += fmt.Sprintf(" from AS #%d", c.ASN)
		case c.Prefix != "":
			set.Type = "prefix"
			set.Value = c.Prefix
			def.Description += " from prefix " + c.Prefix
		default:
			set.Type = "area"
			set.Value = "WW"
		}
	}

	// Some probes cannot send packets of the chosen family (firewall?),
	// so always require the matching capability tag.
	set.Tags.Include = append(set.Tags.Include, c.Include...)
	if c.IPv4 {
		set.Tags.Include = append(set.Tags.Include, tagIPv4Works)
	} else {
		set.Tags.Include = append(set.Tags.Include, tagIPv6Works)
	}
	set.Tags.Exclude = append(set.Tags.Exclude, c.Exclude...)

	return &models.MeasurementRequest{
		IsOneOff:    c.OneOff,
		Definitions: []models.Definition{def},
		Probes:      []models.ProbeSet{set},
	}, nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ",")
}
