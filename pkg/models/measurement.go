package models

import (
	"time"
)

// MeasurementRequest is the payload submitted to the measurement creation
// endpoint. Built once by atlas.Config.BuildRequest and consumed exactly
// once by submission.
type MeasurementRequest struct {
	IsOneOff    bool         `json:"is_oneoff"`
	Definitions []Definition `json:"definitions"`
	Probes      []ProbeSet   `json:"probes"`
}

// Definition describes what the allocated probes should measure.
type Definition struct {
	Description string `json:"description"`
	Port        int    `json:"port"`
	AF          int    `json:"af"`
	IsPublic    *bool  `json:"is_public,omitempty"`
	Size        int    `json:"size,omitempty"`
	Spread      int    `json:"spread,omitempty"`
	Type        string `json:"type,omitempty"`
	Target      string `json:"target,omitempty"`
}

// ProbeSet describes how probes are selected: a requested count plus a
// selector (country, area, asn, prefix, probes, or msm to reuse the probes
// of an earlier measurement) and tag filters.
type ProbeSet struct {
	Requested int       `json:"requested"`
	Type      string    `json:"type,omitempty"`
	Value     string    `json:"value,omitempty"`
	Tags      TagFilter `json:"tags"`
}

// TagFilter narrows which probes may be allocated.
type TagFilter struct {
	Include []string `json:"include"`
	Exclude []string `json:"exclude,omitempty"`
}

// CreateResponse is the body returned by the creation endpoint.
type CreateResponse struct {
	Measurements []int64 `json:"measurements"`
}

// StatusInfo is the status block embedded in measurement metadata.
type StatusInfo struct {
	ID   int    `json:"id,omitempty"`
	Name string `json:"name"`
}

// StatusResponse is the body of a ?fields=status query.
type StatusResponse struct {
	Status StatusInfo `json:"status"`
}

// ProbesResponse is the body of a ?fields=probes,status query.
type ProbesResponse struct {
	Status StatusInfo  `json:"status"`
	Probes []ProbeInfo `json:"probes"`
}

// ProbeInfo is one allocated probe as reported by the API. Only the ID is
// needed by the lifecycle; the rest is kept for display.
type ProbeInfo struct {
	ID          int64  `json:"id"`
	CountryCode string `json:"country_code,omitempty"`
	ASNv4       uint32 `json:"asn_v4,omitempty"`
	ASNv6       uint32 `json:"asn_v6,omitempty"`
	AddressV4   string `json:"address_v4,omitempty"`
	AddressV6   string `json:"address_v6,omitempty"`
}

// MeasurementInfo is the full metadata record for a measurement.
type MeasurementInfo struct {
	ID          int64       `json:"id"`
	Status      StatusInfo  `json:"status"`
	StartTime   int64       `json:"start_time"`
	Description string      `json:"description"`
	Interval    int         `json:"interval"`
	Probes      []ProbeInfo `json:"probes"`
}

// Start returns the measurement start time in UTC.
func (m *MeasurementInfo) Start() time.Time {
	return time.Unix(m.StartTime, 0).UTC()
}
