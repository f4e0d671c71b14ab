package models

import (
	"encoding/json"
	"time"
)

// Result is a single per-probe measurement record. The lifecycle only
// counts records and reads the probe identity; the full payload is kept
// verbatim in Raw for the caller (and for jsonb storage).
type Result struct {
	Firmware  int    `json:"fw,omitempty"`
	MsmID     int64  `json:"msm_id,omitempty"`
	ProbeID   int64  `json:"prb_id,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	MsmName   string `json:"msm_name,omitempty"`
	From      string `json:"from,omitempty"`
	Type      string `json:"type,omitempty"`
	AF        int    `json:"af,omitempty"`
	DstAddr   string `json:"dst_addr,omitempty"`
	SrcAddr   string `json:"src_addr,omitempty"`

	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the known fields and keeps the whole record in Raw.
func (r *Result) UnmarshalJSON(data []byte) error {
	type alias Result
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = Result(a)
	r.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON emits the original record when present, so round-tripping a
// fetched result loses nothing.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Raw != nil {
		return r.Raw, nil
	}
	type alias Result
	return json.Marshal(alias(r))
}

// Time returns the record timestamp in UTC.
func (r *Result) Time() time.Time {
	return time.Unix(r.Timestamp, 0).UTC()
}
