package models

import (
	"encoding/json"
	"time"

	"github.com/uptrace/bun"
)

// MeasurementRecord is one submitted (or attached) measurement persisted
// in the history store. Rows of the same CLI invocation share a RunID.
type MeasurementRecord struct {
	bun.BaseModel `bun:"table:measurements,alias:m"`

	ID          int64  `bun:",pk,autoincrement"`
	RunID       string `bun:",notnull"`
	MsmID       int64  `bun:",unique,notnull"`
	Type        string `bun:",notnull"`
	Target      string
	AF          int
	Description string
	Status      string
	Probes      int
	StartTime   time.Time
	CreatedAt   time.Time `bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}

// ResultRecord is one per-probe result payload persisted for a measurement.
type ResultRecord struct {
	bun.BaseModel `bun:"table:results,alias:r"`

	ID        int64           `bun:",pk,autoincrement"`
	MsmID     int64           `bun:",notnull"`
	ProbeID   int64           `bun:",notnull"`
	From      string          `bun:"from_addr"`
	Time      time.Time       `bun:",notnull"`
	Payload   json.RawMessage `bun:",type:jsonb"`
	CreatedAt time.Time       `bun:",nullzero,notnull,default:current_timestamp"`
}
