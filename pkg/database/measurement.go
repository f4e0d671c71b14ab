package database

import (
	"context"
	"fmt"

	"github.com/sycured/blaeu/pkg/models"
)

// UpsertMeasurement inserts a measurement row, or refreshes status, probe
// count, and start time when the measurement ID is already known.
func (db *DB) UpsertMeasurement(ctx context.Context, record *models.MeasurementRecord) error {
	_, err := db.NewInsert().
		Model(record).
		On("CONFLICT (msm_id) DO UPDATE").
		Set("status = EXCLUDED.status").
		Set("probes = EXCLUDED.probes").
		Set("start_time = EXCLUDED.start_time").
		Set("updated_at = CURRENT_TIMESTAMP").
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("error upserting measurement: %v", err)
	}

	return nil
}

// InsertResults stores the per-probe result payloads of one measurement.
func (db *DB) InsertResults(ctx context.Context, records []models.ResultRecord) error {
	if len(records) == 0 {
		return nil
	}

	_, err := db.NewInsert().
		Model(&records).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("error inserting results: %v", err)
	}

	return nil
}

// GetMeasurements returns the most recent measurement rows, newest first.
func (db *DB) GetMeasurements(ctx context.Context, limit int) ([]models.MeasurementRecord, error) {
	var records []models.MeasurementRecord
	q := db.NewSelect().
		Model(&records).
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("error retrieving measurements: %v", err)
	}

	return records, nil
}

// GetResults returns the stored result payloads for a measurement ID.
func (db *DB) GetResults(ctx context.Context, msmID int64) ([]models.ResultRecord, error) {
	var records []models.ResultRecord
	err := db.NewSelect().
		Model(&records).
		Where("msm_id = ?", msmID).
		Order("probe_id ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("error retrieving results: %v", err)
	}

	return records, nil
}

// GetMeasurementsByRun returns the measurement rows of one CLI invocation.
func (db *DB) GetMeasurementsByRun(ctx context.Context, runID string) ([]models.MeasurementRecord, error) {
	var records []models.MeasurementRecord
	err := db.NewSelect().
		Model(&records).
		Where("run_id = ?", runID).
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("error retrieving measurements: %v", err)
	}

	return records, nil
}
