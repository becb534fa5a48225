package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/osoriofleet/fleetkm/server/internal/lib/geofence"
)

// MetricRow is one flattened zone metric as stored in the warehouse table.
// Nullable columns use pointers: km_per_cycle is NULL for real-distance
// zones and real_distance_km is NULL for fixed-rate zones.
type MetricRow struct {
	Date           time.Time
	Vehicle        string
	ZoneID         string
	Cycles         int
	TotalKm        float64
	BillingMode    string
	KmPerCycle     *float64
	RealDistanceKm *float64
	ComputedAt     time.Time
}

// Store writes per-zone analysis results to a Postgres warehouse table that
// the reporting layer reads. Schema management is limited to creating the
// table if absent; migrations beyond that belong to the warehouse owners.
type Store struct {
	db    *sql.DB
	table string
}

// Open connects to the warehouse and verifies the connection
func Open(dsn, table string) (*Store, error) {
	if table == "" {
		table = "geofence_metrics"
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open warehouse connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping warehouse: %w", err)
	}

	return &Store{db: db, table: table}, nil
}

// Close releases the underlying connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the metrics table if it does not exist
func (s *Store) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		date             date             NOT NULL,
		vehicle          text             NOT NULL,
		zone_id          text             NOT NULL,
		cycles           integer          NOT NULL,
		total_km         double precision NOT NULL,
		billing_mode     text             NOT NULL,
		km_per_cycle     double precision,
		real_distance_km double precision,
		computed_at      timestamptz      NOT NULL,
		PRIMARY KEY (date, vehicle, zone_id)
	)`, s.table)

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("failed to ensure warehouse schema: %w", err)
	}
	return nil
}

// Rows flattens one vehicle's analysis result into warehouse rows. Pure
// function so the flattening is testable without a database.
func Rows(date time.Time, vehicle string, metrics map[string]geofence.ZoneMetric, computedAt time.Time) []MetricRow {
	rows := make([]MetricRow, 0, len(metrics))
	for _, m := range metrics {
		rows = append(rows, MetricRow{
			Date:           date,
			Vehicle:        vehicle,
			ZoneID:         m.ZoneID,
			Cycles:         m.Cycles,
			TotalKm:        m.TotalKm,
			BillingMode:    m.BillingModeStr,
			KmPerCycle:     m.KmPerCycle,
			RealDistanceKm: m.RealDistanceKm,
			ComputedAt:     computedAt,
		})
	}
	return rows
}

// InsertMetrics writes one vehicle's result set in a single transaction.
// Re-running a day upserts, so a repeated batch is idempotent.
func (s *Store) InsertMetrics(ctx context.Context, date time.Time, vehicle string, metrics map[string]geofence.ZoneMetric) error {
	rows := Rows(date, vehicle, metrics, time.Now().UTC())
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin warehouse transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s
		(date, vehicle, zone_id, cycles, total_km, billing_mode, km_per_cycle, real_distance_km, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (date, vehicle, zone_id) DO UPDATE SET
			cycles = EXCLUDED.cycles,
			total_km = EXCLUDED.total_km,
			billing_mode = EXCLUDED.billing_mode,
			km_per_cycle = EXCLUDED.km_per_cycle,
			real_distance_km = EXCLUDED.real_distance_km,
			computed_at = EXCLUDED.computed_at`, s.table))
	if err != nil {
		return fmt.Errorf("failed to prepare warehouse insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err := stmt.ExecContext(ctx,
			row.Date, row.Vehicle, row.ZoneID, row.Cycles, row.TotalKm,
			row.BillingMode, row.KmPerCycle, row.RealDistanceKm, row.ComputedAt)
		if err != nil {
			return fmt.Errorf("failed to insert metric row for %s/%s: %w", row.Vehicle, row.ZoneID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit warehouse transaction: %w", err)
	}
	return nil
}
