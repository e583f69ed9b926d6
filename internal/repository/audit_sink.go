package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bfc-vpn/mfa-core/internal/domain"
)

const insertSecurityEvent = `
INSERT INTO security_events (id, event_type, user_id, severity, occurred_at, metadata)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO NOTHING`

// SecurityEventSink persists flushed event batches into the
// security_events table. ON CONFLICT DO NOTHING makes redelivery after
// a partially failed flush safe: event ids are assigned at record
// time, so a retried batch never duplicates rows.
type SecurityEventSink struct {
	pool *pgxpool.Pool
}

func NewSecurityEventSink(pool *pgxpool.Pool) *SecurityEventSink {
	return &SecurityEventSink{pool: pool}
}

// Flush writes the batch in a single round trip, preserving order.
func (s *SecurityEventSink) Flush(ctx context.Context, events []domain.SecurityEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, evt := range events {
		metadata, err := json.Marshal(evt.Metadata)
		if err != nil {
			return fmt.Errorf("marshal event metadata: %w", err)
		}
		batch.Queue(insertSecurityEvent,
			pgtype.UUID{Bytes: evt.ID, Valid: true},
			evt.Type,
			pgtype.UUID{Bytes: evt.UserID, Valid: true},
			evt.Severity,
			pgtype.Timestamptz{Time: evt.Timestamp, Valid: true},
			metadata,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range events {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert security event: %w", err)
		}
	}
	return nil
}

// HealthCheck verifies the sink can reach its table.
func (s *SecurityEventSink) HealthCheck(ctx context.Context) error {
	var ok int
	return s.pool.QueryRow(ctx, "SELECT 1").Scan(&ok)
}
