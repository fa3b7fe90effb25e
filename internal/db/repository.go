package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/minbarhq/minbar/internal/health"
)

// Repository persists communication logs and provider health rows.
type Repository struct {
	db     *DB
	logger *zap.Logger
}

func NewRepository(db *DB, logger *zap.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// InsertCommunicationLog appends one audit row for a delivery chain.
func (r *Repository) InsertCommunicationLog(ctx context.Context, entry *CommunicationLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	query := `
		INSERT INTO communication_logs (
			id, user_id, comm_type, provider, recipient, message_id,
			success, error_message, cost, context, response_time_ms,
			country_code, raw_response
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		)
		RETURNING created_at
	`

	err := r.db.Pool().QueryRow(
		ctx,
		query,
		entry.ID,
		entry.UserID,
		entry.CommType,
		entry.Provider,
		entry.Recipient,
		entry.MessageID,
		entry.Success,
		entry.ErrorMessage,
		entry.Cost,
		entry.Context,
		entry.ResponseTimeMs,
		entry.CountryCode,
		entry.RawResponse,
	).Scan(&entry.CreatedAt)

	if err != nil {
		r.logger.Error("failed to insert communication log",
			zap.Error(err),
			zap.String("log_id", entry.ID.String()),
		)
		return fmt.Errorf("insert communication log: %w", err)
	}

	return nil
}

// UpsertProviderHealth mirrors one tracker snapshot into the provider_health
// table, keyed on (provider, country_code).
func (r *Repository) UpsertProviderHealth(ctx context.Context, snap health.Snapshot) error {
	query := `
		INSERT INTO provider_health (
			provider, country_code, total_attempts, successful_attempts,
			failed_attempts, consecutive_failures, average_response_time_ms,
			average_cost, is_healthy, last_success_at, last_failure_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW()
		)
		ON CONFLICT (provider, country_code) DO UPDATE SET
			total_attempts = EXCLUDED.total_attempts,
			successful_attempts = EXCLUDED.successful_attempts,
			failed_attempts = EXCLUDED.failed_attempts,
			consecutive_failures = EXCLUDED.consecutive_failures,
			average_response_time_ms = EXCLUDED.average_response_time_ms,
			average_cost = EXCLUDED.average_cost,
			is_healthy = EXCLUDED.is_healthy,
			last_success_at = EXCLUDED.last_success_at,
			last_failure_at = EXCLUDED.last_failure_at,
			updated_at = NOW()
	`

	_, err := r.db.Pool().Exec(ctx, query,
		snap.Provider,
		snap.Country,
		snap.TotalAttempts,
		snap.SuccessfulAttempts,
		snap.FailedAttempts,
		snap.ConsecutiveFailures,
		snap.AverageResponseTimeMs,
		snap.AverageCost,
		snap.IsHealthy,
		nullableTime(snap.LastSuccessAt),
		nullableTime(snap.LastFailureAt),
	)
	if err != nil {
		r.logger.Error("failed to upsert provider health",
			zap.Error(err),
			zap.String("provider", snap.Provider),
			zap.String("country", snap.Country),
		)
		return fmt.Errorf("upsert provider health: %w", err)
	}

	return nil
}

// ListProviderHealth returns persisted health rows, optionally filtered by
// country. Rows come back ordered for stable status output.
func (r *Repository) ListProviderHealth(ctx context.Context, country string) ([]*ProviderHealth, error) {
	query := `
		SELECT
			provider, country_code, total_attempts, successful_attempts,
			failed_attempts, consecutive_failures, average_response_time_ms,
			average_cost, is_healthy, last_success_at, last_failure_at, updated_at
		FROM provider_health
		WHERE ($1 = '' OR country_code = $1)
		ORDER BY country_code, provider
	`

	rows, err := r.db.Pool().Query(ctx, query, country)
	if err != nil {
		return nil, fmt.Errorf("query provider health: %w", err)
	}
	defer rows.Close()

	var out []*ProviderHealth
	for rows.Next() {
		var ph ProviderHealth
		if err := rows.Scan(
			&ph.Provider,
			&ph.CountryCode,
			&ph.TotalAttempts,
			&ph.SuccessfulAttempts,
			&ph.FailedAttempts,
			&ph.ConsecutiveFailures,
			&ph.AverageResponseTimeMs,
			&ph.AverageCost,
			&ph.IsHealthy,
			&ph.LastSuccessAt,
			&ph.LastFailureAt,
			&ph.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan provider health: %w", err)
		}
		out = append(out, &ph)
	}

	return out, rows.Err()
}

// ListCommunicationLogs returns the most recent audit rows for a user.
func (r *Repository) ListCommunicationLogs(ctx context.Context, userID string, limit int) ([]*CommunicationLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
		SELECT
			id, user_id, comm_type, provider, recipient, message_id,
			success, error_message, cost, context, response_time_ms,
			country_code, raw_response, created_at
		FROM communication_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query communication logs: %w", err)
	}
	defer rows.Close()

	var out []*CommunicationLog
	for rows.Next() {
		var entry CommunicationLog
		if err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.CommType,
			&entry.Provider,
			&entry.Recipient,
			&entry.MessageID,
			&entry.Success,
			&entry.ErrorMessage,
			&entry.Cost,
			&entry.Context,
			&entry.ResponseTimeMs,
			&entry.CountryCode,
			&entry.RawResponse,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan communication log: %w", err)
		}
		out = append(out, &entry)
	}

	return out, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
