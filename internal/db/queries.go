package db

import (
	"context"
	"fmt"
	"time"

	"github.com/HanTheDev/relationship-coach-api/internal/models"
)

func (db *DB) LogAccess(ctx context.Context, log *models.AccessLog) error {
	query := `
        INSERT INTO access_logs (request_id, client_key, mode, tone_mode, outcome, status_code, response_time_ms, request_size, response_size, timestamp)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id
    `

	ts := log.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	err := db.Pool.QueryRow(ctx, query,
		log.RequestID,
		log.ClientKey,
		string(log.Mode),
		string(log.ToneMode),
		log.Outcome,
		log.StatusCode,
		log.ResponseTimeMs,
		log.RequestSize,
		log.ResponseSize,
		ts,
	).Scan(&log.ID)
	if err != nil {
		return fmt.Errorf("db: log access: %w", err)
	}
	return nil
}

// AccessStats aggregates a client's access log rows by outcome.
func (db *DB) AccessStats(ctx context.Context, clientKey string) (*models.AccessStats, error) {
	query := `
        SELECT outcome, COUNT(*), COALESCE(AVG(response_time_ms), 0), MAX(timestamp)
        FROM access_logs
        WHERE client_key = $1
        GROUP BY outcome
    `

	rows, err := db.Pool.Query(ctx, query, clientKey)
	if err != nil {
		return nil, fmt.Errorf("db: access stats: %w", err)
	}
	defer rows.Close()

	stats := &models.AccessStats{ClientKey: clientKey, ByOutcome: map[string]int{}}
	var latencySum float64
	for rows.Next() {
		var (
			outcome  string
			count    int64
			avg      float64
			lastSeen time.Time
		)
		if err := rows.Scan(&outcome, &count, &avg, &lastSeen); err != nil {
			return nil, fmt.Errorf("db: scan access stats: %w", err)
		}
		stats.ByOutcome[outcome] = int(count)
		stats.TotalRequests += count
		latencySum += avg * float64(count)
		if stats.LastSeen == nil || lastSeen.After(*stats.LastSeen) {
			seen := lastSeen
			stats.LastSeen = &seen
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: access stats: %w", err)
	}
	if stats.TotalRequests > 0 {
		stats.AvgLatencyMs = latencySum / float64(stats.TotalRequests)
	}
	return stats, nil
}
