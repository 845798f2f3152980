package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"wisefido-hrv/internal/models"
)

// ErrSessionNotFound 会话不存在
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository 会话汇总仓库（hrv_sessions 表）
type SessionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSessionRepository 创建会话仓库
func NewSessionRepository(db *sql.DB, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{
		db:     db,
		logger: logger,
	}
}

const createSessionsTable = `
CREATE TABLE IF NOT EXISTS hrv_sessions (
	session_id   UUID PRIMARY KEY,
	started_at   TIMESTAMPTZ NOT NULL,
	ended_at     TIMESTAMPTZ NOT NULL,
	stop_reason  TEXT NOT NULL,
	intervals    INTEGER[] NOT NULL,
	mean_ppi     DOUBLE PRECISION,
	mean_hr      DOUBLE PRECISION,
	sdnn         DOUBLE PRECISION,
	rmssd        DOUBLE PRECISION,
	sns_index    DOUBLE PRECISION,
	pns_index    DOUBLE PRECISION,
	label        TEXT,
	failure      TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// EnsureSchema 建表（幂等）
func (r *SessionRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createSessionsTable); err != nil {
		return fmt.Errorf("failed to create hrv_sessions: %w", err)
	}
	return nil
}

// Record 保存会话汇总；相同 session_id 重复写入时忽略
func (r *SessionRepository) Record(ctx context.Context, rec *models.SessionRecord) error {
	if rec.SessionID == "" {
		return fmt.Errorf("session_id is required")
	}

	var meanPPI, meanHR, sdnn, rmssd, sns, pns sql.NullFloat64
	if rec.Metrics != nil {
		meanPPI = sql.NullFloat64{Float64: rec.Metrics.MeanPPI, Valid: true}
		meanHR = sql.NullFloat64{Float64: rec.Metrics.MeanHR, Valid: true}
		sdnn = sql.NullFloat64{Float64: rec.Metrics.SDNN, Valid: true}
		rmssd = sql.NullFloat64{Float64: rec.Metrics.RMSSD, Valid: true}
	}
	if rec.Indices != nil {
		sns = sql.NullFloat64{Float64: rec.Indices.SNS, Valid: true}
		pns = sql.NullFloat64{Float64: rec.Indices.PNS, Valid: true}
	}

	intervals := make([]int64, len(rec.Intervals))
	for i, v := range rec.Intervals {
		intervals[i] = int64(v)
	}

	query := `
		INSERT INTO hrv_sessions (
			session_id, started_at, ended_at, stop_reason, intervals,
			mean_ppi, mean_hr, sdnn, rmssd, sns_index, pns_index, label, failure
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (session_id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.SessionID, rec.StartedAt, rec.EndedAt, string(rec.StopReason), pq.Array(intervals),
		meanPPI, meanHR, sdnn, rmssd, sns, pns,
		nullString(string(rec.Label)), nullString(rec.Failure),
	)
	if err != nil {
		r.logger.Error("Failed to insert session",
			zap.String("session_id", rec.SessionID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// Get 按 session_id 查询
func (r *SessionRepository) Get(ctx context.Context, sessionID string) (*models.SessionRecord, error) {
	query := `
		SELECT session_id, started_at, ended_at, stop_reason, intervals,
		       mean_ppi, mean_hr, sdnn, rmssd, sns_index, pns_index, label, failure
		FROM hrv_sessions
		WHERE session_id = $1
	`
	rec, err := scanSession(r.db.QueryRowContext(ctx, query, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return rec, nil
}

// ListRecent 按结束时间倒序返回最近 limit 个会话
func (r *SessionRepository) ListRecent(ctx context.Context, limit int) ([]*models.SessionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT session_id, started_at, ended_at, stop_reason, intervals,
		       mean_ppi, mean_hr, sdnn, rmssd, sns_index, pns_index, label, failure
		FROM hrv_sessions
		ORDER BY ended_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(s scanner) (*models.SessionRecord, error) {
	var (
		rec                                    models.SessionRecord
		stopReason                             string
		intervals                              pq.Int64Array
		meanPPI, meanHR, sdnn, rmssd, sns, pns sql.NullFloat64
		label, failure                         sql.NullString
	)
	if err := s.Scan(
		&rec.SessionID, &rec.StartedAt, &rec.EndedAt, &stopReason, &intervals,
		&meanPPI, &meanHR, &sdnn, &rmssd, &sns, &pns, &label, &failure,
	); err != nil {
		return nil, err
	}

	rec.StopReason = models.StopReason(stopReason)
	rec.Intervals = make([]int, len(intervals))
	for i, v := range intervals {
		rec.Intervals[i] = int(v)
	}
	if meanPPI.Valid {
		rec.Metrics = &models.HRVMetrics{
			MeanPPI: meanPPI.Float64,
			MeanHR:  meanHR.Float64,
			SDNN:    sdnn.Float64,
			RMSSD:   rmssd.Float64,
		}
	}
	if sns.Valid && pns.Valid {
		rec.Indices = &models.AutonomicIndices{SNS: sns.Float64, PNS: pns.Float64}
	}
	rec.Label = models.StressLabel(label.String)
	rec.Failure = failure.String
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
