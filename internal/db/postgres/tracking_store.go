package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"docqa/internal/domain/ingest"
	applog "docqa/internal/platform/log"
)

// TrackingStore 文件摄取状态的 PostgreSQL 存储
type TrackingStore struct {
	db *sql.DB
}

// NewTrackingStore 创建状态追踪存储
func NewTrackingStore(db *sql.DB) *TrackingStore {
	return &TrackingStore{db: db}
}

// EnsureTable 确保追踪表存在
func (s *TrackingStore) EnsureTable(ctx context.Context) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS file_tracking (
		filename   VARCHAR(512) PRIMARY KEY,
		status     VARCHAR(32) NOT NULL DEFAULT 'PENDING',
		error_msg  TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_file_tracking_status ON file_tracking (status);
	`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure file_tracking table: %w", err)
	}
	applog.Info("[Postgres] File tracking table ready")
	return nil
}

// Get 按文件名查询，不存在返回 (nil, nil)
func (s *TrackingStore) Get(ctx context.Context, filename string) (*ingest.FileRecord, error) {
	var rec ingest.FileRecord
	err := s.db.QueryRowContext(ctx,
		`SELECT filename, status, error_msg, created_at, updated_at
		 FROM file_tracking WHERE filename = $1`,
		filename,
	).Scan(&rec.Filename, &rec.Status, &rec.ErrorMsg, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query file_tracking %s: %w", filename, err)
	}
	return &rec, nil
}

// Create 新建 PENDING 记录。已存在则不动，保持幂等，返回是否真正插入。
func (s *TrackingStore) Create(ctx context.Context, filename string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO file_tracking (filename, status)
		 VALUES ($1, $2)
		 ON CONFLICT (filename) DO NOTHING`,
		filename, ingest.StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("insert file_tracking %s: %w", filename, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// UpdateStatus 更新状态和错误信息，错误信息超长会被截断
func (s *TrackingStore) UpdateStatus(ctx context.Context, filename string, status ingest.FileStatus, errorMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE file_tracking
		 SET status = $2, error_msg = $3, updated_at = NOW()
		 WHERE filename = $1`,
		filename, status, ingest.TruncateErrorMsg(errorMsg),
	)
	if err != nil {
		return fmt.Errorf("update file_tracking %s -> %s: %w", filename, status, err)
	}
	return nil
}

// ResetToPending 重置为 PENDING 并清空错误信息（重新摄取用）
func (s *TrackingStore) ResetToPending(ctx context.Context, filename string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE file_tracking
		 SET status = $2, error_msg = '', updated_at = NOW()
		 WHERE filename = $1`,
		filename, ingest.StatusPending,
	)
	if err != nil {
		return fmt.Errorf("reset file_tracking %s: %w", filename, err)
	}
	return nil
}

// Delete 删除追踪记录
func (s *TrackingStore) Delete(ctx context.Context, filename string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM file_tracking WHERE filename = $1`, filename)
	if err != nil {
		return fmt.Errorf("delete file_tracking %s: %w", filename, err)
	}
	return nil
}

// List 列出全部记录，按更新时间倒序
func (s *TrackingStore) List(ctx context.Context) ([]ingest.FileRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT filename, status, error_msg, created_at, updated_at
		 FROM file_tracking ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list file_tracking: %w", err)
	}
	defer rows.Close()

	var records []ingest.FileRecord
	for rows.Next() {
		var rec ingest.FileRecord
		if err := rows.Scan(&rec.Filename, &rec.Status, &rec.ErrorMsg, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan file_tracking row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
