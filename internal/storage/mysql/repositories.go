package mysql

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/go-sql-driver/mysql"

	xerrors "WealthPilot/internal/errors"
	"WealthPilot/internal/storage"
)

// SQLInvocationRepository 把能力调用日志持久化到 MySQL。
type SQLInvocationRepository struct {
	db *sql.DB
}

// NewSQLInvocationRepository 建立连接并初始化表结构。
func NewSQLInvocationRepository(ctx context.Context, cfg Config) (*SQLInvocationRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}
	repo := &SQLInvocationRepository{db: db}
	if err := repo.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

var _ storage.InvocationRepository = (*SQLInvocationRepository)(nil)

func (r *SQLInvocationRepository) initSchema(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS invocation_logs (
    id VARCHAR(64) NOT NULL PRIMARY KEY,
    capability VARCHAR(64) NOT NULL,
    query TEXT NOT NULL,
    success TINYINT(1) NOT NULL,
    error_code VARCHAR(64) NOT NULL DEFAULT '',
    duration_ms BIGINT NOT NULL,
    created_at BIGINT NOT NULL,
    INDEX idx_invocation_created (created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 invocation_logs 表失败")
	}
	return nil
}

// Save 写入一条调用记录。
func (r *SQLInvocationRepository) Save(ctx context.Context, record storage.InvocationRecord) error {
	const insert = `INSERT INTO invocation_logs
    (id, capability, query, success, error_code, duration_ms, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, insert,
		record.ID, record.Capability, record.Query, boolToInt(record.Success),
		record.ErrorCode, record.DurationMS, record.CreatedAt.UnixMilli())
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入调用记录失败")
	}
	return nil
}

// ListLatest 返回最近的调用记录,新记录在前。
func (r *SQLInvocationRepository) ListLatest(ctx context.Context, limit int) ([]storage.InvocationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT id, capability, query, success, error_code, duration_ms, created_at
FROM invocation_logs ORDER BY created_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询调用记录失败")
	}
	defer rows.Close()

	var records []storage.InvocationRecord
	for rows.Next() {
		var rec storage.InvocationRecord
		var success int
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.Capability, &rec.Query, &success,
			&rec.ErrorCode, &rec.DurationMS, &createdAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析调用记录失败")
		}
		rec.Success = success == 1
		rec.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历调用记录失败")
	}
	return records, nil
}

// Close 释放连接池。
func (r *SQLInvocationRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// SQLFeedbackRepository 把用户反馈持久化到 MySQL。
type SQLFeedbackRepository struct {
	db *sql.DB
}

// NewSQLFeedbackRepository 建立连接并初始化表结构。
func NewSQLFeedbackRepository(ctx context.Context, cfg Config) (*SQLFeedbackRepository, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}
	repo := &SQLFeedbackRepository{db: db}
	if err := repo.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

var _ storage.FeedbackRepository = (*SQLFeedbackRepository)(nil)

func (r *SQLFeedbackRepository) initSchema(ctx context.Context) error {
	const ddl = `CREATE TABLE IF NOT EXISTS feedback (
    id VARCHAR(64) NOT NULL PRIMARY KEY,
    query TEXT NOT NULL,
    response MEDIUMTEXT NOT NULL,
    rating TINYINT NOT NULL,
    created_at BIGINT NOT NULL,
    INDEX idx_feedback_created (created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 feedback 表失败")
	}
	return nil
}

// Save 写入一条反馈。
func (r *SQLFeedbackRepository) Save(ctx context.Context, record storage.FeedbackRecord) error {
	if err := storage.ValidateRating(record.Rating); err != nil {
		return err
	}
	const insert = `INSERT INTO feedback (id, query, response, rating, created_at)
VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, insert,
		record.ID, record.Query, record.Response, record.Rating, record.CreatedAt.UnixMilli())
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "插入反馈失败")
	}
	return nil
}

// ListLatest 返回最近的反馈,新记录在前。
func (r *SQLFeedbackRepository) ListLatest(ctx context.Context, limit int) ([]storage.FeedbackRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT id, query, response, rating, created_at
FROM feedback ORDER BY created_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询反馈失败")
	}
	defer rows.Close()

	var records []storage.FeedbackRecord
	for rows.Next() {
		var rec storage.FeedbackRecord
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.Query, &rec.Response, &rec.Rating, &createdAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析反馈失败")
		}
		rec.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历反馈失败")
	}
	return records, nil
}

// Close 释放连接池。
func (r *SQLFeedbackRepository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
