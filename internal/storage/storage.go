package storage

import (
	"context"
	"time"

	xerrors "WealthPilot/internal/errors"
)

// InvocationRecord 是一次能力调用的落库结构,供运维查询最近的工具调用。
type InvocationRecord struct {
	ID         string    `json:"id"`
	Capability string    `json:"capability"`
	Query      string    `json:"query"`
	Success    bool      `json:"success"`
	ErrorCode  string    `json:"error_code,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// FeedbackRecord 是一条用户反馈的落库结构。
type FeedbackRecord struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Response  string    `json:"response"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"created_at"`
}

// InvocationRepository 抽象调用日志的持久化。
type InvocationRepository interface {
	Save(ctx context.Context, record InvocationRecord) error
	ListLatest(ctx context.Context, limit int) ([]InvocationRecord, error)
	Close() error
}

// FeedbackRepository 抽象反馈数据的持久化。
type FeedbackRepository interface {
	Save(ctx context.Context, record FeedbackRecord) error
	ListLatest(ctx context.Context, limit int) ([]FeedbackRecord, error)
	Close() error
}

// ValidateRating 校验反馈评分,只接受 1 与 -1。
func ValidateRating(rating int) error {
	if rating != 1 && rating != -1 {
		return xerrors.New(xerrors.CodeInvalidArgument, "评分只能是 1 或 -1")
	}
	return nil
}
