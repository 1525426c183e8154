package session

import (
	"time"

	"github.com/google/uuid"

	"WealthPilot/internal/capability"
)

// Role 标识对话轮次的发言方。
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn 是一条对话记录,追加后不再修改。
type Turn struct {
	ID          string                  `json:"id"`
	Role        Role                    `json:"role"`
	Content     string                  `json:"content"`
	Invocations []capability.Invocation `json:"invocations,omitempty"`
	Confidence  float64                 `json:"confidence,omitempty"`
	Citations   []string                `json:"citations,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
}

// PendingWrite 是一笔已物化、等待确认的写操作。
// 同一会话同一时刻至多存在一笔;确认、取消或会话重置时清除。
type PendingWrite struct {
	Capability string            `json:"capability"`
	Params     capability.Params `json:"params"`
	Summary    string            `json:"summary"`
	Warnings   []string          `json:"warnings,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Session 是一次逻辑会话的全部状态。
type Session struct {
	ID                   string        `json:"id"`
	Turns                []Turn        `json:"turns"`
	PendingWrite         *PendingWrite `json:"pending_write,omitempty"`
	AwaitingConfirmation bool          `json:"awaiting_confirmation"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// New 创建空会话。id 为空时生成 UUID。
func New(id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now()
	return &Session{ID: id, CreatedAt: now, UpdatedAt: now}
}

// AppendUserTurn 追加一条用户发言。
func (s *Session) AppendUserTurn(content string) {
	s.Turns = append(s.Turns, Turn{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	})
	s.UpdatedAt = time.Now()
}

// AppendAssistantTurn 追加一条助手回复及其调用记录。
func (s *Session) AppendAssistantTurn(content string, invocations []capability.Invocation, confidence float64, citations []string) {
	s.Turns = append(s.Turns, Turn{
		ID:          uuid.NewString(),
		Role:        RoleAssistant,
		Content:     content,
		Invocations: invocations,
		Confidence:  confidence,
		Citations:   citations,
		CreatedAt:   time.Now(),
	})
	s.UpdatedAt = time.Now()
}

// SetPendingWrite 登记待确认写操作,同时置位确认标记。
// 调用方负责保证此前没有未决写操作或已显式替换。
func (s *Session) SetPendingWrite(pw *PendingWrite) {
	s.PendingWrite = pw
	s.AwaitingConfirmation = pw != nil
	s.UpdatedAt = time.Now()
}

// ClearPendingWrite 清除待确认写操作与确认标记。
func (s *Session) ClearPendingWrite() {
	s.PendingWrite = nil
	s.AwaitingConfirmation = false
	s.UpdatedAt = time.Now()
}

// ResetConfirmation 在会话状态损坏时使用:保留历史,仅清除确认状态。
func (s *Session) ResetConfirmation() {
	s.ClearPendingWrite()
}

// Clone 深拷贝会话,避免存储与调用方共享可变状态。
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Turns = make([]Turn, len(s.Turns))
	copy(clone.Turns, s.Turns)
	if s.PendingWrite != nil {
		pw := *s.PendingWrite
		pw.Params = s.PendingWrite.Params.Clone()
		clone.PendingWrite = &pw
	}
	return &clone
}
