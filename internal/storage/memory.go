package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// maxMemoryRecords 限制内存中保留的记录条数,防止长时运行无界增长。
const maxMemoryRecords = 1000

// MemoryInvocationRepository 使用本地 JSON 行文件模拟数据库,方便迭代开发。
type MemoryInvocationRepository struct {
	mu       sync.RWMutex
	dataFile string
	records  []InvocationRecord
}

// NewMemoryInvocationRepository 创建文件退化的调用日志仓库。
func NewMemoryInvocationRepository(dataDir string) (*MemoryInvocationRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	repo := &MemoryInvocationRepository{dataFile: filepath.Join(dataDir, "invocations.log")}
	if err := loadLines(repo.dataFile, &repo.records); err != nil {
		return nil, err
	}
	return repo, nil
}

// Save 以追加写的方式记录调用结果。
func (m *MemoryInvocationRepository) Save(_ context.Context, record InvocationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	if len(m.records) > maxMemoryRecords {
		m.records = m.records[len(m.records)-maxMemoryRecords:]
	}
	return appendLine(m.dataFile, record)
}

// ListLatest 返回最近的调用记录,新记录在前。
func (m *MemoryInvocationRepository) ListLatest(_ context.Context, limit int) ([]InvocationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return latest(m.records, limit), nil
}

// Close 实现 InvocationRepository。
func (m *MemoryInvocationRepository) Close() error { return nil }

// MemoryFeedbackRepository 是反馈仓库的文件退化实现。
type MemoryFeedbackRepository struct {
	mu       sync.RWMutex
	dataFile string
	records  []FeedbackRecord
}

// NewMemoryFeedbackRepository 创建文件退化的反馈仓库。
func NewMemoryFeedbackRepository(dataDir string) (*MemoryFeedbackRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	repo := &MemoryFeedbackRepository{dataFile: filepath.Join(dataDir, "feedback.log")}
	if err := loadLines(repo.dataFile, &repo.records); err != nil {
		return nil, err
	}
	return repo, nil
}

// Save 以追加写的方式记录反馈。
func (m *MemoryFeedbackRepository) Save(_ context.Context, record FeedbackRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	if len(m.records) > maxMemoryRecords {
		m.records = m.records[len(m.records)-maxMemoryRecords:]
	}
	return appendLine(m.dataFile, record)
}

// ListLatest 返回最近的反馈,新记录在前。
func (m *MemoryFeedbackRepository) ListLatest(_ context.Context, limit int) ([]FeedbackRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return latest(m.records, limit), nil
}

// Close 实现 FeedbackRepository。
func (m *MemoryFeedbackRepository) Close() error { return nil }

func latest[T any](records []T, limit int) []T {
	if limit <= 0 || limit > len(records) {
		limit = len(records)
	}
	out := make([]T, 0, limit)
	for i := len(records) - 1; i >= len(records)-limit; i-- {
		out = append(out, records[i])
	}
	return out
}

func loadLines[T any](path string, dst *[]T) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("打开数据文件失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record T
		if err := json.Unmarshal(line, &record); err != nil {
			// 跳过损坏的行,不让单条脏数据阻断启动。
			continue
		}
		*dst = append(*dst, record)
	}
	return scanner.Err()
}

func appendLine(path string, record any) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("编码记录失败: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开数据文件失败: %w", err)
	}
	defer file.Close()
	if _, err := file.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("写入数据文件失败: %w", err)
	}
	return nil
}
