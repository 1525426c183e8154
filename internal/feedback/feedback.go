package feedback

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	xerrors "WealthPilot/internal/errors"
	"WealthPilot/internal/storage"
	"WealthPilot/pkg/logger"
)

// Handler 处理一条来自队列的反馈消息体。
type Handler func(ctx context.Context, payload []byte) error

// Producer 负责向队列投递反馈。
type Producer interface {
	Publish(ctx context.Context, payload []byte) error
	Close() error
}

// Consumer 负责从队列消费反馈。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}

// Service 是反馈入口:校验后投递队列即返回,落库由后台工作协程完成。
type Service struct {
	queue Producer
}

// NewService 创建反馈服务。
func NewService(queue Producer) *Service {
	return &Service{queue: queue}
}

// Submit 接收一条反馈。评分只接受 1 与 -1。
func (s *Service) Submit(ctx context.Context, query, response string, rating int) error {
	if err := storage.ValidateRating(rating); err != nil {
		return err
	}

	record := storage.FeedbackRecord{
		ID:        uuid.NewString(),
		Query:     query,
		Response:  response,
		Rating:    rating,
		CreatedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码反馈失败")
	}
	if err := s.queue.Publish(ctx, payload); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "投递反馈失败")
	}
	return nil
}

// Pipeline 把队列中的反馈消费落库。
type Pipeline struct {
	queue   Consumer
	repo    storage.FeedbackRepository
	workers int
}

// NewPipeline 创建反馈消费管线。
func NewPipeline(queue Consumer, repo storage.FeedbackRepository, workers int) *Pipeline {
	if workers <= 0 {
		workers = 2
	}
	return &Pipeline{queue: queue, repo: repo, workers: workers}
}

// Run 阻塞消费直到上下文取消。
func (p *Pipeline) Run(ctx context.Context) error {
	return p.queue.Consume(ctx, p.workers, func(ctx context.Context, payload []byte) error {
		var record storage.FeedbackRecord
		if err := json.Unmarshal(payload, &record); err != nil {
			// 解码失败的消息直接丢弃,不能让脏数据阻塞队列。
			logger.L().Warn("discarding malformed feedback message", "error", err.Error())
			return nil
		}
		if err := p.repo.Save(ctx, record); err != nil {
			logger.L().Error("saving feedback failed", "id", record.ID, "error", err.Error())
			return err
		}
		logger.L().Debug("feedback stored", "id", record.ID, "rating", record.Rating)
		return nil
	})
}
