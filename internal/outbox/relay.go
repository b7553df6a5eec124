// Package outbox 实现发件箱模式：业务事务内写入事件行，由中继异步发布到消息代理。
package outbox

import (
	"context"
	"time"

	"smarthire-ats/internal/constants"
	"smarthire-ats/internal/storage/models"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultPollingInterval = 5 * time.Second
	defaultBatchSize       = 10
)

// Publisher 消息发布器，由 storage.RabbitMQ 实现
type Publisher interface {
	PublishMessage(ctx context.Context, exchangeName, routingKey string, message []byte, persistent bool) error
}

// MessageRelay 轮询 outbox 表并将消息发布到消息代理。
type MessageRelay struct {
	db              *gorm.DB
	publisher       Publisher
	logger          zerolog.Logger
	pollingInterval time.Duration
	batchSize       int
	maxRetries      int
	now             func() time.Time
	done            chan struct{}
	stopped         chan struct{}
	tracer          trace.Tracer
}

// Option 配置 MessageRelay
type Option func(*MessageRelay)

// WithPollingInterval 设置轮询间隔
func WithPollingInterval(d time.Duration) Option {
	return func(r *MessageRelay) {
		if d > 0 {
			r.pollingInterval = d
		}
	}
}

// WithBatchSize 设置每批处理的消息数
func WithBatchSize(n int) Option {
	return func(r *MessageRelay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithClock 注入时钟
func WithClock(now func() time.Time) Option {
	return func(r *MessageRelay) {
		r.now = now
	}
}

// NewMessageRelay 创建一个新的 MessageRelay 实例。
func NewMessageRelay(db *gorm.DB, publisher Publisher, logger zerolog.Logger, opts ...Option) *MessageRelay {
	r := &MessageRelay{
		db:              db,
		publisher:       publisher,
		logger:          logger,
		pollingInterval: defaultPollingInterval,
		batchSize:       defaultBatchSize,
		maxRetries:      constants.OutboxMaxRetries,
		now:             time.Now,
		done:            make(chan struct{}),
		stopped:         make(chan struct{}),
		tracer:          otel.Tracer("outbox-relay"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start 开始消息中继的轮询过程。
func (r *MessageRelay) Start() {
	r.logger.Info().Dur("interval", r.pollingInterval).Msg("MessageRelay starting")
	ticker := time.NewTicker(r.pollingInterval)

	go func() {
		defer close(r.stopped)
		for {
			select {
			case <-r.done:
				ticker.Stop()
				r.logger.Info().Msg("MessageRelay stopped")
				return
			case <-ticker.C:
				if err := r.processPendingMessages(context.Background()); err != nil {
					r.logger.Error().Err(err).Msg("Error processing pending messages")
				}
			}
		}
	}()
}

// Stop 停止轮询并等待当前批次结束。
func (r *MessageRelay) Stop() {
	close(r.done)
	<-r.stopped
}

// processPendingMessages 获取并处理一批来自 outbox 表的待处理消息。
func (r *MessageRelay) processPendingMessages(ctx context.Context) error {
	var messages []models.OutboxMessage

	// 空轮询不创建 span
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return tx.Error
	}
	defer tx.Rollback()

	// SKIP LOCKED 保证多实例部署时不会重复拾取同一条消息
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ?", constants.OutboxStatusPending).
		Order("created_at asc").
		Limit(r.batchSize).
		Find(&messages).Error
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return tx.Commit().Error
	}

	ctx, span := r.tracer.Start(ctx, "outbox.ProcessBatch",
		trace.WithAttributes(attribute.Int("messaging.batch.message_count", len(messages))),
	)
	defer span.End()

	r.publishBatch(ctx, messages)

	for i := range messages {
		// 更新失败时整批回滚，消息在下一次轮询中重新拾取
		if err := tx.Save(&messages[i]).Error; err != nil {
			r.logger.Error().Err(err).Uint64("id", messages[i].ID).Msg("Failed to update outbox message")
			return err
		}
	}
	return tx.Commit().Error
}

// publishBatch 逐条发布并就地更新消息状态
func (r *MessageRelay) publishBatch(ctx context.Context, messages []models.OutboxMessage) {
	for i := range messages {
		msg := &messages[i]
		err := r.publisher.PublishMessage(ctx, msg.TargetExchange, msg.TargetRoutingKey, []byte(msg.Payload), true)
		if err != nil {
			msg.RetryCount++
			msg.ErrorMessage = err.Error()
			if msg.RetryCount >= r.maxRetries {
				msg.Status = constants.OutboxStatusFailed
			}
			r.logger.Warn().Err(err).
				Uint64("id", msg.ID).
				Str("aggregate_id", msg.AggregateID).
				Str("event_type", msg.EventType).
				Int("retries", msg.RetryCount).
				Msg("Failed to publish outbox message")
			continue
		}
		now := r.now()
		msg.Status = constants.OutboxStatusPublished
		msg.ProcessedAt = &now
		msg.ErrorMessage = ""
	}
}
