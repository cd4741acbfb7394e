package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wyfcoding/portfoliovaluation/internal/analytics/domain"
	"github.com/wyfcoding/portfoliovaluation/pkg/db"
	"github.com/wyfcoding/portfoliovaluation/pkg/mq"
	"github.com/wyfcoding/portfoliovaluation/pkg/utils"
)

// Outbox 消息状态
const (
	OutboxStatusPending = "pending"
	OutboxStatusSent    = "sent"
)

// OutboxMessage 事务性 Outbox 消息。
// 审计事件先与业务数据同事务落入本表，再由中继异步投递到 Kafka，
// 保证业务提交与事件投递最终一致。
type OutboxMessage struct {
	ID        string     `gorm:"column:id;type:varchar(36);primaryKey" json:"id"`
	Topic     string     `gorm:"column:topic;type:varchar(200);not null" json:"topic"`
	MsgKey    string     `gorm:"column:msg_key;type:varchar(200)" json:"msg_key"`
	Payload   []byte     `gorm:"column:payload;type:json;not null" json:"payload"`
	Status    string     `gorm:"column:status;type:varchar(20);not null;default:'pending';index:idx_outbox_status_created" json:"status"`
	CreatedAt time.Time  `gorm:"column:created_at;not null;index:idx_outbox_status_created" json:"created_at"`
	SentAt    *time.Time `gorm:"column:sent_at" json:"sent_at,omitempty"`
}

// TableName 表名
func (OutboxMessage) TableName() string { return "audit_event_outbox" }

// OutboxPublisher 审计事件发布器，实现 domain.EventPublisher。
type OutboxPublisher struct {
	topic  string
	logger *slog.Logger
}

// NewOutboxPublisher 创建发布器
func NewOutboxPublisher(topic string, logger *slog.Logger) *OutboxPublisher {
	return &OutboxPublisher{topic: topic, logger: logger}
}

// Publish 把审计事件作为 Outbox 消息写入调用方事务
func (p *OutboxPublisher) Publish(ctx context.Context, tx *gorm.DB, event *domain.AuditEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化审计事件失败: %w", err)
	}
	msg := &OutboxMessage{
		ID:        uuid.NewString(),
		Topic:     p.topic,
		MsgKey:    fmt.Sprintf("%s:%d", event.ObjectType, event.ObjectID),
		Payload:   payload,
		Status:    OutboxStatusPending,
		CreatedAt: time.Now(),
	}
	if err := tx.Create(msg).Error; err != nil {
		return fmt.Errorf("写入 outbox 失败: %w", err)
	}
	p.logger.DebugContext(ctx, "审计事件已入 outbox",
		"outbox_id", msg.ID, "action", event.Action, "object_id", event.ObjectID)
	return nil
}

// OutboxRelay 把待投递的 Outbox 消息批量发往 Kafka 的中继。
type OutboxRelay struct {
	db        *db.DB
	producer  *mq.KafkaProducer
	logger    *slog.Logger
	batchSize int
	interval  time.Duration
}

// NewOutboxRelay 创建中继
func NewOutboxRelay(database *db.DB, producer *mq.KafkaProducer, logger *slog.Logger) *OutboxRelay {
	return &OutboxRelay{
		db:        database,
		producer:  producer,
		logger:    logger,
		batchSize: 100,
		interval:  5 * time.Second,
	}
}

// Start 周期性投递，直到 ctx 取消
func (r *OutboxRelay) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox 中继退出")
			return
		case <-ticker.C:
			if err := r.RelayOnce(ctx); err != nil {
				r.logger.ErrorContext(ctx, "outbox 投递批次失败", "error", err)
			}
		}
	}
}

// RelayOnce 投递一批待发送消息。单条投递失败停止本批，下个周期重试。
func (r *OutboxRelay) RelayOnce(ctx context.Context) error {
	var messages []*OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", OutboxStatusPending).
		Order("created_at ASC").
		Limit(r.batchSize).
		Find(&messages).Error
	if err != nil {
		return err
	}

	for _, msg := range messages {
		send := func() error {
			return r.producer.SendRaw(ctx, msg.Topic, msg.MsgKey, msg.Payload)
		}
		if err := utils.Retry(ctx, 3, 200*time.Millisecond, send); err != nil {
			return fmt.Errorf("投递 outbox 消息 %s 失败: %w", msg.ID, err)
		}
		now := time.Now()
		err := r.db.WithContext(ctx).Model(msg).
			Updates(map[string]any{"status": OutboxStatusSent, "sent_at": now}).Error
		if err != nil {
			return fmt.Errorf("更新 outbox 消息 %s 状态失败: %w", msg.ID, err)
		}
	}

	if len(messages) > 0 {
		r.logger.InfoContext(ctx, "outbox 批次投递完成", "count", len(messages))
	}
	return nil
}
