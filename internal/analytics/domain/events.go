package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// 审计动作
const (
	ActionMarkOfficial   = "MARK_VALUATION_OFFICIAL"
	ActionUnmarkOfficial = "UNMARK_VALUATION_OFFICIAL"
	ActionRunExecuted    = "VALUATION_RUN_EXECUTED"
)

// AuditEvent 审计事件。Metadata 为任意键值对，随事件一同发布。
type AuditEvent struct {
	OrgID      uint           `json:"org_id"`
	Actor      string         `json:"actor"`
	Action     string         `json:"action"`
	ObjectType string         `json:"object_type"`
	ObjectID   uint           `json:"object_id"`
	ObjectRepr string         `json:"object_repr,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// EventPublisher 审计事件发布接口。实现采用事务性 Outbox，
// 事件先与业务数据同事务落库，再由中继异步投递。
type EventPublisher interface {
	Publish(ctx context.Context, tx *gorm.DB, event *AuditEvent) error
}
