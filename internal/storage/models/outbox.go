package models

import (
	"time"

	"gorm.io/datatypes"
)

// OutboxMessage 与业务写入同事务落库的领域事件，由 outbox.MessageRelay 异步投递到 RabbitMQ。
// AggregateID 为申请ID或岗位ID，EventType 取 constants.EventCandidateScored / EventJobPosted。
type OutboxMessage struct {
	ID               uint64         `gorm:"primaryKey;autoIncrement"`
	AggregateID      string         `gorm:"type:varchar(64);not null;index"`
	EventType        string         `gorm:"type:varchar(64);not null"`
	Payload          datatypes.JSON `gorm:"type:json;not null"`
	TargetExchange   string         `gorm:"type:varchar(128);not null"`
	TargetRoutingKey string         `gorm:"type:varchar(128);not null"`
	Status           string         `gorm:"type:varchar(16);default:'PENDING';not null;index:idx_outbox_pending,priority:1"`
	RetryCount       int            `gorm:"default:0"`
	CreatedAt        time.Time      `gorm:"type:datetime(6);index:idx_outbox_pending,priority:2"`
	ProcessedAt      *time.Time     `gorm:"type:datetime(6)"`
	ErrorMessage     string         `gorm:"type:text"`
}

func (OutboxMessage) TableName() string {
	return "ats_outbox_messages"
}
