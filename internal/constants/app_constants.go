package constants

import "time"

const (
	// ServiceName 服务名，用于追踪与日志
	ServiceName = "smarthire-ats"

	// 岗位状态
	JobStatusDraft     = "DRAFT"
	JobStatusPublished = "PUBLISHED"

	// 申请状态
	ApplicationStatusApplied = "APPLIED"
	ApplicationStatusScored  = "SCORED"

	// 事件类型，同时作为 outbox 的 EventType
	EventCandidateScored = "candidate.scored"
	EventJobPosted       = "job.posted"

	// outbox 消息状态
	OutboxStatusPending   = "PENDING"
	OutboxStatusPublished = "PUBLISHED"
	OutboxStatusFailed    = "FAILED"

	// OutboxMaxRetries 超过后标记为 FAILED
	OutboxMaxRetries = 5

	// JDEmbeddingCacheDuration JD 向量缓存默认过期时间
	JDEmbeddingCacheDuration = 24 * time.Hour
	// ApplicationLockDuration 单个申请评分锁的最长持有时间
	ApplicationLockDuration = 10 * time.Minute
)
