package storage

import (
	"context"
	"fmt"
	"strings"

	"smarthire-ats/internal/config"
	"smarthire-ats/internal/logger"
)

// Storage 存储管理器，聚合所有存储相关依赖
type Storage struct {
	// 对象存储
	MinIO *MinIO

	// 消息队列
	RabbitMQ *RabbitMQ

	// 向量数据库
	Qdrant *Qdrant

	// 关系型数据库
	MySQL *MySQL

	// 键值存储
	Redis *Redis
}

// NewStorage 创建存储管理器。MySQL 是必需的，其余组件未配置或初始化失败时降级运行
func NewStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}
	log := logger.Component("storage")

	s := &Storage{}
	var err error
	var initErrors []string

	s.MySQL, err = NewMySQL(&cfg.MySQL)
	if err != nil {
		return nil, fmt.Errorf("初始化MySQL失败: %w", err)
	}

	if cfg.MinIO.Endpoint != "" {
		s.MinIO, err = NewMinIO(ctx, &cfg.MinIO)
		if err != nil {
			initErrors = append(initErrors, fmt.Sprintf("MinIO: %v", err))
		}
	}

	if cfg.RabbitMQ.URL != "" {
		s.RabbitMQ, err = NewRabbitMQ(&cfg.RabbitMQ)
		if err != nil {
			initErrors = append(initErrors, fmt.Sprintf("RabbitMQ: %v", err))
		}
	}

	if cfg.Qdrant.Endpoint != "" {
		s.Qdrant, err = NewQdrant(ctx, &cfg.Qdrant)
		if err != nil {
			initErrors = append(initErrors, fmt.Sprintf("Qdrant: %v", err))
		}
	}

	if cfg.Redis.Address != "" {
		s.Redis, err = NewRedis(ctx, &cfg.Redis)
		if err != nil {
			initErrors = append(initErrors, fmt.Sprintf("Redis: %v", err))
		}
	}

	if len(initErrors) > 0 {
		log.Warn().Str("errors", strings.Join(initErrors, "; ")).Msg("部分存储组件初始化失败，降级运行")
	}
	return s, nil
}

// Repository 基于已初始化的组件构建 ATS 仓储
func (s *Storage) Repository(routing EventRouting) *ATSRepository {
	var objects ResumeObjects
	if s.MinIO != nil {
		objects = s.MinIO
	}
	var vectors VectorIndex
	if s.Qdrant != nil {
		vectors = s.Qdrant
	}
	return NewATSRepository(s.MySQL.DB(), objects, vectors, routing)
}

// Health 返回各组件的连通性，未配置的组件不出现在结果中
func (s *Storage) Health(ctx context.Context) map[string]error {
	status := map[string]error{}
	if s.MySQL != nil {
		status["mysql"] = s.MySQL.Ping(ctx)
	}
	if s.Redis != nil {
		status["redis"] = s.Redis.Ping(ctx)
	}
	if s.MinIO != nil {
		status["minio"] = s.MinIO.Ping(ctx)
	}
	if s.RabbitMQ != nil {
		status["rabbitmq"] = s.RabbitMQ.Ping(ctx)
	}
	if s.Qdrant != nil {
		_, err := s.Qdrant.CountPoints(ctx)
		status["qdrant"] = err
	}
	return status
}

// Close 关闭所有连接
func (s *Storage) Close() {
	log := logger.Component("storage")
	if s.RabbitMQ != nil {
		if err := s.RabbitMQ.Close(); err != nil {
			log.Error().Err(err).Msg("关闭RabbitMQ连接失败")
		}
	}
	if s.MySQL != nil {
		if err := s.MySQL.Close(); err != nil {
			log.Error().Err(err).Msg("关闭MySQL连接失败")
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Error().Err(err).Msg("关闭Redis连接失败")
		}
	}
}
