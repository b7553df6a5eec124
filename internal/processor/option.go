package processor

import (
	"time"

	"smarthire-ats/internal/parser"

	"github.com/rs/zerolog"
)

// ComponentOpt 组件选项类型，仅改变 Components 结构体内的字段
type ComponentOpt func(*Components)

// SettingOpt 设置选项类型，仅改变 Settings 结构体内的字段
type SettingOpt func(*Settings)

// ----- 组件选项 -----

// WithcompSource 设置申请数据源
func WithcompSource(source ApplicationSource) ComponentOpt {
	return func(c *Components) {
		c.Source = source
	}
}

// WithcompStore 设置结果存储
func WithcompStore(store ResultStore) ComponentOpt {
	return func(c *Components) {
		c.Store = store
	}
}

// WithcompPdfextractor 设置PDF提取器组件
func WithcompPdfextractor(extractor PDFExtractor) ComponentOpt {
	return func(c *Components) {
		c.PDFExtractor = extractor
	}
}

// WithcompChunker 设置分块器
func WithcompChunker(chunker *parser.WindowChunker) ComponentOpt {
	return func(c *Components) {
		c.Chunker = chunker
	}
}

// WithcompSkillanalyzer 设置技能分析器
func WithcompSkillanalyzer(analyzer *parser.SkillAnalyzer) ComponentOpt {
	return func(c *Components) {
		c.SkillAnalyzer = analyzer
	}
}

// WithcompSimilarity 设置相似度引擎
func WithcompSimilarity(engine *SimilarityEngine) ComponentOpt {
	return func(c *Components) {
		c.Similarity = engine
	}
}

// WithcompEvaluator 设置定性评估器
func WithcompEvaluator(evaluator QualitativeEvaluator) ComponentOpt {
	return func(c *Components) {
		c.Evaluator = evaluator
	}
}

// WithcompAggregator 设置分数聚合器
func WithcompAggregator(aggregator *ScoreAggregator) ComponentOpt {
	return func(c *Components) {
		c.Aggregator = aggregator
	}
}

// WithcompLocker 设置申请级处理锁（可选）
func WithcompLocker(locker ApplicationLocker) ComponentOpt {
	return func(c *Components) {
		c.Locker = locker
	}
}

// ----- 设置选项 -----

// WithsetWorkers 设置批处理并发数
func WithsetWorkers(workers int) SettingOpt {
	return func(s *Settings) {
		if workers > 0 {
			s.Workers = workers
		}
	}
}

// WithsetExternalTimeout 设置单次外部调用超时
func WithsetExternalTimeout(d time.Duration) SettingOpt {
	return func(s *Settings) {
		if d > 0 {
			s.ExternalTimeout = d
		}
	}
}

// WithsetLogger 设置日志记录器
func WithsetLogger(l zerolog.Logger) SettingOpt {
	return func(s *Settings) {
		s.Logger = &l
	}
}

// WithsetClock 设置时间源，测试中用于固定 computed_at
func WithsetClock(now func() time.Time) SettingOpt {
	return func(s *Settings) {
		if now != nil {
			s.Now = now
		}
	}
}
