package agent

import (
	"context"
	"time"

	"smarthire-ats/internal/config"
	"smarthire-ats/internal/logger"
	"smarthire-ats/internal/ratelimit"
	"smarthire-ats/internal/types"

	"github.com/cloudwego/eino/components/model"
)

// ModelPurpose 模型用途，评估需要 JSON 输出，JD 生成需要自由文本
type ModelPurpose int

const (
	PurposeJudgment ModelPurpose = iota
	PurposeJDWriting
)

// NewChatModel 按 judgment.provider 创建对话模型，并按 QPM 包装限流与重试
func NewChatModel(ctx context.Context, cfg *config.Config, purpose ModelPurpose) (model.BaseChatModel, error) {
	if cfg == nil {
		return nil, types.NewConfigurationError("config", "配置不能为空")
	}
	jc := cfg.Judgment
	temperature := float32(jc.Temperature)

	var (
		base model.BaseChatModel
		name string
		err  error
	)
	switch jc.Provider {
	case "aliyun":
		opts := []QwenOption{WithQwenTemperature(temperature)}
		if purpose == PurposeJudgment {
			opts = append(opts, WithQwenJSONMode())
		}
		name = cfg.Aliyun.Model
		base, err = NewAliyunQwenChatModel(cfg.Aliyun.APIKey, cfg.Aliyun.Model, cfg.Aliyun.APIURL, opts...)
	case "gemini":
		if cfg.Gemini.Temperature > 0 {
			temperature = float32(cfg.Gemini.Temperature)
		}
		opts := []GeminiOption{WithGeminiTemperature(temperature)}
		if purpose == PurposeJudgment {
			opts = append(opts, WithGeminiJSONMode())
		}
		name = cfg.Gemini.Model
		base, err = NewGeminiChatModel(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, opts...)
	default:
		return nil, types.NewConfigurationError("judgment.provider", "不支持的模型提供方: %q", jc.Provider)
	}
	if err != nil {
		return nil, types.NewConfigurationError(jc.Provider, "创建对话模型失败: %v", err)
	}

	log := logger.Component("agent")
	log.Info().
		Str("provider", jc.Provider).
		Str("model", name).
		Int("qpm", jc.QPM).
		Bool("json_mode", purpose == PurposeJudgment).
		Msg("对话模型已创建")

	if jc.QPM <= 0 {
		return base, nil
	}
	return ratelimit.NewLLMWithRateLimit(base, jc.QPM, jc.MaxRetries, time.Duration(jc.RetryWaitSeconds)*time.Second), nil
}
