package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smarthire-ats/internal/agent"
	"smarthire-ats/internal/api/handler"
	"smarthire-ats/internal/api/router"
	"smarthire-ats/internal/config"
	appLogger "smarthire-ats/internal/logger"
	"smarthire-ats/internal/outbox"
	"smarthire-ats/internal/parser"
	"smarthire-ats/internal/processor"
	"smarthire-ats/internal/storage"
	"smarthire-ats/internal/tracing"
	"smarthire-ats/internal/workflow"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"
)

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "config/config.yaml", "Path to config file")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		appLogger.Fatal().Err(err).Msg("加载配置失败")
	}

	logCloser, err := appLogger.Init(appLogger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
		FilePath:     cfg.Logger.FilePath,
	})
	if err != nil {
		appLogger.Fatal().Err(err).Msg("初始化日志失败")
	}
	if logCloser != nil {
		defer logCloser.Close()
	}
	glog.SetLogger(hertzadapter.From(appLogger.Logger))
	glog.SetLevel(hertzLevel(cfg.Logger.Level))
	log := appLogger.Component("main")
	log.Info().Str("config", configPath).Msg("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.InitProvider(ctx, cfg.Tracing)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化链路追踪失败")
	}

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化存储失败")
	}
	defer storageManager.Close()
	log.Info().Msg("存储服务初始化成功")

	repo := storageManager.Repository(storage.EventRouting{
		Exchange:            cfg.RabbitMQ.ATSEventsExchange,
		ScoredRoutingKey:    cfg.RabbitMQ.ScoredRoutingKey,
		JobPostedRoutingKey: cfg.RabbitMQ.JobPostedRoutingKey,
	})

	var messageRelay *outbox.MessageRelay
	if storageManager.RabbitMQ != nil {
		messageRelay = outbox.NewMessageRelay(storageManager.MySQL.DB(), storageManager.RabbitMQ, appLogger.Component("outbox"),
			outbox.WithPollingInterval(config.GetDuration(cfg.RabbitMQ.RelayInterval, 5*time.Second)),
			outbox.WithBatchSize(cfg.RabbitMQ.RelayBatchSize),
		)
		messageRelay.Start()
		log.Info().Msg("消息中继服务已启动")
	} else {
		log.Warn().Msg("RabbitMQ 未配置，outbox 事件保持待发布状态")
	}

	embedder, err := parser.NewAliyunEmbedder(cfg.Aliyun.APIKey, cfg.Aliyun.Embedding)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化阿里云Embedder失败")
	}

	pdfExtractor, err := parser.NewPDFExtractorFromConfig(ctx, cfg.ATS)
	if err != nil {
		log.Fatal().Err(err).Msg("创建PDF提取器失败")
	}
	log.Info().Str("backend", cfg.ATS.PDFExtractor).Msg("PDF提取器初始化成功")

	judgmentModel, err := agent.NewChatModel(ctx, cfg, agent.PurposeJudgment)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化评估模型失败")
	}

	caps := processor.Capabilities{
		Embedder:  embedder,
		Judgment:  judgmentModel,
		Extractor: pdfExtractor,
	}
	var extra []processor.ComponentOpt
	if storageManager.Redis != nil {
		caps.JDCache = storageManager.Redis
		extra = append(extra, processor.WithcompLocker(storageManager.Redis))
	}

	atsProcessor, err := processor.CreateProcessorFromConfig(cfg, caps, repo, repo, extra...)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化ATS处理器失败")
	}
	log.Info().Int("workers", cfg.ATS.Workers).Msg("ATS处理器初始化成功")

	var jdGenerator workflow.JDGenerator
	jdModel, err := agent.NewChatModel(ctx, cfg, agent.PurposeJDWriting)
	if err != nil {
		log.Warn().Err(err).Msg("JD写作模型不可用，使用模板生成JD")
		jdGenerator = workflow.NewLLMJDGenerator(nil)
	} else {
		jdGenerator = workflow.NewLLMJDGenerator(jdModel)
	}

	hiring, err := workflow.New(repo, atsProcessor, jdGenerator, cfg.Workflow)
	if err != nil {
		log.Fatal().Err(err).Msg("初始化招聘流程失败")
	}

	var searcher handler.CandidateSearcher
	if storageManager.Qdrant != nil {
		searcher = storageManager.Qdrant
	}

	tracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
		tracer,
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))
	h.Use(func(c context.Context, ctx *app.RequestContext) {
		start := time.Now()
		ctx.Next(c)
		glog.CtxInfof(c, "%s %s -> %d (%s)", string(ctx.Method()), string(ctx.Path()), ctx.Response.StatusCode(), time.Since(start))
	})

	router.RegisterRoutes(h, router.Handlers{
		ATS:      handler.NewATSHandler(atsProcessor),
		Scores:   handler.NewScoreHandler(repo),
		Jobs:     handler.NewJobHandler(atsProcessor, repo, searcher),
		Workflow: handler.NewWorkflowHandler(hiring),
		Health:   handler.NewHealthHandler(storageManager),
		Resumes:  handler.NewResumeHandler(repo),
	}, cfg.Server.APIKeys)
	if len(cfg.Server.APIKeys) == 0 {
		log.Warn().Msg("未配置 API key，/api/v1 不做鉴权")
	}

	log.Info().Str("address", cfg.Server.Address).Msg("HTTP 服务器启动中")
	go func() {
		if err := h.Run(); err != nil {
			log.Fatal().Err(err).Msg("启动HTTP服务器失败")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("接收到终止信号，正在优雅退出...")

	if messageRelay != nil {
		messageRelay.Stop()
		log.Info().Msg("消息中继服务已停止")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("服务器关闭失败")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("链路追踪关闭失败")
	}
	log.Info().Msg("优雅退出完成")
}

func hertzLevel(level string) glog.Level {
	switch level {
	case "debug":
		return glog.LevelDebug
	case "warn":
		return glog.LevelWarn
	case "error":
		return glog.LevelError
	default:
		return glog.LevelInfo
	}
}
