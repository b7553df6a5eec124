// atsctl 命令行工具：批量评分、查看岗位、查看反馈报告、本地简历分析
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"smarthire-ats/internal/config"
	appLogger "smarthire-ats/internal/logger"

	"github.com/spf13/pflag"
)

var (
	configPath = pflag.StringP("config", "c", "config/config.yaml", "配置文件路径")
	timeout    = pflag.Duration("timeout", 30*time.Minute, "整个命令的超时时间")
	asJSON     = pflag.Bool("json", false, "以JSON输出结果")
	topN       = pflag.IntP("top", "n", 0, "只显示排名前N的候选人，0表示全部")
	jobFile    = pflag.String("job-file", "", "analyze 命令使用的岗位描述文本文件")
	logLevel   = pflag.String("log-level", "warn", "日志级别")
)

const usage = `用法: atsctl [flags] <command> [args]

命令:
  process-all            对全部申请评分并输出排名
  process-job <job_id>   对某岗位下的申请评分
  process <app_id>       对单个申请评分
  jobs                   列出活跃岗位
  report <app_id>        输出已保存评分的反馈报告
  attach-resume <app_id> <file>  上传简历原文件到对象存储并关联到申请
  analyze <resume.pdf>   本地分析简历技能(可选 --job-file)，不访问数据库

flags:
`

func main() {
	pflag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		pflag.PrintDefaults()
	}
	pflag.Parse()
	args := pflag.Args()
	if len(args) == 0 {
		pflag.Usage()
		os.Exit(2)
	}

	if _, err := appLogger.Init(appLogger.Config{Level: *logLevel, Format: "pretty", TimeFormat: "15:04:05"}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, args[0], args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string) error {
	if cmd == "analyze" {
		if len(args) != 1 {
			return fmt.Errorf("analyze 需要一个PDF文件路径")
		}
		return handleAnalyze(ctx, args[0], *jobFile)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	switch cmd {
	case "process-all":
		return app.processAll(ctx)
	case "process-job":
		if len(args) != 1 {
			return fmt.Errorf("process-job 需要 job_id")
		}
		return app.processJob(ctx, args[0])
	case "process":
		if len(args) != 1 {
			return fmt.Errorf("process 需要 application_id")
		}
		return app.processOne(ctx, args[0])
	case "jobs":
		return app.listJobs(ctx)
	case "report":
		if len(args) != 1 {
			return fmt.Errorf("report 需要 application_id")
		}
		return app.report(ctx, args[0])
	case "attach-resume":
		if len(args) != 2 {
			return fmt.Errorf("attach-resume 需要 application_id 和文件路径")
		}
		return app.attachResume(ctx, args[0], args[1])
	default:
		pflag.Usage()
		return fmt.Errorf("未知命令 %q", cmd)
	}
}
