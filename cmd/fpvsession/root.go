package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/John-Robertt/fpvsession/internal/app/run"
	"github.com/John-Robertt/fpvsession/internal/config"
	"github.com/John-Robertt/fpvsession/internal/domain"
	"github.com/John-Robertt/fpvsession/internal/infra/cache"
	"github.com/John-Robertt/fpvsession/internal/logging"
)

// cli 持有一次进程调用的全部状态（flag 值、输出流）；命令之间不共享全局变量。
type cli struct {
	stdout io.Writer
	stderr io.Writer
	getwd  func() (string, error)

	output   string
	logLevel string
	apply    bool
	maxGap   time.Duration
}

func newCLI(stdout, stderr io.Writer) *cli {
	return &cli{stdout: stdout, stderr: stderr, getwd: os.Getwd}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "fpvsession",
		Short: "整理 FPV 飞行素材：规范命名、去重、按飞行会话归档",
		Long: `fpvsession 把存储卡上的 FPV 素材（DJI O4、眼镜录像、黑匣子、手机、图片）
原地改为规范文件名，删除完全重复的文件，再按时间间隔切分为飞行会话，
复制到输出目录并生成飞行日志。默认 dry-run，只有 --apply 才会改动磁盘。`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&c.output, "output", "o", "", "输出根目录（会话目录写在这里）")
	pf.BoolVar(&c.apply, "apply", false, "执行改名/删除/复制（默认 dry-run）；支持 --apply=false 覆盖配置")
	pf.StringVar(&c.logLevel, "log-level", "", "日志级别：debug|info|warn|error")

	root.AddCommand(
		c.pipelineCmd("run [input]", "完整流程：改名 -> 去重 -> 分组 -> 归档", run.StagesFor, false),
		c.pipelineCmd("rename [input]", "只把输入目录内的文件原地改为规范名", func(config.EffectiveConfig) run.Stages {
			return run.Stages{Rename: true}
		}, true),
		c.pipelineCmd("dedup [input]", "只删除输入目录内内容完全相同的文件", func(config.EffectiveConfig) run.Stages {
			return run.Stages{Dedup: true}
		}, true),
		c.pipelineCmd("sort [input]", "只按会话归档（假定文件已是规范名）", func(config.EffectiveConfig) run.Stages {
			return run.Stages{Sort: true}
		}, false),
		c.indexCmd(),
		c.tagsCmd(),
		c.thumbsCmd(),
	)
	return root
}

// pipelineCmd 构造基于 run.ExecuteWithObserver 的子命令；inputOnly 的命令不需要 output。
func (c *cli) pipelineCmd(use, short string, stages func(config.EffectiveConfig) run.Stages, inputOnly bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ca := c.cliArgs(cmd.Flags(), args)
			ca.InputOnly = inputOnly
			return c.runPipeline(cmd.Context(), ca, stages)
		},
	}
	if !inputOnly {
		cmd.Flags().DurationVar(&c.maxGap, "max-gap", 0, "同一会话内相邻文件的最大间隔（默认 70m）")
	}
	return cmd
}

func (c *cli) cliArgs(fs *pflag.FlagSet, args []string) config.CLIArgs {
	ca := config.CLIArgs{
		Output:   c.output,
		Apply:    c.apply,
		ApplySet: fs.Changed("apply"),
		LogLevel: c.logLevel,
	}
	if len(args) > 0 {
		ca.Input = args[0]
	}
	if f := fs.Lookup("max-gap"); f != nil && f.Changed {
		ca.MaxGap, ca.MaxGapSet = c.maxGap, true
	}
	return ca
}

func (c *cli) runPipeline(ctx context.Context, ca config.CLIArgs, stages func(config.EffectiveConfig) run.Stages) error {
	cwd, err := c.getwd()
	if err != nil {
		return fail(fmt.Errorf("读取当前目录失败：%w", err))
	}
	eff, err := config.LoadEffective(cwd, ca)
	if err != nil {
		c.emitReport(reportForConfigError(cwd, ca, err))
		return &exitError{code: 1}
	}

	log, err := c.logger(eff)
	if err != nil {
		return fail(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	progressW, interactive := c.pickProgressWriter()
	var obs run.Observer
	if interactive {
		obs = newProgressUI(progressW)
	}

	rr := run.ExecuteWithObserver(ctx, eff, stages(eff), log, obs)

	c.emitReport(rr)
	if interactive {
		emitLocations(progressW, eff)
	}
	if rr.Summary.Failed == 0 && rr.Summary.Conflicted == 0 {
		return nil
	}
	return &exitError{code: 1}
}

// loadOutputOnly 用于只读写输出目录的子命令（index/tags/thumbs）。
func (c *cli) loadOutputOnly(fs *pflag.FlagSet) (config.EffectiveConfig, *zap.Logger, error) {
	cwd, err := c.getwd()
	if err != nil {
		return config.EffectiveConfig{}, nil, fail(fmt.Errorf("读取当前目录失败：%w", err))
	}
	ca := c.cliArgs(fs, nil)
	ca.OutputOnly = true
	eff, err := config.LoadEffective(cwd, ca)
	if err != nil {
		return config.EffectiveConfig{}, nil, fail(fmt.Errorf("%s：%w", config.Code(err), err))
	}
	log, err := c.logger(eff)
	if err != nil {
		return config.EffectiveConfig{}, nil, fail(err)
	}
	return eff, log, nil
}

func (c *cli) logger(eff config.EffectiveConfig) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Level: eff.LogLevel,
		File:  eff.LogFile,
		Color: isTerminal(c.stderr),
	})
}

func (c *cli) pickProgressWriter() (io.Writer, bool) {
	// 进度输出只在交互终端启用；默认走 stderr（不污染 stdout JSON）。
	if isTerminal(c.stderr) {
		return c.stderr, true
	}
	// 某些环境（例如仅重定向 stderr）下，stdout 仍是 TTY：退化输出到 stdout。
	if isTerminal(c.stdout) {
		return c.stdout, true
	}
	return nil, false
}

func (c *cli) emitReport(rr domain.RunReport) {
	summary := fmt.Sprintf("完成：processed=%d renamed=%d deleted=%d skipped=%d conflicted=%d failed=%d sessions=%d\n",
		rr.Summary.Processed, rr.Summary.Renamed, rr.Summary.Deleted, rr.Summary.Skipped,
		rr.Summary.Conflicted, rr.Summary.Failed, rr.Summary.Sessions,
	)

	if isTerminal(c.stdout) {
		fmt.Fprint(c.stdout, summary)
		for _, line := range problemLines(rr) {
			fmt.Fprintln(c.stderr, line)
		}
		return
	}

	// stdout 非 TTY：stdout 必须且仅输出一个 RunReport JSON（日志/摘要走 stderr）。
	_ = json.NewEncoder(c.stdout).Encode(rr)
	fmt.Fprint(c.stderr, summary)
}

// problemLines 列出所有失败与冲突，每条一行，便于用户逐个修复。
func problemLines(rr domain.RunReport) []string {
	var out []string
	add := func(files []domain.FileResult) {
		for _, f := range files {
			if f.Status == domain.FileStatusFailed || f.Status == domain.FileStatusConflict {
				out = append(out, fmt.Sprintf("%s %s %s: %s", f.Src, f.Status, f.ErrorCode, f.ErrorMsg))
			}
		}
	}
	add(rr.Renames)
	add(rr.Duplicates)
	for _, s := range rr.Sessions {
		if s.Status == domain.SessionStatusFailed {
			out = append(out, fmt.Sprintf("%s/%s %s %s: %s", s.Day, s.Folder, s.Status, s.ErrorCode, s.ErrorMsg))
		}
		add(s.Files)
	}
	for _, e := range rr.Errors {
		out = append(out, fmt.Sprintf("<%s> %s: %s", e.Stage, e.ErrorCode, e.ErrorMsg))
	}
	return out
}

func reportForConfigError(cwd string, ca config.CLIArgs, err error) domain.RunReport {
	now := time.Now().UTC()
	cwdAbs, _ := filepath.Abs(cwd)
	rr := domain.RunReport{
		RunID:      uuid.NewString(),
		Input:      strings.TrimSpace(ca.Input),
		Output:     strings.TrimSpace(ca.Output),
		DryRun:     !(ca.ApplySet && ca.Apply),
		StartedAt:  now,
		FinishedAt: now,
		Errors: []domain.ErrorItem{{
			Stage:     "config",
			ErrorCode: config.Code(err),
			ErrorMsg:  err.Error(),
		}},
	}
	if rr.Input == "" {
		rr.Input = cwdAbs
	}
	rr.Finalize()
	return rr
}

func emitLocations(w io.Writer, eff config.EffectiveConfig) {
	// 这两行用于降低“完成后不知道产物在哪”的摩擦，且不影响 stdout JSON 契约。
	if w == nil || eff.Output == "" {
		return
	}
	if eff.Apply {
		fmt.Fprintf(w, "report: %s\n", filepath.Join(eff.Output, cache.StateDir, run.ReportFile))
	}
	fmt.Fprintf(w, "output: %s\n", eff.Output)
}
