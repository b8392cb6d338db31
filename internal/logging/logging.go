// Package logging 构造进程使用的 zap logger。日志一律写 stderr，stdout 留给报告。
package logging

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	gray  = "\x1b[90m"
	reset = "\x1b[0m"
)

// Options 控制 logger 的输出。
type Options struct {
	Level string // debug/info/warn/error，空为 info
	File  string // 额外写入的日志文件（追加），空表示只写 stderr
	Color bool   // stderr 是终端时着色；写文件时始终不着色
}

// New 构造开发风格（控制台编码）的 logger。
func New(opts Options) (*zap.Logger, error) {
	lvl := strings.TrimSpace(opts.Level)
	if lvl == "" {
		lvl = "info"
	}
	level, err := zap.ParseAtomicLevel(strings.ToLower(lvl))
	if err != nil {
		return nil, fmt.Errorf("非法日志级别：%q", opts.Level)
	}

	color := opts.Color && opts.File == ""

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = level
	cfg.DisableStacktrace = true
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if opts.File != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, opts.File)
	}

	if color {
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.EncoderConfig.EncodeTime = func(t time.Time, pae zapcore.PrimitiveArrayEncoder) {
			pae.AppendString(gray + t.Format("15:04:05.000") + reset)
		}
		cfg.EncoderConfig.EncodeCaller = func(ec zapcore.EntryCaller, pae zapcore.PrimitiveArrayEncoder) {
			pae.AppendString(gray + ec.TrimmedPath() + reset)
		}
	} else {
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	}

	return cfg.Build()
}
