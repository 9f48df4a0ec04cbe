package logger

import (
	"context"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// Init 配置全局 zerolog：Unix 时间戳 + service 字段。
func Init(service string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zlog.Logger = zlog.With().Str("service", service).Logger()
}

// Ctx 返回携带 trace_id 的 logger，便于日志与链路关联。
func Ctx(ctx context.Context) *zerolog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return &zlog.Logger
	}
	l := zlog.With().Str("trace_id", sc.TraceID().String()).Logger()
	return &l
}
