package bootstrap

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	zlog "github.com/rs/zerolog/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"
)

// AppCtx 暴露给各服务注册自己路由的上下文。
type AppCtx struct {
	Mux *http.ServeMux
}

// Worker 是一个跟随进程生命周期的后台任务（Reaper、快照落库、Kafka 消费等）。
// ctx 取消后必须尽快返回。
type Worker func(ctx context.Context) error

// AppInfo 包含启动一个服务所需的所有特定信息。
type AppInfo struct {
	ServiceName      string
	Addr             string
	RegisterHandlers func(appCtx AppCtx)
	Workers          []Worker
	TracerProvider   *sdktrace.TracerProvider
}

// StartService 封装通用的启动和优雅关停逻辑：
// HTTP Server + 后台 Worker 统一交给 errgroup 管理，收到退出信号后
// 按顺序关停 HTTP、Worker、TracerProvider。
func StartService(info AppInfo) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux})
	}
	server := &http.Server{Addr: info.Addr, Handler: mux}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zlog.Info().Str("addr", info.Addr).Msgf("%s listening", info.ServiceName)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	for _, w := range info.Workers {
		worker := w
		g.Go(func() error { return worker(gctx) })
	}

	// 阻塞直到收到退出信号或任一组件出错
	<-gctx.Done()
	zlog.Info().Msgf("shutting down %s...", info.ServiceName)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Err(err).Msg("error shutting down http server")
	}

	if err := g.Wait(); err != nil && err != context.Canceled {
		zlog.Error().Err(err).Msg("component exited with error")
	}

	// 最后关闭 TracerProvider，确保缓冲的 trace 都被发送出去
	if info.TracerProvider != nil {
		if err := info.TracerProvider.Shutdown(shutdownCtx); err != nil {
			zlog.Error().Err(err).Msg("error shutting down tracer provider")
		}
	}

	zlog.Info().Msgf("%s gracefully shut down", info.ServiceName)
}
