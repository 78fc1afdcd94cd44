package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"kaomi/internal/config"
	"kaomi/internal/generated"
	"kaomi/internal/log"
	"kaomi/internal/stream"
)

// Server はHTTPサーバーを管理する構造体
type Server struct {
	config     *config.Config
	engine     *gin.Engine
	httpServer *http.Server
	sessions   *stream.Sessions
	logger     *slog.Logger

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// New は新しいServerインスタンスを作成する
// storeは顔検出が無効な場合nilでよい
func New(ctx context.Context, cfg *config.Config, source CameraSource, store DetectionStore) (*Server, error) {
	spec, err := loadSpec(ctx)
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	logger := log.With("component", "server")

	s := &Server{
		config:   cfg,
		engine:   gin.New(),
		sessions: stream.NewSessions(),
		logger:   logger,
		shutdown: make(chan struct{}),
	}

	handler := &KaomiHandler{
		config: cfg,
		source: source,
		publisher: stream.NewPublisher(source,
			stream.WithBoundary(cfg.Stream.Boundary),
			stream.WithFrameInterval(cfg.Stream.FrameInterval),
		),
		sessions: s.sessions,
		store:    store,
		spec:     spec,
		shutdown: s.shutdown,
	}

	s.engine.Use(gin.Recovery(), requestLogger(logger), requestValidator(spec.router))
	generated.RegisterHandlersWithOptions(s.engine, handler, generated.GinServerOptions{
		ErrorHandler: func(c *gin.Context, err error, statusCode int) {
			abortWithError(c, statusCode, "invalid_parameter", err.Error())
		},
	})

	s.httpServer = &http.Server{
		Addr:         cfg.ServerAddress(),
		Handler:      s.engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout, // ストリーム配信のため0（無制限）を推奨
	}

	return s, nil
}

// Handler はルーティング済みのhttp.Handlerを返す
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Sessions は配信中のセッションを返す
func (s *Server) Sessions() *stream.Sessions {
	return s.sessions
}

// Start はサーバーを起動し、ctxのキャンセルかシグナルで停止する
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("サーバーの起動に失敗: %w", err)
	}
	return s.Serve(ctx, listener)
}

// Serve は指定されたリスナーでサーバーを動かす
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	// シャットダウン用のチャンネル
	serveErr := make(chan error, 1)

	// サーバーを別ゴルーチンで起動
	go func() {
		s.logger.Info("HTTPサーバーを起動しています", "address", listener.Addr().String())
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("サーバーの起動に失敗: %w", err)
		}
	}()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	// コンテキストかシグナルを待つ
	select {
	case <-ctx.Done():
		s.logger.Info("コンテキストがキャンセルされました")
	case sig := <-sigCh:
		s.logger.Info("シグナルを受信しました", "signal", sig.String())
	case err := <-serveErr:
		return err
	}

	// グレースフルシャットダウン
	return s.Shutdown()
}

// Shutdown はサーバーをグレースフルにシャットダウンする
// 配信中のストリームには終了を通知し、各ストリームはClosedで終わる
func (s *Server) Shutdown() error {
	s.logger.Info("サーバーをシャットダウンしています...", "streams", s.sessions.Count())
	s.shutdownOnce.Do(func() { close(s.shutdown) })

	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("サーバーのシャットダウンに失敗: %w", err)
	}

	s.logger.Info("サーバーが正常にシャットダウンされました")
	return nil
}
