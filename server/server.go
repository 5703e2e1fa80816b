package server

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"Replayer/cache"
	"Replayer/config"
	"Replayer/core/auth"
	"Replayer/core/compilation"
	"Replayer/core/multitrack"
	"Replayer/core/session"
	"Replayer/db"
	"Replayer/logger"
	"Replayer/model"
	"Replayer/repository"
	"Replayer/storage"
)

// MediaLinker 为音轨媒体生成可访问地址
type MediaLinker interface {
	PresignedURL(ctx context.Context, objectKey string) (string, error)
}

// Deps 服务器依赖，Compilations、Settings、Media 可以为空
type Deps struct {
	Config       *config.Config
	Session      *session.Session
	Compilations repository.CompilationRepository
	Settings     repository.SettingsRepository
	Media        MediaLinker
	Tokens       *auth.TokenManager
}

// Server HTTP/WebSocket 接口
type Server struct {
	cfg          *config.Config
	session      *session.Session
	compilations repository.CompilationRepository
	settings     repository.SettingsRepository
	media        MediaLinker
	tokens       *auth.TokenManager
	upgrader     websocket.Upgrader
}

// New 创建服务器
func New(deps Deps) *Server {
	return &Server{
		cfg:          deps.Config,
		session:      deps.Session,
		compilations: deps.Compilations,
		settings:     deps.Settings,
		media:        deps.Media,
		tokens:       deps.Tokens,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Router 注册全部路由
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)

	router.HandleFunc("/api/auth/token", s.TokenHandler).Methods(http.MethodPost)

	// 会话
	router.HandleFunc("/api/session", s.GetSessionHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/session/compilation", s.AuthMiddleware(s.LoadSessionCompilationHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/session/compilation", s.AuthMiddleware(s.ClearSessionCompilationHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/session/keys", s.AuthMiddleware(s.KeyHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/session/navigate", s.AuthMiddleware(s.NavigateHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/session/next", s.AuthMiddleware(s.commandHandler(s.session.NextCue))).Methods(http.MethodPost)
	router.HandleFunc("/api/session/previous", s.AuthMiddleware(s.commandHandler(s.session.PreviousCue))).Methods(http.MethodPost)
	router.HandleFunc("/api/session/play", s.AuthMiddleware(s.commandHandler(s.session.Play))).Methods(http.MethodPost)
	router.HandleFunc("/api/session/pause", s.AuthMiddleware(s.commandHandler(s.session.Pause))).Methods(http.MethodPost)
	router.HandleFunc("/api/session/toggle", s.AuthMiddleware(s.commandHandler(s.session.Toggle))).Methods(http.MethodPost)
	router.HandleFunc("/api/session/loop", s.AuthMiddleware(s.SetLoopHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/session/loop", s.AuthMiddleware(s.commandHandler(s.session.ClearLoop))).Methods(http.MethodDelete)

	// 音轨
	router.HandleFunc("/api/tracks/{track_id}/seek", s.AuthMiddleware(s.SeekHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/{track_id}/mute", s.AuthMiddleware(s.MuteHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/{track_id}/rate", s.AuthMiddleware(s.RateHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/tracks/{track_id}", s.AuthMiddleware(s.RemoveTrackHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/tracks/{track_id}/media", s.MediaURLHandler).Methods(http.MethodGet)

	// 合集
	router.HandleFunc("/api/compilations", s.ListCompilationsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/compilations", s.AuthMiddleware(s.SaveCompilationHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/compilations/{id}", s.GetCompilationHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/compilations/{id}", s.AuthMiddleware(s.DeleteCompilationHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/compilations/{id}/load", s.AuthMiddleware(s.LoadCompilationHandler)).Methods(http.MethodPost)

	// 设置
	router.HandleFunc("/api/settings", s.GetSettingsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/settings", s.AuthMiddleware(s.UpdateSettingsHandler)).Methods(http.MethodPut)

	router.HandleFunc("/ws/session", s.WebSocketHandler).Methods(http.MethodGet)
	return router
}

// corsMiddleware 添加 CORS 头
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400") // 24 hours

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ========== 启动 ==========

// Start 连接基础设施、启动播放会话并提供 HTTP 服务，直到收到中断信号
func Start(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := Deps{Config: cfg, Tokens: auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)}
	if !deps.Tokens.Enabled() {
		logger.Warn("未配置 JWT_SECRET，控制接口不校验令牌")
	}

	mode, err := multitrack.ParseCorrectionMode(cfg.SyncMode)
	if err != nil {
		return err
	}
	opts := session.Options{
		Settings:     cfg.Playback.Settings(),
		Multitrack:   cfg.Multitrack,
		SyncMode:     mode,
		PollInterval: cfg.SyncPollInterval,
	}

	// 基础设施不可用时降级运行，播放不受影响
	if err := cache.ConnectRedis(cfg); err != nil {
		logger.Warn("Redis 不可用，快照不会发布", logger.ErrorField(err))
	} else {
		defer cache.CloseRedis()
		opts.Publisher = cache.NewSnapshotCache(cache.RedisClient, cfg.SnapshotTTL)
	}

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Warn("数据库不可用，合集与设置不会持久化", logger.ErrorField(err))
	} else {
		defer db.CloseGormDB()
		if err := db.AutoMigrate(); err != nil {
			return err
		}
		deps.Compilations = repository.NewGormCompilationRepository(db.GormDB)
		deps.Settings = repository.NewGormSettingsRepository(db.GormDB, cfg.Playback.Settings())
		if saved, err := deps.Settings.Get(ctx); err != nil {
			logger.Warn("读取播放设置失败，使用默认值", logger.ErrorField(err))
		} else {
			opts.Settings = saved
		}
	}

	if store, err := storage.NewMediaStore(cfg); err != nil {
		logger.Warn("MinIO 不可用，媒体可用性不做检查", logger.ErrorField(err))
	} else {
		if err := store.EnsureBucket(ctx, cfg.MinioRegion); err != nil {
			logger.Warn("检查媒体存储桶失败", logger.ErrorField(err))
		}
		opts.Probe = store
		deps.Media = store
	}

	sess := session.New(opts)
	deps.Session = sess
	go sess.Run(ctx)
	go sess.Hub().Run()
	defer sess.Hub().Stop()

	if cfg.CompilationFile != "" {
		startCompilationFile(ctx, cfg, sess)
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      New(deps).Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("服务器启动", logger.String("addr", cfg.HTTPAddr), logger.String("session", sess.ID()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}
	logger.Info("正在关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	sess.Close()
	logger.Info("服务器已停止")
	return nil
}

// startCompilationFile 加载启动时指定的合集文件，按配置监听变更
func startCompilationFile(ctx context.Context, cfg *config.Config, sess *session.Session) {
	load := func(c *model.Compilation) {
		if err := sess.LoadCompilation(ctx, c); err != nil {
			logger.Warn("加载合集失败", logger.String("file", cfg.CompilationFile), logger.ErrorField(err))
		}
	}

	c, err := compilation.LoadFile(cfg.CompilationFile)
	if err != nil {
		logger.Warn("读取合集文件失败", logger.String("file", cfg.CompilationFile), logger.ErrorField(err))
	} else {
		load(c)
	}

	if !cfg.WatchCompilation {
		return
	}
	w := compilation.NewWatcher(cfg.CompilationFile, compilation.DefaultDebounce, load)
	go func() {
		if err := w.Run(ctx); err != nil {
			logger.Warn("合集文件监听退出", logger.ErrorField(err))
		}
	}()
}
