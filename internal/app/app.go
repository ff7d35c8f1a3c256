package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dlogic/tagreport/internal/cloud"
	"github.com/dlogic/tagreport/internal/config"
	"github.com/dlogic/tagreport/internal/database"
	"github.com/dlogic/tagreport/internal/delivery"
	"github.com/dlogic/tagreport/internal/handler"
	"github.com/dlogic/tagreport/internal/logger"
	"github.com/dlogic/tagreport/internal/metrics"
	"github.com/dlogic/tagreport/internal/report"
	"github.com/dlogic/tagreport/internal/repository"
	"github.com/dlogic/tagreport/internal/scheduler"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		return runHealthcheck(healthcheckPort())
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("cloud_base_url", cfg.CloudBaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// pipeline はserve/workerの両モードで共有する実行基盤一式。
type pipeline struct {
	scheduler *scheduler.Scheduler
	zoneRepo  *repository.PostgresZoneRepo
	registry  *prometheus.Registry
}

// buildPipeline はレポートパイプラインの全依存関係をワイヤリングする。
func buildPipeline(cfg *config.Config, db *sql.DB) *pipeline {
	log := slog.Default()

	// リポジトリ
	accountRepo := repository.NewPostgresAccountRepo(db)
	sensorRepo := repository.NewPostgresSensorRepo(db)
	zoneRepo := repository.NewPostgresZoneRepo(db)
	jobRepo := repository.NewPostgresJobRepo(db)

	// プロバイダクライアント（レート制限付き）
	cloudClient := cloud.NewClient(cfg.CloudBaseURL, cfg.CloudTimeout, cfg.CloudRateLimit,
		logger.WithComponent(log, "cloud"))

	// 配送シンク（グループ未設定ならnilのままスキップされる）
	var uploader report.ArchiveUploader
	if cfg.SMBEnabled() {
		uploader = delivery.NewSMBUploader(
			cfg.SMBHost, cfg.SMBShare, cfg.SMBUser, cfg.SMBPassword, cfg.SMBDomain,
			logger.WithComponent(log, "smb"))
	} else {
		slog.Info("SMB設定がないためアップロードは無効です")
	}

	var mailer report.ReportMailer
	if cfg.MailEnabled() {
		mailer = delivery.NewMailDispatcher(
			cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom,
			logger.WithComponent(log, "mail"))
	} else {
		slog.Info("SMTP設定がないためメール送信は無効です")
	}

	// メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// オーケストレータとスケジューラ
	svc := report.NewService(
		cloudClient,
		accountRepo,
		sensorRepo,
		zoneRepo,
		report.NewAggregator(sensorRepo, cloudClient, logger.WithComponent(log, "aggregator")),
		report.NewRenderer(logger.WithComponent(log, "renderer")),
		report.NewWorkspace(cfg.ReportTmpDir, logger.WithComponent(log, "workspace")),
		uploader,
		mailer,
		collector,
		logger.WithComponent(log, "report"),
	)
	sched := scheduler.New(jobRepo, svc, cfg.JobMaxRetries, logger.WithComponent(log, "scheduler"))

	return &pipeline{
		scheduler: sched,
		zoneRepo:  zoneRepo,
		registry:  registry,
	}
}

// runServe はAPIサーバーモードで起動する。
// スケジューラとオペレータAPIを同一プロセスで動かし、
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	p := buildPipeline(cfg, db)

	router := handler.NewRouter(&handler.RouterDeps{
		JobService: p.scheduler,
		Zones:      p.zoneRepo,
		Gatherer:   p.registry,
		Logger:     slog.Default(),
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	schedDone := make(chan error, 1)
	go func() {
		schedDone <- p.scheduler.Start(ctx)
	}()

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := <-schedDone; err != nil {
		return fmt.Errorf("scheduler stopped with error: %w", err)
	}

	slog.Info("stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// スケジューラのみを動かし、オペレータAPIは提供しない。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	p := buildPipeline(cfg, db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Int("max_retries", cfg.JobMaxRetries),
	)

	// スケジューラをメインgoroutineで実行（ブロッキング）
	if err := p.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("scheduler failed: %w", err)
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
