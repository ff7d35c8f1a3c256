package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dlogic/tagreport/internal/metrics"
	"github.com/dlogic/tagreport/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	JobService JobService
	Zones      ZoneLister
	Gatherer   prometheus.Gatherer
	Logger     *slog.Logger
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを
// 構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	jobHandler := NewJobHandler(deps.JobService, deps.Logger)
	zoneHandler := NewZoneHandler(deps.Zones)

	// 死活監視とスクレイプ
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	// ジョブ管理
	r.Route("/api/jobs", func(r chi.Router) {
		r.Get("/", jobHandler.ListJobs)
		r.Post("/", jobHandler.CreateJob)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", jobHandler.GetJob)
			r.Put("/", jobHandler.UpdateJob)
			r.Delete("/", jobHandler.DeleteJob)
			r.Post("/trigger", jobHandler.TriggerJob)
		})
	})

	// ゾーン参照
	r.Get("/api/zones", zoneHandler.ListZones)

	return r
}
