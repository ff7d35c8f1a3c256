// Package handler はオペレータ向けのジョブ管理APIを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dlogic/tagreport/internal/model"
	"github.com/dlogic/tagreport/internal/scheduler"
)

// JobService はジョブハンドラーが必要とするスケジューラ操作のインターフェース。
type JobService interface {
	ListJobs(ctx context.Context) ([]model.ReportJob, error)
	GetJob(ctx context.Context, id string) (*model.ReportJob, error)
	CreateJob(ctx context.Context, job *model.ReportJob) error
	UpdateJob(ctx context.Context, job *model.ReportJob) error
	DeleteJob(ctx context.Context, id string) error
	Trigger(ctx context.Context, id string) error
	NextRun(id string) (time.Time, bool)
}

// JobHandler はレポートジョブ管理のHTTPハンドラー。
type JobHandler struct {
	service JobService
	logger  *slog.Logger
}

// NewJobHandler はJobHandlerを生成する。
func NewJobHandler(service JobService, logger *slog.Logger) *JobHandler {
	return &JobHandler{service: service, logger: logger}
}

// jobRequest はジョブ作成・更新リクエストのボディ。
type jobRequest struct {
	Name          string   `json:"name"`
	CronExpr      string   `json:"cron_expr"`
	ZoneIDs       []int    `json:"zone_ids"`
	Recipients    []string `json:"recipients"`
	BeginHour     int      `json:"begin_hour"`
	LookbackHours int      `json:"lookback_hours"`
	SharePath     string   `json:"share_path"`
}

// jobResponse はジョブ情報のAPIレスポンス。
type jobResponse struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	CronExpr      string     `json:"cron_expr"`
	ZoneIDs       []int      `json:"zone_ids"`
	Recipients    []string   `json:"recipients"`
	BeginHour     int        `json:"begin_hour"`
	LookbackHours int        `json:"lookback_hours"`
	SharePath     string     `json:"share_path"`
	LastStatus    string     `json:"last_status"`
	LastError     string     `json:"last_error,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
}

func (h *JobHandler) toResponse(job *model.ReportJob) jobResponse {
	resp := jobResponse{
		ID:            job.ID,
		Name:          job.Name,
		CronExpr:      job.CronExpr,
		ZoneIDs:       job.ZoneIDs,
		Recipients:    job.Recipients,
		BeginHour:     job.BeginHour,
		LookbackHours: job.LookbackHours,
		SharePath:     job.SharePath,
		LastStatus:    string(job.LastStatus),
		LastError:     job.LastError,
		LastRunAt:     job.LastRunAt,
	}
	if next, ok := h.service.NextRun(job.ID); ok {
		resp.NextRunAt = &next
	}
	return resp
}

// ListJobs は全ジョブを返す。
// GET /api/jobs
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		resp = append(resp, h.toResponse(&jobs[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetJob はジョブ詳細を返す。
// GET /api/jobs/:id
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toResponse(job))
}

// CreateJob はジョブを作成してスケジュールに登録する。
// POST /api/jobs
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "リクエストボディの解析に失敗しました",
		})
		return
	}

	job := model.ReportJob{
		ID:            uuid.NewString(),
		Name:          req.Name,
		CronExpr:      req.CronExpr,
		ZoneIDs:       req.ZoneIDs,
		Recipients:    req.Recipients,
		BeginHour:     req.BeginHour,
		LookbackHours: req.LookbackHours,
		SharePath:     req.SharePath,
		LastStatus:    model.JobStatusScheduled,
	}
	if err := h.service.CreateJob(r.Context(), &job); err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("ジョブを作成しました",
		slog.String("job_id", job.ID), slog.String("job_name", job.Name))
	writeJSON(w, http.StatusCreated, h.toResponse(&job))
}

// UpdateJob はジョブを更新してスケジュールを差し替える。
// PUT /api/jobs/:id
func (h *JobHandler) UpdateJob(w http.ResponseWriter, r *http.Request) {
	var req jobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiErrorResponse{
			Code:    "INVALID_REQUEST",
			Message: "リクエストボディの解析に失敗しました",
		})
		return
	}

	job := model.ReportJob{
		ID:            chi.URLParam(r, "id"),
		Name:          req.Name,
		CronExpr:      req.CronExpr,
		ZoneIDs:       req.ZoneIDs,
		Recipients:    req.Recipients,
		BeginHour:     req.BeginHour,
		LookbackHours: req.LookbackHours,
		SharePath:     req.SharePath,
	}
	if err := h.service.UpdateJob(r.Context(), &job); err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("ジョブを更新しました", slog.String("job_id", job.ID))
	writeJSON(w, http.StatusOK, h.toResponse(&job))
}

// DeleteJob はジョブを削除してスケジュールから取り除く。
// DELETE /api/jobs/:id
func (h *JobHandler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.service.DeleteJob(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	h.logger.Info("ジョブを削除しました", slog.String("job_id", id))
	w.WriteHeader(http.StatusNoContent)
}

// TriggerJob はジョブを即時実行する。実行はバックグラウンドで行い、
// 受理した時点で202を返す。
// POST /api/jobs/:id/trigger
func (h *JobHandler) TriggerJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.service.GetJob(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	go func() {
		if err := h.service.Trigger(context.Background(), id); err != nil {
			h.logger.Error("手動実行が失敗しました",
				slog.String("job_id", id), slog.String("error", err.Error()))
		}
	}()

	h.logger.Info("手動実行を受け付けました", slog.String("job_id", id))
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": id, "status": "triggered"})
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError はサービス層のエラーをHTTPステータスに対応付ける。
// 検証エラーは400、未知のジョブは404、それ以外は500。
func writeError(w http.ResponseWriter, err error) {
	var ce *model.ConfigError
	switch {
	case errors.As(err, &ce):
		writeJSON(w, http.StatusBadRequest, apiErrorResponse{
			Code:    model.ErrCodeConfigInvalid,
			Message: ce.Reason,
		})
	case errors.Is(err, scheduler.ErrJobNotFound):
		writeJSON(w, http.StatusNotFound, apiErrorResponse{
			Code:    "NOT_FOUND",
			Message: err.Error(),
		})
	default:
		writeJSON(w, http.StatusInternalServerError, apiErrorResponse{
			Code:    "INTERNAL_ERROR",
			Message: "内部エラーが発生しました",
		})
	}
}
