package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dlogic/tagreport/internal/model"
	"github.com/dlogic/tagreport/internal/scheduler"
)

// --- モック定義 ---

type mockJobService struct {
	listJobsFunc  func(ctx context.Context) ([]model.ReportJob, error)
	getJobFunc    func(ctx context.Context, id string) (*model.ReportJob, error)
	createJobFunc func(ctx context.Context, job *model.ReportJob) error
	updateJobFunc func(ctx context.Context, job *model.ReportJob) error
	deleteJobFunc func(ctx context.Context, id string) error
	triggerFunc   func(ctx context.Context, id string) error
	triggered     chan string
}

func (m *mockJobService) ListJobs(ctx context.Context) ([]model.ReportJob, error) {
	if m.listJobsFunc != nil {
		return m.listJobsFunc(ctx)
	}
	return nil, nil
}

func (m *mockJobService) GetJob(ctx context.Context, id string) (*model.ReportJob, error) {
	if m.getJobFunc != nil {
		return m.getJobFunc(ctx, id)
	}
	return nil, scheduler.ErrJobNotFound
}

func (m *mockJobService) CreateJob(ctx context.Context, job *model.ReportJob) error {
	if m.createJobFunc != nil {
		return m.createJobFunc(ctx, job)
	}
	return nil
}

func (m *mockJobService) UpdateJob(ctx context.Context, job *model.ReportJob) error {
	if m.updateJobFunc != nil {
		return m.updateJobFunc(ctx, job)
	}
	return nil
}

func (m *mockJobService) DeleteJob(ctx context.Context, id string) error {
	if m.deleteJobFunc != nil {
		return m.deleteJobFunc(ctx, id)
	}
	return nil
}

func (m *mockJobService) Trigger(ctx context.Context, id string) error {
	if m.triggered != nil {
		m.triggered <- id
	}
	if m.triggerFunc != nil {
		return m.triggerFunc(ctx, id)
	}
	return nil
}

func (m *mockJobService) NextRun(id string) (time.Time, bool) {
	return time.Time{}, false
}

type mockZoneLister struct {
	findAllFunc         func(ctx context.Context) ([]model.Zone, error)
	findSensorUUIDsFunc func(ctx context.Context, zoneID int) ([]uuid.UUID, error)
}

func (m *mockZoneLister) FindAll(ctx context.Context) ([]model.Zone, error) {
	if m.findAllFunc != nil {
		return m.findAllFunc(ctx)
	}
	return nil, nil
}

func (m *mockZoneLister) FindSensorUUIDs(ctx context.Context, zoneID int) ([]uuid.UUID, error) {
	if m.findSensorUUIDsFunc != nil {
		return m.findSensorUUIDsFunc(ctx, zoneID)
	}
	return nil, nil
}

func testRouter(svc JobService, zones ZoneLister) http.Handler {
	return NewRouter(&RouterDeps{
		JobService: svc,
		Zones:      zones,
		Gatherer:   prometheus.NewRegistry(),
		Logger:     slog.New(slog.NewJSONHandler(io.Discard, nil)),
	})
}

func sampleJob() model.ReportJob {
	return model.ReportJob{
		ID:            uuid.NewString(),
		Name:          "朝次レポート",
		CronExpr:      "0 0 8 * * *",
		ZoneIDs:       []int{1, 2},
		Recipients:    []string{"ops@example.com"},
		BeginHour:     8,
		LookbackHours: 24,
		SharePath:     `reports\daily`,
		LastStatus:    model.JobStatusScheduled,
	}
}

// --- テスト ---

func TestListJobs(t *testing.T) {
	job := sampleJob()
	router := testRouter(&mockJobService{
		listJobsFunc: func(ctx context.Context) ([]model.ReportJob, error) {
			return []model.ReportJob{job}, nil
		},
	}, &mockZoneLister{})

	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp []jobResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}
	if len(resp) != 1 || resp[0].ID != job.ID {
		t.Errorf("レスポンス = %+v", resp)
	}
	if resp[0].LastStatus != "scheduled" {
		t.Errorf("last_status = %q, want scheduled", resp[0].LastStatus)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	router := testRouter(&mockJobService{}, &mockZoneLister{})

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+uuid.NewString(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	var resp apiErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}
	if resp.Code != "NOT_FOUND" {
		t.Errorf("code = %q, want NOT_FOUND", resp.Code)
	}
}

func TestCreateJob(t *testing.T) {
	var created *model.ReportJob
	router := testRouter(&mockJobService{
		createJobFunc: func(ctx context.Context, job *model.ReportJob) error {
			created = job
			return nil
		},
	}, &mockZoneLister{})

	body, _ := json.Marshal(jobRequest{
		Name:          "夜間レポート",
		CronExpr:      "0 0 20 * * *",
		ZoneIDs:       []int{3},
		Recipients:    []string{"night@example.com"},
		BeginHour:     20,
		LookbackHours: 12,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	if created == nil || created.Name != "夜間レポート" {
		t.Fatalf("作成されたジョブ = %+v", created)
	}
	if created.ID == "" {
		t.Error("サーバー側でIDが採番されるべき")
	}
	if created.LastStatus != model.JobStatusScheduled {
		t.Errorf("初期状態 = %q, want scheduled", created.LastStatus)
	}
}

func TestCreateJob_ValidationError(t *testing.T) {
	router := testRouter(&mockJobService{
		createJobFunc: func(ctx context.Context, job *model.ReportJob) error {
			return model.NewConfigError("ジョブ名は必須です")
		},
	}, &mockZoneLister{})

	body, _ := json.Marshal(jobRequest{CronExpr: "0 0 8 * * *"})
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var resp apiErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}
	if resp.Code != model.ErrCodeConfigInvalid {
		t.Errorf("code = %q, want %s", resp.Code, model.ErrCodeConfigInvalid)
	}
}

func TestCreateJob_MalformedBody(t *testing.T) {
	router := testRouter(&mockJobService{}, &mockZoneLister{})

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewReader([]byte("{broken")))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestUpdateJob_NotFound(t *testing.T) {
	router := testRouter(&mockJobService{
		updateJobFunc: func(ctx context.Context, job *model.ReportJob) error {
			return scheduler.ErrJobNotFound
		},
	}, &mockZoneLister{})

	body, _ := json.Marshal(jobRequest{Name: "x", CronExpr: "0 0 8 * * *"})
	req := httptest.NewRequest(http.MethodPut, "/api/jobs/"+uuid.NewString(), bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestDeleteJob(t *testing.T) {
	var deleted string
	router := testRouter(&mockJobService{
		deleteJobFunc: func(ctx context.Context, id string) error {
			deleted = id
			return nil
		},
	}, &mockZoneLister{})

	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodDelete, "/api/jobs/"+id, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want 204", w.Code)
	}
	if deleted != id {
		t.Errorf("削除ID = %q, want %q", deleted, id)
	}
}

func TestTriggerJob(t *testing.T) {
	job := sampleJob()
	svc := &mockJobService{
		getJobFunc: func(ctx context.Context, id string) (*model.ReportJob, error) {
			return &job, nil
		},
		triggered: make(chan string, 1),
	}
	router := testRouter(svc, &mockZoneLister{})

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/"+job.ID+"/trigger", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", w.Code)
	}
	select {
	case id := <-svc.triggered:
		if id != job.ID {
			t.Errorf("実行ID = %q, want %q", id, job.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("バックグラウンド実行が開始されるべき")
	}
}

func TestTriggerJob_NotFound(t *testing.T) {
	router := testRouter(&mockJobService{}, &mockZoneLister{})

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/"+uuid.NewString()+"/trigger", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestListZones(t *testing.T) {
	sensorUUID := uuid.New()
	router := testRouter(&mockJobService{}, &mockZoneLister{
		findAllFunc: func(ctx context.Context) ([]model.Zone, error) {
			return []model.Zone{{ID: 1, Name: "倉庫A"}}, nil
		},
		findSensorUUIDsFunc: func(ctx context.Context, zoneID int) ([]uuid.UUID, error) {
			return []uuid.UUID{sensorUUID}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/zones", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp []zoneResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("レスポンスの解析に失敗: %v", err)
	}
	if len(resp) != 1 || resp[0].Name != "倉庫A" {
		t.Errorf("レスポンス = %+v", resp)
	}
	if len(resp[0].SensorUUIDs) != 1 || resp[0].SensorUUIDs[0] != sensorUUID.String() {
		t.Errorf("sensor_uuids = %v", resp[0].SensorUUIDs)
	}
}

func TestListZones_RepoErrorIs500(t *testing.T) {
	router := testRouter(&mockJobService{}, &mockZoneLister{
		findAllFunc: func(ctx context.Context) ([]model.Zone, error) {
			return nil, errors.New("db down")
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/zones", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	router := testRouter(&mockJobService{}, &mockZoneLister{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("/health status = %d, want 200", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("/metrics status = %d, want 200", w.Code)
	}
}
