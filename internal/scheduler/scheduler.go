// Package scheduler はcron式によるレポートジョブの定期実行を提供する。
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dlogic/tagreport/internal/model"
)

// ErrJobNotFound は指定IDのジョブが存在しない場合のエラー。
var ErrJobNotFound = errors.New("指定されたジョブが見つかりません")

// cronParser は登録に使うものと同じ秒フィールド付き6フィールド形式のパーサ。
// 永続化前の事前検証に使う。
var cronParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// validateCronExpr はcron式を登録と同じ規則で検証する。
func validateCronExpr(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return model.NewConfigError(fmt.Sprintf("cron式が不正です (%s): %v", expr, err))
	}
	return nil
}

// JobStore はジョブストアへのアクセスのインターフェース。
type JobStore interface {
	FindAll(ctx context.Context) ([]model.ReportJob, error)
	FindByID(ctx context.Context, id string) (*model.ReportJob, error)
	Create(ctx context.Context, job *model.ReportJob) error
	Update(ctx context.Context, job *model.ReportJob) error
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id string, status model.JobStatus, lastError string, lastRunAt *time.Time) error
}

// Runner はジョブ1回分の実行のインターフェース。
type Runner interface {
	RunJob(ctx context.Context, job model.ReportJob) (*model.RunReport, error)
}

// Scheduler はジョブストアのcron式に従ってレポート実行を発火する。
// cronエントリはジョブIDだけを持ち、発火時にストアから定義を
// 読み直すため、実行中のジョブ編集は次回発火から反映される。
type Scheduler struct {
	cron       *cron.Cron
	store      JobStore
	runner     Runner
	maxRetries int
	logger     *slog.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// New はSchedulerを生成する。cron式は秒フィールド付きの6フィールド形式。
func New(store JobStore, runner Runner, maxRetries int, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:       cron.New(cron.WithSeconds(), cron.WithLocation(time.Local)),
		store:      store,
		runner:     runner,
		maxRetries: maxRetries,
		logger:     logger,
		entries:    make(map[string]cron.EntryID),
	}
}

// Start は永続化済みの全ジョブを登録してcronを起動し、ctxの
// キャンセルまでブロックする。登録に失敗したジョブはスキップして続行する。
func (s *Scheduler) Start(ctx context.Context) error {
	jobs, err := s.store.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("ジョブの読み込みに失敗しました: %w", err)
	}
	for _, job := range jobs {
		if err := s.Register(job); err != nil {
			s.logger.Error("ジョブの登録に失敗しました",
				slog.String("job_id", job.ID),
				slog.String("cron", job.CronExpr),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("スケジューラを起動します", slog.Int("jobs", len(jobs)))
	s.cron.Start()
	<-ctx.Done()

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("スケジューラを停止しました")
	return nil
}

// Register はジョブをcronに登録する。登録済みなら差し替える。
func (s *Scheduler) Register(job model.ReportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[job.ID]; ok {
		s.cron.Remove(old)
		delete(s.entries, job.ID)
	}

	jobID := job.ID
	entryID, err := s.cron.AddFunc(job.CronExpr, func() {
		if err := s.fire(context.Background(), jobID); err != nil {
			s.logger.Error("ジョブ実行が失敗しました",
				slog.String("job_id", jobID), slog.String("error", err.Error()))
		}
	})
	if err != nil {
		return model.NewConfigError(fmt.Sprintf("cron式が不正です (%s): %v", job.CronExpr, err))
	}

	s.entries[job.ID] = entryID
	s.logger.Info("ジョブを登録しました",
		slog.String("job_id", job.ID),
		slog.String("job_name", job.Name),
		slog.String("cron", job.CronExpr),
	)
	return nil
}

// Unregister はジョブのcronエントリを取り除く。未登録なら何もしない。
func (s *Scheduler) Unregister(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[jobID]; ok {
		s.cron.Remove(id)
		delete(s.entries, jobID)
		s.logger.Info("ジョブの登録を解除しました", slog.String("job_id", jobID))
	}
}

// Trigger はジョブを即時に1回実行する。スケジュールには影響しない。
func (s *Scheduler) Trigger(ctx context.Context, jobID string) error {
	return s.fire(ctx, jobID)
}

// NextRun はジョブの次回発火時刻を返す。未登録の場合はfalse。
func (s *Scheduler) NextRun(jobID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.entries[jobID]
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

// fire は発火時点のジョブ定義をストアから読み直して実行する。
// 失敗時はmaxRetries回まで再試行し、状態遷移
// running→completed | retrying→failed をストアに記録する。
func (s *Scheduler) fire(ctx context.Context, jobID string) error {
	job, err := s.store.FindByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("ジョブの取得に失敗しました: %w", err)
	}
	if job == nil {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	now := time.Now()
	if err := s.store.UpdateStatus(ctx, jobID, model.JobStatusRunning, "", &now); err != nil {
		s.logger.Error("ジョブ状態の更新に失敗しました",
			slog.String("job_id", jobID), slog.String("error", err.Error()))
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			s.logger.Warn("ジョブを再試行します",
				slog.String("job_id", jobID), slog.Int("attempt", attempt))
		}

		rep, err := s.runner.RunJob(ctx, *job)
		if err == nil {
			finished := time.Now()
			if uerr := s.store.UpdateStatus(ctx, jobID, model.JobStatusCompleted, "", &finished); uerr != nil {
				s.logger.Error("ジョブ状態の更新に失敗しました",
					slog.String("job_id", jobID), slog.String("error", uerr.Error()))
			}
			s.logger.Info("ジョブ実行が完了しました",
				slog.String("job_id", jobID),
				slog.String("run_id", rep.RunID),
				slog.Int("warnings", len(rep.Warnings())),
			)
			return nil
		}

		lastErr = err
		status := model.JobStatusRetrying
		if attempt == s.maxRetries {
			status = model.JobStatusFailed
		}
		if uerr := s.store.UpdateStatus(ctx, jobID, status, err.Error(), nil); uerr != nil {
			s.logger.Error("ジョブ状態の更新に失敗しました",
				slog.String("job_id", jobID), slog.String("error", uerr.Error()))
		}
	}

	return fmt.Errorf("再試行上限に達しました: %w", lastErr)
}

// --- ジョブ管理（オペレータAPIから利用） ---

// ListJobs は全ジョブを返す。
func (s *Scheduler) ListJobs(ctx context.Context) ([]model.ReportJob, error) {
	return s.store.FindAll(ctx)
}

// GetJob は指定IDのジョブを返す。存在しない場合はErrJobNotFound。
func (s *Scheduler) GetJob(ctx context.Context, id string) (*model.ReportJob, error) {
	job, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job, nil
}

// CreateJob はジョブを永続化してスケジュールに登録する。
// cron式は永続化の前に検証し、発火しないジョブをストアに残さない。
func (s *Scheduler) CreateJob(ctx context.Context, job *model.ReportJob) error {
	if err := validateCronExpr(job.CronExpr); err != nil {
		return err
	}
	if err := s.store.Create(ctx, job); err != nil {
		return err
	}
	return s.Register(*job)
}

// UpdateJob はジョブを更新してスケジュールを差し替える。
// cron式が不正な場合はストアも既存のスケジュールも変更しない。
func (s *Scheduler) UpdateJob(ctx context.Context, job *model.ReportJob) error {
	if err := validateCronExpr(job.CronExpr); err != nil {
		return err
	}
	existing, err := s.store.FindByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%w: %s", ErrJobNotFound, job.ID)
	}
	if err := s.store.Update(ctx, job); err != nil {
		return err
	}
	return s.Register(*job)
}

// DeleteJob はジョブを削除してスケジュールからも取り除く。
func (s *Scheduler) DeleteJob(ctx context.Context, id string) error {
	existing, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.Unregister(id)
	return nil
}
