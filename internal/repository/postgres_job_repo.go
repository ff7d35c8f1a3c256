package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/dlogic/tagreport/internal/model"
)

// PostgresJobRepo はPostgreSQLを使用したレポートジョブストア。
type PostgresJobRepo struct {
	db *sql.DB
}

// NewPostgresJobRepo はPostgresJobRepoを生成する。
func NewPostgresJobRepo(db *sql.DB) *PostgresJobRepo {
	return &PostgresJobRepo{db: db}
}

const jobColumns = `id, name, cron_expr, zone_ids, recipients, begin_hour,
	lookback_hours, share_path, last_status, last_error, last_run_at,
	created_at, updated_at`

// FindAll は全ジョブを取得する。
func (r *PostgresJobRepo) FindAll(ctx context.Context) ([]model.ReportJob, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM report_jobs ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("ジョブ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var jobs []model.ReportJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// FindByID は指定IDのジョブを取得する。見つからない場合はnilを返す。
func (r *PostgresJobRepo) FindByID(ctx context.Context, id string) (*model.ReportJob, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM report_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Create はジョブを作成する。
func (r *PostgresJobRepo) Create(ctx context.Context, job *model.ReportJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.LastStatus == "" {
		job.LastStatus = model.JobStatusScheduled
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO report_jobs (id, name, cron_expr, zone_ids, recipients,
		    begin_hour, lookback_hours, share_path, last_status, last_error,
		    last_run_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		job.ID, job.Name, job.CronExpr, pq.Array(job.ZoneIDs), pq.Array(job.Recipients),
		job.BeginHour, job.LookbackHours, job.SharePath, job.LastStatus, job.LastError,
		job.LastRunAt, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ジョブの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はジョブの定義を更新する。実行状態はUpdateStatusで更新する。
func (r *PostgresJobRepo) Update(ctx context.Context, job *model.ReportJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE report_jobs SET
		    name = $2, cron_expr = $3, zone_ids = $4, recipients = $5,
		    begin_hour = $6, lookback_hours = $7, share_path = $8, updated_at = $9
		 WHERE id = $1`,
		job.ID, job.Name, job.CronExpr, pq.Array(job.ZoneIDs), pq.Array(job.Recipients),
		job.BeginHour, job.LookbackHours, job.SharePath, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("ジョブの更新に失敗しました: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("ジョブが見つかりません: %s", job.ID)
	}
	return nil
}

// Delete はジョブを削除する。
func (r *PostgresJobRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM report_jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ジョブの削除に失敗しました: %w", err)
	}
	return nil
}

// UpdateStatus はジョブの実行状態を更新する。
func (r *PostgresJobRepo) UpdateStatus(ctx context.Context, id string, status model.JobStatus, lastError string, lastRunAt *time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE report_jobs SET last_status = $2, last_error = $3,
		    last_run_at = COALESCE($4, last_run_at), updated_at = $5
		 WHERE id = $1`,
		id, status, lastError, lastRunAt, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("ジョブ状態の更新に失敗しました: %w", err)
	}
	return nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通Scanインターフェース。
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*model.ReportJob, error) {
	job := &model.ReportJob{}
	var zoneIDs pq.Int64Array
	var recipients pq.StringArray
	var lastRunAt sql.NullTime

	err := row.Scan(
		&job.ID, &job.Name, &job.CronExpr, &zoneIDs, &recipients,
		&job.BeginHour, &job.LookbackHours, &job.SharePath,
		&job.LastStatus, &job.LastError, &lastRunAt,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("ジョブ行の読み取りに失敗しました: %w", err)
	}

	job.ZoneIDs = make([]int, len(zoneIDs))
	for i, v := range zoneIDs {
		job.ZoneIDs[i] = int(v)
	}
	job.Recipients = recipients
	if lastRunAt.Valid {
		t := lastRunAt.Time
		job.LastRunAt = &t
	}
	return job, nil
}
