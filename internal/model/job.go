package model

import (
	"fmt"
	"net/mail"
	"time"
)

// JobStatus はレポートジョブの実行状態を表す。
type JobStatus string

const (
	// JobStatusScheduled は次回実行待ちの状態。
	JobStatusScheduled JobStatus = "scheduled"
	// JobStatusRunning は実行中の状態。
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted は直近の実行が成功した状態。
	JobStatusCompleted JobStatus = "completed"
	// JobStatusRetrying は実行が失敗しリトライ待ちの状態。
	JobStatusRetrying JobStatus = "retrying"
	// JobStatusFailed はリトライ回数を使い切って失敗した状態。
	JobStatusFailed JobStatus = "failed"
)

// ReportJob は定期レポートジョブの記述子。
// ジョブストアに永続化され、発火時にストアから再取得される
// （クロージャ参照ではなく値として扱う）。
type ReportJob struct {
	ID            string
	Name          string
	CronExpr      string
	ZoneIDs       []int
	Recipients    []string
	BeginHour     int
	LookbackHours int
	SharePath     string
	LastStatus    JobStatus
	LastError     string
	LastRunAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate はジョブパラメータの妥当性を検証する。
// 不正な場合はConfigErrorを返す。cron式の構文検証はスケジューラ側で行う。
func (j *ReportJob) Validate() error {
	if j.Name == "" {
		return NewConfigError("name が未設定です")
	}
	if j.CronExpr == "" {
		return NewConfigError("cron_expr が未設定です")
	}
	if len(j.ZoneIDs) == 0 {
		return NewConfigError("zone_ids を1件以上指定してください")
	}
	if j.BeginHour < 0 || j.BeginHour > 23 {
		return NewConfigError(fmt.Sprintf("begin_hour は0〜23で指定してください: %d", j.BeginHour))
	}
	if j.LookbackHours <= 0 {
		return NewConfigError(fmt.Sprintf("lookback_hours は1以上で指定してください: %d", j.LookbackHours))
	}
	for _, r := range j.Recipients {
		if _, err := mail.ParseAddress(r); err != nil {
			return NewConfigError(fmt.Sprintf("不正な宛先メールアドレスです: %s", r))
		}
	}
	return nil
}
