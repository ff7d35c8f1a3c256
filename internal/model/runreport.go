package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunLevel は実行ログエントリの重要度を表す。
type RunLevel string

const (
	// RunLevelInfo は進行状況の記録。
	RunLevelInfo RunLevel = "info"
	// RunLevelWarn は実行を中断しない問題の記録。
	RunLevelWarn RunLevel = "warn"
)

// RunEntry はレポート実行中の1件のログエントリ。
// ゾーン外のエントリはZoneを空にする。
type RunEntry struct {
	Time    time.Time
	Level   RunLevel
	Zone    string
	Message string
}

// RunReport は1回のレポート実行の構造化された記録。
// 実行全体を通して値として引き回し、呼び出し元に返す
// （インスタンスフィールドに文字列を蓄積しない）。
type RunReport struct {
	RunID       string
	JobID       string
	WindowStart time.Time
	WindowEnd   time.Time
	StartedAt   time.Time
	FinishedAt  time.Time
	Entries     []RunEntry
}

// NewRunReport は新しいRunReportを生成する。
func NewRunReport(jobID string, windowStart, windowEnd time.Time) *RunReport {
	return &RunReport{
		RunID:       uuid.NewString(),
		JobID:       jobID,
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		StartedAt:   time.Now(),
	}
}

// Infof は情報エントリを追加する。zoneはゾーン外の場合空文字でよい。
func (r *RunReport) Infof(zone, format string, args ...interface{}) {
	r.append(RunLevelInfo, zone, format, args...)
}

// Warnf は警告エントリを追加する。
func (r *RunReport) Warnf(zone, format string, args ...interface{}) {
	r.append(RunLevelWarn, zone, format, args...)
}

func (r *RunReport) append(level RunLevel, zone, format string, args ...interface{}) {
	r.Entries = append(r.Entries, RunEntry{
		Time:    time.Now(),
		Level:   level,
		Zone:    zone,
		Message: fmt.Sprintf(format, args...),
	})
}

// Warnings は警告エントリのみを返す。
func (r *RunReport) Warnings() []RunEntry {
	var warns []RunEntry
	for _, e := range r.Entries {
		if e.Level == RunLevelWarn {
			warns = append(warns, e)
		}
	}
	return warns
}

// HasWarnings は警告エントリが1件以上あるかを返す。
func (r *RunReport) HasWarnings() bool {
	return len(r.Warnings()) > 0
}

// Finish は終了時刻を記録する。
func (r *RunReport) Finish() {
	r.FinishedAt = time.Now()
}
