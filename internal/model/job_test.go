package model

import (
	"errors"
	"testing"
)

func validJob() *ReportJob {
	return &ReportJob{
		ID:            "job-1",
		Name:          "日次レポート",
		CronExpr:      "0 0 8 * * *",
		ZoneIDs:       []int{1, 2},
		Recipients:    []string{"ops@example.com"},
		BeginHour:     8,
		LookbackHours: 24,
		SharePath:     "reports\\daily",
	}
}

func TestReportJob_Validate_OK(t *testing.T) {
	if err := validJob().Validate(); err != nil {
		t.Errorf("妥当なジョブでエラー: %v", err)
	}
}

func TestReportJob_Validate_MissingName(t *testing.T) {
	j := validJob()
	j.Name = ""
	assertConfigError(t, j.Validate())
}

func TestReportJob_Validate_MissingCron(t *testing.T) {
	j := validJob()
	j.CronExpr = ""
	assertConfigError(t, j.Validate())
}

func TestReportJob_Validate_NoZones(t *testing.T) {
	j := validJob()
	j.ZoneIDs = nil
	assertConfigError(t, j.Validate())
}

func TestReportJob_Validate_BeginHourRange(t *testing.T) {
	j := validJob()
	j.BeginHour = 24
	assertConfigError(t, j.Validate())

	j = validJob()
	j.BeginHour = -1
	assertConfigError(t, j.Validate())
}

func TestReportJob_Validate_LookbackPositive(t *testing.T) {
	j := validJob()
	j.LookbackHours = 0
	assertConfigError(t, j.Validate())
}

func TestReportJob_Validate_BadRecipient(t *testing.T) {
	j := validJob()
	j.Recipients = []string{"not-an-address"}
	assertConfigError(t, j.Validate())
}

func assertConfigError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("エラーが返るべき")
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Errorf("ConfigErrorであるべき: %T", err)
	}
}
