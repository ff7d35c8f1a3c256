package report

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dlogic/tagreport/internal/cloud"
	"github.com/dlogic/tagreport/internal/model"
)

// --- モック定義 ---

type mockSensorFinder struct {
	findByZoneFunc func(ctx context.Context, zoneID int) ([]model.Sensor, error)
}

func (m *mockSensorFinder) FindByZone(ctx context.Context, zoneID int) ([]model.Sensor, error) {
	if m.findByZoneFunc != nil {
		return m.findByZoneFunc(ctx, zoneID)
	}
	return nil, nil
}

type mockSeriesSource struct {
	fetchSeriesFunc func(ctx context.Context, sessionID string, sensorUUID uuid.UUID, from, to time.Time) (cloud.SeriesResult, error)
}

func (m *mockSeriesSource) FetchSeries(ctx context.Context, sessionID string, sensorUUID uuid.UUID, from, to time.Time) (cloud.SeriesResult, error) {
	if m.fetchSeriesFunc != nil {
		return m.fetchSeriesFunc(ctx, sessionID, sensorUUID, from, to)
	}
	return cloud.SeriesResult{}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testWindow() (time.Time, time.Time) {
	end := time.Date(2026, 8, 31, 8, 0, 0, 0, time.Local)
	return end.Add(-24 * time.Hour), end
}

func TestLoadZoneMeasurements_EmptyZoneIsWarningNotError(t *testing.T) {
	agg := NewAggregator(
		&mockSensorFinder{findByZoneFunc: func(ctx context.Context, zoneID int) ([]model.Sensor, error) {
			return []model.Sensor{}, nil
		}},
		&mockSeriesSource{},
		discardLogger(),
	)

	start, end := testWindow()
	rep := model.NewRunReport("job-1", start, end)
	ds, err := agg.LoadZoneMeasurements(t.Context(), model.Zone{ID: 1, Name: "空ゾーン"}, nil, start, end, rep)
	if err != nil {
		t.Fatalf("空ゾーンはエラーにすべきでない: %v", err)
	}
	if len(ds.Sensors) != 0 {
		t.Errorf("センサー件数 = %d, want 0", len(ds.Sensors))
	}
	if !rep.HasWarnings() {
		t.Error("空ゾーンは警告として記録されるべき")
	}
}

func TestLoadZoneMeasurements_SensorFailureIsolated(t *testing.T) {
	good := model.Sensor{UUID: uuid.New(), Name: "正常センサー"}
	bad := model.Sensor{UUID: uuid.New(), Name: "故障センサー"}
	start, end := testWindow()

	agg := NewAggregator(
		&mockSensorFinder{findByZoneFunc: func(ctx context.Context, zoneID int) ([]model.Sensor, error) {
			return []model.Sensor{bad, good}, nil
		}},
		&mockSeriesSource{fetchSeriesFunc: func(ctx context.Context, sessionID string, sensorUUID uuid.UUID, from, to time.Time) (cloud.SeriesResult, error) {
			if sensorUUID == bad.UUID {
				return cloud.SeriesResult{}, model.NewRemoteError("/series", 500, "boom")
			}
			return cloud.SeriesResult{
				Records: []model.MeasurementRecord{{Time: start.Add(time.Hour), Temperature: 4.2}},
				Parsed:  1,
			}, nil
		}},
		discardLogger(),
	)

	rep := model.NewRunReport("job-1", start, end)
	ds, err := agg.LoadZoneMeasurements(t.Context(), model.Zone{ID: 1, Name: "倉庫A"}, nil, start, end, rep)
	if err != nil {
		t.Fatalf("センサー単位の失敗で全体が失敗すべきでない: %v", err)
	}

	// 故障センサーはスキップされ、正常センサーは読み込まれる
	if len(ds.Sensors) != 1 {
		t.Fatalf("センサー件数 = %d, want 1", len(ds.Sensors))
	}
	if ds.Sensors[0].Sensor.UUID != good.UUID {
		t.Error("正常センサーの系列が残るべき")
	}
	if !rep.HasWarnings() {
		t.Error("失敗したセンサーは警告として記録されるべき")
	}
}

func TestLoadZoneMeasurements_WindowFilterApplied(t *testing.T) {
	sensor := model.Sensor{UUID: uuid.New(), Name: "センサー1"}
	start, end := testWindow()

	agg := NewAggregator(
		&mockSensorFinder{findByZoneFunc: func(ctx context.Context, zoneID int) ([]model.Sensor, error) {
			return []model.Sensor{sensor}, nil
		}},
		&mockSeriesSource{fetchSeriesFunc: func(ctx context.Context, sessionID string, sensorUUID uuid.UUID, from, to time.Time) (cloud.SeriesResult, error) {
			return cloud.SeriesResult{
				Records: []model.MeasurementRecord{
					{Time: start},                // 始端 → 除外
					{Time: start.Add(time.Hour)}, // 含む
					{Time: end},                  // 終端 → 除外
				},
				Parsed: 3,
			}, nil
		}},
		discardLogger(),
	)

	rep := model.NewRunReport("job-1", start, end)
	ds, err := agg.LoadZoneMeasurements(t.Context(), model.Zone{ID: 1, Name: "倉庫A"}, nil, start, end, rep)
	if err != nil {
		t.Fatalf("LoadZoneMeasurements失敗: %v", err)
	}
	if len(ds.Sensors[0].Records) != 1 {
		t.Errorf("フィルタ後のレコード件数 = %d, want 1", len(ds.Sensors[0].Records))
	}
}

func TestLoadZoneMeasurements_ZeroRecordsAfterFilterIsWarning(t *testing.T) {
	sensor := model.Sensor{UUID: uuid.New(), Name: "センサー1"}
	start, end := testWindow()

	agg := NewAggregator(
		&mockSensorFinder{findByZoneFunc: func(ctx context.Context, zoneID int) ([]model.Sensor, error) {
			return []model.Sensor{sensor}, nil
		}},
		&mockSeriesSource{},
		discardLogger(),
	)

	rep := model.NewRunReport("job-1", start, end)
	ds, err := agg.LoadZoneMeasurements(t.Context(), model.Zone{ID: 1, Name: "倉庫A"}, nil, start, end, rep)
	if err != nil {
		t.Fatalf("LoadZoneMeasurements失敗: %v", err)
	}
	// レコードゼロでもセンサー自体はデータセットに残る
	if len(ds.Sensors) != 1 {
		t.Fatalf("センサー件数 = %d, want 1", len(ds.Sensors))
	}
	if !rep.HasWarnings() {
		t.Error("レコードゼロのセンサーは警告として記録されるべき")
	}
}

func TestLoadZoneMeasurements_ResolveFailurePropagates(t *testing.T) {
	agg := NewAggregator(
		&mockSensorFinder{findByZoneFunc: func(ctx context.Context, zoneID int) ([]model.Sensor, error) {
			return nil, errors.New("db down")
		}},
		&mockSeriesSource{},
		discardLogger(),
	)

	start, end := testWindow()
	rep := model.NewRunReport("job-1", start, end)
	_, err := agg.LoadZoneMeasurements(t.Context(), model.Zone{ID: 1, Name: "倉庫A"}, nil, start, end, rep)
	if err == nil {
		t.Fatal("メンバー解決の失敗はエラーとして返るべき")
	}
}

func TestLoadZoneMeasurements_SessionFallback(t *testing.T) {
	sensor := model.Sensor{UUID: uuid.New(), Name: "センサー1", AccountEmail: "unknown@example.com"}
	start, end := testWindow()

	var usedSession string
	agg := NewAggregator(
		&mockSensorFinder{findByZoneFunc: func(ctx context.Context, zoneID int) ([]model.Sensor, error) {
			return []model.Sensor{sensor}, nil
		}},
		&mockSeriesSource{fetchSeriesFunc: func(ctx context.Context, sessionID string, sensorUUID uuid.UUID, from, to time.Time) (cloud.SeriesResult, error) {
			usedSession = sessionID
			return cloud.SeriesResult{}, nil
		}},
		discardLogger(),
	)

	rep := model.NewRunReport("job-1", start, end)
	sessions := map[string]string{"ops@example.com": "session-abc"}
	if _, err := agg.LoadZoneMeasurements(t.Context(), model.Zone{ID: 1, Name: "倉庫A"}, sessions, start, end, rep); err != nil {
		t.Fatalf("LoadZoneMeasurements失敗: %v", err)
	}
	if usedSession != "session-abc" {
		t.Errorf("所属アカウントのセッションがない場合は代替セッションを使うべき: %q", usedSession)
	}
}
