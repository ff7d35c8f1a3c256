package report

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dlogic/tagreport/internal/cloud"
	"github.com/dlogic/tagreport/internal/model"
)

// SensorFinder はゾーンのメンバーセンサー解決のインターフェース。
type SensorFinder interface {
	FindByZone(ctx context.Context, zoneID int) ([]model.Sensor, error)
}

// SeriesSource は1センサーの時系列取得のインターフェース。
type SeriesSource interface {
	FetchSeries(ctx context.Context, sessionID string, sensorUUID uuid.UUID, from, to time.Time) (cloud.SeriesResult, error)
}

// Aggregator はゾーン単位の測定値集約を行う。
// センサー単位の失敗は警告として記録して残りの処理を続行する
// （1センサー・1ゾーンの失敗が兄弟を中断させない）。
type Aggregator struct {
	sensors SensorFinder
	source  SeriesSource
	logger  *slog.Logger
}

// NewAggregator はAggregatorを生成する。
func NewAggregator(sensors SensorFinder, source SeriesSource, logger *slog.Logger) *Aggregator {
	return &Aggregator{sensors: sensors, source: source, logger: logger}
}

// LoadZoneMeasurements はゾーンのデータセットを組み立てる。
// sessionsはアカウントemail→セッショントークンのマップ。センサーの所属
// アカウントのセッションがない場合は任意の1つで代替する。
// エラーを返すのはメンバー解決そのものが失敗した場合のみ。
func (a *Aggregator) LoadZoneMeasurements(ctx context.Context, zone model.Zone, sessions map[string]string, start, end time.Time, rep *model.RunReport) (model.ZoneDataset, error) {
	dataset := model.ZoneDataset{Zone: zone, Sensors: []model.SensorSeries{}}

	members, err := a.sensors.FindByZone(ctx, zone.ID)
	if err != nil {
		return dataset, err
	}
	if len(members) == 0 {
		rep.Warnf(zone.Name, "ゾーンに一致するセンサーがありません")
		return dataset, nil
	}

	for _, sensor := range members {
		session := sessionFor(sessions, sensor.AccountEmail)

		result, err := a.source.FetchSeries(ctx, session, sensor.UUID, start, end)
		if err != nil {
			a.logger.Error("センサーの測定値取得に失敗しました",
				slog.String("zone", zone.Name),
				slog.String("sensor_uuid", sensor.UUID.String()),
				slog.String("error", err.Error()),
			)
			rep.Warnf(zone.Name, "センサー %s の測定値取得に失敗しました: %v", sensor.Name, err)
			continue
		}

		records := FilterWindow(result.Records, start, end)
		if result.Skipped > 0 {
			rep.Warnf(zone.Name, "センサー %s: %d/%d 行をパースしました（%d行スキップ）",
				sensor.Name, result.Parsed, result.Parsed+result.Skipped, result.Skipped)
		}
		if len(records) == 0 {
			rep.Warnf(zone.Name, "センサー %s の測定値がウィンドウ内にありません", sensor.Name)
		}

		dataset.Sensors = append(dataset.Sensors, model.SensorSeries{
			Sensor:  sensor,
			Records: records,
		})
	}

	rep.Infof(zone.Name, "測定値を読み込みました（センサー %d件、レコード %d件）",
		len(dataset.Sensors), dataset.TotalRecords())
	return dataset, nil
}

func sessionFor(sessions map[string]string, email string) string {
	if s, ok := sessions[email]; ok {
		return s
	}
	for _, s := range sessions {
		return s
	}
	return ""
}
