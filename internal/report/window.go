// Package report はレポート生成パイプライン（集約・描画・アーカイブ・
// オーケストレーション）を提供する。
package report

import (
	"time"

	"github.com/dlogic/tagreport/internal/model"
)

// Window はレポート実行の対象期間を計算する。
// 終端はnowの属するローカル日のbeginHour時（分秒切り捨て）、
// 始端はそこからlookbackHours時間前。
// 永続化された前回実行時刻ではなく常に「今」から再計算するため、
// 同じ発火時刻で再実行すれば同じウィンドウになる。
func Window(now time.Time, beginHour, lookbackHours int) (start, end time.Time) {
	end = time.Date(now.Year(), now.Month(), now.Day(), beginHour, 0, 0, 0, now.Location())
	start = end.Add(-time.Duration(lookbackHours) * time.Hour)
	return start, end
}

// FilterWindow は系列を厳密な開区間 (start, end) でフィルタする。
// 境界とちょうど一致するレコードは含めない。
func FilterWindow(records []model.MeasurementRecord, start, end time.Time) []model.MeasurementRecord {
	filtered := make([]model.MeasurementRecord, 0, len(records))
	for _, r := range records {
		if r.Time.After(start) && r.Time.Before(end) {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
