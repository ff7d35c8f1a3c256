// Package model はドメインモデルを定義する。
package model

import (
	"time"

	"github.com/google/uuid"
)

// Account はクラウド測定プロバイダのサインイン資格情報を表す。
// SessionIDはサインインで得られる一時的なセッショントークンで、
// 1回のレポート実行の間のみ有効。永続化しない。
type Account struct {
	Email     string
	Password  string
	SessionID string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Sensor はクラウドプロバイダから取得したセンサー（タグ）を表す。
// UUIDが唯一の識別子であり、作成後に変化しない。
type Sensor struct {
	UUID         uuid.UUID
	Name         string
	ManagerName  string
	ManagerMAC   string
	AccountEmail string
}

// MeasurementRecord は1件の時系列測定値を表す。
// レポート実行の取得ウィンドウ内でのみ意味を持ち、永続化しない。
type MeasurementRecord struct {
	Time        time.Time
	Temperature float64
	Cap         float64
}

// Zone はひとつのレポートドキュメントにまとめて出力するセンサーのグループ。
// SensorUUIDsはzone_sensorsテーブルのメンバーシップで、
// センサーが未取得の状態でも宣言できる（実行時にローカルディレクトリと突き合わせる）。
type Zone struct {
	ID          int
	Name        string
	SensorUUIDs []uuid.UUID
}

// SensorSeries は実行スコープでセンサーに紐付いた測定系列。
type SensorSeries struct {
	Sensor  Sensor
	Records []MeasurementRecord
}

// ZoneDataset はひとつのゾーンの集約済みデータセット。
// 各センサーの系列は独立しており、1センサーの欠落が他に影響しない。
type ZoneDataset struct {
	Zone    Zone
	Sensors []SensorSeries
}

// TotalRecords はデータセット内の全測定件数を返す。
func (d ZoneDataset) TotalRecords() int {
	n := 0
	for _, s := range d.Sensors {
		n += len(s.Records)
	}
	return n
}
