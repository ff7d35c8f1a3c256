// Package repository はPostgreSQLに対する永続化層を提供する。
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dlogic/tagreport/internal/model"
)

// AccountRepository はクラウドプロバイダアカウントの永続化インターフェース。
type AccountRepository interface {
	FindAll(ctx context.Context) ([]model.Account, error)
	FindByEmail(ctx context.Context, email string) (*model.Account, error)
	Create(ctx context.Context, account *model.Account) error
	Update(ctx context.Context, account *model.Account) error
	Delete(ctx context.Context, email string) error
}

// SensorRepository はセンサーディレクトリの永続化インターフェース。
type SensorRepository interface {
	FindAll(ctx context.Context) ([]model.Sensor, error)
	// FindByZone はゾーンのメンバーシップとローカルディレクトリの積集合を返す。
	// 一致するセンサーがない場合は空スライスを返す（エラーではない）。
	FindByZone(ctx context.Context, zoneID int) ([]model.Sensor, error)
	// ReplaceAll はディレクトリ全体を1トランザクションで置換する。
	// 同一uuidの重複はスキップされる（uuidが唯一の識別子）。
	ReplaceAll(ctx context.Context, sensors []model.Sensor) error
}

// ZoneRepository はゾーンとそのメンバーシップの永続化インターフェース。
type ZoneRepository interface {
	FindAll(ctx context.Context) ([]model.Zone, error)
	FindByIDs(ctx context.Context, ids []int) ([]model.Zone, error)
	Create(ctx context.Context, zone *model.Zone) error
	// Update はゾーン名を更新し、メンバーシップを全置換する。
	Update(ctx context.Context, zone *model.Zone) error
	Delete(ctx context.Context, id int) error
	FindSensorUUIDs(ctx context.Context, zoneID int) ([]uuid.UUID, error)
}

// JobRepository はレポートジョブストアの永続化インターフェース。
type JobRepository interface {
	FindAll(ctx context.Context) ([]model.ReportJob, error)
	// FindByID は指定IDのジョブを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.ReportJob, error)
	Create(ctx context.Context, job *model.ReportJob) error
	Update(ctx context.Context, job *model.ReportJob) error
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id string, status model.JobStatus, lastError string, lastRunAt *time.Time) error
}
