package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dlogic/tagreport/internal/model"
)

// PostgresSensorRepo はPostgreSQLを使用したセンサーディレクトリリポジトリ。
type PostgresSensorRepo struct {
	db *sql.DB
}

// NewPostgresSensorRepo はPostgresSensorRepoを生成する。
func NewPostgresSensorRepo(db *sql.DB) *PostgresSensorRepo {
	return &PostgresSensorRepo{db: db}
}

// FindAll はディレクトリの全センサーを取得する。
func (r *PostgresSensorRepo) FindAll(ctx context.Context) ([]model.Sensor, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT uuid, name, manager_name, manager_mac, account_email FROM sensors ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("センサー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return scanSensors(rows)
}

// FindByZone はゾーンのメンバーシップとローカルディレクトリの積集合を返す。
// 一致するセンサーがない場合は空スライスを返す。
func (r *PostgresSensorRepo) FindByZone(ctx context.Context, zoneID int) ([]model.Sensor, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.uuid, s.name, s.manager_name, s.manager_mac, s.account_email
		 FROM sensors s
		 JOIN zone_sensors zs ON zs.sensor_uuid = s.uuid
		 WHERE zs.zone_id = $1
		 ORDER BY s.name`,
		zoneID,
	)
	if err != nil {
		return nil, fmt.Errorf("ゾーンのセンサー取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return scanSensors(rows)
}

// ReplaceAll はセンサーディレクトリ全体を1トランザクションで置換する。
// 全削除してから挿入するため、前回実行の残骸が蓄積しない。
// 同一uuidの重複挿入はON CONFLICT DO NOTHINGでスキップされる。
func (r *PostgresSensorRepo) ReplaceAll(ctx context.Context, sensors []model.Sensor) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sensors`); err != nil {
		return fmt.Errorf("センサーディレクトリの全削除に失敗しました: %w", err)
	}

	for _, s := range sensors {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sensors (uuid, name, manager_name, manager_mac, account_email)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (uuid) DO NOTHING`,
			s.UUID, s.Name, s.ManagerName, s.ManagerMAC, s.AccountEmail,
		)
		if err != nil {
			return fmt.Errorf("センサーの挿入に失敗しました (%s): %w", s.UUID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("センサーディレクトリ置換のコミットに失敗しました: %w", err)
	}
	return nil
}

func scanSensors(rows *sql.Rows) ([]model.Sensor, error) {
	sensors := []model.Sensor{}
	for rows.Next() {
		var s model.Sensor
		if err := rows.Scan(&s.UUID, &s.Name, &s.ManagerName, &s.ManagerMAC, &s.AccountEmail); err != nil {
			return nil, fmt.Errorf("センサー行の読み取りに失敗しました: %w", err)
		}
		sensors = append(sensors, s)
	}
	return sensors, rows.Err()
}
