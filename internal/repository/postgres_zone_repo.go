package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/dlogic/tagreport/internal/model"
)

// PostgresZoneRepo はPostgreSQLを使用したゾーンリポジトリ。
type PostgresZoneRepo struct {
	db *sql.DB
}

// NewPostgresZoneRepo はPostgresZoneRepoを生成する。
func NewPostgresZoneRepo(db *sql.DB) *PostgresZoneRepo {
	return &PostgresZoneRepo{db: db}
}

// FindAll は全ゾーンをメンバーシップ込みで取得する。
func (r *PostgresZoneRepo) FindAll(ctx context.Context) ([]model.Zone, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM zones ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ゾーン一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var zones []model.Zone
	for rows.Next() {
		var z model.Zone
		if err := rows.Scan(&z.ID, &z.Name); err != nil {
			return nil, fmt.Errorf("ゾーン行の読み取りに失敗しました: %w", err)
		}
		zones = append(zones, z)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range zones {
		uuids, err := r.FindSensorUUIDs(ctx, zones[i].ID)
		if err != nil {
			return nil, err
		}
		zones[i].SensorUUIDs = uuids
	}
	return zones, nil
}

// FindByIDs は指定IDのゾーンをメンバーシップ込みで取得する。
// 存在しないIDは結果から抜ける（エラーにしない）。
func (r *PostgresZoneRepo) FindByIDs(ctx context.Context, ids []int) ([]model.Zone, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name FROM zones WHERE id = ANY($1) ORDER BY id`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("ゾーンの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var zones []model.Zone
	for rows.Next() {
		var z model.Zone
		if err := rows.Scan(&z.ID, &z.Name); err != nil {
			return nil, fmt.Errorf("ゾーン行の読み取りに失敗しました: %w", err)
		}
		zones = append(zones, z)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range zones {
		uuids, err := r.FindSensorUUIDs(ctx, zones[i].ID)
		if err != nil {
			return nil, err
		}
		zones[i].SensorUUIDs = uuids
	}
	return zones, nil
}

// FindSensorUUIDs はゾーンのメンバーセンサーuuidを返す。
func (r *PostgresZoneRepo) FindSensorUUIDs(ctx context.Context, zoneID int) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT sensor_uuid FROM zone_sensors WHERE zone_id = $1`, zoneID)
	if err != nil {
		return nil, fmt.Errorf("ゾーンメンバーシップの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	uuids := []uuid.UUID{}
	for rows.Next() {
		var u uuid.UUID
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("メンバーシップ行の読み取りに失敗しました: %w", err)
		}
		uuids = append(uuids, u)
	}
	return uuids, rows.Err()
}

// Create はゾーンとメンバーシップを作成する。
func (r *PostgresZoneRepo) Create(ctx context.Context, zone *model.Zone) error {
	if zone.Name == "" {
		return model.NewConfigError("ゾーン名が未設定です")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx,
		`INSERT INTO zones (name) VALUES ($1) RETURNING id`, zone.Name,
	).Scan(&zone.ID); err != nil {
		return fmt.Errorf("ゾーンの作成に失敗しました: %w", err)
	}

	if err := insertMembership(ctx, tx, zone.ID, zone.SensorUUIDs); err != nil {
		return err
	}
	return tx.Commit()
}

// Update はゾーン名を更新し、メンバーシップを全置換する。
func (r *PostgresZoneRepo) Update(ctx context.Context, zone *model.Zone) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE zones SET name = $2 WHERE id = $1`, zone.ID, zone.Name)
	if err != nil {
		return fmt.Errorf("ゾーンの更新に失敗しました: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("ゾーンが見つかりません: id=%d", zone.ID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM zone_sensors WHERE zone_id = $1`, zone.ID); err != nil {
		return fmt.Errorf("メンバーシップの削除に失敗しました: %w", err)
	}
	if err := insertMembership(ctx, tx, zone.ID, zone.SensorUUIDs); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete はゾーンを削除する。メンバーシップはCASCADE削除される。
func (r *PostgresZoneRepo) Delete(ctx context.Context, id int) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM zones WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ゾーンの削除に失敗しました: %w", err)
	}
	return nil
}

func insertMembership(ctx context.Context, tx *sql.Tx, zoneID int, uuids []uuid.UUID) error {
	for _, u := range uuids {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO zone_sensors (zone_id, sensor_uuid) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`,
			zoneID, u,
		)
		if err != nil {
			return fmt.Errorf("メンバーシップの挿入に失敗しました: %w", err)
		}
	}
	return nil
}
