package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dlogic/tagreport/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

// FindAll は全アカウントを取得する。
func (r *PostgresAccountRepo) FindAll(ctx context.Context) ([]model.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT email, password, created_at, updated_at FROM accounts ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("アカウント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		var a model.Account
		if err := rows.Scan(&a.Email, &a.Password, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("アカウント行の読み取りに失敗しました: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// FindByEmail は指定メールアドレスのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	a := &model.Account{}
	err := r.db.QueryRowContext(ctx,
		`SELECT email, password, created_at, updated_at FROM accounts WHERE email = $1`,
		email,
	).Scan(&a.Email, &a.Password, &a.CreatedAt, &a.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	return a, nil
}

// Create はアカウントを作成する。
func (r *PostgresAccountRepo) Create(ctx context.Context, account *model.Account) error {
	if account.Email == "" || account.Password == "" {
		return model.NewConfigError("アカウントのemail/passwordが未設定です")
	}
	now := time.Now()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (email, password, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		account.Email, account.Password, now, now,
	)
	if err != nil {
		return fmt.Errorf("アカウントの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はアカウントのパスワードを更新する。
func (r *PostgresAccountRepo) Update(ctx context.Context, account *model.Account) error {
	if account.Email == "" || account.Password == "" {
		return model.NewConfigError("アカウントのemail/passwordが未設定です")
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET password = $2, updated_at = $3 WHERE email = $1`,
		account.Email, account.Password, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("アカウントの更新に失敗しました: %w", err)
	}
	return nil
}

// Delete はアカウントを削除する。
func (r *PostgresAccountRepo) Delete(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE email = $1`, email)
	if err != nil {
		return fmt.Errorf("アカウントの削除に失敗しました: %w", err)
	}
	return nil
}
