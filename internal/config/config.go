// Package config は環境変数からのアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Cloud provider
	CloudBaseURL   string
	CloudTimeout   time.Duration
	CloudRateLimit float64 // req/sec

	// Report
	ReportTmpDir  string
	JobMaxRetries int

	// SMB (グループ未設定の場合アップロードは無効)
	SMBHost     string
	SMBShare    string
	SMBUser     string
	SMBPassword string
	SMBDomain   string

	// SMTP (グループ未設定の場合メール送信は無効)
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	MailFrom     string

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合、またはSMB/SMTPグループが部分的にのみ
// 設定されている場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.CloudBaseURL = os.Getenv("CLOUD_BASE_URL")
	if cfg.CloudBaseURL == "" {
		missing = append(missing, "CLOUD_BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.CloudTimeout = getEnvDuration("CLOUD_TIMEOUT", 30*time.Second)
	cfg.CloudRateLimit = getEnvFloat("CLOUD_RATE_LIMIT", 2)
	cfg.ReportTmpDir = getEnvString("REPORT_TMP_DIR", filepath.Join(os.TempDir(), "tagreport"))
	cfg.JobMaxRetries = getEnvInt("JOB_MAX_RETRIES", 2)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	// SMB group
	cfg.SMBHost = os.Getenv("SMB_HOST")
	cfg.SMBShare = os.Getenv("SMB_SHARE")
	cfg.SMBUser = os.Getenv("SMB_USER")
	cfg.SMBPassword = os.Getenv("SMB_PASSWORD")
	cfg.SMBDomain = getEnvString("SMB_DOMAIN", "")
	if err := checkGroup("SMB", map[string]string{
		"SMB_HOST":     cfg.SMBHost,
		"SMB_SHARE":    cfg.SMBShare,
		"SMB_USER":     cfg.SMBUser,
		"SMB_PASSWORD": cfg.SMBPassword,
	}); err != nil {
		return nil, err
	}

	// SMTP group
	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 465)
	cfg.SMTPUser = os.Getenv("SMTP_USER")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.MailFrom = getEnvString("MAIL_FROM", cfg.SMTPUser)
	if err := checkGroup("SMTP", map[string]string{
		"SMTP_HOST":     cfg.SMTPHost,
		"SMTP_USER":     cfg.SMTPUser,
		"SMTP_PASSWORD": cfg.SMTPPassword,
	}); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SMBEnabled はSMBアップロードが設定済みかを返す。
func (c *Config) SMBEnabled() bool {
	return c.SMBHost != ""
}

// MailEnabled はメール送信が設定済みかを返す。
func (c *Config) MailEnabled() bool {
	return c.SMTPHost != ""
}

// checkGroup は設定グループが全部設定か全部未設定のどちらかであることを確認する。
func checkGroup(name string, keys map[string]string) error {
	var set, unset []string
	for k, v := range keys {
		if v == "" {
			unset = append(unset, k)
		} else {
			set = append(set, k)
		}
	}
	if len(set) > 0 && len(unset) > 0 {
		return fmt.Errorf("%s settings are partially set (missing: %v)", name, unset)
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
