package model

import "fmt"

// 定義済みエラーコード
const (
	ErrCodeAuthFailed      = "AUTH_FAILED"
	ErrCodeRemoteStatus    = "REMOTE_STATUS"
	ErrCodeTransportFailed = "TRANSPORT_FAILED"
	ErrCodeParseFailed     = "PARSE_FAILED"
	ErrCodeConfigInvalid   = "CONFIG_INVALID"
)

// AuthError はプロバイダへのサインイン失敗を表す。
// セッションクッキーが返らない・空・不正な場合に発生する。
type AuthError struct {
	Email  string
	Reason string
}

// Error はerrorインターフェースを実装する。
func (e *AuthError) Error() string {
	return fmt.Sprintf("[%s] サインインに失敗しました (%s): %s", ErrCodeAuthFailed, e.Email, e.Reason)
}

// NewAuthError はサインイン失敗エラーを生成する。
func NewAuthError(email, reason string) *AuthError {
	return &AuthError{Email: email, Reason: reason}
}

// RemoteError はプロバイダからの非成功HTTPレスポンスを表す。
// 診断のため生のレスポンスボディを保持する。
type RemoteError struct {
	Endpoint string
	Status   int
	Body     string
}

// Error はerrorインターフェースを実装する。
func (e *RemoteError) Error() string {
	return fmt.Sprintf("[%s] プロバイダがステータス %d を返しました (%s): %s",
		ErrCodeRemoteStatus, e.Status, e.Endpoint, e.Body)
}

// NewRemoteError は非成功レスポンスのエラーを生成する。
func NewRemoteError(endpoint string, status int, body string) *RemoteError {
	return &RemoteError{Endpoint: endpoint, Status: status, Body: body}
}

// TransportError はファイル共有・メール送信など配信経路の失敗を表す。
type TransportError struct {
	Op  string
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *TransportError) Error() string {
	return fmt.Sprintf("[%s] %s に失敗しました: %v", ErrCodeTransportFailed, e.Op, e.Err)
}

// Unwrap は原因エラーを返す。
func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError は配信経路エラーを生成する。
func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

// ParseError は行・フィールド単位のパース失敗を表す。
// 該当単位のスキップで回復可能なエラーとして扱う。
type ParseError struct {
	Field string
	Value string
}

// Error はerrorインターフェースを実装する。
func (e *ParseError) Error() string {
	return fmt.Sprintf("[%s] %s のパースに失敗しました: %q", ErrCodeParseFailed, e.Field, e.Value)
}

// NewParseError はパース失敗エラーを生成する。
func NewParseError(field, value string) *ParseError {
	return &ParseError{Field: field, Value: value}
}

// ConfigError はジョブ・設定パラメータの欠落や不正を表す。
type ConfigError struct {
	Reason string
}

// Error はerrorインターフェースを実装する。
func (e *ConfigError) Error() string {
	return fmt.Sprintf("[%s] %s", ErrCodeConfigInvalid, e.Reason)
}

// NewConfigError は設定エラーを生成する。
func NewConfigError(reason string) *ConfigError {
	return &ConfigError{Reason: reason}
}
