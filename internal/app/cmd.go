package app

import (
	"fmt"
	"os"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はオペレータAPIとスケジューラを同一プロセスで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker はスケジューラのみのワーカーモードで起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空の場合はCommandServe。サポート外のコマンドはタイプミスを
// サーバー起動として飲み込まないよう、エラーにする。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}

	switch args[0] {
	case "serve":
		return CommandServe, nil
	case "worker":
		return CommandWorker, nil
	case "migrate":
		return CommandMigrate, nil
	case "healthcheck":
		return CommandHealthcheck, nil
	default:
		return "", fmt.Errorf("不明なサブコマンドです: %q (serve / worker / migrate / healthcheck)", args[0])
	}
}

// healthcheckPort はヘルスチェック先のポートを返す。
// healthcheckはフル初期化をスキップするため、SERVER_PORTだけを直接読む。
func healthcheckPort() string {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		return port
	}
	return "8080"
}
