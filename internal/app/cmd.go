package app

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションの定期削除ワーカーとして起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	// 追加引数 "down [N]" でロールバック、"version" で現在のバージョン表示。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
	// CommandIssueCode は指定した携帯番号の認証コードを発行してRedisに保存する。
	// SMS送信の代わりに開発・運用で使う。
	CommandIssueCode Command = "issue-code"
	// CommandRevokeSessions は指定ユーザーの全セッションを削除する。
	// 端末紛失やアカウント乗っ取りの際に全端末からログアウトさせる。
	CommandRevokeSessions Command = "revoke-sessions"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "healthcheck":
		return CommandHealthcheck
	case "issue-code":
		return CommandIssueCode
	case "revoke-sessions":
		return CommandRevokeSessions
	default:
		return CommandServe
	}
}

// CommandArgs はサブコマンド名を除いた残りの引数を返す。
func CommandArgs(args []string) []string {
	if len(args) <= 1 {
		return nil
	}
	return args[1:]
}
