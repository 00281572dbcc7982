package app

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はAPIサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は出品保持期間ワーカーとして起動することを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

const defaultPort = "3000"

// NewRootCommand はCLIのルートコマンドを構築する。
// サブコマンド無しで起動した場合はserveとして動作する。
// wはログとコマンド出力の書き込み先。
func NewRootCommand(w io.Writer) *cobra.Command {
	var configPath string

	withConfig := func(cmd Command, run func(*runtime) error) func(*cobra.Command, []string) error {
		return func(_ *cobra.Command, _ []string) error {
			rt, err := newRuntime(w, configPath, cmd)
			if err != nil {
				return err
			}
			return run(rt)
		}
	}

	root := &cobra.Command{
		Use:           "zagmarket",
		Short:         "Campus marketplace API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          withConfig(CommandServe, runServe),
	}
	root.SetOut(w)
	root.SetErr(w)
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML configuration file (defaults to $CONFIG_FILE)")

	root.AddCommand(
		&cobra.Command{
			Use:   string(CommandServe),
			Short: "Run the HTTP API server",
			Args:  cobra.NoArgs,
			RunE:  withConfig(CommandServe, runServe),
		},
		&cobra.Command{
			Use:   string(CommandWorker),
			Short: "Run the listing retention worker",
			Args:  cobra.NoArgs,
			RunE:  withConfig(CommandWorker, runWorker),
		},
		&cobra.Command{
			Use:   string(CommandMigrate),
			Short: "Apply pending database migrations",
			Args:  cobra.NoArgs,
			RunE:  withConfig(CommandMigrate, runMigrate),
		},
		&cobra.Command{
			Use:   string(CommandHealthcheck),
			Short: "Probe the local /health endpoint",
			Args:  cobra.NoArgs,
			// 軽量サブコマンドのため設定の読み込みをスキップする
			RunE: func(_ *cobra.Command, _ []string) error {
				port := os.Getenv("SERVER_PORT")
				if port == "" {
					port = defaultPort
				}
				return runHealthcheck(port)
			},
		},
	)

	return root
}
