// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"os"

	"github.com/spf13/cobra"
)

const serviceName = "debt-tracer"

// ビルド時に -ldflags で設定します。
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd はルートコマンドを作成します。
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          serviceName,
		Short:        "debt-tracer - 貸し借りを記録する API サーバー",
		Version:      version,
		SilenceUsage: true,
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newHashPasswordCmd())

	return cmd
}
