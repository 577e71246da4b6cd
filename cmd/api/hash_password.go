package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/yourusername/debt-tracer/internal/auth"
	"github.com/yourusername/debt-tracer/internal/config"
)

// newHashPasswordCmd は標準入力のパスワードを PHC 形式の argon2id ハッシュにします。
// アカウントを手動で投入するときに使います。
func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "パスワードの argon2id ハッシュを出力します",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			password, err := readPassword(cmd)
			if err != nil {
				return err
			}
			return printHash(cmd, auth.NewHasher(hashParams(cfg)), password)
		},
	}
}

func readPassword(cmd *cobra.Command) (auth.Secret, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		cmd.PrintErr("Password: ")
		raw, err := term.ReadPassword(int(f.Fd()))
		cmd.PrintErrln()
		if err != nil {
			return auth.Secret{}, err
		}
		return auth.NewSecret(string(raw)), nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return auth.Secret{}, err
	}
	return auth.NewSecret(strings.TrimRight(line, "\r\n")), nil
}

func printHash(cmd *cobra.Command, hasher *auth.Hasher, password auth.Secret) error {
	hash, err := hasher.Hash(password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
	return err
}
