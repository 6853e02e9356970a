/*
 * Copyright 2025 Raamsri Kumar <raam@tinkershack.in>
 * Copyright 2025 The StrataSTOR Authors and Contributors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package peer

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/stratastor/logger"

	"github.com/stratastor/rodent/config"
	"github.com/stratastor/rodent/pkg/peertransport"
)

// NewPeerCmd exposes the connection driver as a standalone CLI surface
// for operators debugging peer connectivity by hand.
func NewPeerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "peer",
		Short: "Run commands and move files on a peer rodent node over ssh",
		Long:  `Exec, put and fetch operations against a remote rodent node, using the same ssh/scp/sftp driver the storage-replication paths use.`,
	}

	cmd.AddCommand(newExecCmd())
	cmd.AddCommand(newPutCmd())
	cmd.AddCommand(newGetCmd())

	return cmd
}

func newLogger(tag string) logger.Logger {
	cfg := config.GetConfig()
	l, err := logger.NewTag(config.NewLoggerConfig(cfg), tag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return l
}

func newExecCmd() *cobra.Command {
	var (
		user       string
		port       int
		keyFile    string
		password   string
		become     bool
		becomeUser string
		becomePass string
		timeout    int
		retries    int
	)

	cmd := &cobra.Command{
		Use:   "exec <host> <command>",
		Short: "Run a command on a peer node over ssh",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			l := newLogger("peer-exec")
			playCtx := playContextFromFlags(args[0], user, port, keyFile, password, become, becomeUser, becomePass, timeout)

			runner, err := peertransport.NewRunner()
			if err != nil {
				l.Error("failed to construct runner", "error", err)
				os.Exit(1)
			}
			shell := peertransport.NewRetryShell(l, retries)

			ctx := context.Background()
			outcome, err := shell.Exec(ctx, func(ctx context.Context) (peertransport.RunOutcome, error) {
				return runner.ExecCommand(ctx, playCtx, peertransport.HostOverrides{}, args[1], nil)
			})
			if err != nil {
				l.Error("remote command failed", "error", err)
				os.Exit(1)
			}

			os.Stdout.Write(outcome.Stdout)
			os.Stderr.Write(outcome.Stderr)
			os.Exit(outcome.ExitCode)
		},
	}

	addConnectionFlags(cmd, &user, &port, &keyFile, &password, &become, &becomeUser, &becomePass, &timeout, &retries)
	return cmd
}

func newPutCmd() *cobra.Command {
	var (
		user       string
		port       int
		keyFile    string
		password   string
		become     bool
		becomeUser string
		becomePass string
		timeout    int
		retries    int
	)

	cmd := &cobra.Command{
		Use:   "put <local> <host:remote>",
		Short: "Upload a file to a peer node",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			l := newLogger("peer-transfer")
			host, remote := splitHostPath(args[1])
			playCtx := playContextFromFlags(host, user, port, keyFile, password, become, becomeUser, becomePass, timeout)

			xfer, err := peertransport.NewFileTransfer()
			if err != nil {
				l.Error("failed to construct file transfer", "error", err)
				os.Exit(1)
			}

			if err := xfer.PutFile(context.Background(), playCtx, peertransport.HostOverrides{}, args[0], remote); err != nil {
				l.Error("upload failed", "error", err)
				os.Exit(1)
			}
		},
	}

	addConnectionFlags(cmd, &user, &port, &keyFile, &password, &become, &becomeUser, &becomePass, &timeout, &retries)
	return cmd
}

func newGetCmd() *cobra.Command {
	var (
		user       string
		port       int
		keyFile    string
		password   string
		become     bool
		becomeUser string
		becomePass string
		timeout    int
		retries    int
	)

	cmd := &cobra.Command{
		Use:   "get <host:remote> <local>",
		Short: "Download a file from a peer node",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			l := newLogger("peer-transfer")
			host, remote := splitHostPath(args[0])
			playCtx := playContextFromFlags(host, user, port, keyFile, password, become, becomeUser, becomePass, timeout)

			xfer, err := peertransport.NewFileTransfer()
			if err != nil {
				l.Error("failed to construct file transfer", "error", err)
				os.Exit(1)
			}

			if err := xfer.FetchFile(context.Background(), playCtx, peertransport.HostOverrides{}, remote, args[1]); err != nil {
				l.Error("download failed", "error", err)
				os.Exit(1)
			}
		},
	}

	addConnectionFlags(cmd, &user, &port, &keyFile, &password, &become, &becomeUser, &becomePass, &timeout, &retries)
	return cmd
}

func addConnectionFlags(
	cmd *cobra.Command,
	user *string, port *int, keyFile *string, password *string,
	become *bool, becomeUser *string, becomePass *string,
	timeout *int, retries *int,
) {
	cmd.Flags().StringVar(user, "user", "", "remote user (defaults to the local effective user)")
	cmd.Flags().IntVar(port, "port", 0, "ssh port (defaults to 22)")
	cmd.Flags().StringVar(keyFile, "identity", "", "private key file")
	cmd.Flags().StringVar(password, "password", "", "ssh password (requires sshpass on PATH)")
	cmd.Flags().BoolVar(become, "become", false, "mark the command as escalated (the command is not wrapped in a become method and no prompt is negotiated)")
	cmd.Flags().StringVar(becomeUser, "become-method", "sudo", "privilege escalation method (sudo, su)")
	cmd.Flags().StringVar(becomePass, "become-password", "", "privilege escalation password")
	cmd.Flags().IntVar(timeout, "timeout", 10, "connect timeout in seconds")
	cmd.Flags().IntVar(retries, "retries", 0, "number of retries after an error or ssh exit code 255 (used by exec only)")
}

func playContextFromFlags(
	host, user string, port int, keyFile, password string,
	become bool, becomeMethod, becomePass string, timeout int,
) peertransport.PlayContext {
	return peertransport.PlayContext{
		RemoteAddr:     host,
		RemoteUser:     user,
		Port:           port,
		PrivateKeyFile: keyFile,
		Password:       password,
		Timeout:        time.Duration(timeout) * time.Second,
		Become:         become,
		BecomeMethod:   becomeMethod,
		BecomePass:     becomePass,
	}
}

// splitHostPath splits an scp-style "host:path" argument. A bracketed
// IPv6 literal ("[::1]:/etc/hosts") is recognised so the colon inside
// the brackets is not mistaken for the host/path separator.
func splitHostPath(arg string) (host, path string) {
	if strings.HasPrefix(arg, "[") {
		if end := strings.Index(arg, "]"); end >= 0 {
			host = arg[1:end]
			rest := arg[end+1:]
			return host, strings.TrimPrefix(rest, ":")
		}
	}
	parts := strings.SplitN(arg, ":", 2)
	if len(parts) != 2 {
		return arg, ""
	}
	return parts[0], parts[1]
}
