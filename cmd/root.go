package cmd

import (
	"github.com/spf13/cobra"
	"github.com/stratastor/rodent/cmd/peer"
	"github.com/stratastor/rodent/cmd/version"
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rodent",
		Short: "Rodent: StrataSTOR Node Agent",
	}

	rootCmd.AddCommand(version.NewVersionCmd())
	rootCmd.AddCommand(peer.NewPeerCmd())

	return rootCmd
}
