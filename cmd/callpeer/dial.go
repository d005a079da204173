package main

import (
	"os"
	"os/signal"

	"github.com/dkeye/callrelay/internal/adapters/rtc"
	"github.com/dkeye/callrelay/internal/peer"
	"github.com/spf13/cobra"
)

var dialOpts peer.Options

var dialCmd = &cobra.Command{
	Use:   "dial",
	Short: "Connect to a call and pipe stdin to the remote peer",
	Example: `  callpeer dial --call r1
  callpeer dial --server wss://relay.example.com --call r1`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer cancel()
		return peer.Run(ctx, dialOpts, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	dialCmd.Flags().StringVarP(&dialOpts.Server, "server", "s", "ws://localhost:8080", "relay base URL")
	dialCmd.Flags().StringVarP(&dialOpts.CallID, "call", "c", "", "call id to join")
	dialCmd.Flags().StringSliceVar(&dialOpts.STUN, "stun", []string{rtc.DefaultSTUN}, "STUN server URLs, empty for host candidates only")
	dialCmd.Flags().BoolVar(&dialOpts.Loopback, "loopback", false, "also offer loopback candidates (both peers on one host)")
	_ = dialCmd.MarkFlagRequired("call")
}
