package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/talkr-dev/talkr/cli/internal/ui"
	"github.com/talkr-dev/talkr/internal/version"
)

var (
	flagServer   string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
	flagVideo    string
	flagPlain    bool
)

var rootCmd = &cobra.Command{
	Use:   "talkr",
	Short: "End-to-end encrypted peer-to-peer video calls",
	Long: `Talkr connects two peers through a small rendezvous relay and then sends
video directly between them over WebRTC. Every frame is encrypted with a key
agreed between the two peers, so neither the relay nor a TURN server can read
the media.`,
	Version: version.Version,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagServer, "server", "", "relay URL, ws:// or wss:// (env TALKR_SERVER)")
	flags.StringVar(&flagSTUN, "stun", "", "STUN server URLs, comma separated (env STUN_SERVER)")
	flags.StringVar(&flagTURN, "turn", "", "TURN server URLs, comma separated (env TURN_SERVER)")
	flags.StringVar(&flagTURNUser, "turn-user", "", "TURN username (env TURN_USERNAME)")
	flags.StringVar(&flagTURNPass, "turn-pass", "", "TURN password (env TURN_PASSWORD)")
	flags.BoolVar(&flagRelay, "relay", false, "send media through TURN only")
	flags.StringVar(&flagVideo, "video", "", "IVF (VP8) file to send; a test pattern otherwise")
	flags.BoolVar(&flagPlain, "plain", false, "print progress lines instead of the interactive screen")

	rootCmd.AddCommand(newCmd, joinCmd)
}

// Execute runs the command line. SIGINT and SIGTERM cancel the command's
// context, which hangs up an active call.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors, rootCmd.SilenceUsage = true, true
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}
