package main

import (
	"log/slog"

	"github.com/talkr-dev/talkr/cli/cmd"
	"github.com/talkr-dev/talkr/internal/logging"
)

func main() {
	// The CLI stays quiet unless LOG_LEVEL asks for more.
	logging.Init(slog.LevelError)
	cmd.Execute()
}
