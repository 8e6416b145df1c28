package version

// Version is the current version of the Talkr binaries.
// This value can be overridden at build time using:
//
//	go build -ldflags="-X 'github.com/talkr-dev/talkr/internal/version.Version=v1.0.0'"
var Version = "dev"
