package cmd

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"regexp"
	"strings"

	"github.com/spf13/cobra"
)

const (
	roomIDLength   = 6
	roomIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

var (
	roomIDPattern   = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	shortIDPattern  = regexp.MustCompile(`^[A-Za-z0-9]{6}$`)
	errEmptyRoomRef = errors.New("room ID or link is required")
)

var newCmd = &cobra.Command{
	Use:     "new",
	Aliases: []string{"n", "create"},
	Short:   "Create a room and wait for a peer",
	Long: `Create a new room, print its ID and link, and start the call as soon as a
peer joins.

Examples:
  talkr new
  talkr new --server wss://talkr.example.com
  talkr new --video clip.ivf --relay`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := NewRoomID()
		if err != nil {
			return err
		}
		return runCall(cmd.Context(), roomID, true)
	},
}

var joinCmd = &cobra.Command{
	Use:     "join <room-id|link>",
	Aliases: []string{"j"},
	Short:   "Join a room by ID or link",
	Long: `Join an existing room. The argument may be a bare room ID or a link that
carries it, either as /r/<id> or as ?m=<id>.

Examples:
  talkr join ABC123
  talkr join https://talkr.example.com/r/ABC123`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, err := ParseRoomID(args[0])
		if err != nil {
			return err
		}
		return runCall(cmd.Context(), roomID, false)
	},
}

// NewRoomID returns six random uppercase base36 characters.
func NewRoomID() (string, error) {
	base := big.NewInt(int64(len(roomIDAlphabet)))
	var b strings.Builder
	for i := 0; i < roomIDLength; i++ {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", fmt.Errorf("generate room ID: %w", err)
		}
		b.WriteByte(roomIDAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// ParseRoomID extracts the room ID from a bare ID or a room link. Six
// character IDs are case-insensitive and returned uppercased.
func ParseRoomID(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errEmptyRoomRef
	}

	id := ref
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" && u.Host != "" {
		id = roomIDFromURL(u)
		if id == "" {
			return "", fmt.Errorf("no room ID in link %q", ref)
		}
	}

	if !roomIDPattern.MatchString(id) {
		return "", fmt.Errorf("invalid room ID %q", id)
	}
	if shortIDPattern.MatchString(id) {
		id = strings.ToUpper(id)
	}
	return id, nil
}

func roomIDFromURL(u *url.URL) string {
	if m := u.Query().Get("m"); m != "" {
		return m
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] == "r" {
			return parts[i+1]
		}
	}
	return ""
}
