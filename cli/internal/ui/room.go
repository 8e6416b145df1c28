package ui

import (
	"fmt"
	"strings"
)

// RoomInfo is the box shown to the host while they wait for a peer.
type RoomInfo struct {
	RoomID   string
	RoomLink string
}

func NewRoomInfo(roomID, roomLink string) *RoomInfo {
	return &RoomInfo{RoomID: roomID, RoomLink: roomLink}
}

func (r *RoomInfo) View() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s Room Created!\n\n", IconSuccess)
	fmt.Fprintf(&b, "%s Room ID:    %s\n", IconCopy, BoldStyle.Foreground(Primary).Render(r.RoomID))
	fmt.Fprintf(&b, "%s Room Link:  %s\n\n", IconWeb, MutedStyle.Render(r.RoomLink))
	b.WriteString(MutedStyle.Render("Ask your peer to run: talkr join " + r.RoomID))
	return RoomBoxStyle.Render(b.String())
}
