package ui

import "fmt"

// RoomBanner renders the box shown after a room is created, with
// everything a caller needs to share.
func RoomBanner(roomID, code string) string {
	content := fmt.Sprintf("%s Room Created!\n\n%s Room ID:  %s\n%s Code:     %s\n\nShare:  meshcall join %s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(roomID),
		IconLink, BoldStyle.Foreground(Primary).Render(code),
		code,
	)
	return InfoBoxStyle.Render(content)
}
