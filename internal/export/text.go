// Package export renders chats as plain text for download and sharing.
package export

import (
	"fmt"
	"strings"
	"time"

	"gwi.com/aether-chat/internal/store"
	"gwi.com/aether-chat/internal/utils"
)

const (
	timestampLayout = "1/2/2006, 3:04:05 PM"
	separatorWidth  = 40
)

func roleLabel(r store.Role) string {
	if r == store.RoleUser {
		return "User"
	}
	return "AI"
}

// Text renders every message as a timestamped, role-labelled block, blocks
// separated by a dashed line. Timestamps use loc.
func Text(chat *store.Chat, loc *time.Location) string {
	blocks := make([]string, len(chat.Messages))
	for i, m := range chat.Messages {
		ts := time.UnixMilli(m.Timestamp).In(loc).Format(timestampLayout)
		blocks[i] = fmt.Sprintf("[%s] %s:\n%s\n", ts, roleLabel(m.Role), m.Content.String())
	}
	return strings.Join(blocks, "\n"+strings.Repeat("-", separatorWidth)+"\n")
}

// Filename derives the download name from the chat title.
func Filename(title string) string {
	return utils.SanitizeFilename(title) + ".txt"
}

// ShareText is the compact form handed to share targets.
func ShareText(chat *store.Chat) string {
	lines := make([]string, len(chat.Messages))
	for i, m := range chat.Messages {
		lines[i] = roleLabel(m.Role) + ": " + m.Content.String()
	}
	return strings.Join(lines, "\n\n")
}
