package chat

import (
	"time"

	"github.com/samber/lo"
)

// Channel is a group conversation owned by the channel collaborator.
type Channel struct {
	ID        string
	Name      string
	Admin     string
	Members   []string
	CreatedAt time.Time
}

// Recipients returns members plus the admin, each listed once.
// The admin is always included even when missing from Members.
func (c Channel) Recipients() []string {
	return lo.Uniq(append(lo.Compact(c.Members), c.Admin))
}

// Includes reports whether userID is the admin or a member.
func (c Channel) Includes(userID string) bool {
	return c.Admin == userID || lo.Contains(c.Members, userID)
}
