package models

import "time"

type MemberRole string

const (
	RoleMember MemberRole = "MEMBER"
	RoleCoach  MemberRole = "COACH"
	RoleAdmin  MemberRole = "ADMIN"
)

// Membership links a platform user to a team. The table is owned by the
// membership service; the engine only reads it.
type Membership struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	TeamID    uint       `json:"team_id" gorm:"not null;uniqueIndex:idx_memberships_team_user"`
	UserID    string     `json:"user_id" gorm:"size:100;not null;uniqueIndex:idx_memberships_team_user"`
	SubteamID *uint      `json:"subteam_id,omitempty" gorm:"index"`
	Role      MemberRole `json:"role" gorm:"size:20;not null;default:MEMBER"`
	CreatedAt time.Time  `json:"created_at"`
}

func (Membership) TableName() string {
	return "memberships"
}

// IsElevated reports whether the member administers tests of the team.
func (m *Membership) IsElevated() bool {
	return m.Role == RoleAdmin || m.Role == RoleCoach
}

// RosterEntry places a membership on an event roster.
type RosterEntry struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	MembershipID uint      `json:"membership_id" gorm:"not null;uniqueIndex:idx_roster_membership_event"`
	EventID      uint      `json:"event_id" gorm:"not null;uniqueIndex:idx_roster_membership_event"`
	CreatedAt    time.Time `json:"created_at"`
}

func (RosterEntry) TableName() string {
	return "roster_entries"
}
