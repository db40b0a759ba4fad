package access

import (
	"fmt"

	"github.com/teamhub/assessment-engine/internal/models"
)

// Audience is the set of members a single assignment targets.
type Audience interface {
	isAudience()
}

type TeamAudience struct{}

type SubteamAudience struct {
	SubteamID uint
}

type PersonalAudience struct {
	MembershipID uint
}

type EventAudience struct {
	EventID uint
}

func (TeamAudience) isAudience()     {}
func (SubteamAudience) isAudience()  {}
func (PersonalAudience) isAudience() {}
func (EventAudience) isAudience()    {}

// AudienceOf converts a stored assignment row into its audience. Rows whose
// payload does not match the scope are rejected.
func AudienceOf(a models.TestAssignment) (Audience, error) {
	switch a.Scope {
	case models.ScopeTeam:
		return TeamAudience{}, nil
	case models.ScopeSubteam:
		if a.SubteamID == nil {
			return nil, fmt.Errorf("assignment %d: subteam scope without subteam_id", a.ID)
		}
		return SubteamAudience{SubteamID: *a.SubteamID}, nil
	case models.ScopePersonal:
		if a.MembershipID == nil {
			return nil, fmt.Errorf("assignment %d: personal scope without membership_id", a.ID)
		}
		return PersonalAudience{MembershipID: *a.MembershipID}, nil
	case models.ScopeEvent:
		if a.EventID == nil {
			return nil, fmt.Errorf("assignment %d: event scope without event_id", a.ID)
		}
		return EventAudience{EventID: *a.EventID}, nil
	default:
		return nil, fmt.Errorf("assignment %d: unknown scope %q", a.ID, a.Scope)
	}
}

// Admits reports whether the requester belongs to the audience.
func Admits(aud Audience, r Requester) bool {
	switch a := aud.(type) {
	case TeamAudience:
		return true
	case SubteamAudience:
		return r.SubteamID != nil && *r.SubteamID == a.SubteamID
	case PersonalAudience:
		return r.MembershipID == a.MembershipID
	case EventAudience:
		for _, id := range r.EventIDs {
			if id == a.EventID {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// Assigned reports whether any assignment admits the requester. Malformed
// rows never admit anyone.
func Assigned(assignments []models.TestAssignment, r Requester) bool {
	for _, row := range assignments {
		aud, err := AudienceOf(row)
		if err != nil {
			continue
		}
		if Admits(aud, r) {
			return true
		}
	}
	return false
}
