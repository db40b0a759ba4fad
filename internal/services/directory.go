package services

import (
	"context"
	"fmt"

	"github.com/teamhub/assessment-engine/internal/repositories"
)

// DirectoryResolver answers identity and roster questions from the
// membership tables.
type DirectoryResolver struct {
	repo repositories.Repository
}

// NewDirectoryResolver returns an IdentityResolver and RosterLookup backed
// by the repository.
func NewDirectoryResolver(repo repositories.Repository) *DirectoryResolver {
	return &DirectoryResolver{repo: repo}
}

func (d *DirectoryResolver) ResolveMember(ctx context.Context, userID string, teamID uint, platformAdmin bool) (*Member, error) {
	membership, err := d.repo.Directory().GetMembership(ctx, nil, teamID, userID)
	if err != nil {
		if !repositories.IsNotFoundError(err) {
			return nil, fmt.Errorf("failed to resolve membership: %w", err)
		}
		if platformAdmin {
			return &Member{Elevated: true}, nil
		}
		return nil, ErrNotTeamMember
	}

	return &Member{
		MembershipID: membership.ID,
		SubteamID:    membership.SubteamID,
		Elevated:     platformAdmin || membership.IsElevated(),
	}, nil
}

func (d *DirectoryResolver) EventIDs(ctx context.Context, membershipID uint) ([]uint, error) {
	ids, err := d.repo.Directory().ListEventIDs(ctx, nil, membershipID)
	if err != nil {
		return nil, fmt.Errorf("failed to list roster events: %w", err)
	}
	return ids, nil
}
