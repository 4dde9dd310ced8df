package memory

import (
	"context"
	"strings"

	"pollhub/contexts/member-engagement/poll-engine/domain/entities"
	domainerrors "pollhub/contexts/member-engagement/poll-engine/domain/errors"
	"pollhub/contexts/member-engagement/poll-engine/ports"
)

func (s *Store) UpsertMember(_ context.Context, member entities.Member) error {
	memberID := strings.TrimSpace(member.MemberID)
	if memberID == "" {
		return domainerrors.ErrInvalidPollInput
	}
	if member.Role == "" {
		member.Role = entities.MemberRoleMember
	}
	member.MemberID = memberID
	member.Email = strings.TrimSpace(member.Email)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[memberID] = member
	return nil
}

// ResolveMember matches the identifier against member ids first and emails
// second. Suspended members do not resolve.
func (s *Store) ResolveMember(_ context.Context, identifier string) (entities.Member, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return entities.Member{}, domainerrors.ErrMemberNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	member, ok := s.members[identifier]
	if !ok {
		for _, candidate := range s.members {
			if candidate.Email != "" && strings.EqualFold(candidate.Email, identifier) {
				member, ok = candidate, true
				break
			}
		}
	}
	if !ok || member.Suspended {
		return entities.Member{}, domainerrors.ErrMemberNotFound
	}
	return member, nil
}

func (s *Store) LookupMembers(_ context.Context, memberIDs []string) (map[string]entities.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	found := make(map[string]entities.Member, len(memberIDs))
	for _, memberID := range memberIDs {
		if member, ok := s.members[strings.TrimSpace(memberID)]; ok {
			found[member.MemberID] = member
		}
	}
	return found, nil
}

func (s *Store) ActiveMemberCount(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, member := range s.members {
		if !member.Suspended {
			count++
		}
	}
	return count, nil
}

var _ ports.MemberDirectory = (*Store)(nil)
