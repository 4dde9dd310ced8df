package sqliteadapter

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"pollhub/contexts/member-engagement/poll-engine/domain/entities"
	domainerrors "pollhub/contexts/member-engagement/poll-engine/domain/errors"
	"pollhub/contexts/member-engagement/poll-engine/ports"
)

const memberColumns = "SELECT member_id, email, name, role, suspended FROM members"

func (s *Store) UpsertMember(ctx context.Context, member entities.Member) error {
	memberID := strings.TrimSpace(member.MemberID)
	if memberID == "" {
		return domainerrors.ErrInvalidPollInput
	}
	role := member.Role
	if role == "" {
		role = entities.MemberRoleMember
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO members (member_id, email, name, role, suspended, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (member_id) DO UPDATE SET
		   email = excluded.email,
		   name = excluded.name,
		   role = excluded.role,
		   suspended = excluded.suspended,
		   updated_at = excluded.updated_at`,
		memberID,
		strings.TrimSpace(member.Email),
		strings.TrimSpace(member.Name),
		string(role),
		boolToInt(member.Suspended),
		toNanos(time.Now()),
	); err != nil {
		return s.logError("poll_sqlite_upsert_member_failed", err, "member_id", memberID)
	}
	return nil
}

// ResolveMember matches member ids first and emails case-insensitively second.
func (s *Store) ResolveMember(ctx context.Context, identifier string) (entities.Member, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return entities.Member{}, domainerrors.ErrMemberNotFound
	}
	member, err := scanMember(s.sqlDB.QueryRowContext(ctx, memberColumns+" WHERE member_id = ?", identifier))
	if errors.Is(err, sql.ErrNoRows) {
		member, err = scanMember(s.sqlDB.QueryRowContext(ctx,
			memberColumns+" WHERE email = ? COLLATE NOCASE ORDER BY member_id LIMIT 1",
			identifier,
		))
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entities.Member{}, domainerrors.ErrMemberNotFound
		}
		return entities.Member{}, s.logError("poll_sqlite_resolve_member_failed", err)
	}
	if member.Suspended {
		return entities.Member{}, domainerrors.ErrMemberNotFound
	}
	return member, nil
}

func (s *Store) LookupMembers(ctx context.Context, memberIDs []string) (map[string]entities.Member, error) {
	members := make(map[string]entities.Member, len(memberIDs))
	if len(memberIDs) == 0 {
		return members, nil
	}
	placeholders, args := inClause(memberIDs)
	rows, err := s.sqlDB.QueryContext(ctx, memberColumns+" WHERE member_id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, s.logError("poll_sqlite_lookup_members_failed", err, "member_count", len(memberIDs))
	}
	defer rows.Close()
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, s.logError("poll_sqlite_lookup_members_failed", err, "member_count", len(memberIDs))
		}
		members[member.MemberID] = member
	}
	return members, rows.Err()
}

func (s *Store) ActiveMemberCount(ctx context.Context) (int64, error) {
	var total int64
	if err := s.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM members WHERE suspended = 0").Scan(&total); err != nil {
		return 0, s.logError("poll_sqlite_active_member_count_failed", err)
	}
	return total, nil
}

func scanMember(row rowScanner) (entities.Member, error) {
	var (
		member    entities.Member
		role      string
		suspended int
	)
	if err := row.Scan(&member.MemberID, &member.Email, &member.Name, &role, &suspended); err != nil {
		return entities.Member{}, err
	}
	member.Role = entities.MemberRole(role)
	member.Suspended = suspended != 0
	return member, nil
}

var _ ports.MemberDirectory = (*Store)(nil)
