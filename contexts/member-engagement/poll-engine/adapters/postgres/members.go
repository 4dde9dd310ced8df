package postgresadapter

import (
	"context"
	"errors"
	"strings"
	"time"

	"pollhub/contexts/member-engagement/poll-engine/domain/entities"
	domainerrors "pollhub/contexts/member-engagement/poll-engine/domain/errors"
	"pollhub/contexts/member-engagement/poll-engine/ports"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type memberModel struct {
	MemberID  string    `gorm:"column:member_id;primaryKey"`
	Email     string    `gorm:"column:email"`
	Name      string    `gorm:"column:name"`
	Role      string    `gorm:"column:role"`
	Suspended bool      `gorm:"column:suspended"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (memberModel) TableName() string {
	return "members"
}

func (m memberModel) toEntity() entities.Member {
	return entities.Member{
		MemberID:  m.MemberID,
		Email:     m.Email,
		Name:      m.Name,
		Role:      entities.MemberRole(m.Role),
		Suspended: m.Suspended,
	}
}

// UpsertMember mirrors a member from the identity system. It backs the
// seed-member command; request handling never writes members.
func (r *Repository) UpsertMember(ctx context.Context, member entities.Member) error {
	memberID := strings.TrimSpace(member.MemberID)
	if memberID == "" {
		return domainerrors.ErrInvalidPollInput
	}
	role := member.Role
	if role == "" {
		role = entities.MemberRoleMember
	}
	now := time.Now().UTC()
	row := memberModel{
		MemberID:  memberID,
		Email:     strings.TrimSpace(member.Email),
		Name:      strings.TrimSpace(member.Name),
		Role:      string(role),
		Suspended: member.Suspended,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "member_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "name", "role", "suspended", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return r.logError("poll_repo_upsert_member_failed", err, "member_id", memberID)
	}
	return nil
}

func (r *Repository) ResolveMember(ctx context.Context, identifier string) (entities.Member, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return entities.Member{}, domainerrors.ErrMemberNotFound
	}
	var row memberModel
	err := r.db.WithContext(ctx).
		Where("member_id = ?", identifier).
		First(&row).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = r.db.WithContext(ctx).
			Where("lower(email) = lower(?)", identifier).
			Order("member_id ASC").
			First(&row).
			Error
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Member{}, domainerrors.ErrMemberNotFound
		}
		return entities.Member{}, r.logError("poll_repo_resolve_member_failed", err)
	}
	if row.Suspended {
		return entities.Member{}, domainerrors.ErrMemberNotFound
	}
	return row.toEntity(), nil
}

func (r *Repository) LookupMembers(ctx context.Context, memberIDs []string) (map[string]entities.Member, error) {
	members := make(map[string]entities.Member, len(memberIDs))
	if len(memberIDs) == 0 {
		return members, nil
	}
	var rows []memberModel
	if err := r.db.WithContext(ctx).
		Where("member_id IN ?", memberIDs).
		Find(&rows).Error; err != nil {
		return nil, r.logError("poll_repo_lookup_members_failed", err, "member_count", len(memberIDs))
	}
	for _, row := range rows {
		members[row.MemberID] = row.toEntity()
	}
	return members, nil
}

func (r *Repository) ActiveMemberCount(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&memberModel{}).
		Where("suspended = ?", false).
		Count(&total).Error; err != nil {
		return 0, r.logError("poll_repo_active_member_count_failed", err)
	}
	return total, nil
}

var _ ports.MemberDirectory = (*Repository)(nil)
