package postgresadapter

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"pollhub/contexts/member-engagement/poll-engine/domain/entities"
	domainerrors "pollhub/contexts/member-engagement/poll-engine/domain/errors"
	"pollhub/contexts/member-engagement/poll-engine/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) GetPoll(ctx context.Context, pollID string) (entities.Poll, error) {
	pollID = strings.TrimSpace(pollID)
	poll, err := r.loadPoll(r.db.WithContext(ctx), pollID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrPollNotFound) {
			return entities.Poll{}, err
		}
		return entities.Poll{}, r.logError("poll_repo_get_poll_failed", err, "poll_id", pollID)
	}
	return poll, nil
}

// GetPollWithBallots reads inside one repeatable-read transaction so the
// options and ballots belong to the same snapshot.
func (r *Repository) GetPollWithBallots(ctx context.Context, pollID string) (entities.Poll, []entities.Ballot, error) {
	pollID = strings.TrimSpace(pollID)
	var (
		poll    entities.Poll
		ballots []entities.Ballot
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := r.loadPoll(tx, pollID)
		if err != nil {
			return err
		}
		var rows []ballotModel
		if err := tx.Where("poll_id = ?", pollID).
			Order("cast_at ASC").
			Order("ballot_id ASC").
			Find(&rows).Error; err != nil {
			return err
		}
		poll = loaded
		ballots = make([]entities.Ballot, 0, len(rows))
		for _, row := range rows {
			ballots = append(ballots, row.toEntity())
		}
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		if errors.Is(err, domainerrors.ErrPollNotFound) {
			return entities.Poll{}, nil, err
		}
		return entities.Poll{}, nil, r.logError("poll_repo_get_poll_with_ballots_failed", err, "poll_id", pollID)
	}
	return poll, ballots, nil
}

func (r *Repository) ListPolls(ctx context.Context, filter ports.PollFilter) (ports.PollPage, error) {
	filtered := func() *gorm.DB {
		query := r.db.WithContext(ctx).Model(&pollModel{})
		if filter.Status != "" {
			query = query.Where("status = ?", string(filter.Status))
		}
		return query
	}
	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return ports.PollPage{}, r.logError("poll_repo_count_polls_failed", err, "status", string(filter.Status))
	}

	page := filtered().
		Order("created_at DESC").
		Order("poll_id DESC")
	if filter.Offset > 0 {
		page = page.Offset(filter.Offset)
	}
	if filter.Limit > 0 {
		page = page.Limit(filter.Limit)
	}
	var rows []pollModel
	if err := page.Find(&rows).Error; err != nil {
		return ports.PollPage{}, r.logError("poll_repo_list_polls_failed", err,
			"status", string(filter.Status),
			"offset", filter.Offset,
			"limit", filter.Limit,
		)
	}
	items, err := r.attachOptions(r.db.WithContext(ctx), rows)
	if err != nil {
		return ports.PollPage{}, r.logError("poll_repo_list_poll_options_failed", err)
	}
	return ports.PollPage{Items: items, Total: int(total)}, nil
}

func (r *Repository) CountParticipants(ctx context.Context, pollIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(pollIDs))
	if len(pollIDs) == 0 {
		return counts, nil
	}
	var rows []struct {
		PollID string
		Total  int
	}
	if err := r.db.WithContext(ctx).
		Model(&ballotModel{}).
		Select("poll_id, COUNT(DISTINCT member_id) AS total").
		Where("poll_id IN ?", pollIDs).
		Group("poll_id").
		Scan(&rows).Error; err != nil {
		return nil, r.logError("poll_repo_count_participants_failed", err, "poll_count", len(pollIDs))
	}
	for _, pollID := range pollIDs {
		counts[pollID] = 0
	}
	for _, row := range rows {
		counts[row.PollID] = row.Total
	}
	return counts, nil
}

func (r *Repository) ListVotedPollIDs(ctx context.Context, memberID string, pollIDs []string) (map[string]bool, error) {
	voted := make(map[string]bool, len(pollIDs))
	memberID = strings.TrimSpace(memberID)
	if memberID == "" || len(pollIDs) == 0 {
		return voted, nil
	}
	var ids []string
	if err := r.db.WithContext(ctx).
		Model(&ballotModel{}).
		Distinct("poll_id").
		Where("member_id = ?", memberID).
		Where("poll_id IN ?", pollIDs).
		Pluck("poll_id", &ids).Error; err != nil {
		return nil, r.logError("poll_repo_list_voted_polls_failed", err, "member_id", memberID)
	}
	for _, id := range ids {
		voted[id] = true
	}
	return voted, nil
}

func (r *Repository) ListExpiredActivePolls(ctx context.Context, now time.Time, limit int) ([]entities.Poll, error) {
	query := r.db.WithContext(ctx).
		Where("status = ?", string(entities.PollStatusActive)).
		Where("deadline < ?", now.UTC()).
		Order("deadline ASC").
		Order("poll_id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []pollModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, r.logError("poll_repo_list_expired_polls_failed", err, "limit", limit)
	}
	items, err := r.attachOptions(r.db.WithContext(ctx), rows)
	if err != nil {
		return nil, r.logError("poll_repo_list_expired_poll_options_failed", err)
	}
	return items, nil
}

// RunInTx commits when fn returns nil. Deferred constraint failures surface at
// commit and are reported as conflicts.
func (r *Repository) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ports.PollTx) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &postgresTx{db: tx, repo: r})
	})
	if err != nil && isUniqueViolation(err) {
		return domainerrors.ErrConflict
	}
	return err
}

type postgresTx struct {
	db   *gorm.DB
	repo *Repository
}

func (t *postgresTx) LockPoll(ctx context.Context, pollID string) (entities.Poll, error) {
	pollID = strings.TrimSpace(pollID)
	poll, err := t.repo.loadPoll(t.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), pollID)
	if err != nil && !errors.Is(err, domainerrors.ErrPollNotFound) {
		return entities.Poll{}, t.repo.logError("poll_repo_lock_poll_failed", err, "poll_id", pollID)
	}
	return poll, err
}

// LockMemberBallots takes a shared row lock on the poll, which excludes
// concurrent close and option edits, plus a transaction-scoped advisory lock
// keyed by (poll, member).
func (t *postgresTx) LockMemberBallots(ctx context.Context, pollID string, memberID string) (entities.Poll, error) {
	pollID = strings.TrimSpace(pollID)
	memberID = strings.TrimSpace(memberID)
	poll, err := t.repo.loadPoll(t.db.WithContext(ctx).Clauses(clause.Locking{Strength: "SHARE"}), pollID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrPollNotFound) {
			return entities.Poll{}, err
		}
		return entities.Poll{}, t.repo.logError("poll_repo_lock_member_ballots_poll_failed", err, "poll_id", pollID)
	}
	if err := t.db.WithContext(ctx).
		Exec("SELECT pg_advisory_xact_lock(hashtextextended(?, 0))", "poll:"+pollID+":member:"+memberID).
		Error; err != nil {
		return entities.Poll{}, t.repo.logError("poll_repo_member_advisory_lock_failed", err,
			"poll_id", pollID,
			"member_id", memberID,
		)
	}
	return poll, nil
}

func (t *postgresTx) SavePoll(ctx context.Context, poll entities.Poll) error {
	db := t.db.WithContext(ctx)
	row := pollModelFromEntity(poll)
	if err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "poll_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"title":            row.Title,
			"description":      row.Description,
			"anonymous":        row.Anonymous,
			"multiple_choice":  row.MultipleChoice,
			"allow_add_option": row.AllowAddOption,
			"deadline":         row.Deadline,
			"status":           row.Status,
			"updated_at":       row.UpdatedAt,
		}),
	}).Create(&row).Error; err != nil {
		return t.repo.logError("poll_repo_save_poll_header_failed", err, "poll_id", row.PollID)
	}

	keep := make([]string, 0, len(poll.Options))
	for _, option := range poll.Options {
		keep = append(keep, option.OptionID)
	}
	remove := db.Where("poll_id = ?", row.PollID)
	if len(keep) > 0 {
		remove = remove.Where("option_id NOT IN ?", keep)
	}
	if err := remove.Delete(&optionModel{}).Error; err != nil {
		if isForeignKeyViolation(err) {
			return domainerrors.ErrOptionHasVotes
		}
		return t.repo.logError("poll_repo_delete_options_failed", err, "poll_id", row.PollID)
	}

	if len(poll.Options) == 0 {
		return nil
	}
	options := make([]optionModel, 0, len(poll.Options))
	for _, option := range poll.Options {
		options = append(options, optionModelFromEntity(row.PollID, option))
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "option_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"text", "display_order"}),
	}).Create(&options).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrConflict
		}
		return t.repo.logError("poll_repo_upsert_options_failed", err, "poll_id", row.PollID)
	}
	return nil
}

func (t *postgresTx) DeletePoll(ctx context.Context, pollID string) error {
	pollID = strings.TrimSpace(pollID)
	db := t.db.WithContext(ctx)
	if err := db.Where("poll_id = ?", pollID).Delete(&ballotModel{}).Error; err != nil {
		return t.repo.logError("poll_repo_delete_ballots_failed", err, "poll_id", pollID)
	}
	if err := db.Where("poll_id = ?", pollID).Delete(&optionModel{}).Error; err != nil {
		return t.repo.logError("poll_repo_delete_poll_options_failed", err, "poll_id", pollID)
	}
	result := db.Where("poll_id = ?", pollID).Delete(&pollModel{})
	if result.Error != nil {
		return t.repo.logError("poll_repo_delete_poll_failed", result.Error, "poll_id", pollID)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrPollNotFound
	}
	return nil
}

func (t *postgresTx) CountBallotsByOption(ctx context.Context, pollID string) (map[string]int, error) {
	pollID = strings.TrimSpace(pollID)
	var rows []struct {
		OptionID string
		Total    int
	}
	if err := t.db.WithContext(ctx).
		Model(&ballotModel{}).
		Select("option_id, COUNT(*) AS total").
		Where("poll_id = ?", pollID).
		Group("option_id").
		Scan(&rows).Error; err != nil {
		return nil, t.repo.logError("poll_repo_count_ballots_failed", err, "poll_id", pollID)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.OptionID] = row.Total
	}
	return counts, nil
}

func (t *postgresTx) ReplaceMemberBallots(
	ctx context.Context,
	pollID string,
	memberID string,
	ballots []entities.Ballot,
) error {
	db := t.db.WithContext(ctx)
	if err := db.Where("poll_id = ?", pollID).
		Where("member_id = ?", memberID).
		Delete(&ballotModel{}).Error; err != nil {
		return t.repo.logError("poll_repo_clear_member_ballots_failed", err,
			"poll_id", pollID,
			"member_id", memberID,
		)
	}
	if len(ballots) == 0 {
		return nil
	}
	rows := make([]ballotModel, 0, len(ballots))
	for _, ballot := range ballots {
		rows = append(rows, ballotModelFromEntity(ballot))
	}
	if err := db.Create(&rows).Error; err != nil {
		switch {
		case isForeignKeyViolation(err):
			return domainerrors.ErrOptionNotFound
		case isUniqueViolation(err):
			return domainerrors.ErrConflict
		}
		return t.repo.logError("poll_repo_insert_ballots_failed", err,
			"poll_id", pollID,
			"member_id", memberID,
		)
	}
	return nil
}

func (t *postgresTx) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	return t.repo.appendOutbox(t.db.WithContext(ctx), envelope)
}

// ClaimIdempotencyKey inserts the key inside the poll transaction. A
// concurrent claim on the same key blocks on the primary key until the other
// transaction ends; a live record left behind is reported as a conflict.
func (t *postgresTx) ClaimIdempotencyKey(ctx context.Context, record ports.IdempotencyRecord, now time.Time) error {
	db := t.db.WithContext(ctx)
	row := idempotencyModel{
		Key:         strings.TrimSpace(record.Key),
		RequestHash: strings.TrimSpace(record.RequestHash),
		PollID:      strings.TrimSpace(record.PollID),
		ExpiresAt:   record.ExpiresAt.UTC(),
	}
	if err := db.Where("key = ? AND expires_at < ?", row.Key, now.UTC()).
		Delete(&idempotencyModel{}).Error; err != nil {
		return t.repo.logError("poll_repo_idempotency_claim_expire_failed", err, "idempotency_key", row.Key)
	}
	create := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return t.repo.logError("poll_repo_idempotency_claim_failed", create.Error, "idempotency_key", row.Key)
	}
	if create.RowsAffected == 0 {
		return domainerrors.ErrIdempotencyConflict
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	var row idempotencyModel
	err := r.db.WithContext(ctx).
		Where("key = ?", strings.TrimSpace(key)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.IdempotencyRecord{}, false, nil
		}
		return ports.IdempotencyRecord{}, false, r.logError("poll_repo_idempotency_get_failed", err,
			"idempotency_key", strings.TrimSpace(key),
		)
	}
	if !row.ExpiresAt.IsZero() && now.UTC().After(row.ExpiresAt.UTC()) {
		if err := r.db.WithContext(ctx).
			Where("key = ?", strings.TrimSpace(key)).
			Delete(&idempotencyModel{}).Error; err != nil {
			return ports.IdempotencyRecord{}, false, r.logError("poll_repo_idempotency_expire_delete_failed", err,
				"idempotency_key", strings.TrimSpace(key),
			)
		}
		return ports.IdempotencyRecord{}, false, nil
	}
	return ports.IdempotencyRecord{
		Key:         row.Key,
		RequestHash: row.RequestHash,
		PollID:      row.PollID,
		ExpiresAt:   row.ExpiresAt.UTC(),
	}, true, nil
}

func (r *Repository) appendOutbox(db *gorm.DB, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return r.logError("poll_repo_append_outbox_marshal_failed", err,
			"event_id", strings.TrimSpace(envelope.EventID),
			"event_type", strings.TrimSpace(envelope.EventType),
		)
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	create := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outbox_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("poll_repo_append_outbox_insert_failed", create.Error,
			"outbox_id", row.OutboxID,
		)
	}
	if create.RowsAffected > 0 {
		return nil
	}

	var existing outboxModel
	if err := db.Select("payload").
		Where("outbox_id = ?", row.OutboxID).
		First(&existing).Error; err != nil {
		return r.logError("poll_repo_append_outbox_load_existing_failed", err,
			"outbox_id", row.OutboxID,
		)
	}
	if !bytes.Equal(existing.Payload, row.Payload) {
		return domainerrors.ErrIdempotencyConflict
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("poll_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("poll_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) loadPoll(db *gorm.DB, pollID string) (entities.Poll, error) {
	var row pollModel
	if err := db.Where("poll_id = ?", pollID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Poll{}, domainerrors.ErrPollNotFound
		}
		return entities.Poll{}, err
	}
	var options []optionModel
	if err := db.Session(&gorm.Session{NewDB: true}).
		Where("poll_id = ?", pollID).
		Order("display_order ASC").
		Find(&options).Error; err != nil {
		return entities.Poll{}, err
	}
	poll := row.toEntity()
	poll.Options = toOptionEntities(options)
	return poll, nil
}

func (r *Repository) attachOptions(db *gorm.DB, rows []pollModel) ([]entities.Poll, error) {
	items := make([]entities.Poll, 0, len(rows))
	if len(rows) == 0 {
		return items, nil
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.PollID)
	}
	var options []optionModel
	if err := db.Where("poll_id IN ?", ids).
		Order("display_order ASC").
		Find(&options).Error; err != nil {
		return nil, err
	}
	byPoll := make(map[string][]optionModel, len(rows))
	for _, option := range options {
		byPoll[option.PollID] = append(byPoll[option.PollID], option)
	}
	for _, row := range rows {
		poll := row.toEntity()
		poll.Options = toOptionEntities(byPoll[row.PollID])
		items = append(items, poll)
	}
	return items, nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "member-engagement/poll-engine",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("poll repository operation failed", fields...)
	return err
}

type pollModel struct {
	PollID         string    `gorm:"column:poll_id;primaryKey"`
	Title          string    `gorm:"column:title"`
	Description    string    `gorm:"column:description"`
	AuthorID       string    `gorm:"column:author_id"`
	Anonymous      bool      `gorm:"column:anonymous"`
	MultipleChoice bool      `gorm:"column:multiple_choice"`
	AllowAddOption bool      `gorm:"column:allow_add_option"`
	Deadline       time.Time `gorm:"column:deadline"`
	Status         string    `gorm:"column:status"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (pollModel) TableName() string {
	return "polls"
}

func pollModelFromEntity(poll entities.Poll) pollModel {
	return pollModel{
		PollID:         strings.TrimSpace(poll.PollID),
		Title:          poll.Title,
		Description:    poll.Description,
		AuthorID:       strings.TrimSpace(poll.AuthorID),
		Anonymous:      poll.Anonymous,
		MultipleChoice: poll.MultipleChoice,
		AllowAddOption: poll.AllowAddOption,
		Deadline:       poll.Deadline.UTC(),
		Status:         string(poll.Status),
		CreatedAt:      poll.CreatedAt.UTC(),
		UpdatedAt:      poll.UpdatedAt.UTC(),
	}
}

func (m pollModel) toEntity() entities.Poll {
	return entities.Poll{
		PollID:         m.PollID,
		Title:          m.Title,
		Description:    m.Description,
		AuthorID:       m.AuthorID,
		Anonymous:      m.Anonymous,
		MultipleChoice: m.MultipleChoice,
		AllowAddOption: m.AllowAddOption,
		Deadline:       m.Deadline.UTC(),
		Status:         entities.PollStatus(m.Status),
		CreatedAt:      m.CreatedAt.UTC(),
		UpdatedAt:      m.UpdatedAt.UTC(),
	}
}

type optionModel struct {
	OptionID        string `gorm:"column:option_id;primaryKey"`
	PollID          string `gorm:"column:poll_id"`
	Text            string `gorm:"column:text"`
	DisplayOrder    int    `gorm:"column:display_order"`
	AddedByMemberID string `gorm:"column:added_by_member_id"`
}

func (optionModel) TableName() string {
	return "poll_options"
}

func optionModelFromEntity(pollID string, option entities.Option) optionModel {
	return optionModel{
		OptionID:        strings.TrimSpace(option.OptionID),
		PollID:          pollID,
		Text:            option.Text,
		DisplayOrder:    option.DisplayOrder,
		AddedByMemberID: strings.TrimSpace(option.AddedByMemberID),
	}
}

func toOptionEntities(rows []optionModel) []entities.Option {
	items := make([]entities.Option, 0, len(rows))
	for _, row := range rows {
		items = append(items, entities.Option{
			OptionID:        row.OptionID,
			PollID:          row.PollID,
			Text:            row.Text,
			DisplayOrder:    row.DisplayOrder,
			AddedByMemberID: row.AddedByMemberID,
		})
	}
	return items
}

type ballotModel struct {
	BallotID string    `gorm:"column:ballot_id;primaryKey"`
	PollID   string    `gorm:"column:poll_id"`
	OptionID string    `gorm:"column:option_id"`
	MemberID string    `gorm:"column:member_id"`
	CastAt   time.Time `gorm:"column:cast_at"`
}

func (ballotModel) TableName() string {
	return "ballots"
}

func ballotModelFromEntity(ballot entities.Ballot) ballotModel {
	return ballotModel{
		BallotID: strings.TrimSpace(ballot.BallotID),
		PollID:   strings.TrimSpace(ballot.PollID),
		OptionID: strings.TrimSpace(ballot.OptionID),
		MemberID: strings.TrimSpace(ballot.MemberID),
		CastAt:   ballot.CastAt.UTC(),
	}
}

func (m ballotModel) toEntity() entities.Ballot {
	return entities.Ballot{
		BallotID: m.BallotID,
		PollID:   m.PollID,
		OptionID: m.OptionID,
		MemberID: m.MemberID,
		CastAt:   m.CastAt.UTC(),
	}
}

type idempotencyModel struct {
	Key         string    `gorm:"column:key;primaryKey"`
	RequestHash string    `gorm:"column:request_hash"`
	PollID      string    `gorm:"column:poll_id"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
}

func (idempotencyModel) TableName() string {
	return "poll_engine_idempotency"
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "poll_outbox"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

var _ ports.PollRepository = (*Repository)(nil)
var _ ports.PollTx = (*postgresTx)(nil)
var _ ports.IdempotencyStore = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
