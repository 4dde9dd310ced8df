// Package sqliteadapter persists polls in a single SQLite file for
// single-node deployments.
package sqliteadapter

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"pollhub/contexts/member-engagement/poll-engine/adapters/sqlite/migrations"
	"pollhub/contexts/member-engagement/poll-engine/domain/entities"
	domainerrors "pollhub/contexts/member-engagement/poll-engine/domain/errors"
	"pollhub/contexts/member-engagement/poll-engine/ports"
	"pollhub/internal/platform/db"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store implements the poll-engine ports on SQLite. The handle is limited to
// one connection, so transactions are serialized and the lock methods of
// PollTx only load rows.
type Store struct {
	sqlDB  *sql.DB
	logger *slog.Logger
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Zero times are stored as 0 so that "no expiry" survives a round trip.
func toNanos(value time.Time) int64 {
	if value.IsZero() {
		return 0
	}
	return value.UTC().UnixNano()
}

func fromNanos(value int64) time.Time {
	if value == 0 {
		return time.Time{}
	}
	return time.Unix(0, value).UTC()
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

// Open opens the database at path and applies embedded migrations.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	sqlDB, err := db.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	if err := db.ApplySQLiteMigrations(ctx, sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return NewStore(sqlDB, logger), nil
}

func NewStore(sqlDB *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{sqlDB: sqlDB, logger: logger}
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) GetPoll(ctx context.Context, pollID string) (entities.Poll, error) {
	pollID = strings.TrimSpace(pollID)
	poll, err := loadPoll(ctx, s.sqlDB, pollID)
	if err != nil && !errors.Is(err, domainerrors.ErrPollNotFound) {
		return entities.Poll{}, s.logError("poll_sqlite_get_poll_failed", err, "poll_id", pollID)
	}
	return poll, err
}

func (s *Store) GetPollWithBallots(ctx context.Context, pollID string) (entities.Poll, []entities.Ballot, error) {
	pollID = strings.TrimSpace(pollID)
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return entities.Poll{}, nil, s.logError("poll_sqlite_begin_read_failed", err, "poll_id", pollID)
	}
	defer func() { _ = tx.Rollback() }()

	poll, err := loadPoll(ctx, tx, pollID)
	if err != nil {
		if errors.Is(err, domainerrors.ErrPollNotFound) {
			return entities.Poll{}, nil, err
		}
		return entities.Poll{}, nil, s.logError("poll_sqlite_get_poll_failed", err, "poll_id", pollID)
	}
	rows, err := tx.QueryContext(ctx,
		`SELECT ballot_id, poll_id, option_id, member_id, cast_at
		   FROM ballots
		  WHERE poll_id = ?
		  ORDER BY cast_at ASC, ballot_id ASC`,
		pollID,
	)
	if err != nil {
		return entities.Poll{}, nil, s.logError("poll_sqlite_list_ballots_failed", err, "poll_id", pollID)
	}
	defer rows.Close()
	ballots := make([]entities.Ballot, 0)
	for rows.Next() {
		var (
			ballot entities.Ballot
			castAt int64
		)
		if err := rows.Scan(&ballot.BallotID, &ballot.PollID, &ballot.OptionID, &ballot.MemberID, &castAt); err != nil {
			return entities.Poll{}, nil, s.logError("poll_sqlite_scan_ballot_failed", err, "poll_id", pollID)
		}
		ballot.CastAt = fromNanos(castAt)
		ballots = append(ballots, ballot)
	}
	if err := rows.Err(); err != nil {
		return entities.Poll{}, nil, s.logError("poll_sqlite_list_ballots_failed", err, "poll_id", pollID)
	}
	return poll, ballots, nil
}

func (s *Store) ListPolls(ctx context.Context, filter ports.PollFilter) (ports.PollPage, error) {
	where := ""
	args := make([]any, 0, 3)
	if filter.Status != "" {
		where = " WHERE status = ?"
		args = append(args, string(filter.Status))
	}
	var total int
	if err := s.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM polls"+where, args...).Scan(&total); err != nil {
		return ports.PollPage{}, s.logError("poll_sqlite_count_polls_failed", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)
	items, err := queryPolls(ctx, s.sqlDB,
		pollColumns+" FROM polls"+where+" ORDER BY created_at DESC, poll_id DESC LIMIT ? OFFSET ?",
		args...,
	)
	if err != nil {
		return ports.PollPage{}, s.logError("poll_sqlite_list_polls_failed", err)
	}
	return ports.PollPage{Items: items, Total: total}, nil
}

func (s *Store) CountParticipants(ctx context.Context, pollIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(pollIDs))
	if len(pollIDs) == 0 {
		return counts, nil
	}
	placeholders, args := inClause(pollIDs)
	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT poll_id, COUNT(DISTINCT member_id) FROM ballots WHERE poll_id IN ("+placeholders+") GROUP BY poll_id",
		args...,
	)
	if err != nil {
		return nil, s.logError("poll_sqlite_count_participants_failed", err)
	}
	defer rows.Close()
	for _, pollID := range pollIDs {
		counts[pollID] = 0
	}
	for rows.Next() {
		var (
			pollID string
			total  int
		)
		if err := rows.Scan(&pollID, &total); err != nil {
			return nil, s.logError("poll_sqlite_count_participants_failed", err)
		}
		counts[pollID] = total
	}
	return counts, rows.Err()
}

func (s *Store) ListVotedPollIDs(ctx context.Context, memberID string, pollIDs []string) (map[string]bool, error) {
	voted := make(map[string]bool, len(pollIDs))
	memberID = strings.TrimSpace(memberID)
	if memberID == "" || len(pollIDs) == 0 {
		return voted, nil
	}
	placeholders, args := inClause(pollIDs)
	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT DISTINCT poll_id FROM ballots WHERE member_id = ? AND poll_id IN ("+placeholders+")",
		append([]any{memberID}, args...)...,
	)
	if err != nil {
		return nil, s.logError("poll_sqlite_list_voted_polls_failed", err, "member_id", memberID)
	}
	defer rows.Close()
	for rows.Next() {
		var pollID string
		if err := rows.Scan(&pollID); err != nil {
			return nil, s.logError("poll_sqlite_list_voted_polls_failed", err, "member_id", memberID)
		}
		voted[pollID] = true
	}
	return voted, rows.Err()
}

func (s *Store) ListExpiredActivePolls(ctx context.Context, now time.Time, limit int) ([]entities.Poll, error) {
	if limit <= 0 {
		limit = -1
	}
	items, err := queryPolls(ctx, s.sqlDB,
		pollColumns+" FROM polls WHERE status = ? AND deadline < ? ORDER BY deadline ASC, poll_id ASC LIMIT ?",
		string(entities.PollStatusActive),
		toNanos(now),
		limit,
	)
	if err != nil {
		return nil, s.logError("poll_sqlite_list_expired_polls_failed", err, "limit", limit)
	}
	return items, nil
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ports.PollTx) error) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return s.logError("poll_sqlite_begin_tx_failed", err)
	}
	if err := fn(ctx, &storeTx{tx: tx, store: s}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		if isConstraint(err, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY) {
			return domainerrors.ErrConflict
		}
		return s.logError("poll_sqlite_commit_failed", err)
	}
	return nil
}

type storeTx struct {
	tx    *sql.Tx
	store *Store
}

func (t *storeTx) LockPoll(ctx context.Context, pollID string) (entities.Poll, error) {
	pollID = strings.TrimSpace(pollID)
	poll, err := loadPoll(ctx, t.tx, pollID)
	if err != nil && !errors.Is(err, domainerrors.ErrPollNotFound) {
		return entities.Poll{}, t.store.logError("poll_sqlite_lock_poll_failed", err, "poll_id", pollID)
	}
	return poll, err
}

func (t *storeTx) LockMemberBallots(ctx context.Context, pollID string, _ string) (entities.Poll, error) {
	return t.LockPoll(ctx, pollID)
}

// SavePoll parks kept options on negative display orders before writing the
// final ones, since SQLite cannot defer the (poll_id, display_order) check.
func (t *storeTx) SavePoll(ctx context.Context, poll entities.Poll) error {
	pollID := strings.TrimSpace(poll.PollID)
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO polls (
		   poll_id, title, description, author_id, anonymous, multiple_choice,
		   allow_add_option, deadline, status, created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (poll_id) DO UPDATE SET
		   title = excluded.title,
		   description = excluded.description,
		   anonymous = excluded.anonymous,
		   multiple_choice = excluded.multiple_choice,
		   allow_add_option = excluded.allow_add_option,
		   deadline = excluded.deadline,
		   status = excluded.status,
		   updated_at = excluded.updated_at`,
		pollID,
		poll.Title,
		poll.Description,
		strings.TrimSpace(poll.AuthorID),
		boolToInt(poll.Anonymous),
		boolToInt(poll.MultipleChoice),
		boolToInt(poll.AllowAddOption),
		toNanos(poll.Deadline),
		string(poll.Status),
		toNanos(poll.CreatedAt),
		toNanos(poll.UpdatedAt),
	)
	if err != nil {
		return t.store.logError("poll_sqlite_save_poll_header_failed", err, "poll_id", pollID)
	}

	keep := make([]string, 0, len(poll.Options))
	for _, option := range poll.Options {
		keep = append(keep, option.OptionID)
	}
	remove := "DELETE FROM poll_options WHERE poll_id = ?"
	args := []any{pollID}
	if len(keep) > 0 {
		placeholders, keepArgs := inClause(keep)
		remove += " AND option_id NOT IN (" + placeholders + ")"
		args = append(args, keepArgs...)
	}
	if _, err := t.tx.ExecContext(ctx, remove, args...); err != nil {
		if isConstraint(err, sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY) {
			return domainerrors.ErrOptionHasVotes
		}
		return t.store.logError("poll_sqlite_delete_options_failed", err, "poll_id", pollID)
	}
	if _, err := t.tx.ExecContext(ctx,
		"UPDATE poll_options SET display_order = -1 - display_order WHERE poll_id = ?",
		pollID,
	); err != nil {
		return t.store.logError("poll_sqlite_park_options_failed", err, "poll_id", pollID)
	}

	for _, option := range poll.Options {
		if _, err := t.tx.ExecContext(ctx,
			`INSERT INTO poll_options (option_id, poll_id, text, display_order, added_by_member_id)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (option_id) DO UPDATE SET
			   text = excluded.text,
			   display_order = excluded.display_order`,
			strings.TrimSpace(option.OptionID),
			pollID,
			option.Text,
			option.DisplayOrder,
			strings.TrimSpace(option.AddedByMemberID),
		); err != nil {
			if isConstraint(err, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE) {
				return domainerrors.ErrConflict
			}
			return t.store.logError("poll_sqlite_upsert_option_failed", err,
				"poll_id", pollID,
				"option_id", option.OptionID,
			)
		}
	}
	return nil
}

func (t *storeTx) DeletePoll(ctx context.Context, pollID string) error {
	pollID = strings.TrimSpace(pollID)
	for _, stmt := range []string{
		"DELETE FROM ballots WHERE poll_id = ?",
		"DELETE FROM poll_options WHERE poll_id = ?",
	} {
		if _, err := t.tx.ExecContext(ctx, stmt, pollID); err != nil {
			return t.store.logError("poll_sqlite_delete_poll_children_failed", err, "poll_id", pollID)
		}
	}
	result, err := t.tx.ExecContext(ctx, "DELETE FROM polls WHERE poll_id = ?", pollID)
	if err != nil {
		return t.store.logError("poll_sqlite_delete_poll_failed", err, "poll_id", pollID)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return t.store.logError("poll_sqlite_delete_poll_failed", err, "poll_id", pollID)
	}
	if affected == 0 {
		return domainerrors.ErrPollNotFound
	}
	return nil
}

func (t *storeTx) CountBallotsByOption(ctx context.Context, pollID string) (map[string]int, error) {
	pollID = strings.TrimSpace(pollID)
	rows, err := t.tx.QueryContext(ctx,
		"SELECT option_id, COUNT(*) FROM ballots WHERE poll_id = ? GROUP BY option_id",
		pollID,
	)
	if err != nil {
		return nil, t.store.logError("poll_sqlite_count_ballots_failed", err, "poll_id", pollID)
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var (
			optionID string
			total    int
		)
		if err := rows.Scan(&optionID, &total); err != nil {
			return nil, t.store.logError("poll_sqlite_count_ballots_failed", err, "poll_id", pollID)
		}
		counts[optionID] = total
	}
	return counts, rows.Err()
}

func (t *storeTx) ReplaceMemberBallots(
	ctx context.Context,
	pollID string,
	memberID string,
	ballots []entities.Ballot,
) error {
	if _, err := t.tx.ExecContext(ctx,
		"DELETE FROM ballots WHERE poll_id = ? AND member_id = ?",
		pollID,
		memberID,
	); err != nil {
		return t.store.logError("poll_sqlite_clear_member_ballots_failed", err,
			"poll_id", pollID,
			"member_id", memberID,
		)
	}
	for _, ballot := range ballots {
		if _, err := t.tx.ExecContext(ctx,
			`INSERT INTO ballots (ballot_id, poll_id, option_id, member_id, cast_at)
			 VALUES (?, ?, ?, ?, ?)`,
			strings.TrimSpace(ballot.BallotID),
			strings.TrimSpace(ballot.PollID),
			strings.TrimSpace(ballot.OptionID),
			strings.TrimSpace(ballot.MemberID),
			toNanos(ballot.CastAt),
		); err != nil {
			switch {
			case isConstraint(err, sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY):
				return domainerrors.ErrOptionNotFound
			case isConstraint(err, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY):
				return domainerrors.ErrConflict
			}
			return t.store.logError("poll_sqlite_insert_ballot_failed", err,
				"poll_id", pollID,
				"member_id", memberID,
			)
		}
	}
	return nil
}

func (t *storeTx) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return t.store.logError("poll_sqlite_append_outbox_marshal_failed", err,
			"event_id", strings.TrimSpace(envelope.EventID),
		)
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	createdAt := envelope.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	result, err := t.tx.ExecContext(ctx,
		`INSERT INTO poll_outbox (outbox_id, event_type, partition_key, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (outbox_id) DO NOTHING`,
		outboxID,
		strings.TrimSpace(envelope.EventType),
		strings.TrimSpace(envelope.PartitionKey),
		payload,
		toNanos(createdAt),
	)
	if err != nil {
		return t.store.logError("poll_sqlite_append_outbox_insert_failed", err, "outbox_id", outboxID)
	}
	if affected, err := result.RowsAffected(); err == nil && affected > 0 {
		return nil
	}
	var existing []byte
	if err := t.tx.QueryRowContext(ctx,
		"SELECT payload FROM poll_outbox WHERE outbox_id = ?",
		outboxID,
	).Scan(&existing); err != nil {
		return t.store.logError("poll_sqlite_append_outbox_load_existing_failed", err, "outbox_id", outboxID)
	}
	if !bytes.Equal(existing, payload) {
		return domainerrors.ErrIdempotencyConflict
	}
	return nil
}

func (s *Store) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT outbox_id, event_type, partition_key, payload, created_at
		   FROM poll_outbox
		  WHERE published = 0
		  ORDER BY created_at ASC, outbox_id ASC
		  LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, s.logError("poll_sqlite_list_pending_outbox_failed", err, "limit", limit)
	}
	defer rows.Close()
	items := make([]ports.OutboxMessage, 0, limit)
	for rows.Next() {
		var (
			message   ports.OutboxMessage
			createdAt int64
		)
		if err := rows.Scan(&message.OutboxID, &message.EventType, &message.PartitionKey, &message.Payload, &createdAt); err != nil {
			return nil, s.logError("poll_sqlite_scan_outbox_failed", err)
		}
		message.CreatedAt = fromNanos(createdAt)
		items = append(items, message)
	}
	return items, rows.Err()
}

func (s *Store) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result, err := s.sqlDB.ExecContext(ctx,
		"UPDATE poll_outbox SET published = 1, published_at = ? WHERE outbox_id = ?",
		toNanos(publishedAt),
		strings.TrimSpace(outboxID),
	)
	if err != nil {
		return s.logError("poll_sqlite_mark_outbox_published_failed", err, "outbox_id", outboxID)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return s.logError("poll_sqlite_mark_outbox_published_failed", err, "outbox_id", outboxID)
	}
	if affected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

// ClaimIdempotencyKey records the key in the poll transaction. A live record
// for the key is a conflict; an expired one is replaced.
func (t *storeTx) ClaimIdempotencyKey(ctx context.Context, record ports.IdempotencyRecord, now time.Time) error {
	key := strings.TrimSpace(record.Key)
	if _, err := t.tx.ExecContext(ctx,
		"DELETE FROM poll_engine_idempotency WHERE key = ? AND expires_at <> 0 AND expires_at < ?",
		key, toNanos(now),
	); err != nil {
		return t.store.logError("poll_sqlite_idempotency_claim_expire_failed", err, "idempotency_key", key)
	}
	result, err := t.tx.ExecContext(ctx,
		`INSERT INTO poll_engine_idempotency (key, request_hash, poll_id, expires_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (key) DO NOTHING`,
		key,
		strings.TrimSpace(record.RequestHash),
		strings.TrimSpace(record.PollID),
		toNanos(record.ExpiresAt),
	)
	if err != nil {
		return t.store.logError("poll_sqlite_idempotency_claim_failed", err, "idempotency_key", key)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return t.store.logError("poll_sqlite_idempotency_claim_failed", err, "idempotency_key", key)
	}
	if affected == 0 {
		return domainerrors.ErrIdempotencyConflict
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	key = strings.TrimSpace(key)
	var (
		record    ports.IdempotencyRecord
		expiresAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT key, request_hash, poll_id, expires_at FROM poll_engine_idempotency WHERE key = ?",
		key,
	).Scan(&record.Key, &record.RequestHash, &record.PollID, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ports.IdempotencyRecord{}, false, nil
		}
		return ports.IdempotencyRecord{}, false, s.logError("poll_sqlite_idempotency_get_failed", err, "idempotency_key", key)
	}
	record.ExpiresAt = fromNanos(expiresAt)
	if expiresAt != 0 && now.UTC().After(record.ExpiresAt) {
		if _, err := s.sqlDB.ExecContext(ctx, "DELETE FROM poll_engine_idempotency WHERE key = ?", key); err != nil {
			return ports.IdempotencyRecord{}, false, s.logError("poll_sqlite_idempotency_expire_delete_failed", err,
				"idempotency_key", key,
			)
		}
		return ports.IdempotencyRecord{}, false, nil
	}
	return record, true, nil
}

const pollColumns = `SELECT poll_id, title, description, author_id, anonymous, multiple_choice,
       allow_add_option, deadline, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPoll(row rowScanner) (entities.Poll, error) {
	var (
		poll                           entities.Poll
		anonymous, multiple, allowAdd  int
		status                         string
		deadline, createdAt, updatedAt int64
	)
	if err := row.Scan(
		&poll.PollID,
		&poll.Title,
		&poll.Description,
		&poll.AuthorID,
		&anonymous,
		&multiple,
		&allowAdd,
		&deadline,
		&status,
		&createdAt,
		&updatedAt,
	); err != nil {
		return entities.Poll{}, err
	}
	poll.Anonymous = anonymous != 0
	poll.MultipleChoice = multiple != 0
	poll.AllowAddOption = allowAdd != 0
	poll.Status = entities.PollStatus(status)
	poll.Deadline = fromNanos(deadline)
	poll.CreatedAt = fromNanos(createdAt)
	poll.UpdatedAt = fromNanos(updatedAt)
	return poll, nil
}

func loadPoll(ctx context.Context, q querier, pollID string) (entities.Poll, error) {
	poll, err := scanPoll(q.QueryRowContext(ctx, pollColumns+" FROM polls WHERE poll_id = ?", pollID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entities.Poll{}, domainerrors.ErrPollNotFound
		}
		return entities.Poll{}, err
	}
	options, err := loadOptions(ctx, q, []string{poll.PollID})
	if err != nil {
		return entities.Poll{}, err
	}
	poll.Options = options[poll.PollID]
	if poll.Options == nil {
		poll.Options = []entities.Option{}
	}
	return poll, nil
}

func queryPolls(ctx context.Context, q querier, query string, args ...any) ([]entities.Poll, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	items := make([]entities.Poll, 0)
	ids := make([]string, 0)
	for rows.Next() {
		poll, err := scanPoll(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		items = append(items, poll)
		ids = append(ids, poll.PollID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	options, err := loadOptions(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Options = options[items[i].PollID]
		if items[i].Options == nil {
			items[i].Options = []entities.Option{}
		}
	}
	return items, nil
}

func loadOptions(ctx context.Context, q querier, pollIDs []string) (map[string][]entities.Option, error) {
	byPoll := make(map[string][]entities.Option, len(pollIDs))
	if len(pollIDs) == 0 {
		return byPoll, nil
	}
	placeholders, args := inClause(pollIDs)
	rows, err := q.QueryContext(ctx,
		`SELECT option_id, poll_id, text, display_order, added_by_member_id
		   FROM poll_options
		  WHERE poll_id IN (`+placeholders+`)
		  ORDER BY poll_id, display_order ASC`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var option entities.Option
		if err := rows.Scan(&option.OptionID, &option.PollID, &option.Text, &option.DisplayOrder, &option.AddedByMemberID); err != nil {
			return nil, err
		}
		byPoll[option.PollID] = append(byPoll[option.PollID], option)
	}
	return byPoll, rows.Err()
}

func inClause(values []string) (string, []any) {
	args := make([]any, 0, len(values))
	for _, value := range values {
		args = append(args, value)
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(values)), ","), args
}

func isConstraint(err error, codes ...int) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	for _, code := range codes {
		if sqliteErr.Code() == code {
			return true
		}
	}
	return false
}

func (s *Store) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "member-engagement/poll-engine",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	s.logger.Error("poll sqlite operation failed", fields...)
	return err
}

var _ ports.PollRepository = (*Store)(nil)
var _ ports.PollTx = (*storeTx)(nil)
var _ ports.IdempotencyStore = (*Store)(nil)
var _ ports.OutboxRepository = (*Store)(nil)
