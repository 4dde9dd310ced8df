package services

import (
	"strings"

	"pollhub/contexts/member-engagement/poll-engine/domain/entities"
	domainerrors "pollhub/contexts/member-engagement/poll-engine/domain/errors"
)

// OptionEdit targets an existing option when OptionID is set and describes a
// new option otherwise. A nil DisplayOrder keeps the current order for edits
// and appends after the last option for inserts.
type OptionEdit struct {
	OptionID     string
	Text         string
	DisplayOrder *int
}

type BulkOptionEdit struct {
	Edits      []OptionEdit
	DeletedIDs []string
}

func (e BulkOptionEdit) Empty() bool {
	return len(e.Edits) == 0 && len(e.DeletedIDs) == 0
}

// BuildInitialOptions turns creation-time texts into options ordered 0..n-1.
func BuildInitialOptions(pollID string, texts []string, newID func() (string, error)) ([]entities.Option, error) {
	if len(texts) < entities.MinOptionCount {
		return nil, domainerrors.ErrOptionMinCount
	}
	if len(texts) > entities.MaxOptionCount {
		return nil, domainerrors.ErrOptionMaxCount
	}
	options := make([]entities.Option, 0, len(texts))
	for index, text := range texts {
		if !entities.ValidOptionText(text) {
			return nil, domainerrors.ErrInvalidPollInput
		}
		optionID, err := newID()
		if err != nil {
			return nil, err
		}
		options = append(options, entities.Option{
			OptionID:     optionID,
			PollID:       pollID,
			Text:         strings.TrimSpace(text),
			DisplayOrder: index,
		})
	}
	if err := ValidateOptionSet(options); err != nil {
		return nil, err
	}
	return options, nil
}

// ApplyBulkOptionEdit computes the option set that results from deleting,
// editing and inserting options, in that order, and validates the result as a
// whole. ballotCounts maps option id to its current ballot count. The poll is
// not modified; on error nothing should be persisted.
func ApplyBulkOptionEdit(
	poll entities.Poll,
	edit BulkOptionEdit,
	ballotCounts map[string]int,
	newID func() (string, error),
) ([]entities.Option, error) {
	deleted := make(map[string]struct{}, len(edit.DeletedIDs))
	for _, raw := range edit.DeletedIDs {
		optionID := strings.TrimSpace(raw)
		if _, ok := poll.OptionByID(optionID); !ok {
			continue
		}
		if ballotCounts[optionID] > 0 {
			return nil, domainerrors.ErrOptionHasVotes
		}
		deleted[optionID] = struct{}{}
	}

	working := make([]entities.Option, 0, len(poll.Options)+len(edit.Edits))
	positions := make(map[string]int, len(poll.Options))
	for _, option := range poll.Options {
		if _, gone := deleted[option.OptionID]; gone {
			continue
		}
		positions[option.OptionID] = len(working)
		working = append(working, option)
	}

	var inserts []OptionEdit
	for _, item := range edit.Edits {
		optionID := strings.TrimSpace(item.OptionID)
		if optionID == "" {
			inserts = append(inserts, item)
			continue
		}
		position, ok := positions[optionID]
		if !ok {
			return nil, domainerrors.ErrOptionNotFound
		}
		if !entities.ValidOptionText(item.Text) {
			return nil, domainerrors.ErrInvalidPollInput
		}
		working[position].Text = strings.TrimSpace(item.Text)
		if item.DisplayOrder != nil {
			if *item.DisplayOrder < 0 {
				return nil, domainerrors.ErrInvalidPollInput
			}
			working[position].DisplayOrder = *item.DisplayOrder
		}
	}

	for _, item := range inserts {
		if !entities.ValidOptionText(item.Text) {
			return nil, domainerrors.ErrInvalidPollInput
		}
		order := nextDisplayOrder(working)
		if item.DisplayOrder != nil {
			if *item.DisplayOrder < 0 {
				return nil, domainerrors.ErrInvalidPollInput
			}
			order = *item.DisplayOrder
		}
		optionID, err := newID()
		if err != nil {
			return nil, err
		}
		working = append(working, entities.Option{
			OptionID:     optionID,
			PollID:       poll.PollID,
			Text:         strings.TrimSpace(item.Text),
			DisplayOrder: order,
		})
	}

	if len(working) < entities.MinOptionCount {
		return nil, domainerrors.ErrOptionMinCount
	}
	if len(working) > entities.MaxOptionCount {
		return nil, domainerrors.ErrOptionMaxCount
	}
	if err := ValidateOptionSet(working); err != nil {
		return nil, err
	}
	entities.SortOptions(working)
	return working, nil
}

// GrowOption builds the option a member appends to an open poll. Permission
// and lifecycle checks belong to the caller; this only enforces the option
// set invariants.
func GrowOption(poll entities.Poll, optionID string, text string, memberID string) (entities.Option, error) {
	if !entities.ValidOptionText(text) {
		return entities.Option{}, domainerrors.ErrInvalidPollInput
	}
	if poll.HasOptionText(text) {
		return entities.Option{}, domainerrors.ErrOptionDuplicate
	}
	if len(poll.Options)+1 > entities.MaxOptionCount {
		return entities.Option{}, domainerrors.ErrOptionMaxCount
	}
	return entities.Option{
		OptionID:        optionID,
		PollID:          poll.PollID,
		Text:            strings.TrimSpace(text),
		DisplayOrder:    poll.NextDisplayOrder(),
		AddedByMemberID: strings.TrimSpace(memberID),
	}, nil
}

// ValidateOptionSet checks text and display order uniqueness.
func ValidateOptionSet(options []entities.Option) error {
	texts := make(map[string]struct{}, len(options))
	orders := make(map[int]struct{}, len(options))
	for _, option := range options {
		key := entities.NormalizeOptionText(option.Text)
		if _, seen := texts[key]; seen {
			return domainerrors.ErrOptionDuplicate
		}
		texts[key] = struct{}{}
		if _, seen := orders[option.DisplayOrder]; seen {
			return domainerrors.ErrDuplicateDisplayOrder
		}
		orders[option.DisplayOrder] = struct{}{}
	}
	return nil
}

func nextDisplayOrder(options []entities.Option) int {
	return entities.Poll{Options: options}.NextDisplayOrder()
}
