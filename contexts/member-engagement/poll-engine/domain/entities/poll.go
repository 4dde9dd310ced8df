package entities

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

const (
	MinOptionCount = 2
	MaxOptionCount = 10

	MaxTitleLength       = 100
	MaxDescriptionLength = 500
	MaxOptionTextLength  = 100
)

type PollStatus string

const (
	PollStatusActive PollStatus = "active"
	PollStatusClosed PollStatus = "closed"
)

func (s PollStatus) Valid() bool {
	return s == PollStatusActive || s == PollStatusClosed
}

type Option struct {
	OptionID        string
	PollID          string
	Text            string
	DisplayOrder    int
	AddedByMemberID string
}

type Poll struct {
	PollID         string
	Title          string
	Description    string
	AuthorID       string
	Anonymous      bool
	MultipleChoice bool
	AllowAddOption bool
	Deadline       time.Time
	Status         PollStatus
	Options        []Option
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsExpired reports whether now is strictly after the deadline. Status is not
// consulted: an active poll past its deadline is expired until the sweeper
// closes it.
func (p Poll) IsExpired(now time.Time) bool {
	return now.After(p.Deadline)
}

func (p Poll) IsClosed() bool {
	return p.Status == PollStatusClosed
}

// Close moves the poll to closed and reports whether a transition happened.
func (p *Poll) Close(now time.Time) bool {
	if p.IsClosed() {
		return false
	}
	p.Status = PollStatusClosed
	p.UpdatedAt = now.UTC()
	return true
}

func (p Poll) IsAuthor(memberID string) bool {
	return strings.TrimSpace(memberID) != "" && p.AuthorID == strings.TrimSpace(memberID)
}

func (p Poll) OptionByID(optionID string) (Option, bool) {
	for _, option := range p.Options {
		if option.OptionID == optionID {
			return option, true
		}
	}
	return Option{}, false
}

// SortedOptions returns a copy of the options ordered by display order.
func (p Poll) SortedOptions() []Option {
	items := append([]Option(nil), p.Options...)
	SortOptions(items)
	return items
}

func (p Poll) NextDisplayOrder() int {
	next := 0
	for _, option := range p.Options {
		if option.DisplayOrder+1 > next {
			next = option.DisplayOrder + 1
		}
	}
	return next
}

// HasOptionText reports whether an option with the same normalized text exists.
func (p Poll) HasOptionText(text string) bool {
	key := NormalizeOptionText(text)
	for _, option := range p.Options {
		if NormalizeOptionText(option.Text) == key {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so store snapshots never share option slices.
func (p Poll) Clone() Poll {
	p.Options = append([]Option(nil), p.Options...)
	return p
}

func SortOptions(items []Option) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].DisplayOrder == items[j].DisplayOrder {
			return items[i].OptionID < items[j].OptionID
		}
		return items[i].DisplayOrder < items[j].DisplayOrder
	})
}

// NormalizeOptionText is the comparison key for option text uniqueness:
// surrounding whitespace is ignored and case is folded. A Caser carries state,
// so one is built per call.
func NormalizeOptionText(text string) string {
	return cases.Fold().String(strings.TrimSpace(text))
}

func ValidTitle(title string) bool {
	title = strings.TrimSpace(title)
	return title != "" && utf8.RuneCountInString(title) <= MaxTitleLength
}

func ValidDescription(description string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(description)) <= MaxDescriptionLength
}

func ValidOptionText(text string) bool {
	text = strings.TrimSpace(text)
	return text != "" && utf8.RuneCountInString(text) <= MaxOptionTextLength
}

type Ballot struct {
	BallotID string
	PollID   string
	OptionID string
	MemberID string
	CastAt   time.Time
}
