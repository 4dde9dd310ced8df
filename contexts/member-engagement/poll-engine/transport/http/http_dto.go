package http

import "time"

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CreatePollRequest struct {
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Anonymous      bool      `json:"anonymous"`
	MultipleChoice bool      `json:"multiple_choice"`
	AllowAddOption bool      `json:"allow_add_option"`
	Options        []string  `json:"options"`
	Deadline       time.Time `json:"deadline"`
}

// UpdatePollRequest leaves absent header fields unchanged. Options entries
// with an option_id edit that option; entries without one are inserted.
type UpdatePollRequest struct {
	Title            *string             `json:"title,omitempty"`
	Description      *string             `json:"description,omitempty"`
	Deadline         *time.Time          `json:"deadline,omitempty"`
	Options          []OptionEditRequest `json:"options,omitempty"`
	DeletedOptionIDs []string            `json:"deleted_option_ids,omitempty"`
}

type OptionEditRequest struct {
	OptionID     string `json:"option_id,omitempty"`
	Text         string `json:"text"`
	DisplayOrder *int   `json:"display_order,omitempty"`
}

type CastVoteRequest struct {
	OptionIDs []string `json:"option_ids"`
}

type AddOptionRequest struct {
	Text string `json:"text"`
}

type MemberRef struct {
	MemberID string `json:"member_id"`
	Name     string `json:"name,omitempty"`
}

type VoterResponse struct {
	MemberID string    `json:"member_id"`
	Name     string    `json:"name,omitempty"`
	CastAt   time.Time `json:"cast_at"`
}

type OptionTallyResponse struct {
	OptionID     string          `json:"option_id"`
	Text         string          `json:"text"`
	DisplayOrder int             `json:"display_order"`
	AddedBy      string          `json:"added_by,omitempty"`
	VoteCount    int             `json:"vote_count"`
	Voters       []VoterResponse `json:"voters"`
}

type TallyResponse struct {
	PollID            string                `json:"poll_id"`
	Title             string                `json:"title"`
	Description       string                `json:"description"`
	Author            MemberRef             `json:"author"`
	Anonymous         bool                  `json:"anonymous"`
	MultipleChoice    bool                  `json:"multiple_choice"`
	AllowAddOption    bool                  `json:"allow_add_option"`
	Status            string                `json:"status"`
	Expired           bool                  `json:"expired"`
	Deadline          time.Time             `json:"deadline"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
	Options           []OptionTallyResponse `json:"options"`
	TotalVotes        int                   `json:"total_votes"`
	Participants      int                   `json:"participants"`
	ActiveMembers     int64                 `json:"active_members"`
	ParticipationRate float64               `json:"participation_rate"`
	MyOptionIDs       []string              `json:"my_option_ids"`
	HasVoted          bool                  `json:"has_voted"`
	Replayed          bool                  `json:"replayed,omitempty"`
}

type OptionResponse struct {
	OptionID     string `json:"option_id"`
	PollID       string `json:"poll_id"`
	Text         string `json:"text"`
	DisplayOrder int    `json:"display_order"`
	AddedBy      string `json:"added_by,omitempty"`
}

type PollSummaryResponse struct {
	PollID         string    `json:"poll_id"`
	Title          string    `json:"title"`
	Author         MemberRef `json:"author"`
	Anonymous      bool      `json:"anonymous"`
	MultipleChoice bool      `json:"multiple_choice"`
	Status         string    `json:"status"`
	Deadline       time.Time `json:"deadline"`
	CreatedAt      time.Time `json:"created_at"`
	OptionCount    int       `json:"option_count"`
	Participants   int       `json:"participants"`
	ActiveMembers  int64     `json:"active_members"`
	HasVoted       bool      `json:"has_voted"`
}

type ListPollsResponse struct {
	Items []PollSummaryResponse `json:"items"`
	Page  int                   `json:"page"`
	Size  int                   `json:"size"`
	Total int                   `json:"total"`
}

type DeletePollResponse struct {
	PollID  string `json:"poll_id"`
	Deleted bool   `json:"deleted"`
}
