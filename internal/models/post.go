// Package models defines the post record tracked through the approval
// lifecycle together with its content, media and mention types.
package models

import (
	"fmt"
	"time"

	"github.com/dmitrijs2005/postkeeper/internal/common"
	"github.com/google/uuid"
)

// Status is the lifecycle state of a Post.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusPublished Status = "published"
)

// transitions lists the allowed edges of the lifecycle state machine.
var transitions = map[Status][]Status{
	StatusDraft:    {StatusPending, StatusPublished},
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusPublished},
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusApproved, StatusRejected, StatusPublished:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusPublished || s == StatusRejected
}

// ParseStatus converts a string into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", common.ErrMalformedPayload, s)
	}
	return st, nil
}

// CanTransition reports whether the state machine has an edge from -> to.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Post is the unit of lifecycle tracking. ApprovalID and MessageTS are set
// once approval has been requested; ReplyTargetID is set for replies only.
type Post struct {
	ID            string    `json:"id"`
	Text          string    `json:"text"`
	Media         []Media   `json:"media,omitempty"`
	Poll          *Poll     `json:"poll,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	Status        Status    `json:"status"`
	ApprovalID    string    `json:"approvalId,omitempty"`
	MessageTS     string    `json:"messageTs,omitempty"`
	ReplyTargetID string    `json:"replyTargetId,omitempty"`
}

// NewID returns a fresh record identifier.
func NewID() string {
	return uuid.NewString()
}

// NewDraft builds a draft record from generated content.
func NewDraft(c Content, now time.Time) *Post {
	return &Post{
		ID:            NewID(),
		Text:          c.Text,
		Media:         c.Media,
		Poll:          c.Poll,
		CreatedAt:     now.UTC(),
		Status:        StatusDraft,
		ReplyTargetID: c.ReplyTargetID,
	}
}

// Content returns the publishable part of the record.
func (p *Post) Content() Content {
	return Content{Text: p.Text, Media: p.Media, Poll: p.Poll, ReplyTargetID: p.ReplyTargetID}
}

// IsReply reports whether the record answers a mention.
func (p *Post) IsReply() bool {
	return p.ReplyTargetID != ""
}

// Validate checks the record-level invariants.
func (p *Post) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: empty id", common.ErrMalformedPayload)
	}
	if !p.Status.Valid() {
		return fmt.Errorf("%w: post %s has unknown status %q", common.ErrMalformedPayload, p.ID, p.Status)
	}
	if p.Status == StatusPending && p.ApprovalID == "" {
		return fmt.Errorf("%w: pending post %s without approval id", common.ErrMalformedPayload, p.ID)
	}
	return nil
}

// Clone returns a deep copy so callers can mutate it freely.
func (p *Post) Clone() *Post {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Media != nil {
		cp.Media = make([]Media, len(p.Media))
		for i, m := range p.Media {
			cp.Media[i] = m
			if m.Data != nil {
				cp.Media[i].Data = append(Binary(nil), m.Data...)
			}
		}
	}
	if p.Poll != nil {
		poll := *p.Poll
		poll.Options = append([]string(nil), p.Poll.Options...)
		cp.Poll = &poll
	}
	return &cp
}

// StatusUpdate carries the optional fields merged by a status write. Empty
// strings leave the stored values untouched.
type StatusUpdate struct {
	ApprovalID string
	MessageTS  string
}

// Apply merges u into p.
func (u StatusUpdate) Apply(p *Post) {
	if u.ApprovalID != "" {
		p.ApprovalID = u.ApprovalID
	}
	if u.MessageTS != "" {
		p.MessageTS = u.MessageTS
	}
}

// ContentUpdate is a partial content change. Nil fields are left unchanged.
type ContentUpdate struct {
	Text  *string
	Media []Media
	Poll  *Poll
}

// Apply merges u into p.
func (u ContentUpdate) Apply(p *Post) {
	if u.Text != nil {
		p.Text = *u.Text
	}
	if u.Media != nil {
		p.Media = u.Media
	}
	if u.Poll != nil {
		p.Poll = u.Poll
	}
}

// TextUpdate is a shorthand for a ContentUpdate that only replaces the text.
func TextUpdate(text string) ContentUpdate {
	return ContentUpdate{Text: &text}
}

// TransitionError reports a rejected status change. It matches
// common.ErrInvalidTransition; Current is the status found in the store.
type TransitionError struct {
	ID      string
	Current Status
	To      Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("post %s: %s -> %s not allowed", e.ID, e.Current, e.To)
}

func (e *TransitionError) Unwrap() error {
	return common.ErrInvalidTransition
}

// CheckTransition validates a move of p to status to, restricted to the
// allowed source statuses in from (all sources when from is empty).
func CheckTransition(p *Post, from []Status, to Status) error {
	allowed := len(from) == 0
	for _, s := range from {
		if s == p.Status {
			allowed = true
			break
		}
	}
	if !allowed || !CanTransition(p.Status, to) {
		return &TransitionError{ID: p.ID, Current: p.Status, To: to}
	}
	return nil
}
