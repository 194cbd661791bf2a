package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/postkeeper/internal/common"
)

// Action names a reviewer decision.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionEdit    Action = "edit"
)

// Decision is one of Approve, Reject or Edit.
type Decision interface {
	Approval() string
	By() string
	Action() Action
}

type Approve struct {
	ApprovalID string
	Actor      string
}

func (d Approve) Approval() string { return d.ApprovalID }
func (d Approve) By() string       { return d.Actor }
func (Approve) Action() Action     { return ActionApprove }

type Reject struct {
	ApprovalID string
	Actor      string
}

func (d Reject) Approval() string { return d.ApprovalID }
func (d Reject) By() string       { return d.Actor }
func (Reject) Action() Action     { return ActionReject }

// Edit replaces the text of a pending request. Text is never empty.
type Edit struct {
	ApprovalID string
	Actor      string
	Text       string
}

func (d Edit) Approval() string { return d.ApprovalID }
func (d Edit) By() string       { return d.Actor }
func (Edit) Action() Action     { return ActionEdit }

// Payload is the wire form of a pushed decision.
type Payload struct {
	ApprovalID string  `json:"approvalId"`
	Action     string  `json:"action"`
	EditedText *string `json:"editedText,omitempty"`
	ActorRef   string  `json:"actorRef"`
}

// Decision validates p and converts it into a Decision.
func (p Payload) Decision() (Decision, error) {
	id := strings.TrimSpace(p.ApprovalID)
	if id == "" {
		return nil, fmt.Errorf("%w: approvalId is required", common.ErrMalformedPayload)
	}

	switch Action(p.Action) {
	case ActionApprove:
		return Approve{ApprovalID: id, Actor: p.ActorRef}, nil
	case ActionReject:
		return Reject{ApprovalID: id, Actor: p.ActorRef}, nil
	case ActionEdit:
		if p.EditedText == nil || strings.TrimSpace(*p.EditedText) == "" {
			return nil, fmt.Errorf("%w: edit of %s without editedText", common.ErrMalformedPayload, id)
		}
		return Edit{ApprovalID: id, Actor: p.ActorRef, Text: *p.EditedText}, nil
	case "":
		return nil, fmt.Errorf("%w: action is required", common.ErrMalformedPayload)
	}
	return nil, fmt.Errorf("%w: %q", common.ErrUnknownAction, p.Action)
}

// ParseDecision decodes and validates a JSON decision body.
func ParseDecision(data []byte) (Decision, error) {
	var p Payload
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedPayload, err)
	}
	return p.Decision()
}
