// Package gateway connects the lifecycle to the human review channel. A
// Gateway renders approval requests, reports decisions when polled and
// re-renders requests after edits and decisions.
package gateway

import (
	"context"

	"github.com/dmitrijs2005/postkeeper/internal/models"
)

// Ticket identifies a rendered approval request.
type Ticket struct {
	ApprovalID string
	// MessageTS references the rendered message; empty when unknown.
	MessageTS string
}

// Gateway is the approval channel used by the lifecycle controller.
type Gateway interface {
	// RequestApproval renders c for review.
	RequestApproval(ctx context.Context, c models.Content) (Ticket, error)

	// CheckStatus returns pending, approved or rejected.
	CheckStatus(ctx context.Context, approvalID string) (models.Status, error)

	// ApprovedContent returns the possibly edited content when the request
	// was approved, nil otherwise.
	ApprovedContent(ctx context.Context, approvalID string) (*models.Content, error)

	// UpdateRequest re-renders a request after an edit or a decision.
	UpdateRequest(ctx context.Context, t Ticket, c models.Content, status models.Status, actor string) error
}

// Recorder is implemented by gateways that keep their own view of pushed
// decisions.
type Recorder interface {
	Record(d Decision)
}
