package gateway

import (
	"context"

	"github.com/dmitrijs2005/postkeeper/internal/common"
	"github.com/dmitrijs2005/postkeeper/internal/logging"
	"github.com/dmitrijs2005/postkeeper/internal/models"
)

// Local is a gateway without an external channel: requests are logged and
// decisions arrive through the decisions webhook only.
type Local struct {
	*Book
	logger logging.Logger
}

func NewLocal(logger logging.Logger) *Local {
	return &Local{Book: NewBook(), logger: logger}
}

func (g *Local) RequestApproval(ctx context.Context, c models.Content) (Ticket, error) {
	t := Ticket{ApprovalID: models.NewID()}
	g.open(t, c)
	g.logger.Info(ctx, "approval requested", common.LogKeyApprovalID, t.ApprovalID, "preview", c.Preview(80))
	return t, nil
}

func (g *Local) CheckStatus(ctx context.Context, approvalID string) (models.Status, error) {
	return g.Status(approvalID)
}

func (g *Local) ApprovedContent(ctx context.Context, approvalID string) (*models.Content, error) {
	return g.Approved(approvalID)
}

func (g *Local) UpdateRequest(ctx context.Context, t Ticket, c models.Content, status models.Status, actor string) error {
	g.logger.Info(ctx, "approval request updated",
		common.LogKeyApprovalID, t.ApprovalID, "status", string(status), "actor", actor)
	return nil
}
