package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/postkeeper/internal/common"
	"github.com/slack-go/slack"
)

// Interaction is a parsed Slack interactivity payload: either a Decision
// or a request to open the edit modal.
type Interaction struct {
	Decision Decision
	Editor   *EditorRequest
}

// EditorRequest asks for the edit modal of a pending request.
type EditorRequest struct {
	TriggerID  string
	ApprovalID string
	Actor      string
}

// ParseInteraction decodes the JSON carried in the "payload" form field of
// a Slack interaction callback.
func ParseInteraction(payload []byte) (Interaction, error) {
	var cb slack.InteractionCallback
	if err := json.Unmarshal(payload, &cb); err != nil {
		return Interaction{}, fmt.Errorf("%w: slack payload: %v", common.ErrMalformedPayload, err)
	}
	actor := cb.User.ID
	if actor == "" {
		actor = cb.User.Name
	}

	switch cb.Type {
	case slack.InteractionTypeBlockActions:
		if len(cb.ActionCallback.BlockActions) == 0 {
			return Interaction{}, fmt.Errorf("%w: block_actions without actions", common.ErrMalformedPayload)
		}
		a := cb.ActionCallback.BlockActions[0]
		id := strings.TrimSpace(a.Value)
		if id == "" {
			return Interaction{}, fmt.Errorf("%w: action %s without approval id", common.ErrMalformedPayload, a.ActionID)
		}
		switch a.ActionID {
		case actionApprovePost:
			return Interaction{Decision: Approve{ApprovalID: id, Actor: actor}}, nil
		case actionRejectPost:
			return Interaction{Decision: Reject{ApprovalID: id, Actor: actor}}, nil
		case actionEditPost:
			return Interaction{Editor: &EditorRequest{TriggerID: cb.TriggerID, ApprovalID: id, Actor: actor}}, nil
		}
		return Interaction{}, fmt.Errorf("%w: slack action %q", common.ErrUnknownAction, a.ActionID)

	case slack.InteractionTypeViewSubmission:
		if cb.View.CallbackID != editCallbackID {
			return Interaction{}, fmt.Errorf("%w: slack view %q", common.ErrUnknownAction, cb.View.CallbackID)
		}
		var text string
		if cb.View.State != nil {
			text = cb.View.State.Values[editBlockID][editInputID].Value
		}
		p := Payload{ApprovalID: cb.View.PrivateMetadata, Action: string(ActionEdit), EditedText: &text, ActorRef: actor}
		d, err := p.Decision()
		if err != nil {
			return Interaction{}, err
		}
		return Interaction{Decision: d}, nil
	}
	return Interaction{}, fmt.Errorf("%w: slack interaction type %q", common.ErrUnknownAction, cb.Type)
}
