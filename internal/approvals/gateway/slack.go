package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/postkeeper/internal/common"
	"github.com/dmitrijs2005/postkeeper/internal/models"
	"github.com/slack-go/slack"
)

const (
	actionApprovePost = "approve_post"
	actionRejectPost  = "reject_post"
	actionEditPost    = "edit_post"

	editCallbackID = "edit_post"
	editBlockID    = "post_text"
	editInputID    = "post_text_input"
)

// slackAPI is the part of *slack.Client used by the gateway.
type slackAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
	UpdateMessageContext(ctx context.Context, channelID, timestamp string, options ...slack.MsgOption) (string, string, string, error)
	OpenViewContext(ctx context.Context, triggerID string, view slack.ModalViewRequest) (*slack.ViewResponse, error)
}

// Slack renders approval requests as interactive messages in a channel.
type Slack struct {
	*Book
	api     slackAPI
	channel string
}

// NewSlack builds a gateway posting to channel. apiURL overrides the Slack
// Web API base and may be empty.
func NewSlack(token, channel, apiURL string) *Slack {
	var opts []slack.Option
	if apiURL != "" {
		opts = append(opts, slack.OptionAPIURL(strings.TrimRight(apiURL, "/")+"/"))
	}
	return newSlack(slack.New(token, opts...), channel)
}

func newSlack(api slackAPI, channel string) *Slack {
	return &Slack{Book: NewBook(), api: api, channel: channel}
}

func (g *Slack) RequestApproval(ctx context.Context, c models.Content) (Ticket, error) {
	id := models.NewID()
	_, ts, err := g.api.PostMessageContext(ctx, g.channel,
		slack.MsgOptionText("New post requires approval: "+c.Preview(50), false),
		slack.MsgOptionBlocks(approvalBlocks(id, c, "*A new post requires your approval:*")...),
	)
	if err != nil {
		return Ticket{}, common.Collaborator("slack", fmt.Errorf("post approval request: %w", err))
	}
	t := Ticket{ApprovalID: id, MessageTS: ts}
	g.open(t, c)
	return t, nil
}

func (g *Slack) CheckStatus(ctx context.Context, approvalID string) (models.Status, error) {
	return g.Status(approvalID)
}

func (g *Slack) ApprovedContent(ctx context.Context, approvalID string) (*models.Content, error) {
	return g.Approved(approvalID)
}

// UpdateRequest rewrites the approval message. Pending requests keep their
// buttons; decided ones show the outcome and the actor.
func (g *Slack) UpdateRequest(ctx context.Context, t Ticket, c models.Content, status models.Status, actor string) error {
	if t.MessageTS == "" {
		return nil
	}

	var opts []slack.MsgOption
	switch status {
	case models.StatusPending:
		opts = []slack.MsgOption{
			slack.MsgOptionText("Updated content needs approval: "+c.Preview(50), false),
			slack.MsgOptionBlocks(approvalBlocks(t.ApprovalID, c, "*Updated post requires your approval:*")...),
		}
	default:
		verb := "approved"
		if status == models.StatusRejected {
			verb = "rejected"
		}
		header := fmt.Sprintf("*Content %s*", verb)
		if actor != "" {
			header = fmt.Sprintf("*Content %s by <@%s>*", verb, actor)
		}
		opts = []slack.MsgOption{
			slack.MsgOptionText(fmt.Sprintf("Content %s: %q", verb, c.Preview(50)), false),
			slack.MsgOptionBlocks(
				slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, header, false, false), nil, nil),
				slack.NewSectionBlock(slack.NewTextBlockObject(slack.PlainTextType, c.Text, false, false), nil, nil),
			),
		}
	}

	if _, _, _, err := g.api.UpdateMessageContext(ctx, g.channel, t.MessageTS, opts...); err != nil {
		return common.Collaborator("slack", fmt.Errorf("update approval message: %w", err))
	}
	return nil
}

// OpenEditor shows the edit modal for approvalID prefilled with text.
func (g *Slack) OpenEditor(ctx context.Context, triggerID, approvalID, text string) error {
	view := slack.ModalViewRequest{
		Type:            slack.VTModal,
		CallbackID:      editCallbackID,
		PrivateMetadata: approvalID,
		Title:           slack.NewTextBlockObject(slack.PlainTextType, "Edit Post", false, false),
		Submit:          slack.NewTextBlockObject(slack.PlainTextType, "Save Changes", false, false),
		Blocks: slack.Blocks{BlockSet: []slack.Block{
			&slack.InputBlock{
				Type:    slack.MBTInput,
				BlockID: editBlockID,
				Label:   slack.NewTextBlockObject(slack.PlainTextType, "Edit post content", false, false),
				Element: &slack.PlainTextInputBlockElement{
					Type:         slack.METPlainTextInput,
					ActionID:     editInputID,
					InitialValue: text,
					Multiline:    true,
				},
			},
		}},
	}
	if _, err := g.api.OpenViewContext(ctx, triggerID, view); err != nil {
		return common.Collaborator("slack", fmt.Errorf("open edit view: %w", err))
	}
	return nil
}

func approvalBlocks(approvalID string, c models.Content, header string) []slack.Block {
	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, header, false, false), nil, nil),
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.PlainTextType, c.Text, false, false), nil, nil),
	}
	if n := len(c.Media); n > 0 {
		suffix := ""
		if n > 1 {
			suffix = "s"
		}
		text := fmt.Sprintf("*Includes media:* %d item%s", n, suffix)
		blocks = append(blocks, slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil))
	}
	if c.Poll != nil {
		var b strings.Builder
		b.WriteString("*Includes poll:*")
		for i, opt := range c.Poll.Options {
			fmt.Fprintf(&b, "\n%d. %s", i+1, opt)
		}
		blocks = append(blocks, slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, b.String(), false, false), nil, nil))
	}

	button := func(actionID, label string) *slack.ButtonBlockElement {
		return slack.NewButtonBlockElement(actionID, approvalID, slack.NewTextBlockObject(slack.PlainTextType, label, true, false))
	}
	blocks = append(blocks, slack.NewActionBlock("approval_"+approvalID,
		button(actionApprovePost, "Approve").WithStyle(slack.StylePrimary),
		button(actionRejectPost, "Reject").WithStyle(slack.StyleDanger),
		button(actionEditPost, "Edit"),
	))
	return blocks
}
