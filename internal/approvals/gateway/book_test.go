package gateway

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/postkeeper/internal/common"
	"github.com/dmitrijs2005/postkeeper/internal/logging"
	"github.com/dmitrijs2005/postkeeper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBook_Lifecycle(t *testing.T) {
	b := NewBook()
	c := models.Content{Text: "orig", Poll: &models.Poll{Options: []string{"a", "b"}}}
	b.open(Ticket{ApprovalID: "A", MessageTS: "1.1"}, c)

	st, err := b.Status("A")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, st)

	got, err := b.Approved("A")
	require.NoError(t, err)
	assert.Nil(t, got)

	b.Record(Edit{ApprovalID: "A", Text: "edited"})
	b.Record(Approve{ApprovalID: "A"})

	got, err = b.Approved("A")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "edited", got.Text)
	assert.Equal(t, c.Poll, got.Poll)

	// decided requests ignore later decisions
	b.Record(Reject{ApprovalID: "A"})
	st, _ = b.Status("A")
	assert.Equal(t, models.StatusApproved, st)
}

func TestBook_ApprovedWithoutEdit(t *testing.T) {
	b := NewBook()
	b.open(Ticket{ApprovalID: "A"}, models.Content{Text: "orig"})
	b.Record(Approve{ApprovalID: "A"})

	got, err := b.Approved("A")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBook_UnknownID(t *testing.T) {
	b := NewBook()
	_, err := b.Status("missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = b.Approved("missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestBook_RecordBeforeRequest(t *testing.T) {
	b := NewBook()
	b.Record(Approve{ApprovalID: "A"})

	st, err := b.Status("A")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, st)

	got, err := b.Approved("A")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLocal_Gateway(t *testing.T) {
	ctx := context.Background()
	g := NewLocal(logging.Nop{})

	tk, err := g.RequestApproval(ctx, models.Content{Text: "hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, tk.ApprovalID)
	assert.Empty(t, tk.MessageTS)

	st, err := g.CheckStatus(ctx, tk.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, st)

	var r Recorder = g
	r.Record(Reject{ApprovalID: tk.ApprovalID})
	st, err = g.CheckStatus(ctx, tk.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, st)

	content, err := g.ApprovedContent(ctx, tk.ApprovalID)
	require.NoError(t, err)
	assert.Nil(t, content)

	assert.NoError(t, g.UpdateRequest(ctx, tk, models.Content{Text: "hello"}, models.StatusRejected, "U1"))
}
