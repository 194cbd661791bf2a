package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/dmitrijs2005/postkeeper/internal/common"
	"github.com/dmitrijs2005/postkeeper/internal/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func TestRun_Usage(t *testing.T) {
	_, err := runCmd(t)
	require.ErrorIs(t, err, errUsage)

	_, err = runCmd(t, "-d", t.TempDir(), "dance")
	require.ErrorIs(t, err, errUsage)
	assert.Contains(t, err.Error(), `unknown command "dance"`)
}

func TestRun_Version(t *testing.T) {
	out, err := runCmd(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "Build version:")
}

func TestRun_ListEmptyStore(t *testing.T) {
	out, err := runCmd(t, "-d", t.TempDir(), "list", "-status", "published")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "ID"))
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestRun_ListRejectsUnknownStatus(t *testing.T) {
	_, err := runCmd(t, "-d", t.TempDir(), "list", "-status", "archived")
	require.ErrorIs(t, err, common.ErrMalformedPayload)
}

func TestRun_DecideUnknownApproval(t *testing.T) {
	_, err := runCmd(t, "-d", t.TempDir(), "decide", "-approval", "nope", "-action", "approve")
	require.ErrorIs(t, err, common.ErrNotFound)

	_, err = runCmd(t, "-d", t.TempDir(), "decide", "-approval", "nope", "-action", "archive")
	require.ErrorIs(t, err, common.ErrUnknownAction)
}

func TestRun_PublishStuckNeedsID(t *testing.T) {
	_, err := runCmd(t, "-d", t.TempDir(), "publish-stuck")
	require.Error(t, err)
}

func TestRun_Token(t *testing.T) {
	_, err := runCmd(t, "token")
	require.Error(t, err)

	t.Setenv("JWT_SECRET", "s3cret")
	out, err := runCmd(t, "token", "-actor", "alice")
	require.NoError(t, err)

	actor, err := webhook.ActorFromToken(strings.TrimSpace(out), []byte("s3cret"))
	require.NoError(t, err)
	assert.Equal(t, "alice", actor)
}
