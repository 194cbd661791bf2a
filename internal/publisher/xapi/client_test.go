package xapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dmitrijs2005/postkeeper/internal/common"
	"github.com/dmitrijs2005/postkeeper/internal/logging"
	"github.com/dmitrijs2005/postkeeper/internal/models"
	twitter "github.com/g8rswimmer/go-twitter/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCursor struct {
	id    string
	saved []string
}

func (c *memCursor) Load() (string, error) { return c.id, nil }
func (c *memCursor) Save(id string) error {
	c.id = id
	c.saved = append(c.saved, id)
	return nil
}

func newTestClient(t *testing.T, h http.Handler) (*Client, *memCursor) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cur := &memCursor{}
	c := NewClient(Config{BearerToken: "tok", UserID: "42", APIURL: srv.URL, UploadURL: srv.URL + "/1.1"}, cur, logging.Nop{})
	return c, cur
}

func TestPublish_TextAndReply(t *testing.T) {
	var got twitter.CreateTweetRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/2/tweets", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"data":{"id":"1001","text":"hi"}}`)
	})
	c, _ := newTestClient(t, mux)

	id, err := c.Publish(context.Background(), models.Content{Text: "hi", ReplyTargetID: "77"})
	require.NoError(t, err)
	assert.Equal(t, "1001", id)
	assert.Equal(t, "hi", got.Text)
	require.NotNil(t, got.Reply)
	assert.Equal(t, "77", got.Reply.InReplyToTweetID)
	assert.Nil(t, got.Media)
	assert.Nil(t, got.Poll)
}

func TestPublish_Poll(t *testing.T) {
	var got twitter.CreateTweetRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/2/tweets", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"data":{"id":"1002"}}`)
	})
	c, _ := newTestClient(t, mux)

	_, err := c.Publish(context.Background(), models.Content{Text: "pick", Poll: &models.Poll{Options: []string{"a", "b"}}})
	require.NoError(t, err)
	require.NotNil(t, got.Poll)
	assert.Equal(t, []string{"a", "b"}, got.Poll.Options)
	assert.Equal(t, 1440, got.Poll.DurationMinutes)
}

func TestPublish_MediaUpload(t *testing.T) {
	var (
		got      twitter.CreateTweetRequest
		uploads  [][]byte
		altTexts int
		category string
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/1.1/media/upload.json", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		category = r.FormValue("media_category")
		f, _, err := r.FormFile("media")
		if !assert.NoError(t, err) {
			return
		}
		b, _ := io.ReadAll(f)
		uploads = append(uploads, b)
		_, _ = fmt.Fprintf(w, `{"media_id_string":"m-%d"}`, len(uploads))
	})
	mux.HandleFunc("/1.1/media/metadata/create.json", func(w http.ResponseWriter, r *http.Request) {
		altTexts++
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/cdn/x.png", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte{7, 7})
	})
	mux.HandleFunc("/2/tweets", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"data":{"id":"1003"}}`)
	})
	c, _ := newTestClient(t, mux)
	base := c.cfg.APIURL

	content := models.Content{
		Text: "look",
		Media: []models.Media{
			{Type: models.MediaImage, Data: models.Binary{1, 2, 3}, AltText: "dots"},
			{Type: models.MediaImage, URL: base + "/cdn/x.png"},
		},
		Poll: &models.Poll{Options: []string{"a", "b"}},
	}
	_, err := c.Publish(context.Background(), content)
	require.NoError(t, err)

	assert.Equal(t, [][]byte{{1, 2, 3}, {7, 7}}, uploads)
	assert.Equal(t, 1, altTexts)
	assert.Equal(t, "tweet_image", category)
	require.NotNil(t, got.Media)
	assert.Equal(t, []string{"m-1", "m-2"}, got.Media.IDs)
	assert.Nil(t, got.Poll)
	assert.Equal(t, "look", got.Text)
}

func TestPublish_MediaDownloadFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/2/tweets", func(w http.ResponseWriter, r *http.Request) {
		t.Error("post must not be created")
	})
	c, _ := newTestClient(t, mux)
	base := c.cfg.APIURL

	_, err := c.Publish(context.Background(), models.Content{
		Text:  "x",
		Media: []models.Media{{Type: models.MediaImage, URL: base + "/cdn/missing.png"}},
	})
	assert.ErrorIs(t, err, common.ErrCollaborator)
}

func TestPublish_APIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/2/tweets", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"title":"Forbidden"}`, http.StatusForbidden)
	})
	c, _ := newTestClient(t, mux)

	_, err := c.Publish(context.Background(), models.Content{Text: "x"})
	assert.ErrorIs(t, err, common.ErrCollaborator)
}

func TestPublish_UploadError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/1.1/media/upload.json", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too big", http.StatusRequestEntityTooLarge)
	})
	mux.HandleFunc("/2/tweets", func(w http.ResponseWriter, r *http.Request) {
		t.Error("post must not be created")
	})
	c, _ := newTestClient(t, mux)

	_, err := c.Publish(context.Background(), models.Content{
		Text:  "x",
		Media: []models.Media{{Type: models.MediaImage, Data: models.Binary{1}}},
	})
	assert.ErrorIs(t, err, common.ErrCollaborator)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusRequestEntityTooLarge, apiErr.Status)
}

func TestMentions(t *testing.T) {
	var sinceIDs []string
	mux := http.NewServeMux()
	mux.HandleFunc("/2/users/42/mentions", func(w http.ResponseWriter, r *http.Request) {
		sinceIDs = append(sinceIDs, r.URL.Query().Get("since_id"))
		if r.URL.Query().Get("since_id") != "" {
			_, _ = io.WriteString(w, `{"meta":{"result_count":0}}`)
			return
		}
		_, _ = io.WriteString(w, `{
			"data":[
				{"id":"20","text":"@bot hi","author_id":"7","created_at":"2024-05-01T10:00:00.000Z"},
				{"id":"19","text":"@bot yo","author_id":"8","created_at":"2024-05-01T09:00:00.000Z"}
			],
			"includes":{"users":[{"id":"7","username":"ann"},{"id":"8","username":"ben"}]},
			"meta":{"newest_id":"20","result_count":2}
		}`)
	})
	c, cur := newTestClient(t, mux)

	ms, err := c.Mentions(context.Background())
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, "20", ms[0].ID)
	assert.Equal(t, "ann", ms[0].AuthorUsername)
	assert.Equal(t, "ben", ms[1].AuthorUsername)
	assert.Equal(t, []string{"20"}, cur.saved)

	ms, err = c.Mentions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ms)
	assert.Equal(t, []string{"", "20"}, sinceIDs)
}

func TestMentions_NoUserID(t *testing.T) {
	c := NewClient(Config{}, &memCursor{}, logging.Nop{})
	_, err := c.Mentions(context.Background())
	assert.Error(t, err)
}

func TestPollDuration(t *testing.T) {
	assert.Equal(t, 1440, pollDuration(0))
	assert.Equal(t, 5, pollDuration(1))
	assert.Equal(t, 60, pollDuration(60))
	assert.Equal(t, 10080, pollDuration(99999))
}
