// Package xapi publishes posts and reads mentions through the X API v2.
// Posts and mentions go through go-twitter; media goes to the v1.1 upload
// endpoint, which the v2 client does not cover.
package xapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/postkeeper/internal/common"
	"github.com/dmitrijs2005/postkeeper/internal/logging"
	"github.com/dmitrijs2005/postkeeper/internal/models"
	"github.com/dmitrijs2005/postkeeper/internal/netx"
	twitter "github.com/g8rswimmer/go-twitter/v2"
)

const (
	DefaultAPIURL    = "https://api.x.com"
	DefaultUploadURL = "https://upload.twitter.com/1.1"

	maxMedia         = 4
	maxDownloadBytes = 15 << 20
)

// Cursor stores the newest mention id between runs.
type Cursor interface {
	Load() (string, error)
	Save(id string) error
}

// Config configures a Client. APIURL is the v2 host without the version
// path.
type Config struct {
	BearerToken string
	UserID      string
	APIURL      string
	UploadURL   string
	Timeout     time.Duration
}

// Client implements publisher.Publisher and publisher.MentionSource.
type Client struct {
	cfg    Config
	http   *http.Client
	api    *twitter.Client
	cursor Cursor
	logger logging.Logger
}

type bearer string

func (b bearer) Add(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+string(b))
}

func NewClient(cfg Config, cursor Cursor, logger logging.Logger) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.UploadURL == "" {
		cfg.UploadURL = DefaultUploadURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	cfg.UploadURL = strings.TrimRight(cfg.UploadURL, "/")
	hc := &http.Client{Timeout: cfg.Timeout}
	return &Client{
		cfg:  cfg,
		http: hc,
		api: &twitter.Client{
			Authorizer: bearer(cfg.BearerToken),
			Client:     hc,
			Host:       cfg.APIURL,
		},
		cursor: cursor,
		logger: logger,
	}
}

type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("x api: status %d: %s", e.Status, e.Body)
}

// do sends a v1.1 upload request.
func (c *Client) do(req *http.Request, out any) error {
	bearer(c.cfg.BearerToken).Add(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return common.Collaborator("x", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return common.Collaborator("x", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return common.Collaborator("x", &apiError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))})
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return common.Collaborator("x", fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, u string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// Publish uploads media, then creates the post. URL-only media is
// downloaded first. A poll is sent only when there is no media, the
// platform does not accept both.
func (c *Client) Publish(ctx context.Context, content models.Content) (string, error) {
	req := twitter.CreateTweetRequest{Text: content.Text}

	var ids []string
	for _, m := range content.Media {
		if len(ids) == maxMedia {
			break
		}
		if len(m.Data) == 0 {
			if m.URL == "" {
				continue
			}
			data, err := c.download(ctx, m.URL)
			if err != nil {
				return "", err
			}
			m.Data = data
		}
		id, err := c.uploadMedia(ctx, m)
		if err != nil {
			return "", err
		}
		ids = append(ids, id)
	}
	if len(ids) > 0 {
		req.Media = &twitter.CreateTweetMedia{IDs: ids}
	} else if content.Poll != nil && len(content.Poll.Options) >= 2 {
		req.Poll = &twitter.CreateTweetPoll{Options: content.Poll.Options, DurationMinutes: pollDuration(content.Poll.DurationMinutes)}
	}
	if content.ReplyTargetID != "" {
		req.Reply = &twitter.CreateTweetReply{InReplyToTweetID: content.ReplyTargetID}
	}

	resp, err := c.api.CreateTweet(ctx, req)
	if err != nil {
		return "", common.Collaborator("x", fmt.Errorf("create post: %w", err))
	}
	if resp == nil || resp.Tweet == nil || resp.Tweet.ID == "" {
		return "", common.Collaborator("x", fmt.Errorf("create post: empty id in response"))
	}
	id := resp.Tweet.ID
	c.logger.Info(ctx, "post published", "external_id", id, "reply_to", content.ReplyTargetID, "media", len(ids))
	return id, nil
}

func (c *Client) download(ctx context.Context, u string) ([]byte, error) {
	if _, err := url.Parse(u); err != nil {
		return nil, fmt.Errorf("%w: media url %q: %v", common.ErrMalformedPayload, u, err)
	}
	data, err := netx.Download(ctx, c.http, u, maxDownloadBytes)
	if errors.Is(err, netx.ErrTooLarge) {
		return nil, fmt.Errorf("download %s: %w", u, err)
	}
	if err != nil {
		return nil, common.Collaborator("media", fmt.Errorf("download %s: %w", u, err))
	}
	return data, nil
}

func pollDuration(minutes int) int {
	switch {
	case minutes <= 0:
		return 1440
	case minutes < 5:
		return 5
	case minutes > 10080:
		return 10080
	}
	return minutes
}

type uploadResponse struct {
	MediaIDString string `json:"media_id_string"`
}

func (c *Client) uploadMedia(ctx context.Context, m models.Media) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("media_category", mediaCategory(m.Type)); err != nil {
		return "", err
	}
	part, err := w.CreateFormFile("media", "upload")
	if err != nil {
		return "", err
	}
	if _, err := part.Write(m.Data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.UploadURL+"/media/upload.json", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var resp uploadResponse
	if err := c.do(req, &resp); err != nil {
		return "", fmt.Errorf("upload %s: %w", m.Type, err)
	}
	if resp.MediaIDString == "" {
		return "", common.Collaborator("x", fmt.Errorf("upload %s: empty media id", m.Type))
	}

	if m.AltText != "" {
		meta := map[string]any{
			"media_id": resp.MediaIDString,
			"alt_text": map[string]string{"text": m.AltText},
		}
		if err := c.postJSON(ctx, c.cfg.UploadURL+"/media/metadata/create.json", meta, nil); err != nil {
			c.logger.Warn(ctx, "alt text not set", "media_id", resp.MediaIDString, "error", err)
		}
	}
	return resp.MediaIDString, nil
}

func mediaCategory(t models.MediaType) string {
	switch t {
	case models.MediaVideo:
		return "tweet_video"
	case models.MediaGIF:
		return "tweet_gif"
	}
	return "tweet_image"
}

// Mentions returns mentions newer than the stored cursor and advances it.
func (c *Client) Mentions(ctx context.Context) ([]models.Mention, error) {
	if c.cfg.UserID == "" {
		return nil, fmt.Errorf("x api: user id is not configured")
	}
	since, err := c.cursor.Load()
	if err != nil {
		return nil, fmt.Errorf("load mention cursor: %w", err)
	}

	resp, err := c.api.UserMentionTimeline(ctx, c.cfg.UserID, twitter.UserMentionTimelineOpts{
		TweetFields: []twitter.TweetField{twitter.TweetFieldCreatedAt, twitter.TweetFieldAuthorID, twitter.TweetFieldConversationID},
		Expansions:  []twitter.Expansion{twitter.ExpansionAuthorID},
		UserFields:  []twitter.UserField{twitter.UserFieldUserName, twitter.UserFieldName},
		SinceID:     since,
	})
	if err != nil {
		return nil, common.Collaborator("x", fmt.Errorf("mentions: %w", err))
	}
	if resp == nil || resp.Raw == nil || len(resp.Raw.Tweets) == 0 {
		return nil, nil
	}

	names := make(map[string]string)
	if resp.Raw.Includes != nil {
		for _, u := range resp.Raw.Includes.Users {
			if u != nil {
				names[u.ID] = u.UserName
			}
		}
	}
	out := make([]models.Mention, 0, len(resp.Raw.Tweets))
	for _, t := range resp.Raw.Tweets {
		if t == nil {
			continue
		}
		created, _ := time.Parse(time.RFC3339, t.CreatedAt)
		out = append(out, models.Mention{
			ID:             t.ID,
			AuthorID:       t.AuthorID,
			AuthorUsername: names[t.AuthorID],
			Text:           t.Text,
			CreatedAt:      created,
		})
	}
	if len(out) == 0 {
		return nil, nil
	}

	newest := out[0].ID
	if resp.Meta != nil && resp.Meta.NewestID != "" {
		newest = resp.Meta.NewestID
	}
	if err := c.cursor.Save(newest); err != nil {
		c.logger.Warn(ctx, "mention cursor not saved", "newest_id", newest, "error", err)
	}
	return out, nil
}
