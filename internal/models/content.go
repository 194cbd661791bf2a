package models

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/postkeeper/internal/common"
)

// MediaType classifies an attachment.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
	MediaGIF   MediaType = "gif"
)

// MimeType returns the upload content type for the attachment kind.
func (t MediaType) MimeType() string {
	switch t {
	case MediaVideo:
		return "video/mp4"
	case MediaGIF:
		return "image/gif"
	default:
		return "image/png"
	}
}

// Binary is an attachment payload. It is encoded as a base64 string at the
// storage boundary. Decoding also accepts the {"type":"Buffer","data":[...]}
// object written by older stores.
type Binary []byte

func (b Binary) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("null"), nil
	}
	return json.Marshal(base64.StdEncoding.EncodeToString(b))
}

func (b *Binary) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*b = nil
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("%w: media data is not base64: %v", common.ErrMalformedPayload, err)
		}
		*b = raw
		return nil
	}

	var buf struct {
		Type string `json:"type"`
		Data []int  `json:"data"`
	}
	if err := json.Unmarshal(data, &buf); err != nil {
		return fmt.Errorf("%w: media data: %v", common.ErrMalformedPayload, err)
	}
	if buf.Type != "Buffer" {
		return fmt.Errorf("%w: media data has type %q", common.ErrMalformedPayload, buf.Type)
	}
	raw := make([]byte, len(buf.Data))
	for i, v := range buf.Data {
		if v < 0 || v > 255 {
			return fmt.Errorf("%w: media byte %d out of range", common.ErrMalformedPayload, v)
		}
		raw[i] = byte(v)
	}
	*b = raw
	return nil
}

// Media is a single attachment: either inline Data or a URL.
type Media struct {
	Type    MediaType `json:"type"`
	URL     string    `json:"url,omitempty"`
	Data    Binary    `json:"data,omitempty"`
	AltText string    `json:"altText,omitempty"`
}

// Poll is a choice set with a duration.
type Poll struct {
	Options         []string `json:"options"`
	DurationMinutes int      `json:"durationMinutes"`
}

// Content is what gets rendered for approval and handed to the publisher.
type Content struct {
	Text          string  `json:"text"`
	Media         []Media `json:"media,omitempty"`
	Poll          *Poll   `json:"poll,omitempty"`
	ReplyTargetID string  `json:"replyTargetId,omitempty"`
}

// Preview returns at most n runes of the text, with an ellipsis when cut.
func (c Content) Preview(n int) string {
	r := []rune(c.Text)
	if len(r) <= n {
		return c.Text
	}
	return string(r[:n]) + "..."
}

// Prompt drives content generation.
type Prompt struct {
	Topic           string
	IncludeMedia    bool
	IncludePoll     bool
	ContextMessages []string
	Purpose         string
	Tone            string
}

// Mention is an inbound post addressed to the account.
type Mention struct {
	ID             string    `json:"id"`
	AuthorID       string    `json:"authorId"`
	AuthorUsername string    `json:"authorUsername,omitempty"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"createdAt"`
}

// EngagementScore is the scorer's verdict on a mention.
type EngagementScore struct {
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}
