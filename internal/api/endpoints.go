package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gamingsdk/sdk-go/internal/http"
	"github.com/gamingsdk/sdk-go/internal/option"
	"github.com/gamingsdk/sdk-go/internal/ratelimit"
)

// Sub rate limit tags for message deletion.
const (
	MetadataSubTenSeconds     = "sub-10-seconds"
	MetadataOlderThanTwoWeeks = "older-than-two-weeks"
)

// snowflakeEpoch is the first millisecond of 2015 in Unix milliseconds.
const snowflakeEpoch = 1420070400000

// SnowflakeTime returns the creation time encoded in a snowflake id.
func SnowflakeTime(id uint64) time.Time {
	return time.UnixMilli(int64(id>>22) + snowflakeEpoch)
}

// MessagePayload is the body of a new message. Zero-valued fields are left
// out of the request.
type MessagePayload struct {
	Content          option.Option[string] `json:"content,omitzero"`
	Nonce            option.Option[string] `json:"nonce,omitzero"`
	TTS              bool                  `json:"tts,omitempty"`
	Embeds           []map[string]any      `json:"embeds,omitempty"`
	AllowedMentions  map[string]any        `json:"allowed_mentions,omitempty"`
	MessageReference map[string]any        `json:"message_reference,omitempty"`
	Flags            int                   `json:"flags,omitempty"`
	Attachments      []map[string]any      `json:"attachments,omitempty"`
}

// MessageEdit is the body of a message edit. Null clears a field; absent
// leaves it unchanged.
type MessageEdit struct {
	Content         option.Option[string]           `json:"content,omitzero"`
	Embeds          option.Option[[]map[string]any] `json:"embeds,omitzero"`
	AllowedMentions option.Option[map[string]any]   `json:"allowed_mentions,omitzero"`
	Flags           option.Option[int]              `json:"flags,omitzero"`
}

// File is an attachment uploaded with a message. Reader is rewound before
// every attempt when it implements io.Seeker; otherwise it is read once and
// buffered.
type File struct {
	Name        string
	Reader      io.Reader
	ContentType string
}

// GetMe returns the current user.
func (c *Client) GetMe(ctx context.Context) (any, error) {
	return c.Request(ctx, ratelimit.NewRoute(nethttp.MethodGet, "/users/@me"))
}

// GetGuilds lists the current user's guilds. limit <= 0 uses the server
// default; before and after are guild ids and may be empty.
func (c *Client) GetGuilds(ctx context.Context, limit int, before, after string) (any, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if before != "" {
		query.Set("before", before)
	}
	if after != "" {
		query.Set("after", after)
	}
	return c.Request(ctx, ratelimit.NewRoute(nethttp.MethodGet, "/users/@me/guilds"), WithQuery(query))
}

// GetMessage fetches one message.
func (c *Client) GetMessage(ctx context.Context, channelID, messageID string) (any, error) {
	route := ratelimit.NewRoute(nethttp.MethodGet, "/channels/{channel_id}/messages/{message_id}",
		ratelimit.WithParam(ratelimit.ParamChannelID, channelID),
		ratelimit.WithParam("message_id", messageID))
	return c.Request(ctx, route)
}

// HistoryQuery selects a page of channel history. At most one of Before,
// After and Around should be set.
type HistoryQuery struct {
	Limit  int
	Before string
	After  string
	Around string
}

// LogsFrom fetches a page of a channel's message history.
func (c *Client) LogsFrom(ctx context.Context, channelID string, q HistoryQuery) (any, error) {
	query := url.Values{}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	for name, v := range map[string]string{"before": q.Before, "after": q.After, "around": q.Around} {
		if v != "" {
			query.Set(name, v)
		}
	}
	route := ratelimit.NewRoute(nethttp.MethodGet, "/channels/{channel_id}/messages",
		ratelimit.WithParam(ratelimit.ParamChannelID, channelID))
	return c.Request(ctx, route, WithQuery(query))
}

// SendMessage posts a message. Without files the payload is sent as JSON;
// with files it is sent as payload_json next to files[0..n] in a multipart
// form and an attachment entry is added for every file.
func (c *Client) SendMessage(ctx context.Context, channelID string, payload MessagePayload, files ...File) (any, error) {
	route := ratelimit.NewRoute(nethttp.MethodPost, "/channels/{channel_id}/messages",
		ratelimit.WithParam(ratelimit.ParamChannelID, channelID))
	if len(files) == 0 {
		return c.Request(ctx, route, WithJSON(payload))
	}

	form, err := messageForm(payload, files)
	if err != nil {
		return nil, err
	}
	return c.Request(ctx, route, WithForm(form))
}

func messageForm(payload MessagePayload, files []File) (*http.MultipartBuilder, error) {
	for i, f := range files {
		payload.Attachments = append(payload.Attachments, map[string]any{
			"id":       i,
			"filename": f.Name,
		})
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message payload: %w", err)
	}

	form := http.NewMultipartBuilder().AddField("payload_json", string(raw))
	for i, f := range files {
		form.AddFile(fmt.Sprintf("files[%d]", i), f.Name, f.Reader, f.ContentType)
	}
	return form, nil
}

// EditMessage changes a message.
func (c *Client) EditMessage(ctx context.Context, channelID, messageID string, edit MessageEdit) (any, error) {
	route := ratelimit.NewRoute(nethttp.MethodPatch, "/channels/{channel_id}/messages/{message_id}",
		ratelimit.WithParam(ratelimit.ParamChannelID, channelID),
		ratelimit.WithParam("message_id", messageID))
	return c.Request(ctx, route, WithJSON(edit))
}

// DeleteMessage deletes a message. Deleting very recent and very old messages
// is limited separately by the server, so the message's age selects the
// bucket.
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID, reason string) error {
	var opts []ratelimit.RouteOption
	opts = append(opts,
		ratelimit.WithParam(ratelimit.ParamChannelID, channelID),
		ratelimit.WithParam("message_id", messageID))
	if metadata := deleteMetadata(messageID, c.clock.Now()); metadata != "" {
		opts = append(opts, ratelimit.WithMetadata(metadata))
	}

	var reqOpts []RequestOption
	if reason != "" {
		reqOpts = append(reqOpts, WithReason(reason))
	}
	_, err := c.Request(ctx, ratelimit.NewRoute(nethttp.MethodDelete, "/channels/{channel_id}/messages/{message_id}", opts...), reqOpts...)
	return err
}

// deleteMetadata returns the sub rate limit tag for deleting messageID at
// now, or "" when the id is not a snowflake or the age needs no tag.
func deleteMetadata(messageID string, now time.Time) string {
	id, err := strconv.ParseUint(messageID, 10, 64)
	if err != nil {
		return ""
	}
	age := now.Sub(SnowflakeTime(id))
	switch {
	case age <= 10*time.Second:
		return MetadataSubTenSeconds
	case age >= 14*24*time.Hour:
		return MetadataOlderThanTwoWeeks
	default:
		return ""
	}
}
