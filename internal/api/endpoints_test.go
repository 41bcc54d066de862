package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gamingsdk/sdk-go/internal/option"
	"github.com/gamingsdk/sdk-go/internal/ratelimit"
)

func snowflakeAt(t time.Time) string {
	return strconv.FormatUint(uint64(t.UnixMilli()-snowflakeEpoch)<<22, 10)
}

// TestSnowflakeTime verifies the timestamp encoded in a snowflake is decoded.
func TestSnowflakeTime(t *testing.T) {
	id, _ := strconv.ParseUint(snowflakeAt(epoch), 10, 64)
	if got := SnowflakeTime(id); !got.Equal(epoch) {
		t.Errorf("SnowflakeTime() = %v, want %v", got, epoch)
	}
}

// TestDeleteMetadata verifies the sub rate limit tag chosen for a message's
// age.
func TestDeleteMetadata(t *testing.T) {
	tests := []struct {
		name string
		age  time.Duration
		want string
	}{
		{"just sent", time.Second, MetadataSubTenSeconds},
		{"exactly ten seconds", 10 * time.Second, MetadataSubTenSeconds},
		{"a minute", time.Minute, ""},
		{"a week", 7 * 24 * time.Hour, ""},
		{"two weeks", 14 * 24 * time.Hour, MetadataOlderThanTwoWeeks},
		{"a year", 365 * 24 * time.Hour, MetadataOlderThanTwoWeeks},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := snowflakeAt(epoch.Add(-tt.age))
			if got := deleteMetadata(id, epoch); got != tt.want {
				t.Errorf("deleteMetadata() = %q, want %q", got, tt.want)
			}
		})
	}

	if got := deleteMetadata("not-a-snowflake", epoch); got != "" {
		t.Errorf("deleteMetadata(invalid) = %q, want empty", got)
	}
}

// TestDeleteMessage verifies the delete route carries the age tag, so it gets
// its own bucket, and the audit reason is sent.
func TestDeleteMessage(t *testing.T) {
	var reason, method string
	c, _ := newTestClient(t, func(w nethttp.ResponseWriter, r *nethttp.Request) {
		method = r.Method
		reason = r.Header.Get("X-Audit-Log-Reason")
		w.WriteHeader(nethttp.StatusNoContent)
	})

	messageID := snowflakeAt(epoch.Add(-2 * time.Second))
	if err := c.DeleteMessage(context.Background(), "123", messageID, "cleanup"); err != nil {
		t.Fatalf("DeleteMessage() error = %v", err)
	}
	if method != nethttp.MethodDelete || reason != "cleanup" {
		t.Errorf("method = %q reason = %q", method, reason)
	}

	route := ratelimit.NewRoute(nethttp.MethodDelete, "/channels/{channel_id}/messages/{message_id}",
		ratelimit.WithParam(ratelimit.ParamChannelID, "123"),
		ratelimit.WithParam("message_id", messageID),
		ratelimit.WithMetadata(MetadataSubTenSeconds))
	if _, ok := c.Registry().Bucket(ratelimit.CompositeKey(route, "")); !ok {
		t.Errorf("no bucket registered for %q", route.Key())
	}
}

// TestSendMessageJSON verifies a message without files is sent as JSON with
// absent options left out.
func TestSendMessageJSON(t *testing.T) {
	var body map[string]any
	var contentType string
	c, _ := newTestClient(t, func(w nethttp.ResponseWriter, r *nethttp.Request) {
		contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeJSON(w, nethttp.StatusOK, map[string]any{"id": "1"})
	})

	_, err := c.SendMessage(context.Background(), "123", MessagePayload{Content: option.Some("hi")})
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q", contentType)
	}
	if body["content"] != "hi" {
		t.Errorf("content = %v", body["content"])
	}
	if _, ok := body["nonce"]; ok {
		t.Error("absent nonce was sent")
	}
}

// TestSendMessageFiles verifies files are sent as a multipart form with
// payload_json and bracketed file field names, and that the form is rebuilt
// when the request is retried.
func TestSendMessageFiles(t *testing.T) {
	var calls atomic.Int32
	var payload map[string]any
	var fileContent string
	var filename string
	c, _ := newTestClient(t, func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm() error = %v", err)
			w.WriteHeader(nethttp.StatusBadRequest)
			return
		}
		_ = json.Unmarshal([]byte(r.FormValue("payload_json")), &payload)
		if headers := r.MultipartForm.File["files[0]"]; len(headers) == 1 {
			filename = headers[0].Filename
			f, err := headers[0].Open()
			if err == nil {
				raw, _ := io.ReadAll(f)
				f.Close()
				fileContent = string(raw)
			}
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(nethttp.StatusBadGateway)
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{"id": "1"})
	})

	file := File{Name: "report.txt", Reader: bytes.NewReader([]byte("hello"))}
	_, err := c.SendMessage(context.Background(), "123", MessagePayload{Content: option.Some("see attached")}, file)
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if filename != "report.txt" || fileContent != "hello" {
		t.Errorf("file = %q %q, want report.txt hello on the retried attempt", filename, fileContent)
	}
	attachments, _ := payload["attachments"].([]any)
	if len(attachments) != 1 {
		t.Fatalf("attachments = %v", payload["attachments"])
	}
	if a, _ := attachments[0].(map[string]any); a["filename"] != "report.txt" || a["id"] != float64(0) {
		t.Errorf("attachment = %v", attachments[0])
	}
}

// TestEditMessageNullContent verifies a null option is sent as JSON null and
// absent options are left out.
func TestEditMessageNullContent(t *testing.T) {
	var body string
	c, _ := newTestClient(t, func(w nethttp.ResponseWriter, r *nethttp.Request) {
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		writeJSON(w, nethttp.StatusOK, map[string]any{})
	})

	_, err := c.EditMessage(context.Background(), "123", "456", MessageEdit{Content: option.Null[string]()})
	if err != nil {
		t.Fatalf("EditMessage() error = %v", err)
	}
	if body != `{"content":null}` {
		t.Errorf("body = %s, want {\"content\":null}", body)
	}
}

// TestGetMessageEscapesParameters verifies string parameters are percent
// encoded in the URL.
func TestGetMessageEscapesParameters(t *testing.T) {
	var rawPath string
	c, _ := newTestClient(t, func(w nethttp.ResponseWriter, r *nethttp.Request) {
		rawPath = r.URL.EscapedPath()
		writeJSON(w, nethttp.StatusOK, map[string]any{})
	})

	if _, err := c.GetMessage(context.Background(), "12 3", "a/b"); err != nil {
		t.Fatalf("GetMessage() error = %v", err)
	}
	if !strings.HasSuffix(rawPath, "/channels/12%203/messages/a%2Fb") {
		t.Errorf("path = %q", rawPath)
	}
}

// TestGetGuilds verifies the guild listing query.
func TestGetGuilds(t *testing.T) {
	var rawQuery string
	c, _ := newTestClient(t, func(w nethttp.ResponseWriter, r *nethttp.Request) {
		rawQuery = r.URL.RawQuery
		writeJSON(w, nethttp.StatusOK, []any{})
	})

	if _, err := c.GetGuilds(context.Background(), 100, "", "5"); err != nil {
		t.Fatalf("GetGuilds() error = %v", err)
	}
	if rawQuery != "after=5&limit=100" {
		t.Errorf("query = %q", rawQuery)
	}
}

// TestStaticLogin verifies a rejected token is reported as ErrLoginFailure
// and the previous token restored.
func TestStaticLogin(t *testing.T) {
	c, _ := newTestClient(t, func(w nethttp.ResponseWriter, r *nethttp.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			writeJSON(w, nethttp.StatusOK, map[string]any{"id": "1"})
		case "Bearer broken":
			writeJSON(w, nethttp.StatusBadRequest, map[string]any{"message": "bad"})
		default:
			writeJSON(w, nethttp.StatusUnauthorized, map[string]any{"message": "401: Unauthorized", "code": 0})
		}
	})
	ctx := context.Background()

	_, err := c.StaticLogin(ctx, "bad")
	if !errors.Is(err, ErrLoginFailure) {
		t.Fatalf("StaticLogin(bad) error = %v, want ErrLoginFailure", err)
	}
	if c.Token() != "secret" {
		t.Errorf("token = %q after failed login, want secret", c.Token())
	}

	_, err = c.StaticLogin(ctx, "broken")
	if err == nil || errors.Is(err, ErrLoginFailure) || StatusCode(err) != nethttp.StatusBadRequest {
		t.Errorf("StaticLogin(broken) error = %v, want plain 400", err)
	}
	if c.Token() != "secret" {
		t.Errorf("token = %q after failed login, want secret", c.Token())
	}

	data, err := c.StaticLogin(ctx, "good")
	if err != nil {
		t.Fatalf("StaticLogin(good) error = %v", err)
	}
	if m, _ := data.(map[string]any); m["id"] != "1" {
		t.Errorf("data = %#v", data)
	}
	if c.Token() != "good" {
		t.Errorf("token = %q, want good", c.Token())
	}
}

// TestGatewayURL verifies the gateway URL is returned and failures become
// ErrGatewayNotFound.
func TestGatewayURL(t *testing.T) {
	var fail atomic.Bool
	c, _ := newTestClient(t, func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if fail.Load() {
			writeJSON(w, nethttp.StatusServiceUnavailable, map[string]any{"message": "down"})
			return
		}
		writeJSON(w, nethttp.StatusOK, map[string]any{"url": "wss://gateway.gaming-sdk.com"})
	})
	ctx := context.Background()

	got, err := c.GatewayURL(ctx)
	if err != nil {
		t.Fatalf("GatewayURL() error = %v", err)
	}
	if got != "wss://gateway.gaming-sdk.com" {
		t.Errorf("GatewayURL() = %q", got)
	}

	connect, err := c.GatewayConnectURL(ctx, "", true)
	if err != nil {
		t.Fatalf("GatewayConnectURL() error = %v", err)
	}
	if want := "wss://gateway.gaming-sdk.com?compress=zlib-stream&encoding=json&v=10"; connect != want {
		t.Errorf("GatewayConnectURL() = %q, want %q", connect, want)
	}

	fail.Store(true)
	_, err = c.GatewayURL(ctx)
	if !errors.Is(err, ErrGatewayNotFound) {
		t.Fatalf("GatewayURL() error = %v, want ErrGatewayNotFound", err)
	}
	if !IsServerError(err) {
		t.Errorf("cause lost: %v", err)
	}
}

// TestGetFromCDN verifies asset downloads and their status mapping.
func TestGetFromCDN(t *testing.T) {
	var flaky atomic.Int32
	c, _ := newTestClient(t, func(w nethttp.ResponseWriter, r *nethttp.Request) {
		switch r.URL.Path {
		case "/asset.png":
			w.Write([]byte("png-bytes"))
		case "/missing.png":
			w.WriteHeader(nethttp.StatusNotFound)
		case "/private.png":
			w.WriteHeader(nethttp.StatusForbidden)
		case "/flaky.png":
			flaky.Add(1)
			w.WriteHeader(nethttp.StatusInternalServerError)
		}
	})
	c.cdn.RetryWaitMin = time.Millisecond
	c.cdn.RetryWaitMax = time.Millisecond
	ctx := context.Background()
	base := c.cfg.APIBaseURL

	data, err := c.GetFromCDN(ctx, base+"/asset.png")
	if err != nil {
		t.Fatalf("GetFromCDN() error = %v", err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("data = %q", data)
	}

	_, err = c.GetFromCDN(ctx, base+"/missing.png")
	if !IsNotFound(err) || !strings.Contains(err.Error(), "asset not found") {
		t.Errorf("missing asset error = %v", err)
	}

	_, err = c.GetFromCDN(ctx, base+"/private.png")
	if !IsForbidden(err) || !strings.Contains(err.Error(), "cannot retrieve asset") {
		t.Errorf("private asset error = %v", err)
	}

	_, err = c.GetFromCDN(ctx, base+"/flaky.png")
	if StatusCode(err) != nethttp.StatusInternalServerError || !strings.Contains(err.Error(), "failed to get asset") {
		t.Errorf("flaky asset error = %v", err)
	}
	if n := flaky.Load(); n != 4 {
		t.Errorf("flaky attempts = %d, want 4", n)
	}
}
