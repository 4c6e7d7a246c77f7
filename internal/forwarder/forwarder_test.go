package forwarder

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	method      string
	contentType string
	body        map[string]string
}

func newWebhook(t *testing.T, status int, reply string) (*httptest.Server, chan capturedRequest) {
	t.Helper()
	got := make(chan capturedRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		var body map[string]string
		_ = json.Unmarshal(data, &body)
		got <- capturedRequest{method: r.Method, contentType: r.Header.Get("Content-Type"), body: body}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestForwardSuccess(t *testing.T) {
	t.Parallel()

	srv, got := newWebhook(t, http.StatusOK, `{"message":"Workflow was started"}`)
	f := New(Config{WebhookURL: srv.URL + "/webhook/s3-trigger/", Timeout: time.Second}, nil)

	res := f.Forward(context.Background(), ObjectRef{Bucket: "loan-csv", Key: "a.csv"})
	require.True(t, res.OK())
	require.Equal(t, Result{StatusCode: 200, Body: "Successfully notified n8n: a.csv"}, res)

	req := <-got
	require.Equal(t, http.MethodPost, req.method)
	require.Equal(t, "application/json", req.contentType)
	require.Equal(t, map[string]string{"bucket": "loan-csv", "key": "a.csv"}, req.body)
}

func TestForwardAcceptsAny2xx(t *testing.T) {
	t.Parallel()

	srv, _ := newWebhook(t, http.StatusAccepted, "")
	res := New(Config{WebhookURL: srv.URL}, nil).Forward(context.Background(), ObjectRef{Bucket: "b", Key: "k"})
	require.Equal(t, http.StatusOK, res.StatusCode)
}

func TestForwardUpstreamError(t *testing.T) {
	t.Parallel()

	srv, got := newWebhook(t, http.StatusNotFound, strings.Repeat("x", 2000))
	f := New(Config{WebhookURL: srv.URL}, nil)

	res := f.Forward(context.Background(), ObjectRef{Bucket: "b", Key: "k"})
	require.Equal(t, http.StatusInternalServerError, res.StatusCode)
	require.True(t, strings.HasPrefix(res.Body, "Error triggering n8n: n8n responded with status 404: "))
	require.LessOrEqual(t, len(res.Body), len("Error triggering n8n: n8n responded with status 404: ")+512)
	require.Len(t, got, 1, "expected exactly one attempt")
}

func TestForwardTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	res := New(Config{WebhookURL: addr, Timeout: time.Second}, nil).Forward(context.Background(), ObjectRef{Bucket: "b", Key: "k"})
	require.Equal(t, http.StatusInternalServerError, res.StatusCode)
	require.True(t, strings.HasPrefix(res.Body, "Error triggering n8n: "))
}

func TestForwardWithoutWebhook(t *testing.T) {
	t.Parallel()

	res := New(Config{}, nil).Forward(context.Background(), ObjectRef{Bucket: "b", Key: "k"})
	require.Equal(t, Result{StatusCode: 500, Body: "Error triggering n8n: webhook url is not configured"}, res)
}

func TestHandleEvent(t *testing.T) {
	t.Parallel()

	srv, got := newWebhook(t, http.StatusOK, "")
	f := New(Config{WebhookURL: srv.URL}, nil)

	raw := `{"Records":[{"s3":{"bucket":{"name":"loan-csv"},"object":{"key":"4b1c.csv"}}}]}`
	res := f.HandleEvent(context.Background(), []byte(raw))
	require.Equal(t, "Successfully notified n8n: 4b1c.csv", res.Body)
	require.Equal(t, map[string]string{"bucket": "loan-csv", "key": "4b1c.csv"}, (<-got).body)

	res = f.HandleEvent(context.Background(), []byte(`{"Records":[]}`))
	require.Equal(t, http.StatusInternalServerError, res.StatusCode)
	require.Contains(t, res.Body, ErrMissingObject.Error())
	require.Empty(t, got)
}

func TestHandleEventSkipsNonFinalize(t *testing.T) {
	t.Parallel()

	srv, got := newWebhook(t, http.StatusOK, "")
	f := New(Config{WebhookURL: srv.URL}, nil)

	raw := `{"message":{"attributes":{"eventType":"OBJECT_DELETE","bucketId":"b","objectId":"k.csv"}}}`
	res := f.HandleEvent(context.Background(), []byte(raw))
	require.True(t, res.OK())
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, res.Body, "OBJECT_DELETE")
	require.Empty(t, got)
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	require.Equal(t, "abc", truncate("abc", 5))
	require.Equal(t, "ab", truncate("abc", 2))
	require.Equal(t, "a", truncate("a€b", 2), "never splits a multi-byte rune")
	require.Equal(t, "a€", truncate("a€b", 4))
	require.True(t, utf8.ValidString(truncate(strings.Repeat("é", 400), maxUpstreamBody)))
}
