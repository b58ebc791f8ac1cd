package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

func TestResumeSuccess(t *testing.T) {
	var gotPath string
	var gotBody Payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", 0, newTestMetrics()) // trailing slash must be stripped
	result, err := client.Resume(context.Background(), "", "exec_123", Payload{
		Metadata:        map[string]string{"speaker_00": "Alice", "speaker_01": "Bob"},
		TranscriptionID: "trans_abc",
	})

	require.NoError(t, err)
	assert.Equal(t, "/webhook-waiting/exec_123", gotPath)
	assert.Equal(t, "trans_abc", gotBody.TranscriptionID)
	assert.Equal(t, map[string]string{"speaker_00": "Alice", "speaker_01": "Bob"}, gotBody.Metadata)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.NotEmpty(t, result.DeliveryID)
}

func TestResumeNotWaiting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, 0, newTestMetrics())
	result, err := client.Resume(context.Background(), "", "exec_gone", Payload{TranscriptionID: "t"})

	assert.ErrorIs(t, err, ErrWorkflowNotWaiting)
	assert.Equal(t, http.StatusNotFound, result.StatusCode)
}

func TestResumeServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream exploded"))
	}))
	defer server.Close()

	client := NewClient(server.URL, 0, newTestMetrics())
	result, err := client.Resume(context.Background(), "", "exec_500", Payload{TranscriptionID: "t"})

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "upstream exploded")
	assert.Equal(t, http.StatusBadGateway, result.StatusCode)
}

func TestResumeUnreachable(t *testing.T) {
	// Closed server: connection refused.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient(server.URL, time.Second, newTestMetrics())
	result, err := client.Resume(context.Background(), "", "exec_down", Payload{TranscriptionID: "t"})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrWorkflowNotWaiting)
	assert.Equal(t, 0, result.StatusCode)
}

func TestResumeContextCancelled(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer server.Close()
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewClient(server.URL, time.Minute, newTestMetrics())
	_, err := client.Resume(ctx, "", "exec_slow", Payload{TranscriptionID: "t"})
	require.Error(t, err)
}

func TestWebhookURL(t *testing.T) {
	client := NewClient("http://n8n.internal:5678/", 0, nil)
	assert.Equal(t, "http://n8n.internal:5678/webhook-waiting/abc", client.WebhookURL("", "abc"))
	assert.Equal(t, "http://n8n.internal:5678/resume/abc", client.WebhookURL("resume", "abc"))
}
