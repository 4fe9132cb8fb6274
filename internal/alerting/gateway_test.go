package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTelegramSenderRequiresCredentials(t *testing.T) {
	assert.Nil(t, NewTelegramSender("", "", "123", time.Second))
	assert.Nil(t, NewTelegramSender("", "token", "", time.Second))
	assert.NotNil(t, NewTelegramSender("", "token", "123", time.Second))
}

func TestTelegramSenderSend(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	s := NewTelegramSender(srv.URL, "abc:123", "-100", time.Second)
	require.NoError(t, s.Send(context.Background(), "hello"))

	assert.Equal(t, "/botabc:123/sendMessage", gotPath)
	assert.Equal(t, "-100", gotBody["chat_id"])
	assert.Equal(t, "hello", gotBody["text"])
}

func TestTelegramSenderGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"ok": false, "description": "Unauthorized"}`))
	}))
	defer srv.Close()

	s := NewTelegramSender(srv.URL, "bad", "-100", time.Second)
	err := s.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unauthorized")
}
