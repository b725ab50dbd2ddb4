package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessage(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":42,"date":1735689600,"chat":{"id":-100,"type":"supergroup"}}}`)
	}))
	defer srv.Close()

	cfg := DefaultClientConfig("test-token")
	cfg.BaseURL = srv.URL
	client := NewClient(cfg)

	msg, err := client.SendMessage(context.Background(), SendMessageParams{
		ChatID: -100,
		Text:   "batch completed",
	})

	require.NoError(t, err)
	assert.Equal(t, "/bottest-token/sendMessage", gotPath)
	assert.Equal(t, "batch completed", gotBody["text"])
	assert.Equal(t, int64(42), msg.MessageID)
}

func TestSendMessage_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ok":false,"error_code":403,"description":"bot was kicked"}`)
	}))
	defer srv.Close()

	cfg := DefaultClientConfig("t")
	cfg.BaseURL = srv.URL
	client := NewClient(cfg)

	_, err := client.SendMessage(context.Background(), SendMessageParams{ChatID: 1, Text: "x"})

	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 403, apiErr.Code)
	assert.Contains(t, apiErr.Description, "kicked")
}

func TestGetMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bott/getMe", r.URL.Path)
		fmt.Fprint(w, `{"ok":true,"result":{"id":7,"is_bot":true,"username":"eval_hub_bot"}}`)
	}))
	defer srv.Close()

	cfg := DefaultClientConfig("t")
	cfg.BaseURL = srv.URL
	client := NewClient(cfg)

	me, err := client.GetMe(context.Background())
	require.NoError(t, err)
	assert.True(t, me.IsBot)
	assert.Equal(t, "eval_hub_bot", me.Username)
}
