package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClientWithBaseURL("TESTTOKEN", srv.URL, zap.NewNop()), srv
}

func TestClient_GetUpdates(t *testing.T) {
	var gotParams map[string]any
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTESTTOKEN/getUpdates", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotParams))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":[
			{"update_id":10,"message":{"message_id":1,"chat":{"id":42},"text":"/start"}},
			{"update_id":11,"message":{"message_id":2,"chat":{"id":42},"text":"hello"}}
		]}`))
	})

	updates, err := client.GetUpdates(context.Background(), 10, 30)
	require.NoError(t, err)

	assert.Equal(t, float64(10), gotParams["offset"])
	assert.Equal(t, float64(30), gotParams["timeout"])
	assert.Equal(t, []any{"message"}, gotParams["allowed_updates"])

	require.Len(t, updates, 2)
	assert.Equal(t, int64(10), updates[0].UpdateID)
	assert.Equal(t, "/start", updates[0].Message.Text)
	assert.Equal(t, int64(42), updates[1].Message.Chat.ID)
}

func TestClient_SendMessage(t *testing.T) {
	var gotParams map[string]any
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTESTTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotParams))
		w.Write([]byte(`{"ok":true,"result":{}}`))
	})

	err := client.SendMessage(context.Background(), 42, "*hi*")
	require.NoError(t, err)

	assert.Equal(t, float64(42), gotParams["chat_id"])
	assert.Equal(t, "*hi*", gotParams["text"])
	assert.Equal(t, "Markdown", gotParams["parse_mode"])
}

func TestClient_APIRejection(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"description":"Unauthorized"}`))
	})

	err := client.SendMessage(context.Background(), 42, "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unauthorized")
}

func TestClient_GetFilePath(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTESTTOKEN/getFile", r.URL.Path)
		w.Write([]byte(`{"ok":true,"result":{"file_id":"f1","file_path":"photos/file_1.jpg"}}`))
	})

	path, err := client.GetFilePath(context.Background(), "f1")
	require.NoError(t, err)
	assert.Equal(t, "photos/file_1.jpg", path)
}

func TestClient_DownloadFile(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/file/botTESTTOKEN/photos/file_1.jpg", r.URL.Path)
		w.Write([]byte{0xff, 0xd8, 0xff})
	})

	data, err := client.DownloadFile(context.Background(), "photos/file_1.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, data)
}

func TestClient_DownloadFileMissing(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.DownloadFile(context.Background(), "photos/gone.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestMessage_LargestPhoto(t *testing.T) {
	m := &Message{Photo: []PhotoSize{
		{FileID: "a", Width: 90, Height: 90},
		{FileID: "c", Width: 1280, Height: 960},
		{FileID: "b", Width: 320, Height: 240},
	}}

	assert.Equal(t, "c", m.LargestPhoto().FileID)
	assert.Nil(t, (&Message{}).LargestPhoto())
}

func TestMessage_DisplayName(t *testing.T) {
	assert.Equal(t, "Ada", (&Message{From: &UserInfo{FirstName: "Ada", Username: "alove"}}).DisplayName())
	assert.Equal(t, "alove", (&Message{From: &UserInfo{Username: "alove"}}).DisplayName())
	assert.Equal(t, "", (&Message{}).DisplayName())
}
