package social

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestXClient_UploadMedia(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/2/media/upload", r.URL.Path)

		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "tweet_image", r.FormValue("media_category"))
		assert.Equal(t, "image/png", r.FormValue("media_type"))

		file, header, err := r.FormFile("media")
		if !assert.NoError(t, err) {
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "image-bytes", string(data))
		assert.Equal(t, "upload.png", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"id":"1880028106020515840","media_key":"3_1880028106020515840"}}`))
	}))
	defer server.Close()

	path := filepath.Join(t.TempDir(), "upload.png")
	require.NoError(t, os.WriteFile(path, []byte("image-bytes"), 0644))

	client := NewXClient(XClientConfig{BaseURL: server.URL})
	id, err := client.UploadMedia(context.Background(), path, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "1880028106020515840", id)
}

func TestXClient_CreatePost(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2/tweets", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body struct {
			Text  string `json:"text"`
			Media struct {
				MediaIDs []string `json:"media_ids"`
			} `json:"media"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Hello #world", body.Text)
		assert.Equal(t, []string{"m1"}, body.Media.MediaIDs)

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"1445880548472328192","text":"Hello #world"}}`))
	}))
	defer server.Close()

	client := NewXClient(XClientConfig{BaseURL: server.URL})
	id, err := client.CreatePost(context.Background(), "Hello #world", []string{"m1"})
	require.NoError(t, err)
	assert.Equal(t, "1445880548472328192", id)
}

func TestXClient_APIErrors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantDetail string
	}{
		{
			name:       "problem json",
			status:     http.StatusForbidden,
			body:       `{"title":"Forbidden","detail":"You are not allowed to create a Tweet with duplicate content.","type":"about:blank","status":403}`,
			wantDetail: "You are not allowed to create a Tweet with duplicate content.",
		},
		{
			name:       "errors array",
			status:     http.StatusBadRequest,
			body:       `{"errors":[{"message":"media_ids invalid"}]}`,
			wantDetail: "media_ids invalid",
		},
		{
			name:   "plain body",
			status: http.StatusUnauthorized,
			body:   `Unauthorized`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewXClient(XClientConfig{BaseURL: server.URL})
			_, err := client.CreatePost(context.Background(), "text", nil)
			require.Error(t, err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantDetail, apiErr.Detail)
		})
	}
}

func TestXClient_MissingID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{}}`))
	}))
	defer server.Close()

	client := NewXClient(XClientConfig{BaseURL: server.URL})
	_, err := client.CreatePost(context.Background(), "text", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no post id")
}

func TestXClient_UploadMissingFile(t *testing.T) {
	client := NewXClient(XClientConfig{BaseURL: "http://127.0.0.1:1"})
	_, err := client.UploadMedia(context.Background(), filepath.Join(t.TempDir(), "gone.png"), "image/png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read media file")
}
