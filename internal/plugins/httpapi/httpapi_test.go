package httpapi_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"livon-client/internal/config"
	"livon-client/internal/core/contracts/contractstest"
	"livon-client/internal/core/domain"
	"livon-client/internal/plugins/httpapi"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAPI(t *testing.T, h http.HandlerFunc) *httpapi.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return httpapi.NewClient(nil, config.APIConfig{URL: srv.URL + "/", Timeout: 5 * time.Second}, "livon-client-test", contractstest.NewTokens("tok"))
}

func TestFetchHistory(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "bare array", body: `[{"id":"m1","sender":"bob","content":"hi","timeStamp":"2026-01-01T10:00:00"},{"id":"m2","sender":"carol","content":"yo","createdAt":1767261600000}]`},
		{name: "paged envelope", body: `{"content":[{"id":"m1","sender":"bob","content":"hi","timestamp":"2026-01-01T10:00:00Z"},{"id":"m2","sender":"carol","content":"yo"}],"totalPages":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/rooms/r1/messages", r.URL.Path)
				assert.Equal(t, "25", r.URL.Query().Get("size"))
				assert.Equal(t, "0", r.URL.Query().Get("page"))
				assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, tt.body)
			})

			msgs, err := httpapi.NewHistoryClient(api, 25).FetchHistory(context.Background(), "r1")

			require.NoError(t, err)
			require.Len(t, msgs, 2)
			assert.Equal(t, "m1", msgs[0].ID)
			assert.Equal(t, "r1", msgs[0].RoomID)
			assert.Equal(t, time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC), msgs[0].Timestamp.UTC())
			assert.Equal(t, "m2", msgs[1].ID)
		})
	}
}

func TestFetchHistoryErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"message":"token expired"}`, want: domain.ErrAuthRejected},
		{name: "garbage", status: http.StatusOK, body: `<html>`, want: domain.ErrMalformedPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			_, err := httpapi.NewHistoryClient(api, 0).FetchHistory(context.Background(), "r1")

			require.ErrorIs(t, err, tt.want)
		})
	}

	api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	_, err := httpapi.NewHistoryClient(api, 0).FetchHistory(context.Background(), "r1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500: boom")
}

func TestUpload(t *testing.T) {
	api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/rooms/r1/files", r.URL.Path)
		f, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		assert.Equal(t, "cat.png", hdr.Filename)
		assert.Equal(t, "image/png", hdr.Header.Get("Content-Type"))
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "a1", "url": "http://files/a1", "size": len(data)})
	})
	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)

	att, err := httpapi.NewUploadClient(api).Upload(context.Background(), "r1", domain.File{Name: "cat.png", Data: png})

	require.NoError(t, err)
	assert.Equal(t, "a1", att.ID)
	assert.Equal(t, domain.AttachmentImage, att.Type)
	assert.Equal(t, "cat.png", att.Name)
	assert.EqualValues(t, len(png), att.Size)
}

func TestUploadRejected(t *testing.T) {
	api := newAPI(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		_, _ = io.WriteString(w, `{"error":"file too large"}`)
	})

	_, err := httpapi.NewUploadClient(api).Upload(context.Background(), "r1", domain.File{Name: "big.bin", Data: []byte{1, 2, 3}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "file too large")
}

func TestAttachmentTypeOf(t *testing.T) {
	assert.Equal(t, domain.AttachmentImage, httpapi.AttachmentTypeOf("image/jpeg"))
	assert.Equal(t, domain.AttachmentVideo, httpapi.AttachmentTypeOf("video/mp4"))
	assert.Equal(t, domain.AttachmentAudio, httpapi.AttachmentTypeOf("audio/ogg"))
	assert.Equal(t, domain.AttachmentDocument, httpapi.AttachmentTypeOf("application/pdf"))
}
