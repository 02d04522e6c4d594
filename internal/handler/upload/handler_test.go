package upload

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	uploadservice "github.com/zhouzirui/talknest/backend/internal/service/upload"
)

func setupRouter(t *testing.T, publicBaseURL string, maxBytes int64) *chi.Mux {
	t.Helper()
	log := zaptest.NewLogger(t)
	store, err := uploadservice.NewDiskStore(t.TempDir(), maxBytes, log)
	require.NoError(t, err)

	r := chi.NewRouter()
	New(store, publicBaseURL, maxBytes, log).RegisterRoutes(r)
	return r
}

func multipartBody(t *testing.T, field, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestUploadStoresAndServesFile(t *testing.T) {
	r := setupRouter(t, "", 0)
	body, contentType := multipartBody(t, "file", "hello.txt", "text/plain", []byte("hello world"))

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Host = "localhost:3000"
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	var got Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "text/plain", got.Type)
	assert.Regexp(t, `^http://localhost:3000/uploads/\d+-hello\.txt$`, got.URL)

	path := got.URL[len("http://localhost:3000"):]
	getResp := httptest.NewRecorder()
	r.ServeHTTP(getResp, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, getResp.Code)
	data, err := io.ReadAll(getResp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestUploadDirectoryIsNotListed(t *testing.T) {
	r := setupRouter(t, "", 0)
	body, contentType := multipartBody(t, "file", "secret-scan.pdf", "application/pdf", []byte("%PDF-1.4"))

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	listing := httptest.NewRecorder()
	r.ServeHTTP(listing, httptest.NewRequest(http.MethodGet, "/uploads/", nil))

	assert.Equal(t, http.StatusNotFound, listing.Code)
	assert.NotContains(t, listing.Body.String(), "secret-scan.pdf")
}

func TestUploadUsesPublicBaseURL(t *testing.T) {
	r := setupRouter(t, "https://api.talknest.example/", 0)
	body, contentType := multipartBody(t, "file", "a.txt", "", []byte("plain text"))

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var got Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Regexp(t, `^https://api\.talknest\.example/uploads/\d+-a\.txt$`, got.URL)
	assert.Equal(t, "text/plain", got.Type)
}

func TestUploadForwardedProto(t *testing.T) {
	r := setupRouter(t, "", 0)
	body, contentType := multipartBody(t, "file", "a.txt", "text/plain", []byte("x"))

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Host = "chat.example"
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Forwarded-Proto", "https")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	var got Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Regexp(t, `^https://chat\.example/uploads/`, got.URL)
}

func TestUploadWithoutFile(t *testing.T) {
	r := setupRouter(t, "", 0)

	cases := map[string]func() *http.Request{
		"wrong field": func() *http.Request {
			body, contentType := multipartBody(t, "avatar", "a.png", "image/png", []byte("x"))
			req := httptest.NewRequest(http.MethodPost, "/upload", body)
			req.Header.Set("Content-Type", contentType)
			return req
		},
		"not multipart": func() *http.Request {
			req := httptest.NewRequest(http.MethodPost, "/upload", bytes.NewBufferString(`{"file":"x"}`))
			req.Header.Set("Content-Type", "application/json")
			return req
		},
	}

	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, build())

			assert.Equal(t, http.StatusBadRequest, resp.Code)
			assert.JSONEq(t, `{"error":"No file uploaded"}`, resp.Body.String())
		})
	}
}

func TestUploadTooLarge(t *testing.T) {
	r := setupRouter(t, "", 8)
	body, contentType := multipartBody(t, "file", "big.bin", "application/octet-stream", bytes.Repeat([]byte("a"), 64))

	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.Code)
}
