package ocr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestPDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bill.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 fake"), 0o600))
	return path
}

func newMistralTest(t *testing.T, handler http.HandlerFunc) *MistralOCR {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	m := NewMistralOCR("test-key", "")
	m.endpoint = srv.URL
	return m
}

func TestMistralOCR_ExtractPages(t *testing.T) {
	var gotAuth, gotDocURL, gotModel string
	m := newMistralTest(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")

		var req mistralOCRRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotModel = req.Model
		gotDocURL = req.Document.DocumentURL

		json.NewEncoder(w).Encode(mistralOCRResponse{Pages: []mistralOCRPage{
			{Index: 0, Markdown: "# Page one"},
			{Index: 1, Markdown: "# Page two"},
		}})
	})

	pages, err := m.ExtractPages(context.Background(), writeTestPDF(t))
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, "# Page one", pages[0].Text)
	assert.Equal(t, 2, pages[1].Number)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, defaultMistralModel, gotModel)
	assert.True(t, strings.HasPrefix(gotDocURL, "data:application/pdf;base64,"))
}

func TestMistralOCR_PageErrorSkipped(t *testing.T) {
	m := newMistralTest(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(mistralOCRResponse{Pages: []mistralOCRPage{
			{Index: 0, Markdown: "good first page"},
			{Index: 1, Error: "unreadable scan"},
			{Index: 2, Markdown: "good third page"},
		}})
	})

	pages, err := m.ExtractPages(context.Background(), writeTestPDF(t))
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, 3, pages[1].Number)
}

func TestMistralOCR_BackendFailure(t *testing.T) {
	m := newMistralTest(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	_, err := m.ExtractPages(context.Background(), writeTestPDF(t))
	assert.ErrorIs(t, err, ErrExtractionService)
}

func TestMistralOCR_UnsupportedExtensionBeforeNetwork(t *testing.T) {
	calls := 0
	m := newMistralTest(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
	})

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o600))

	_, err := m.ExtractPages(context.Background(), path)
	assert.ErrorIs(t, err, ErrUnsupportedMediaType)
	assert.Zero(t, calls, "the extension gate must run before any upload")
}
