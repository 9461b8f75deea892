package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/billscan/internal/extract"
	"github.com/sells-group/billscan/internal/model"
	"github.com/sells-group/billscan/internal/ocr"
	"github.com/sells-group/billscan/internal/pipeline"
	"github.com/sells-group/billscan/internal/session"
	"github.com/sells-group/billscan/pkg/anthropic"
)

type fakeExtractor struct {
	pages []ocr.Page
}

func (f *fakeExtractor) ExtractPages(ctx context.Context, path string) ([]ocr.Page, error) {
	return f.pages, nil
}

type stubLLM struct {
	respond func(prompt string) string
}

func (s *stubLLM) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	prompt := ""
	if len(req.Messages) > 0 {
		prompt = req.Messages[len(req.Messages)-1].Content
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: s.respond(prompt)}},
	}, nil
}

const pageJSON = `{
	"customer_name": "Acme Corp",
	"customer_identifier": "ACME-01",
	"consumption_records": [{
		"site_id": "S1",
		"service_address": "1 Main St",
		"billing_period": "2023-01-01 to 2023-01-31",
		"consumption_value": 100,
		"consumption_unit": "kWh"
	}]
}`

const reportJSON = `{
	"customers": [{
		"customer_name": "Acme Corp",
		"customer_identifier": "ACME-01",
		"sites": [{
			"site_id": "S1",
			"service_address": "1 Main St",
			"data": [{
				"billing_period": "2023-01-01 to 2023-01-31",
				"consumption_value": 100,
				"consumption_unit": "kWh"
			}]
		}]
	}]
}`

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	ex := &fakeExtractor{pages: []ocr.Page{
		{Number: 1, Text: "usage table for S1"},
		{Number: 2, Text: "legal boilerplate"},
	}}
	llm := extract.NewClient(&stubLLM{respond: func(prompt string) string {
		switch {
		case strings.Contains(prompt, "usage table"):
			return pageJSON
		case strings.Contains(prompt, "legal boilerplate"):
			return `{"customer_name": "", "customer_identifier": "", "consumption_records": []}`
		default:
			return reportJSON
		}
	}}, extract.Config{Model: "claude-sonnet-4-5-20250929"})

	p := pipeline.New(session.NewMemory(0), ex, llm, 2)
	srv := httptest.NewServer(newRouter(p, 32<<20))
	t.Cleanup(srv.Close)
	return srv
}

func createSession(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, err := http.Post(srv.URL+"/sessions", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.NotEmpty(t, body.Token)
	return body.Token
}

func uploadFile(t *testing.T, srv *httptest.Server, token, filename string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF-1.4 fake"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(
		fmt.Sprintf("%s/sessions/%s/files", srv.URL, token),
		mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	return resp
}

func TestServer_Health(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// Session created, a two-page document uploaded where only page one carries
// data, aggregation returns the grouped report, and the token dies with it.
func TestServer_SessionLifecycle(t *testing.T) {
	srv := newTestServer(t)
	token := createSession(t, srv)

	resp := uploadFile(t, srv, token, "invoice.pdf")
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var upload struct {
		Document      string `json:"document"`
		AcceptedPages int    `json:"accepted_pages"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&upload))
	assert.Equal(t, "invoice.pdf", upload.Document)
	assert.Equal(t, 1, upload.AcceptedPages)

	aggResp, err := http.Post(fmt.Sprintf("%s/sessions/%s/aggregate", srv.URL, token), "application/json", nil)
	require.NoError(t, err)
	defer aggResp.Body.Close()
	require.Equal(t, http.StatusOK, aggResp.StatusCode)

	var final model.FinalReport
	require.NoError(t, json.NewDecoder(aggResp.Body).Decode(&final))
	require.Len(t, final.Customers, 1)
	require.Len(t, final.Customers[0].Sites, 1)
	assert.Equal(t, "S1", final.Customers[0].Sites[0].SiteID)
	assert.Equal(t, 1, final.RecordCount())

	// The session was single-use.
	again, err := http.Post(fmt.Sprintf("%s/sessions/%s/aggregate", srv.URL, token), "application/json", nil)
	require.NoError(t, err)
	defer again.Body.Close()
	assert.Equal(t, http.StatusNotFound, again.StatusCode)
}

func TestServer_UnsupportedMediaType(t *testing.T) {
	srv := newTestServer(t)
	token := createSession(t, srv)

	resp := uploadFile(t, srv, token, "notes.txt")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "process_file", body["operation"])
	assert.Equal(t, "notes.txt", body["file"])
}

func TestServer_UnknownSession(t *testing.T) {
	srv := newTestServer(t)

	resp := uploadFile(t, srv, "00000000-0000-0000-0000-000000000000", "invoice.pdf")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_MalformedTokenRejected(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/sessions/not%2Fa%2Ftoken/aggregate", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_AggregateEmptySession(t *testing.T) {
	srv := newTestServer(t)
	token := createSession(t, srv)

	resp, err := http.Post(fmt.Sprintf("%s/sessions/%s/aggregate", srv.URL, token), "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestServer_EntityFilterForwarded(t *testing.T) {
	srv := newTestServer(t)
	token := createSession(t, srv)

	resp := uploadFile(t, srv, token, "invoice.pdf")
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	body := bytes.NewBufferString(`{"entity_filter": "Beta"}`)
	aggResp, err := http.Post(fmt.Sprintf("%s/sessions/%s/aggregate", srv.URL, token), "application/json", body)
	require.NoError(t, err)
	defer aggResp.Body.Close()
	require.Equal(t, http.StatusOK, aggResp.StatusCode)

	// The completion returned Acme but the filter said Beta; the local
	// pass leaves nothing.
	var final model.FinalReport
	require.NoError(t, json.NewDecoder(aggResp.Body).Decode(&final))
	assert.Empty(t, final.Customers)
}

func TestShutdownServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := &http.Server{Handler: http.NotFoundHandler()}
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	assert.NoError(t, shutdownServer(srv))
	assert.ErrorIs(t, <-done, http.ErrServerClosed)
}
