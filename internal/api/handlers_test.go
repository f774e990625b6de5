package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/mailtrack/internal/domain"
	"github.com/ignite/mailtrack/internal/service/message"
)

// mockMessages implements MessageService in memory.
type mockMessages struct {
	messages    map[string]*domain.Message
	attachments []*domain.Attachment
	sent        map[string]bool
	createErr   error
	sendErr     error
	lastDraft   message.Draft
	lastContent string
}

func newMockMessages() *mockMessages {
	return &mockMessages{messages: map[string]*domain.Message{}, sent: map[string]bool{}}
}

func (m *mockMessages) CreateWithObjects(_ context.Context, d message.Draft) (*domain.Message, error) {
	m.lastDraft = d
	if m.createErr != nil {
		return nil, m.createErr
	}
	msg := &domain.Message{ID: fmt.Sprintf("msg-%d", len(m.messages)+1), Subject: d.Subject, CreatedAt: time.Now()}
	for _, a := range d.To {
		msg.Recipients = append(msg.Recipients, domain.Recipient{Kind: domain.RecipientTo, Address: a})
	}
	m.messages[msg.ID] = msg
	return msg, nil
}

func (m *mockMessages) CreateAttachment(_ context.Context, filename, mimeType string, content io.Reader) (*domain.Attachment, error) {
	b, err := io.ReadAll(content)
	if err != nil {
		return nil, err
	}
	m.lastContent = string(b)
	a := &domain.Attachment{ID: "att-1", Filename: filename, MIMEType: mimeType, Size: int64(len(b))}
	m.attachments = append(m.attachments, a)
	return a, nil
}

func (m *mockMessages) Get(_ context.Context, id string) (*domain.Message, error) {
	msg, ok := m.messages[id]
	if !ok {
		return nil, message.ErrNotFound
	}
	return msg, nil
}

func (m *mockMessages) Send(_ context.Context, id string) (int, error) {
	if m.sendErr != nil {
		return 0, m.sendErr
	}
	if _, ok := m.messages[id]; !ok {
		return 0, message.ErrNotFound
	}
	if m.sent[id] {
		return 0, message.ErrAlreadySent
	}
	m.sent[id] = true
	return 1, nil
}

func setupTestRouter(t *testing.T) (http.Handler, *mockMessages) {
	t.Helper()
	svc := newMockMessages()
	return SetupRoutes(NewHandlers(svc), []string{"https://reports.example.com"}), svc
}

func doRequest(h http.Handler, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	h, _ := setupTestRouter(t)
	rec := doRequest(h, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCreateGetAndSendMessage(t *testing.T) {
	h, svc := setupTestRouter(t)

	body := `{"to":["a@example.com"],"subject":"hi","body":"hello","attachments":["att-1"]}`
	rec := doRequest(h, http.MethodPost, "/api/messages", strings.NewReader(body), "application/json")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"att-1"}, svc.lastDraft.AttachmentIDs)

	var created domain.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)
	require.Len(t, created.Recipients, 1)

	rec = doRequest(h, http.MethodGet, "/api/messages/"+created.ID, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(h, http.MethodPost, "/api/messages/"+created.ID+"/send", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":"`+created.ID+`","sent":1}`, rec.Body.String())

	rec = doRequest(h, http.MethodPost, "/api/messages/"+created.ID+"/send", nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateMessageErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		want int
	}{
		{"malformed json", "{", nil, http.StatusBadRequest},
		{"no recipients", `{"subject":"x"}`, message.ErrNoRecipients, http.StatusBadRequest},
		{"invalid address", `{"to":["nope"]}`, fmt.Errorf("%w: %q", message.ErrInvalidAddress, "nope"), http.StatusBadRequest},
		{"unknown attachment", `{"to":["a@example.com"]}`, message.ErrAttachmentNotFound, http.StatusBadRequest},
		{"storage failure", `{"to":["a@example.com"]}`, errors.New("s3: access denied"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, svc := setupTestRouter(t)
			svc.createErr = tt.err
			rec := doRequest(h, http.MethodPost, "/api/messages", strings.NewReader(tt.body), "application/json")
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusInternalServerError {
				assert.NotContains(t, rec.Body.String(), "s3")
			}
		})
	}
}

func TestGetMessageNotFound(t *testing.T) {
	h, _ := setupTestRouter(t)
	rec := doRequest(h, http.MethodGet, "/api/messages/missing", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSendMessageFailure(t *testing.T) {
	h, svc := setupTestRouter(t)
	svc.messages["m1"] = &domain.Message{ID: "m1"}
	svc.sendErr = errors.New("smtp: 421 try later")

	rec := doRequest(h, http.MethodPost, "/api/messages/m1/send", nil, "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "failed to send message")
}

func TestUploadAttachment(t *testing.T) {
	h, svc := setupTestRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "report.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := doRequest(h, http.MethodPost, "/api/attachments", &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var a domain.Attachment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &a))
	assert.Equal(t, "report.pdf", a.Filename)
	assert.Equal(t, int64(8), a.Size)
	assert.Equal(t, "%PDF-1.4", svc.lastContent)
}

func TestUploadAttachmentMissingFile(t *testing.T) {
	h, _ := setupTestRouter(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "no file here"))
	require.NoError(t, mw.Close())

	rec := doRequest(h, http.MethodPost, "/api/attachments", &buf, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	h, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/messages", nil)
	req.Header.Set("Origin", "https://reports.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "https://reports.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}
