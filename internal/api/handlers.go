package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/mailtrack/internal/domain"
	"github.com/ignite/mailtrack/internal/pkg/httputil"
	"github.com/ignite/mailtrack/internal/service/message"
)

// maxAttachmentBytes caps multipart uploads to POST /api/attachments.
const maxAttachmentBytes = 25 << 20

// MessageService is the subset of message.Service the API serves.
type MessageService interface {
	CreateWithObjects(ctx context.Context, d message.Draft) (*domain.Message, error)
	CreateAttachment(ctx context.Context, filename, mimeType string, content io.Reader) (*domain.Attachment, error)
	Get(ctx context.Context, id string) (*domain.Message, error)
	Send(ctx context.Context, id string) (int, error)
}

// Handlers contains the HTTP handlers for the message API.
type Handlers struct {
	messages MessageService
}

// NewHandlers creates a new Handlers instance
func NewHandlers(messages MessageService) *Handlers {
	return &Handlers{messages: messages}
}

func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

// CreateMessage stores a draft message and its recipients.
func (h *Handlers) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var d message.Draft
	if !httputil.Decode(w, r, &d) {
		return
	}

	m, err := h.messages.CreateWithObjects(r.Context(), d)
	if err != nil {
		respondServiceError(w, err, "failed to create message")
		return
	}
	httputil.Created(w, m)
}

func (h *Handlers) GetMessage(w http.ResponseWriter, r *http.Request) {
	m, err := h.messages.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err, "failed to load message")
		return
	}
	httputil.OK(w, m)
}

// SendMessage transmits a stored message through the configured sender.
func (h *Handlers) SendMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sent, err := h.messages.Send(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "failed to send message")
		return
	}
	httputil.OK(w, map[string]any{"id": id, "sent": sent})
}

// UploadAttachment accepts a multipart form with a single "file" part.
func (h *Handlers) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAttachmentBytes)
	if err := r.ParseMultipartForm(maxAttachmentBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.Error(w, http.StatusRequestEntityTooLarge, "attachment too large")
			return
		}
		httputil.BadRequest(w, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(w, "missing file")
		return
	}
	defer file.Close()

	a, err := h.messages.CreateAttachment(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		respondServiceError(w, err, "failed to store attachment")
		return
	}
	httputil.Created(w, a)
}
