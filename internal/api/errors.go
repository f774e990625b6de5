package api

import (
	"errors"
	"net/http"

	"github.com/ignite/mailtrack/internal/pkg/httputil"
	"github.com/ignite/mailtrack/internal/pkg/logger"
	"github.com/ignite/mailtrack/internal/service/message"
)

// respondServiceError maps message service errors onto HTTP statuses.
// Client errors echo the error text; anything else is logged and answered
// with publicMsg so storage and database details never reach the caller.
func respondServiceError(w http.ResponseWriter, err error, publicMsg string) {
	switch {
	case errors.Is(err, message.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, message.ErrNoRecipients),
		errors.Is(err, message.ErrInvalidAddress),
		errors.Is(err, message.ErrAttachmentNotFound),
		errors.Is(err, message.ErrMissingFilename):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, message.ErrAlreadySent):
		httputil.Conflict(w, err.Error())
	default:
		logger.Error(publicMsg, "error", err)
		httputil.Error(w, http.StatusInternalServerError, publicMsg)
	}
}
