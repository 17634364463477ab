package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/ripplehq/ripple/webhook"
)

// Signature headers on inbound provider deliveries.
const (
	headerTimestamp = "X-Webhook-Timestamp"
	headerSignature = "X-Webhook-Signature"
)

// ingest receives one provider delivery. The raw body is read before any
// decoding because the signature covers the exact bytes sent.
func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	defer r.Body.Close()

	ts, err := strconv.ParseInt(r.Header.Get(headerTimestamp), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing or invalid "+headerTimestamp+" header")
		return
	}
	sig := r.Header.Get(headerSignature)
	if sig == "" {
		writeError(w, http.StatusBadRequest, "missing "+headerSignature+" header")
		return
	}

	disp, err := h.engine.Ingestor().Ingest(r.Context(), provider, body, ts, sig)
	switch disp {
	case webhook.Accepted:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	case webhook.Duplicate:
		writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
	case webhook.Ignored:
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	default:
		if errors.Is(err, webhook.ErrUnknownProvider) {
			writeError(w, http.StatusNotFound, "unknown provider")
			return
		}
		h.logger.Warn("webhook rejected", "provider", provider, "error", err)
		msg := "delivery rejected"
		if err != nil {
			msg = err.Error()
		}
		writeError(w, http.StatusBadRequest, msg)
	}
}
