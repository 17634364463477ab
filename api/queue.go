package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/ripplehq/ripple"
	"github.com/ripplehq/ripple/id"
	"github.com/ripplehq/ripple/queue"
)

type emitRequest struct {
	OrgID        string         `json:"org_id"`
	Type         string         `json:"type"`
	Payload      map[string]any `json:"payload"`
	ScheduledFor *time.Time     `json:"scheduled_for,omitempty"`
}

// emitEvent enqueues a domain event for rule processing. The item is queued,
// not executed inline, so the response is 202.
func (h *Handler) emitEvent(w http.ResponseWriter, r *http.Request) {
	var req emitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrgID == "" {
		writeError(w, http.StatusBadRequest, "org_id is required")
		return
	}

	evt := eventRequest{OrgID: req.OrgID, Type: req.Type, Payload: req.Payload}.domainEvent()

	var it *queue.Item
	var err error
	if req.ScheduledFor != nil {
		it, err = h.engine.EmitAt(r.Context(), evt, *req.ScheduledFor)
	} else {
		it, err = h.engine.Emit(r.Context(), evt)
	}
	if err != nil {
		if errors.Is(err, ripple.ErrInvalidEventType) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("emit event failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to emit event")
		return
	}

	writeJSON(w, http.StatusAccepted, it)
}

func (h *Handler) listItems(w http.ResponseWriter, r *http.Request) {
	orgID := queryParam(r, "org_id")
	if orgID == "" {
		writeError(w, http.StatusBadRequest, "org_id is required")
		return
	}

	opts := queue.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
	}
	if s := queryParam(r, "status"); s != "" {
		status := queue.Status(s)
		opts.Status = &status
	}

	items, err := h.engine.Queue().List(r.Context(), orgID, opts)
	if err != nil {
		h.logger.Error("list items failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

func (h *Handler) getItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := id.ParseItemID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item ID")
		return
	}

	it, err := h.engine.Queue().Get(r.Context(), itemID)
	if err != nil {
		if errors.Is(err, ripple.ErrItemNotFound) {
			writeError(w, http.StatusNotFound, "item not found")
			return
		}
		h.logger.Error("get item failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get item")
		return
	}

	writeJSON(w, http.StatusOK, it)
}

// requeueItem returns a dead item to pending with a fresh attempt budget.
func (h *Handler) requeueItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := id.ParseItemID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item ID")
		return
	}

	if err := h.engine.Queue().RequeueDead(r.Context(), itemID); err != nil {
		if errors.Is(err, ripple.ErrItemNotFound) {
			writeError(w, http.StatusNotFound, "item not found")
			return
		}
		if errors.Is(err, ripple.ErrNotDead) {
			writeError(w, http.StatusConflict, "item is not dead")
			return
		}
		h.logger.Error("requeue item failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to requeue item")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(queue.StatusPending)})
}

func (h *Handler) queueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Queue().Stats(r.Context(), queryParam(r, "org_id"))
	if err != nil {
		h.logger.Error("queue stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get queue stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// runBatch claims and processes one batch of due items. Intended for external
// schedulers that drive the queue instead of the background poller.
func (h *Handler) runBatch(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 25)

	res, err := h.engine.RunBatch(r.Context(), limit)
	if err != nil {
		h.logger.Error("run batch failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to run batch")
		return
	}

	writeJSON(w, http.StatusOK, res)
}
