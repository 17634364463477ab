package api

import (
	"net/http"

	"github.com/ripplehq/ripple/audit"
)

func (h *Handler) listAudit(w http.ResponseWriter, r *http.Request) {
	orgID := queryParam(r, "org_id")
	if orgID == "" {
		writeError(w, http.StatusBadRequest, "org_id is required")
		return
	}

	opts := audit.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
		Action: queryParam(r, "action"),
	}

	entries, err := h.engine.Audit().List(r.Context(), orgID, opts)
	if err != nil {
		h.logger.Error("list audit failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}
