package api

import (
	"errors"
	"net/http"

	"github.com/ripplehq/ripple"
	"github.com/ripplehq/ripple/event"
	"github.com/ripplehq/ripple/id"
	"github.com/ripplehq/ripple/rule"
)

type eventRequest struct {
	OrgID   string         `json:"org_id"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

func (req eventRequest) domainEvent() event.DomainEvent {
	return event.DomainEvent{
		OrgID:   req.OrgID,
		Type:    req.Type,
		Payload: req.Payload,
	}
}

func (h *Handler) createRule(w http.ResponseWriter, r *http.Request) {
	var in rule.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.engine.Rules().Create(r.Context(), in)
	if err != nil {
		var verr *rule.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		h.logger.Error("create rule failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create rule")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	orgID := queryParam(r, "org_id")
	if orgID == "" {
		writeError(w, http.StatusBadRequest, "org_id is required")
		return
	}

	opts := rule.ListOpts{
		Offset:          queryInt(r, "offset", 0),
		Limit:           queryInt(r, "limit", 50),
		IncludeInactive: queryParam(r, "include_inactive") == "true",
	}

	rules, err := h.engine.Rules().List(r.Context(), orgID, opts)
	if err != nil {
		h.logger.Error("list rules failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list rules")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"rules": rules, "count": len(rules)})
}

func (h *Handler) getRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := id.ParseRuleID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule ID")
		return
	}

	rl, err := h.engine.Rules().Get(r.Context(), ruleID)
	if err != nil {
		if errors.Is(err, ripple.ErrRuleNotFound) {
			writeError(w, http.StatusNotFound, "rule not found")
			return
		}
		h.logger.Error("get rule failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get rule")
		return
	}

	writeJSON(w, http.StatusOK, rl)
}

func (h *Handler) updateRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := id.ParseRuleID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule ID")
		return
	}

	var in rule.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.engine.Rules().Update(r.Context(), ruleID, in)
	if err != nil {
		if errors.Is(err, ripple.ErrRuleNotFound) {
			writeError(w, http.StatusNotFound, "rule not found")
			return
		}
		var verr *rule.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		h.logger.Error("update rule failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update rule")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) activateRule(w http.ResponseWriter, r *http.Request) {
	h.setRuleActive(w, r, true)
}

func (h *Handler) deactivateRule(w http.ResponseWriter, r *http.Request) {
	h.setRuleActive(w, r, false)
}

func (h *Handler) setRuleActive(w http.ResponseWriter, r *http.Request, active bool) {
	ruleID, err := id.ParseRuleID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule ID")
		return
	}

	if err := h.engine.Rules().SetActive(r.Context(), ruleID, active); err != nil {
		if errors.Is(err, ripple.ErrRuleNotFound) {
			writeError(w, http.StatusNotFound, "rule not found")
			return
		}
		h.logger.Error("set rule active failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update rule")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"is_active": active})
}

func (h *Handler) dispatchRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := id.ParseRuleID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule ID")
		return
	}

	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	it, err := h.engine.DispatchRule(r.Context(), ruleID, req.domainEvent())
	if err != nil {
		if errors.Is(err, ripple.ErrRuleNotFound) {
			writeError(w, http.StatusNotFound, "rule not found")
			return
		}
		if errors.Is(err, ripple.ErrInvalidEventType) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("dispatch rule failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to dispatch rule")
		return
	}

	writeJSON(w, http.StatusAccepted, it)
}

func (h *Handler) testEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrgID == "" {
		writeError(w, http.StatusBadRequest, "org_id is required")
		return
	}

	matched, err := h.engine.TestEvent(r.Context(), req.domainEvent())
	if err != nil {
		h.logger.Error("test event failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to test event")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"matched": matched, "count": len(matched)})
}
