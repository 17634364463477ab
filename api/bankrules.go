package api

import (
	"errors"
	"net/http"

	"github.com/ripplehq/ripple"
	"github.com/ripplehq/ripple/bankrule"
	"github.com/ripplehq/ripple/id"
)

func (h *Handler) createBankRule(w http.ResponseWriter, r *http.Request) {
	var in bankrule.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.engine.BankRules().Create(r.Context(), in)
	if err != nil {
		var verr *bankrule.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		h.logger.Error("create bank rule failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create bank rule")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) listBankRules(w http.ResponseWriter, r *http.Request) {
	orgID := queryParam(r, "org_id")
	if orgID == "" {
		writeError(w, http.StatusBadRequest, "org_id is required")
		return
	}

	opts := bankrule.ListOpts{
		Offset:          queryInt(r, "offset", 0),
		Limit:           queryInt(r, "limit", 50),
		IncludeInactive: queryParam(r, "include_inactive") == "true",
	}

	rules, err := h.engine.BankRules().List(r.Context(), orgID, opts)
	if err != nil {
		h.logger.Error("list bank rules failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list bank rules")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"rules": rules, "count": len(rules)})
}

func (h *Handler) getBankRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := id.ParseBankRuleID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid bank rule ID")
		return
	}

	rl, err := h.engine.BankRules().Get(r.Context(), ruleID)
	if err != nil {
		if errors.Is(err, ripple.ErrBankRuleNotFound) {
			writeError(w, http.StatusNotFound, "bank rule not found")
			return
		}
		h.logger.Error("get bank rule failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get bank rule")
		return
	}

	writeJSON(w, http.StatusOK, rl)
}

func (h *Handler) updateBankRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := id.ParseBankRuleID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid bank rule ID")
		return
	}

	var in bankrule.Input
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.engine.BankRules().Update(r.Context(), ruleID, in)
	if err != nil {
		if errors.Is(err, ripple.ErrBankRuleNotFound) {
			writeError(w, http.StatusNotFound, "bank rule not found")
			return
		}
		var verr *bankrule.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, verr.Error())
			return
		}
		h.logger.Error("update bank rule failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update bank rule")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) activateBankRule(w http.ResponseWriter, r *http.Request) {
	h.setBankRuleActive(w, r, true)
}

func (h *Handler) deactivateBankRule(w http.ResponseWriter, r *http.Request) {
	h.setBankRuleActive(w, r, false)
}

func (h *Handler) setBankRuleActive(w http.ResponseWriter, r *http.Request, active bool) {
	ruleID, err := id.ParseBankRuleID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid bank rule ID")
		return
	}

	if err := h.engine.BankRules().SetActive(r.Context(), ruleID, active); err != nil {
		if errors.Is(err, ripple.ErrBankRuleNotFound) {
			writeError(w, http.StatusNotFound, "bank rule not found")
			return
		}
		h.logger.Error("set bank rule active failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update bank rule")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"is_active": active})
}

type classifyRequest struct {
	OrgID       string               `json:"org_id"`
	Transaction bankrule.Transaction `json:"transaction"`
}

// classifyTransaction runs the ranked rule match for one transaction. A null
// rule in the response means no rule matched and the transaction stays
// unclassified.
func (h *Handler) classifyTransaction(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.OrgID == "" {
		writeError(w, http.StatusBadRequest, "org_id is required")
		return
	}

	matched, err := h.engine.BankRules().Classify(r.Context(), req.OrgID, req.Transaction)
	if err != nil {
		h.logger.Error("classify transaction failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to classify transaction")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"rule": matched, "matched": matched != nil})
}
