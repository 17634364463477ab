package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ripplehq/ripple"
	"github.com/ripplehq/ripple/api"
	"github.com/ripplehq/ripple/event"
	"github.com/ripplehq/ripple/run"
	"github.com/ripplehq/ripple/signature"
	"github.com/ripplehq/ripple/store/memory"
	"github.com/ripplehq/ripple/webhook"
)

type countingMailer struct {
	mu   sync.Mutex
	sent int
}

func (m *countingMailer) SendTemplate(_ context.Context, _, _, _ string, _ map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent++
	return nil
}

func (m *countingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent
}

var _ run.Mailer = (*countingMailer)(nil)

// testServer creates a Handler backed by a memory store and returns the test
// server plus the engine for direct setup.
func testServer(t *testing.T) (*httptest.Server, *ripple.Engine, *countingMailer) {
	t.Helper()

	mailer := &countingMailer{}
	e, err := ripple.New(
		ripple.WithStore(memory.New()),
		ripple.WithMailer(mailer),
		ripple.WithRuleCacheTTL(0),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	h := api.NewHandler(e, slog.Default())
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, e, mailer
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func emailRuleBody(trigger string) map[string]any {
	return map[string]any{
		"org_id":         "org-1",
		"name":           "notify ops",
		"trigger_events": []string{trigger},
		"actions": []map[string]any{{
			"type": "send_email",
			"params": map[string]any{
				"to":       "ops@example.org",
				"template": "donation-alert",
			},
		}},
	}
}

// --- Rules ---

func TestRules_CRUD(t *testing.T) {
	srv, _, _ := testServer(t)

	// Create
	resp := doJSON(t, "POST", srv.URL+"/rules", emailRuleBody("donation.received"))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	var created map[string]any
	decodeBody(t, resp, &created)
	ruleID, _ := created["id"].(string)
	if ruleID == "" {
		t.Fatalf("expected rule id, got %v", created)
	}
	if created["is_active"] != true {
		t.Fatalf("expected new rule active, got %v", created["is_active"])
	}

	// Get
	resp = doJSON(t, "GET", srv.URL+"/rules/"+ruleID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// List
	resp = doJSON(t, "GET", srv.URL+"/rules?org_id=org-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", resp.StatusCode)
	}
	var list map[string]any
	decodeBody(t, resp, &list)
	if list["count"] != float64(1) {
		t.Fatalf("expected 1 rule, got %v", list["count"])
	}

	// Update
	updated := emailRuleBody("donation.received")
	updated["name"] = "renamed"
	resp = doJSON(t, "PUT", srv.URL+"/rules/"+ruleID, updated)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", resp.StatusCode)
	}
	var got map[string]any
	decodeBody(t, resp, &got)
	if got["name"] != "renamed" {
		t.Fatalf("expected renamed rule, got %v", got["name"])
	}

	// Deactivate removes the rule from the default listing
	resp = doJSON(t, "PATCH", srv.URL+"/rules/"+ruleID+"/deactivate", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("deactivate: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "GET", srv.URL+"/rules?org_id=org-1", nil)
	decodeBody(t, resp, &list)
	if list["count"] != float64(0) {
		t.Fatalf("expected inactive rule hidden, got %v", list["count"])
	}

	resp = doJSON(t, "GET", srv.URL+"/rules?org_id=org-1&include_inactive=true", nil)
	decodeBody(t, resp, &list)
	if list["count"] != float64(1) {
		t.Fatalf("expected inactive rule listed, got %v", list["count"])
	}
}

func TestRules_CreateInvalid(t *testing.T) {
	srv, _, _ := testServer(t)

	resp := doJSON(t, "POST", srv.URL+"/rules", map[string]any{
		"org_id": "org-1",
		"name":   "no triggers",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRules_GetNotFound(t *testing.T) {
	srv, _, _ := testServer(t)

	resp := doJSON(t, "GET", srv.URL+"/rules/rule_01h455vb4pex5vsknk084sn02q", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "GET", srv.URL+"/rules/not-a-typeid", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestRules_TestEvent(t *testing.T) {
	srv, _, mailer := testServer(t)

	resp := doJSON(t, "POST", srv.URL+"/rules", emailRuleBody("donation.received"))
	resp.Body.Close()

	resp = doJSON(t, "POST", srv.URL+"/rules/test", map[string]any{
		"org_id":  "org-1",
		"type":    "donation.received",
		"payload": map[string]any{"amount_cents": 5000},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]any
	decodeBody(t, resp, &body)
	if body["count"] != float64(1) {
		t.Fatalf("expected 1 matched rule, got %v", body["count"])
	}
	if mailer.count() != 0 {
		t.Fatal("dry run executed actions")
	}
}

func TestRules_Dispatch(t *testing.T) {
	srv, _, mailer := testServer(t)

	resp := doJSON(t, "POST", srv.URL+"/rules", emailRuleBody("donation.received"))
	var created map[string]any
	decodeBody(t, resp, &created)
	ruleID := created["id"].(string)

	resp = doJSON(t, "POST", srv.URL+"/rules/"+ruleID+"/dispatch", map[string]any{
		"type":    "donation.received",
		"payload": map[string]any{"amount_cents": 100},
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("dispatch: expected 202, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "POST", srv.URL+"/queue/run-batch", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("run-batch: expected 200, got %d", resp.StatusCode)
	}
	var res map[string]any
	decodeBody(t, resp, &res)
	if res["succeeded"] != float64(1) {
		t.Fatalf("expected 1 success, got %v", res)
	}
	if mailer.count() != 1 {
		t.Fatalf("sent %d emails", mailer.count())
	}
}

// --- Bank rules ---

func TestBankRules_CreateAndClassify(t *testing.T) {
	srv, _, _ := testServer(t)

	resp := doJSON(t, "POST", srv.URL+"/bank-rules", map[string]any{
		"org_id":   "org-1",
		"name":     "office supplies",
		"priority": 10,
		"conditions": []map[string]any{
			{"field": "merchant_name", "op": "contains", "value": "staples"},
		},
		"category": "supplies",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d", resp.StatusCode)
	}
	var created map[string]any
	decodeBody(t, resp, &created)

	resp = doJSON(t, "POST", srv.URL+"/bank-rules/classify", map[string]any{
		"org_id": "org-1",
		"transaction": map[string]any{
			"merchant_name": "Staples Store #42",
			"amount_cents":  -4200,
			"direction":     "outbound",
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("classify: expected 200, got %d", resp.StatusCode)
	}
	var result map[string]any
	decodeBody(t, resp, &result)
	if result["matched"] != true {
		t.Fatalf("expected a match, got %v", result)
	}
	rl, _ := result["rule"].(map[string]any)
	if rl == nil || rl["id"] != created["id"] {
		t.Fatalf("expected rule %v, got %v", created["id"], result["rule"])
	}

	// No rule matches a different merchant
	resp = doJSON(t, "POST", srv.URL+"/bank-rules/classify", map[string]any{
		"org_id": "org-1",
		"transaction": map[string]any{
			"merchant_name": "Acme Coffee",
		},
	})
	decodeBody(t, resp, &result)
	if result["matched"] != false {
		t.Fatalf("expected no match, got %v", result)
	}
}

func TestBankRules_CreateInvalid(t *testing.T) {
	srv, _, _ := testServer(t)

	// Neither target account nor category
	resp := doJSON(t, "POST", srv.URL+"/bank-rules", map[string]any{
		"org_id": "org-1",
		"name":   "incomplete",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

// --- Events and queue ---

func TestEvents_EmitAndQueue(t *testing.T) {
	srv, _, mailer := testServer(t)

	resp := doJSON(t, "POST", srv.URL+"/rules", emailRuleBody("donation.received"))
	resp.Body.Close()

	resp = doJSON(t, "POST", srv.URL+"/events", map[string]any{
		"org_id":  "org-1",
		"type":    "donation.received",
		"payload": map[string]any{"amount_cents": 5000},
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("emit: expected 202, got %d", resp.StatusCode)
	}
	var item map[string]any
	decodeBody(t, resp, &item)
	itemID, _ := item["id"].(string)
	if itemID == "" || item["status"] != "pending" {
		t.Fatalf("expected pending item, got %v", item)
	}

	// Item is visible in the listing and by ID
	resp = doJSON(t, "GET", srv.URL+"/queue/items?org_id=org-1&status=pending", nil)
	var list map[string]any
	decodeBody(t, resp, &list)
	if list["count"] != float64(1) {
		t.Fatalf("expected 1 pending item, got %v", list["count"])
	}

	resp = doJSON(t, "GET", srv.URL+"/queue/items/"+itemID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get item: expected 200, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Process and verify stats
	resp = doJSON(t, "POST", srv.URL+"/queue/run-batch?limit=10", nil)
	var res map[string]any
	decodeBody(t, resp, &res)
	if res["claimed"] != float64(1) || res["succeeded"] != float64(1) {
		t.Fatalf("expected 1 claimed and succeeded, got %v", res)
	}
	if mailer.count() != 1 {
		t.Fatalf("sent %d emails", mailer.count())
	}

	resp = doJSON(t, "GET", srv.URL+"/queue/stats?org_id=org-1", nil)
	var stats map[string]any
	decodeBody(t, resp, &stats)
	if stats["done"] != float64(1) {
		t.Fatalf("expected 1 done, got %v", stats)
	}
}

func TestEvents_EmitInvalidType(t *testing.T) {
	srv, _, _ := testServer(t)

	resp := doJSON(t, "POST", srv.URL+"/events", map[string]any{
		"org_id": "org-1",
		"type":   "nodots",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestQueue_RequeueNotDead(t *testing.T) {
	srv, _, _ := testServer(t)

	resp := doJSON(t, "POST", srv.URL+"/events", map[string]any{
		"org_id": "org-1",
		"type":   "donation.received",
	})
	var item map[string]any
	decodeBody(t, resp, &item)
	itemID := item["id"].(string)

	// Pending item cannot be requeued
	resp = doJSON(t, "POST", srv.URL+"/queue/items/"+itemID+"/requeue", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = doJSON(t, "POST", srv.URL+"/queue/items/qi_01h455vb4pex5vsknk084sn02q/requeue", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

// --- Audit ---

func TestAudit_List(t *testing.T) {
	srv, _, _ := testServer(t)

	resp := doJSON(t, "POST", srv.URL+"/rules", emailRuleBody("donation.received"))
	resp.Body.Close()

	resp = doJSON(t, "GET", srv.URL+"/audit?org_id=org-1&action=rule.created", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]any
	decodeBody(t, resp, &body)
	if body["count"] != float64(1) {
		t.Fatalf("expected 1 audit entry, got %v", body["count"])
	}
}

// --- Ingestion ---

func TestIngest_Flow(t *testing.T) {
	srv, e, _ := testServer(t)

	const secret = "whsec_apitestsecret"
	e.Ingestor().Register("stripe", webhook.Provider{
		Secret: secret,
		Translate: func(env webhook.Envelope) (event.DomainEvent, bool, error) {
			return event.DomainEvent{
				OrgID:   "org-1",
				Type:    "donation.received",
				Payload: env.Data,
			}, true, nil
		},
	})

	body, _ := json.Marshal(webhook.Envelope{
		ID:   "evt_1",
		Type: "payment.completed",
		Data: map[string]any{"amount": 2500},
	})
	ts := time.Now().Unix()
	sig := signature.Sign(body, secret, ts)

	send := func(timestamp, signed string) *http.Response {
		req, err := http.NewRequestWithContext(context.Background(), "POST", srv.URL+"/ingest/stripe", bytes.NewReader(body))
		if err != nil {
			t.Fatalf("new request: %v", err)
		}
		req.Header.Set("X-Webhook-Timestamp", timestamp)
		req.Header.Set("X-Webhook-Signature", signed)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("do: %v", err)
		}
		return resp
	}

	resp := send(strconv.FormatInt(ts, 10), sig)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Redelivery is acknowledged as a duplicate
	resp = send(strconv.FormatInt(ts, 10), sig)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("redelivery: expected 200, got %d", resp.StatusCode)
	}
	var dup map[string]any
	decodeBody(t, resp, &dup)
	if dup["status"] != "duplicate" {
		t.Fatalf("expected duplicate, got %v", dup)
	}

	// Bad signature is rejected
	resp = send(strconv.FormatInt(ts, 10), "deadbeef")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad signature: expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Unknown provider
	req, _ := http.NewRequestWithContext(context.Background(), "POST", srv.URL+"/ingest/nobody", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Webhook-Signature", sig)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown provider: expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}
