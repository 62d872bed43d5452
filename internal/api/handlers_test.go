package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/kalkia/sarah-agent/internal/campaign"
	"github.com/kalkia/sarah-agent/internal/crm"
	"github.com/kalkia/sarah-agent/internal/flow"
	"github.com/kalkia/sarah-agent/internal/models"
	"github.com/kalkia/sarah-agent/internal/store"
	"github.com/kalkia/sarah-agent/internal/suppress"
	"github.com/kalkia/sarah-agent/internal/twiliosms"
)

// fakeCRM serves a canned context for every phone number.
type fakeCRM struct {
	logged []models.MessageLogEntry
}

func (f *fakeCRM) CreateCustomer(ctx context.Context, cust models.Customer) (models.Customer, error) {
	return cust, nil
}

func (f *fakeCRM) ListCustomers(ctx context.Context, limit, offset int) ([]models.Customer, error) {
	return nil, nil
}

func (f *fakeCRM) GetContext(ctx context.Context, identifier string, by crm.LookupBy) (models.Context, error) {
	return models.Context{ContextID: "ctx-1", CustomerID: 42, Customer: models.Customer{CustomerID: 42}}, nil
}

func (f *fakeCRM) LogMessage(ctx context.Context, entry models.MessageLogEntry) (crm.LogResult, error) {
	f.logged = append(f.logged, entry)
	return crm.LogResult{LogID: "log-1", ContextID: "ctx-1"}, nil
}

func (f *fakeCRM) UpdateConversation(ctx context.Context, contextID string, patch models.ConversationPatch) error {
	return nil
}

// stubGenerator returns a fixed reply and summary.
type stubGenerator struct {
	reply string
}

func (s *stubGenerator) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return s.reply, nil
}

func (s *stubGenerator) GenerateUserPrompt(ctx context.Context, userPrompt string) (string, error) {
	return `{"summary":"s","intent":"","sentiment":"neutral"}`, nil
}

func newTestServer(reply string) (*Server, *flow.Engine, *store.InMemoryStore) {
	crmStore := &fakeCRM{}
	flags := suppress.NewMemoryFlags()
	jobs := store.NewInMemoryStore()
	engine := flow.NewEngine(crmStore, flags, flow.NewReplyGenerator(&stubGenerator{reply: reply}, "Sarah"))
	campaigns := campaign.NewScheduler(jobs, flags, twiliosms.NewMockClient(), crmStore, "Sarah")
	return NewServer(engine, campaigns, WithAddr(":0")), engine, jobs
}

func postForm(t *testing.T, handler http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestInboundHandlerRepliesWithTwiML(t *testing.T) {
	srv, _, _ := newTestServer("Thanks for reaching out!")

	rec := postForm(t, srv.Routes(), "/sms/inbound", url.Values{
		"From": {"+15145550100"},
		"Body": {"tell me more"},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/xml" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "<Message>Thanks for reaching out!</Message>") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestInboundHandlerMissingFields(t *testing.T) {
	srv, _, _ := newTestServer("ok")

	rec := postForm(t, srv.Routes(), "/sms/inbound", url.Values{"Body": {"hello"}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing From: status = %d, want 400", rec.Code)
	}

	rec = postForm(t, srv.Routes(), "/sms/inbound", url.Values{"From": {"+15145550100"}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing Body: status = %d, want 400", rec.Code)
	}
}

func TestInboundHandlerMethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer("ok")
	req := httptest.NewRequest(http.MethodGet, "/sms/inbound", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestInboundHandlerOptOutRendersEmptyResponse(t *testing.T) {
	srv, _, _ := newTestServer("should not be used")

	rec := postForm(t, srv.Routes(), "/sms/inbound", url.Values{
		"From": {"+15145550100"},
		"Body": {"STOP"},
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 even for opt-outs", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "<Message>") {
		t.Errorf("opt-out should render no message, got %q", rec.Body.String())
	}
}

func TestStatusHandler(t *testing.T) {
	srv, _, _ := newTestServer("ok")
	rec := postForm(t, srv.Routes(), "/sms/status", url.Values{
		"MessageSid":    {"SM123"},
		"MessageStatus": {"delivered"},
	})
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	srv, _, _ := newTestServer("ok")
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("health payload not JSON: %v", err)
	}
	if payload["status"] != "ok" || payload["service"] != "follow-up-agent" {
		t.Errorf("payload = %v", payload)
	}
}

func TestCampaignStartHandler(t *testing.T) {
	srv, _, jobs := newTestServer("ok")

	body := strings.NewReader(`{"phone":"+15145550100"}`)
	req := httptest.NewRequest(http.MethodPost, "/campaign/start", body)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var resp models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if resp.Status != string(models.APIStatusOK) {
		t.Errorf("response status = %q", resp.Status)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok || result["job_id"] == "" {
		t.Errorf("result = %v, want a job_id", resp.Result)
	}
	jobID, _ := result["job_id"].(string)
	job, err := jobs.GetJob(jobID)
	if err != nil || job == nil {
		t.Fatalf("scheduled job %q not found in the queue", jobID)
	}
	if job.Kind != campaign.JobKindStep {
		t.Errorf("job kind = %q", job.Kind)
	}
}

func TestCampaignStartHandlerValidation(t *testing.T) {
	srv, _, _ := newTestServer("ok")
	routes := srv.Routes()

	for name, body := range map[string]string{
		"bad json":      `{`,
		"missing phone": `{}`,
		"unknown step":  `{"phone":"+1","step":"follow_up_9"}`,
		"bad delay":     `{"phone":"+1","delay":"soon"}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/campaign/start", strings.NewReader(body))
		rec := httptest.NewRecorder()
		routes.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, rec.Code)
		}
	}
}

func TestCampaignStartHandlerDelayOverride(t *testing.T) {
	srv, _, jobs := newTestServer("ok")

	body := strings.NewReader(`{"phone":"+15145550100","delay":"1m"}`)
	req := httptest.NewRequest(http.MethodPost, "/campaign/start", body)
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.APIResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	result := resp.Result.(map[string]interface{})
	job, _ := jobs.GetJob(result["job_id"].(string))
	if job == nil {
		t.Fatal("job not found")
	}
	// A 1m override fires well before the canonical 30m delay.
	if until := time.Until(job.RunAt); until > 2*time.Minute {
		t.Errorf("job fires in %v, want about a minute", until)
	}
}
