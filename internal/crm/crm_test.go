package crm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kalkia/sarah-agent/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(WithBaseURL(srv.URL), WithAPIKey("test-key"), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	return client
}

func TestNewClientRequiresConfig(t *testing.T) {
	if _, err := NewClient(WithAPIKey("k")); err == nil {
		t.Error("expected error without base URL")
	}
	if _, err := NewClient(WithBaseURL("http://example.com")); err == nil {
		t.Error("expected error without API key")
	}
}

func TestClientSendsAPIKeyHeader(t *testing.T) {
	var gotKey, gotContentType string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotContentType = r.Header.Get("Content-Type")
		json.NewEncoder(w).Encode(models.Context{ContextID: "ctx-1"})
	})

	if _, err := client.GetContext(context.Background(), "+15145550100", LookupByPhoneNormalized); err != nil {
		t.Fatalf("GetContext() error: %v", err)
	}
	if gotKey != "test-key" {
		t.Errorf("x-api-key = %q", gotKey)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
}

func TestGetContextNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.GetContext(context.Background(), "+15145550100", LookupByPhoneNormalized)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetContext() error = %v, want ErrNotFound", err)
	}
}

func TestGetContextLookupBy(t *testing.T) {
	var gotPath, gotBy string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBy = r.URL.Query().Get("by")
		json.NewEncoder(w).Encode(models.Context{ContextID: "ctx-1"})
	})

	if _, err := client.GetContext(context.Background(), "42", LookupByID); err != nil {
		t.Fatalf("GetContext() error: %v", err)
	}
	if gotPath != "/context/42" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBy != "id" {
		t.Errorf("by = %q", gotBy)
	}
}

func TestCreateCustomerValidation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an invalid customer")
	})
	if _, err := client.CreateCustomer(context.Background(), models.Customer{Name: "no contact info"}); err == nil {
		t.Error("expected error when both email and phone are missing")
	}
}

func TestLogMessage(t *testing.T) {
	var got models.MessageLogEntry
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/log" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(LogResult{LogID: "log-1", ContextID: "ctx-9"})
	})

	res, err := client.LogMessage(context.Background(), models.MessageLogEntry{
		CustomerID:  42,
		Channel:     models.ChannelSMS,
		Direction:   models.DirectionInbound,
		MessageBody: "hello",
	})
	if err != nil {
		t.Fatalf("LogMessage() error: %v", err)
	}
	if res.ContextID != "ctx-9" {
		t.Errorf("ContextID = %q", res.ContextID)
	}
	if got.MessageBody != "hello" || got.CustomerID != 42 {
		t.Errorf("server received %+v", got)
	}
}

func TestUpdateConversationSkipsEmptyPatch(t *testing.T) {
	requests := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
	})

	if err := client.UpdateConversation(context.Background(), "ctx-1", models.ConversationPatch{}); err != nil {
		t.Fatalf("UpdateConversation() error: %v", err)
	}
	if requests != 0 {
		t.Errorf("empty patch made %d requests, want 0", requests)
	}
	if err := client.UpdateConversation(context.Background(), "", models.ConversationPatch{Summary: models.StrPtr("s")}); err == nil {
		t.Error("expected error for missing context ID")
	}
}

func TestResolveContextCreatesThenRetriesOnce(t *testing.T) {
	var contextCalls, createCalls int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/customers":
			createCalls++
			json.NewEncoder(w).Encode(models.Customer{CustomerID: 7, Phone: "+15145550100"})
		case r.Method == http.MethodGet && r.URL.Path == "/context/+15145550100":
			contextCalls++
			if contextCalls == 1 {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(models.Context{ContextID: "ctx-new", CustomerID: 7})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	cc, err := ResolveContext(context.Background(), client, "+15145550100")
	if err != nil {
		t.Fatalf("ResolveContext() error: %v", err)
	}
	if cc.ContextID != "ctx-new" {
		t.Errorf("ContextID = %q", cc.ContextID)
	}
	if createCalls != 1 || contextCalls != 2 {
		t.Errorf("createCalls = %d, contextCalls = %d; want exactly one create and one retry", createCalls, contextCalls)
	}
}

func TestResolveContextSecondMissFails(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/customers" {
			json.NewEncoder(w).Encode(models.Customer{CustomerID: 7})
			return
		}
		w.WriteHeader(http.StatusNotFound)
	})

	if _, err := ResolveContext(context.Background(), client, "+15145550100"); err == nil {
		t.Error("expected error when the retry lookup also misses")
	}
}
