package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/voxprep/voxprep-core/core/scrape"
	"github.com/voxprep/voxprep-core/internal/utils"
)

func TestCreateSessionReturnsAssignedID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/sessions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]string{
			"session_id": "sess_42",
			"status":     "created",
		})
	}))
	defer server.Close()

	sessionID, err := NewClient(server.URL).CreateSession(context.Background())
	if err != nil {
		t.Fatalf("expected session creation to succeed, got error: %v", err)
	}
	if sessionID != "sess_42" {
		t.Fatalf("expected session id sess_42, got %q", sessionID)
	}
}

func TestCreateSessionSurfacesBackendDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"detail": "session limit reached"})
	}))
	defer server.Close()

	_, err := NewClient(server.URL).CreateSession(context.Background())
	if err == nil {
		t.Fatalf("expected rejected creation to fail")
	}
	if !strings.Contains(err.Error(), "session limit reached") {
		t.Fatalf("expected backend detail in error, got %q", err.Error())
	}
}

func TestStartSessionSendsConfigAndContext(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sessions/sess_42/start" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := NewClient(server.URL).StartSession(context.Background(), "sess_42", StartConfig{
		Model:  "gpt-4o-mini",
		APIKey: utils.Ptr("secret"),
		Context: &scrape.ProblemContext{
			Title: "Two Sum",
			Code:  "def two_sum(): pass",
		},
	})
	if err != nil {
		t.Fatalf("expected session start to succeed, got error: %v", err)
	}

	if received["model"] != "gpt-4o-mini" {
		t.Fatalf("expected model in request, got %v", received["model"])
	}
	if received["api_key"] != "secret" {
		t.Fatalf("expected api key in request, got %v", received["api_key"])
	}
	if _, present := received["endpoint"]; present {
		t.Fatalf("expected unset endpoint to be omitted, got %v", received["endpoint"])
	}
	contextBody, ok := received["context"].(map[string]any)
	if !ok {
		t.Fatalf("expected context object in request, got %v", received["context"])
	}
	if contextBody["title"] != "Two Sum" || contextBody["code"] != "def two_sum(): pass" {
		t.Fatalf("expected scraped context fields, got %v", contextBody)
	}
}

func TestStartSessionOmitsMissingContext(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
	}))
	defer server.Close()

	err := NewClient(server.URL).StartSession(context.Background(), "sess_42", StartConfig{Model: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("expected session start to succeed, got error: %v", err)
	}
	if _, present := received["context"]; present {
		t.Fatalf("expected missing context to be omitted, got %v", received["context"])
	}
}

func TestStopSessionHitsStopEndpoint(t *testing.T) {
	stopped := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/sessions/sess_42/stop" {
			stopped = true
		}
	}))
	defer server.Close()

	if err := NewClient(server.URL).StopSession(context.Background(), "sess_42"); err != nil {
		t.Fatalf("expected session stop to succeed, got error: %v", err)
	}
	if !stopped {
		t.Fatalf("expected stop endpoint to be called")
	}
}

func TestTriggerEvaluationTruncatesFinalCodeAndShipsRubric(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sessions/sess_42/trigger-evaluation" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&received)
	}))
	defer server.Close()

	longCode := strings.Repeat("x", 1500)
	err := NewClient(server.URL).TriggerEvaluation(context.Background(), "sess_42", EvaluationRequest{
		FinalCode:       longCode,
		SessionDuration: 12*time.Minute + 30*time.Second,
	})
	if err != nil {
		t.Fatalf("expected evaluation trigger to succeed, got error: %v", err)
	}

	finalCode, _ := received["final_code"].(string)
	if len(finalCode) != 1003 || !strings.HasSuffix(finalCode, "...") {
		t.Fatalf("expected final code truncated to 1000 chars plus ellipsis, got length %d", len(finalCode))
	}
	if received["session_duration"] != "12m30s" {
		t.Fatalf("expected formatted duration, got %v", received["session_duration"])
	}
	rubric, ok := received["rubric"].(map[string]any)
	if !ok {
		t.Fatalf("expected rubric schema in request, got %v", received["rubric"])
	}
	properties, ok := rubric["properties"].(map[string]any)
	if !ok {
		t.Fatalf("expected rubric schema properties, got %v", rubric)
	}
	for _, area := range []string{"approach", "code_quality", "communication", "technical_understanding", "overall"} {
		if _, present := properties[area]; !present {
			t.Fatalf("expected rubric area %q in schema, got %v", area, properties)
		}
	}
}

func TestGetSessionDecodesRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sessions/sess_42" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(SessionInfo{ID: "sess_42", Status: "active", Model: "gpt-4o-mini"})
	}))
	defer server.Close()

	info, err := NewClient(server.URL).GetSession(context.Background(), "sess_42")
	if err != nil {
		t.Fatalf("expected session fetch to succeed, got error: %v", err)
	}
	if info.ID != "sess_42" || info.Status != "active" {
		t.Fatalf("expected decoded session record, got %+v", info)
	}
}

func TestListSessionsDecodesCollection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"sessions": []SessionInfo{{ID: "a"}, {ID: "b"}},
		})
	}))
	defer server.Close()

	sessions, err := NewClient(server.URL).ListSessions(context.Background())
	if err != nil {
		t.Fatalf("expected session list to succeed, got error: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != "a" || sessions[1].ID != "b" {
		t.Fatalf("expected two decoded sessions, got %+v", sessions)
	}
}

func TestHealthReportsFailureStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	if err := NewClient(server.URL).Health(context.Background()); err == nil {
		t.Fatalf("expected failing health check to return an error")
	}
}
