package summarize

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

func TestOpenAI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"choices": [{"message": {"content": "three tests remain flaky", "role": "assistant"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer server.Close()

	s, err := NewOpenAI("test-key", server.URL, "gpt-4o-mini")
	if err != nil {
		t.Fatalf("NewOpenAI failed: %v", err)
	}
	if s.Name() != "openai" {
		t.Errorf("Expected 'openai', got '%s'", s.Name())
	}

	text, err := s.Summarize(context.Background(), "report data")
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if text != "three tests remain flaky" {
		t.Errorf("Unexpected summary: %q", text)
	}
}

func TestOpenAI_Init(t *testing.T) {
	if _, err := NewOpenAI("", "", ""); err == nil {
		t.Error("Expected error for empty key")
	}
}

func TestOpenAI_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
	}))
	defer server.Close()

	s, _ := NewOpenAI("key", server.URL, "")
	if _, err := s.Summarize(context.Background(), "report data"); err == nil {
		t.Error("Expected error")
	}
}

func TestOllama(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message": {"content": "flakiness is trending down"}, "done": true, "eval_count": 10, "prompt_eval_count": 5}`))
	}))
	defer server.Close()

	os.Setenv("OLLAMA_HOST", server.URL)
	defer os.Unsetenv("OLLAMA_HOST")

	s, err := NewOllama("llama3")
	if err != nil {
		t.Fatalf("NewOllama failed: %v", err)
	}
	text, err := s.Summarize(context.Background(), "report data")
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if text != "flakiness is trending down" {
		t.Errorf("Unexpected summary: %q", text)
	}
}

func TestStub(t *testing.T) {
	s := NewStub()
	if s.Name() != "stub" {
		t.Errorf("Expected 'stub', got '%s'", s.Name())
	}
	text, err := s.Summarize(context.Background(), "templated fallback")
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if text != "templated fallback" {
		t.Errorf("Stub must echo the prompt, got %q", text)
	}
}

func TestNew(t *testing.T) {
	s, err := New("stub", "", "")
	if err != nil || s.Name() != "stub" {
		t.Errorf("Expected stub backend, got %v / %v", s, err)
	}
	if _, err := New("parrot", "", ""); err == nil {
		t.Error("Expected error for unknown backend")
	}
	if _, err := New("openai", "", ""); err == nil {
		t.Error("Expected error for missing key")
	}
}
