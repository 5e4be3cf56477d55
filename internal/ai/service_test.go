package ai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type fakeCompleter struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func TestAnalyzeLifestyleReturnsText(t *testing.T) {
	fc := &fakeCompleter{response: "Bike to work and eat less meat."}
	svc := NewService(fc)

	text, err := svc.AnalyzeLifestyle(context.Background(), LifestyleAnswers{"transport": "car, 40km daily"})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if text != "Bike to work and eat less meat." {
		t.Fatalf("unexpected analysis text %q", text)
	}
	if len(fc.prompts) != 1 || !strings.Contains(fc.prompts[0], "car, 40km daily") {
		t.Fatalf("expected prompt to embed answers, got %q", fc.prompts)
	}
}

func TestCalculateCarbonFootprintParsesJSON(t *testing.T) {
	fc := &fakeCompleter{response: `{"monthlyFootprint": 420.5, "breakdown": {"transportation": 200, "energy": 120, "consumption": 80, "waste": 20.5}}`}
	svc := NewService(fc)

	result, err := svc.CalculateCarbonFootprint(context.Background(), LifestyleAnswers{"energy": "gas heating"})
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if result.MonthlyFootprint != 420.5 {
		t.Fatalf("expected 420.5, got %v", result.MonthlyFootprint)
	}
	if result.Breakdown.Transportation != 200 {
		t.Fatalf("expected transportation 200, got %v", result.Breakdown.Transportation)
	}
}

func TestCalculateCarbonFootprintStripsCodeFence(t *testing.T) {
	fc := &fakeCompleter{response: "```json\n{\"monthlyFootprint\": 100, \"breakdown\": {\"transportation\": 40, \"energy\": 30, \"consumption\": 20, \"waste\": 10}}\n```"}
	svc := NewService(fc)

	result, err := svc.CalculateCarbonFootprint(context.Background(), nil)
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if result.MonthlyFootprint != 100 {
		t.Fatalf("expected 100, got %v", result.MonthlyFootprint)
	}
}

func TestCalculateCarbonFootprintNonJSONIsFormatError(t *testing.T) {
	fc := &fakeCompleter{response: "I estimate your footprint is around 400 kg CO2 per month."}
	svc := NewService(fc)

	_, err := svc.CalculateCarbonFootprint(context.Background(), nil)
	var formatErr *FormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("expected FormatError, got %v", err)
	}
	var requestErr *RequestError
	if errors.As(err, &requestErr) {
		t.Fatal("format failure must not be classified as a request failure")
	}
}

func TestCalculateCarbonFootprintPropagatesRequestError(t *testing.T) {
	fc := &fakeCompleter{err: &RequestError{Status: http.StatusBadGateway}}
	svc := NewService(fc)

	_, err := svc.CalculateCarbonFootprint(context.Background(), nil)
	var requestErr *RequestError
	if !errors.As(err, &requestErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
}

func TestClientCompleteParsesCandidate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if !strings.Contains(r.URL.Path, "gemini-pro") {
			t.Errorf("expected model in path, got %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"hello"}]}}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", "gemini-pro", 5*time.Second)
	text, err := client.Complete(context.Background(), "say hello")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if text != "hello" {
		t.Fatalf("expected hello, got %q", text)
	}
}

func TestClientCompleteStatusErrorIsRequestError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", "gemini-pro", 5*time.Second)
	_, err := client.Complete(context.Background(), "prompt")
	var requestErr *RequestError
	if !errors.As(err, &requestErr) {
		t.Fatalf("expected RequestError, got %v", err)
	}
	if requestErr.Status != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", requestErr.Status)
	}
}

func TestClientCompleteEmptyCandidatesIsFormatError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key", "gemini-pro", 5*time.Second)
	_, err := client.Complete(context.Background(), "prompt")
	var formatErr *FormatError
	if !errors.As(err, &formatErr) {
		t.Fatalf("expected FormatError, got %v", err)
	}
}
