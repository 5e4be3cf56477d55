package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// LifestyleAnswers are the free-form questionnaire responses embedded into
// the prompts.
type LifestyleAnswers map[string]string

// CarbonBreakdown mirrors the JSON shape the carbon prompt demands.
type CarbonBreakdown struct {
	Transportation float64 `json:"transportation"`
	Energy         float64 `json:"energy"`
	Consumption    float64 `json:"consumption"`
	Waste          float64 `json:"waste"`
}

type CarbonResult struct {
	MonthlyFootprint float64         `json:"monthlyFootprint"`
	Breakdown        CarbonBreakdown `json:"breakdown"`
}

// Service implements the two analysis operations over any Completer.
type Service struct {
	completer Completer
}

func NewService(completer Completer) *Service {
	return &Service{completer: completer}
}

// AnalyzeLifestyle returns free text for direct display.
func (s *Service) AnalyzeLifestyle(ctx context.Context, answers LifestyleAnswers) (string, error) {
	prompt := fmt.Sprintf(
		"Analyze the following lifestyle data and provide eco-friendly recommendations:\n%s",
		formatAnswers(answers),
	)
	text, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", &FormatError{Err: fmt.Errorf("empty analysis text")}
	}
	return text, nil
}

// CalculateCarbonFootprint asks for a JSON-shaped answer and parses it. A
// response that does not parse to the required shape is a FormatError, never
// a RequestError: the request itself succeeded.
func (s *Service) CalculateCarbonFootprint(ctx context.Context, answers LifestyleAnswers) (CarbonResult, error) {
	prompt := fmt.Sprintf(
		`Based on the following lifestyle data, calculate monthly carbon footprint in kg CO2:
%s

Provide the response in the following JSON format with double-quoted property names:
{
  "monthlyFootprint": number,
  "breakdown": {
    "transportation": number,
    "energy": number,
    "consumption": number,
    "waste": number
  }
}`,
		formatAnswers(answers),
	)

	text, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		return CarbonResult{}, err
	}

	var result CarbonResult
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &result); err != nil {
		return CarbonResult{}, &FormatError{Err: err}
	}
	return result, nil
}

func formatAnswers(answers LifestyleAnswers) string {
	keys := make([]string, 0, len(answers))
	for key := range answers {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		fmt.Fprintf(&b, "- %s: %s\n", key, answers[key])
	}
	return b.String()
}

// stripCodeFence unwraps ```json fences the model often adds around
// structured answers despite the prompt.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
