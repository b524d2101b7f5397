//go:build integration
// +build integration

// Package integration provides end-to-end tests for the tariff engine.
//
// These tests exercise the complete turn pipeline against a running
// server:
//
//	query → selection → disambiguation session → reply → answer
//
// Run with: go test -tags=integration -v ./tests/integration/...
//
// The server must be reachable at TARIFF_TEST_URL (default
// http://localhost:8080). The tests seed their own rules via POST /rules
// and POST /rules/reload, so an empty database is fine.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"
)

func baseURL() string {
	if url := os.Getenv("TARIFF_TEST_URL"); url != "" {
		return url
	}
	return "http://localhost:8080"
}

type ruleAttr struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type seedRule struct {
	ID         string     `json:"id"`
	ChargeID   string     `json:"chargeId"`
	Attributes []ruleAttr `json:"attributes"`
	Value      string     `json:"value"`
	Unit       string     `json:"unit"`
	Basis      string     `json:"basis"`
	Condition  string     `json:"conditionType"`
	Status     string     `json:"status"`
}

type resolveRequest struct {
	Text  string          `json:"text"`
	Query json.RawMessage `json:"query,omitempty"`
}

type resolveResponse struct {
	Outcome string `json:"outcome"`
	Prompt  string `json:"prompt,omitempty"`
	Text    string `json:"text,omitempty"`
	Answer  *struct {
		RuleID   string `json:"ruleId"`
		Currency string `json:"currency"`
		Text     string `json:"text"`
	} `json:"answer,omitempty"`
	ConversationKey string `json:"conversationKey"`
}

func post(t *testing.T, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, baseURL()+path, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	return resp, buf.Bytes()
}

func seedCardRules(t *testing.T) {
	t.Helper()

	rules := []seedRule{
		{
			ID:       "it-classic",
			ChargeID: "it.card.annual",
			Attributes: []ruleAttr{
				{Name: "product_line", Value: "CARD"},
				{Name: "card_type", Value: "VISA Classic"},
			},
			Value: "500", Unit: "BDT", Basis: "PER_YEAR",
			Condition: "NONE", Status: "ACTIVE",
		},
		{
			ID:       "it-gold",
			ChargeID: "it.card.annual",
			Attributes: []ruleAttr{
				{Name: "product_line", Value: "CARD"},
				{Name: "card_type", Value: "VISA Gold"},
			},
			Value: "1500", Unit: "BDT", Basis: "PER_YEAR",
			Condition: "NONE", Status: "ACTIVE",
		},
	}

	for _, rule := range rules {
		resp, body := post(t, "/rules", rule, nil)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("failed to seed rule %s: %d %s", rule.ID, resp.StatusCode, body)
		}
	}

	resp, body := post(t, "/rules/reload", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("failed to reload rules: %d %s", resp.StatusCode, body)
	}
}

func TestResolveRoundTrip(t *testing.T) {
	seedCardRules(t)

	conv := fmt.Sprintf("it-conv-%d", time.Now().UnixNano())
	headers := map[string]string{"X-Conversation-ID": conv}

	// Turn 1: under-specified query.
	resp, body := post(t, "/resolve", resolveRequest{
		Text:  "card annual fee?",
		Query: json.RawMessage(`{"chargeId":"it.card.annual","productLine":"CARD"}`),
	}, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve failed: %d %s", resp.StatusCode, body)
	}

	var first resolveResponse
	if err := json.Unmarshal(body, &first); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if first.Outcome != "CANDIDATES" {
		t.Fatalf("expected CANDIDATES, got %s (%s)", first.Outcome, body)
	}
	if first.Prompt == "" {
		t.Fatal("expected a disambiguation prompt")
	}

	// Turn 2: gibberish re-prompts verbatim.
	resp, body = post(t, "/resolve", resolveRequest{Text: "xyzzy"}, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve failed: %d %s", resp.StatusCode, body)
	}

	var reprompt resolveResponse
	if err := json.Unmarshal(body, &reprompt); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if reprompt.Prompt != first.Prompt {
		t.Errorf("re-prompt differs:\n%q\n%q", first.Prompt, reprompt.Prompt)
	}

	// Turn 3: reply resolves.
	resp, body = post(t, "/resolve", resolveRequest{Text: "gold"}, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve failed: %d %s", resp.StatusCode, body)
	}

	var final resolveResponse
	if err := json.Unmarshal(body, &final); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if final.Outcome != "SINGLE" {
		t.Fatalf("expected SINGLE, got %s (%s)", final.Outcome, body)
	}
	if final.Answer == nil || final.Answer.RuleID != "it-gold" {
		t.Errorf("unexpected answer: %s", body)
	}
}

func TestResolveCurrencyMismatch(t *testing.T) {
	seedCardRules(t)

	conv := fmt.Sprintf("it-conv-%d", time.Now().UnixNano())
	headers := map[string]string{"X-Conversation-ID": conv}

	resp, body := post(t, "/resolve", resolveRequest{
		Text:  "gold card fee in dollars",
		Query: json.RawMessage(`{"chargeId":"it.card.annual","productLine":"CARD","attrs":{"card_type":"VISA Gold"},"currency":"USD"}`),
	}, headers)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve failed: %d %s", resp.StatusCode, body)
	}

	var result resolveResponse
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if result.Outcome != "CURRENCY_MISMATCH" {
		t.Fatalf("expected CURRENCY_MISMATCH, got %s (%s)", result.Outcome, body)
	}
}

func TestSelectStateless(t *testing.T) {
	seedCardRules(t)

	resp, body := post(t, "/select", map[string]any{
		"chargeId": "it.card.annual",
		"attrs":    map[string]string{"product_line": "CARD", "card_type": "VISA Classic"},
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("select failed: %d %s", resp.StatusCode, body)
	}

	var result struct {
		Outcome string `json:"outcome"`
		Rule    *struct {
			ID string `json:"id"`
		} `json:"rule"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if result.Outcome != "SINGLE" || result.Rule == nil || result.Rule.ID != "it-classic" {
		t.Errorf("unexpected result: %s", body)
	}
}
