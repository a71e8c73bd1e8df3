package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func googleClient(baseURL string) *Client {
	c := New(Provider{ID: ProviderGoogle, BaseURL: baseURL, Timeout: 5 * time.Second}, Options{SourceCode: "en"})
	c.SetTarget("ru", "Russian")
	return c
}

func TestTranslateBatch_Google(t *testing.T) {
	var gotSL, gotTL, gotQ string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSL = r.URL.Query().Get("sl")
		gotTL = r.URL.Query().Get("tl")
		gotQ = r.URL.Query().Get("q")
		fmt.Fprint(w, `[[["Привет","Hello",null]],null,"en"]`)
	}))
	defer srv.Close()

	c := googleClient(srv.URL)
	out, err := c.TranslateBatch(context.Background(), []string{"Hello"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0] != "Привет" {
		t.Errorf("out = %v", out)
	}
	if gotSL != "en" || gotTL != "ru" || gotQ != "Hello" {
		t.Errorf("query = sl=%q tl=%q q=%q", gotSL, gotTL, gotQ)
	}
}

func TestTranslateBatch_GoogleProtectsMarkup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		if q != "Press {{var_1}}OK" {
			t.Errorf("markup should be protected, got q=%q", q)
		}
		fmt.Fprint(w, `[[["Нажмите {{var_1}}ОК","",null]]]`)
	}))
	defer srv.Close()

	c := googleClient(srv.URL)
	out, err := c.TranslateOne(context.Background(), "Press <LINE>OK")
	if err != nil {
		t.Fatal(err)
	}
	if out != "Нажмите <LINE>ОК" {
		t.Errorf("out = %q, want markup restored", out)
	}
}

func TestTranslateBatch_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer key123" {
			t.Errorf("auth = %q", auth)
		}

		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Model != "test-model" {
			t.Errorf("model = %q", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("messages = %+v", req.Messages)
		}

		resp := map[string]any{
			"choices": []any{
				map[string]any{"message": map[string]any{"content": "```json\n[\"один\", \"два\"]\n```"}},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(Provider{
		ID:      ProviderCustomOpenAI,
		BaseURL: srv.URL,
		APIKey:  "key123",
		Model:   "test-model",
		Timeout: 5 * time.Second,
	}, Options{})
	c.SetTarget("ru", "Russian")

	out, err := c.TranslateBatch(context.Background(), []string{"one", "two"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[0] != "один" || out[1] != "два" {
		t.Errorf("out = %v", out)
	}
}

func TestTranslateBatch_ChatCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"[\"only one\"]"}}]}`)
	}))
	defer srv.Close()

	c := New(Provider{ID: ProviderCustomOpenAI, BaseURL: srv.URL, Timeout: 5 * time.Second}, Options{})
	c.SetTarget("de", "German")
	if _, err := c.TranslateBatch(context.Background(), []string{"a", "b"}); err == nil {
		t.Error("expected error for wrong translation count")
	}
}

func TestTranslateBatch_NoTarget(t *testing.T) {
	c := New(DefaultProviders()[ProviderGoogle], Options{})
	if _, err := c.TranslateBatch(context.Background(), []string{"x"}); err == nil {
		t.Error("expected error without a target language")
	}
}

func TestTranslateBatch_Empty(t *testing.T) {
	c := New(DefaultProviders()[ProviderGoogle], Options{})
	out, err := c.TranslateBatch(context.Background(), nil)
	if err != nil || out != nil {
		t.Errorf("got %v, %v", out, err)
	}
}

func TestDoRequest_RetriesOnServerError(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `[[["ок","ok",null]]]`)
	}))
	defer srv.Close()

	c := googleClient(srv.URL)
	out, err := c.TranslateBatch(context.Background(), []string{"ok"})
	if err != nil {
		t.Fatal(err)
	}
	if out[0] != "ок" {
		t.Errorf("out = %v", out)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want retry after server error", calls)
	}
}

func TestParseGoogleResponse_MultiSegment(t *testing.T) {
	got, err := parseGoogleResponse([]byte(`[[["Первая ","First ",null],["вторая","second",null]],null,"en"]`))
	if err != nil {
		t.Fatal(err)
	}
	if got != "Первая вторая" {
		t.Errorf("got %q", got)
	}
}

func TestParseTranslations(t *testing.T) {
	got, err := parseTranslations("Here you go:\n```json\n[\"a\",\"b\"]\n```")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("got %v", got)
	}

	if _, err := parseTranslations("not json at all"); err == nil {
		t.Error("expected parse error")
	}
}

func TestExtractResponseText_APIError(t *testing.T) {
	_, err := extractResponseText([]byte(`{"error":{"message":"quota exceeded"}}`))
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); got != "API error: quota exceeded" {
		t.Errorf("err = %q", got)
	}
}

func TestExtractResponseText_Ollama(t *testing.T) {
	got, err := extractResponseText([]byte(`{"response":"[\"x\"]"}`))
	if err != nil {
		t.Fatal(err)
	}
	if got != `["x"]` {
		t.Errorf("got %q", got)
	}
}

func TestParseRetryDelay(t *testing.T) {
	d := parseRetryDelay([]byte(`{"error":{"details":[{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"30s"}]}}`))
	if d != 35*time.Second {
		t.Errorf("delay = %v, want 35s", d)
	}
	if d := parseRetryDelay([]byte(`garbage`)); d != 65*time.Second {
		t.Errorf("default delay = %v, want 65s", d)
	}
}
