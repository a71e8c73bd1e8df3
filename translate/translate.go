// Package translate implements machine translation of script texts
// through HTTP providers: the free Google translate endpoint, any
// OpenAI-compatible chat API, and local Ollama.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Poltergeist-ix/pz-translate-zx/interpolation"
)

// Provider IDs.
const (
	ProviderGoogle       = "google"
	ProviderCustomOpenAI = "custom-openai"
	ProviderOllama       = "ollama"
)

// Provider holds the configuration for a translation service.
type Provider struct {
	// ID is the provider identifier (google, custom-openai, ollama).
	ID string
	// Name is the display name.
	Name string
	// BaseURL is the API base URL.
	BaseURL string
	// APIKey is the authentication key (empty for local/free services).
	APIKey string
	// Model is the model identifier (LLM providers only).
	Model string
	// Proxy is an optional HTTP/HTTPS proxy URL.
	Proxy string
	// Timeout is the request timeout.
	Timeout time.Duration
}

// DefaultProviders returns the pre-configured provider definitions.
func DefaultProviders() map[string]Provider {
	return map[string]Provider{
		ProviderGoogle: {
			ID:      ProviderGoogle,
			Name:    "Google Translate",
			BaseURL: "https://translate.googleapis.com",
			Timeout: 30 * time.Second,
		},
		ProviderCustomOpenAI: {
			ID:      ProviderCustomOpenAI,
			Name:    "Custom OpenAI",
			Timeout: 120 * time.Second,
		},
		ProviderOllama: {
			ID:      ProviderOllama,
			Name:    "Ollama",
			BaseURL: "http://localhost:11434/v1",
			Timeout: 120 * time.Second,
		},
	}
}

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// Options controls translation behavior.
type Options struct {
	// SourceCode is the source language translate code (default "auto").
	SourceCode string
	// ChunkSize is how many texts to translate per LLM call (default 30).
	ChunkSize int
	// RequestDelay is the pause between requests.
	RequestDelay time.Duration
	// MaxRetries is the retry count on rate limit (429). Default: 3.
	MaxRetries int
	// OnLog emits log messages during translation.
	OnLog func(format string, args ...any)
}

func (o *Options) effectiveChunkSize() int {
	if o.ChunkSize > 0 {
		return o.ChunkSize
	}
	return 30
}

func (o *Options) effectiveMaxRetries() int {
	if o.MaxRetries > 0 {
		return o.MaxRetries
	}
	return 3
}

func (o *Options) effectiveSourceCode() string {
	if o.SourceCode != "" {
		return o.SourceCode
	}
	return "auto"
}

// SystemPrompt is the LLM system prompt for script text translation.
const SystemPrompt = `You are a professional translator localizing video game interface strings into {{targetLang}}.

TRANSLATION PRINCIPLES:
- Translate for naturalness and fluency in {{targetLang}}, not word-for-word.
- Keep the original tone: survival-game UI text, short and direct.
- Keep {{var_N}} placeholders exactly as-is; they stand for game markup and substitutions.
- Keep proper nouns and brand names unchanged.

TECHNICAL REQUIREMENTS:
- Return ONLY a JSON array of translated strings, one for each input entry, in the same order.
- Preserve leading/trailing whitespace and punctuation patterns.
- Return ONLY the JSON array, no explanations or markdown code blocks.`

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// Client translates batches of texts into a selectable target language.
// SetTarget switches the language between runs, mirroring how the sync
// loop walks language by language.
type Client struct {
	prov Provider
	opts Options
	http *http.Client
	rl   rateLimitState

	mu         sync.Mutex
	targetCode string
	targetName string
}

// New builds a client for the given provider.
func New(prov Provider, opts Options) *Client {
	timeout := prov.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		prov: prov,
		opts: opts,
		http: makeHTTPClient(prov.Proxy, timeout),
	}
}

// SetTarget selects the target language. code is the provider language
// code (e.g. "ru", "pt-BR"), name the human-readable language name used
// in LLM prompts (e.g. "Russian").
func (c *Client) SetTarget(code, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targetCode = code
	c.targetName = name
}

func (c *Client) target() (code, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.targetCode, c.targetName
}

func (c *Client) log(format string, args ...any) {
	if c.opts.OnLog != nil {
		c.opts.OnLog(format, args...)
	}
}

// TranslateOne translates a single text. Game markup is protected
// before the provider call and restored afterwards.
func (c *Client) TranslateOne(ctx context.Context, text string) (string, error) {
	out, err := c.TranslateBatch(ctx, []string{text})
	if err != nil {
		return "", err
	}
	return out[0], nil
}

// TranslateBatch translates texts in order and returns exactly one
// translation per input. Game markup is protected before the provider
// call and restored afterwards.
func (c *Client) TranslateBatch(ctx context.Context, texts []string) ([]string, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	code, _ := c.target()
	if code == "" {
		return nil, fmt.Errorf("no target language set")
	}

	safe := make([]string, len(texts))
	mappings := make([][]interpolation.Mapping, len(texts))
	for i, t := range texts {
		safe[i], mappings[i] = interpolation.Protect(t)
	}

	var (
		out []string
		err error
	)
	if c.prov.ID == ProviderGoogle {
		out, err = c.translateGoogle(ctx, safe)
	} else {
		out, err = c.translateChat(ctx, safe)
	}
	if err != nil {
		return nil, err
	}
	if len(out) != len(texts) {
		return nil, fmt.Errorf("provider returned %d translations for %d texts", len(out), len(texts))
	}

	for i := range out {
		out[i] = interpolation.Restore(out[i], mappings[i])
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Google translate endpoint (free gtx client, one text per request)
// ---------------------------------------------------------------------------

func (c *Client) translateGoogle(ctx context.Context, texts []string) ([]string, error) {
	code, _ := c.target()
	out := make([]string, len(texts))
	for i, text := range texts {
		if i > 0 && c.opts.RequestDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.opts.RequestDelay):
			}
		}

		endpoint := fmt.Sprintf("%s/translate_a/single?client=gtx&sl=%s&tl=%s&dt=t&q=%s",
			strings.TrimRight(c.prov.BaseURL, "/"),
			url.QueryEscape(c.opts.effectiveSourceCode()),
			url.QueryEscape(code),
			url.QueryEscape(text))

		body, err := c.doRequest(ctx, "GET", endpoint, nil, nil)
		if err != nil {
			return nil, err
		}
		translated, err := parseGoogleResponse(body)
		if err != nil {
			return nil, err
		}
		out[i] = translated
	}
	return out, nil
}

// parseGoogleResponse extracts the translation from the gtx response:
// a nested array whose first element lists translated segments.
func parseGoogleResponse(body []byte) (string, error) {
	var raw []any
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("invalid translate response: %w", err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("empty translate response")
	}
	segments, ok := raw[0].([]any)
	if !ok {
		return "", fmt.Errorf("unexpected translate response shape: %s", truncate(string(body), 200))
	}

	var sb strings.Builder
	for _, seg := range segments {
		parts, ok := seg.([]any)
		if !ok || len(parts) == 0 {
			continue
		}
		if s, ok := parts[0].(string); ok {
			sb.WriteString(s)
		}
	}
	return sb.String(), nil
}

// ---------------------------------------------------------------------------
// OpenAI-compatible chat providers (custom-openai, ollama)
// ---------------------------------------------------------------------------

func (c *Client) translateChat(ctx context.Context, texts []string) ([]string, error) {
	chunkSize := c.opts.effectiveChunkSize()
	out := make([]string, 0, len(texts))

	for start := 0; start < len(texts); start += chunkSize {
		end := start + chunkSize
		if end > len(texts) {
			end = len(texts)
		}
		chunk := texts[start:end]

		if start > 0 && c.opts.RequestDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.opts.RequestDelay):
			}
		}

		translated, err := c.translateChunk(ctx, chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, translated...)
	}
	return out, nil
}

func (c *Client) translateChunk(ctx context.Context, chunk []string) ([]string, error) {
	_, name := c.target()
	systemPrompt := strings.ReplaceAll(SystemPrompt, "{{targetLang}}", name)

	userPayload, err := json.Marshal(chunk)
	if err != nil {
		return nil, err
	}
	userPrompt := fmt.Sprintf("Translate the following %d strings:\n%s", len(chunk), userPayload)

	reqBody, err := buildChatRequest(c.prov.Model, systemPrompt, userPrompt)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	baseURL := strings.TrimRight(c.prov.BaseURL, "/")
	endpoint := baseURL
	if !strings.HasSuffix(baseURL, "/chat/completions") {
		endpoint = baseURL + "/chat/completions"
	}
	headers := map[string]string{"Content-Type": "application/json"}
	if c.prov.APIKey != "" {
		headers["Authorization"] = "Bearer " + c.prov.APIKey
	}

	respBody, err := c.doRequest(ctx, "POST", endpoint, headers, reqBody)
	if err != nil {
		return nil, err
	}
	text, err := extractResponseText(respBody)
	if err != nil {
		return nil, err
	}

	translations, err := parseTranslations(text)
	if err != nil {
		return nil, err
	}
	if len(translations) != len(chunk) {
		return nil, fmt.Errorf("got %d translations, expected %d", len(translations), len(chunk))
	}
	return translations, nil
}

func buildChatRequest(model, systemPrompt, userPrompt string) ([]byte, error) {
	type msg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	req := struct {
		Model       string  `json:"model"`
		Messages    []msg   `json:"messages"`
		Temperature float64 `json:"temperature"`
		Stream      bool    `json:"stream"`
	}{
		Model: model,
		Messages: []msg{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0.3,
		Stream:      false,
	}
	return json.Marshal(req)
}

// extractResponseText pulls the generated text out of a chat response.
func extractResponseText(body []byte) (string, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("invalid JSON response: %w", err)
	}

	if errObj, ok := raw["error"]; ok {
		if errMap, ok := errObj.(map[string]any); ok {
			if msg, ok := errMap["message"].(string); ok {
				return "", fmt.Errorf("API error: %s", msg)
			}
		}
		return "", fmt.Errorf("API error: %v", errObj)
	}

	// OpenAI chat format: choices[0].message.content
	if choices, ok := raw["choices"].([]any); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]any); ok {
			if message, ok := choice["message"].(map[string]any); ok {
				if content, ok := message["content"].(string); ok {
					return content, nil
				}
			}
		}
	}

	// Ollama native format: response
	if resp, ok := raw["response"].(string); ok {
		return resp, nil
	}

	return "", fmt.Errorf("could not extract text from response: %s", truncate(string(body), 500))
}

// parseTranslations parses the model output as a JSON array of strings,
// stripping markdown code fences models sometimes add.
func parseTranslations(content string) ([]string, error) {
	content = strings.TrimSpace(content)

	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)
	}

	startIdx := strings.Index(content, "[")
	endIdx := strings.LastIndex(content, "]")
	if startIdx >= 0 && endIdx > startIdx {
		content = content[startIdx : endIdx+1]
	}

	var translations []string
	if err := json.Unmarshal([]byte(content), &translations); err != nil {
		return nil, fmt.Errorf("parsing translation response as JSON array: %w\nResponse: %s", err, truncate(content, 300))
	}
	return translations, nil
}

// ---------------------------------------------------------------------------
// HTTP plumbing: proxy support, 429/5xx retry with backoff
// ---------------------------------------------------------------------------

func makeHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, headers map[string]string, body []byte) ([]byte, error) {
	maxRetries := c.opts.effectiveMaxRetries()

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.rl.waitIfPaused(ctx); err != nil {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt < maxRetries {
				wait := time.Duration(math.Pow(2, float64(attempt))) * time.Second
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(wait):
				}
				continue
			}
			return nil, fmt.Errorf("API request failed: %w", err)
		}

		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			retryDelay := parseRetryDelay(respBody)
			c.log("rate limited, waiting %v before retry (attempt %d/%d)", retryDelay, attempt+1, maxRetries)
			c.rl.pause(retryDelay)
			if attempt < maxRetries {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(retryDelay):
				}
				c.rl.unpause()
				continue
			}
			return nil, fmt.Errorf("rate limited after %d retries: %s", maxRetries, truncate(string(respBody), 300))
		}

		if resp.StatusCode != http.StatusOK {
			if attempt < maxRetries && resp.StatusCode >= 500 {
				wait := time.Duration(math.Pow(2, float64(attempt))) * time.Second
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				case <-time.After(wait):
				}
				continue
			}
			return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(string(respBody), 500))
		}

		return respBody, nil
	}

	return nil, fmt.Errorf("exhausted all %d retries", maxRetries)
}

// parseRetryDelay extracts the retry delay from a 429 response body.
// Looks for Google's RetryInfo detail with a retryDelay field and
// defaults to 60s plus a small buffer.
func parseRetryDelay(body []byte) time.Duration {
	const defaultDelay = 65 * time.Second

	var errResp struct {
		Error struct {
			Details []struct {
				Type       string `json:"@type"`
				RetryDelay string `json:"retryDelay"`
			} `json:"details"`
		} `json:"error"`
	}

	if err := json.Unmarshal(body, &errResp); err != nil {
		return defaultDelay
	}

	for _, detail := range errResp.Error.Details {
		if strings.Contains(detail.Type, "RetryInfo") && detail.RetryDelay != "" {
			d := strings.TrimSuffix(detail.RetryDelay, "s")
			if secs, err := strconv.ParseFloat(d, 64); err == nil {
				return time.Duration(secs*1000)*time.Millisecond + 5*time.Second
			}
		}
	}

	return defaultDelay
}

// ---------------------------------------------------------------------------
// Rate limit state (shared pause across a run)
// ---------------------------------------------------------------------------

type rateLimitState struct {
	mu       sync.Mutex
	paused   int32 // atomic: 1 = paused
	pauseEnd time.Time
}

func (r *rateLimitState) isPaused() bool {
	return atomic.LoadInt32(&r.paused) == 1
}

func (r *rateLimitState) pause(duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pauseEnd = time.Now().Add(duration)
	atomic.StoreInt32(&r.paused, 1)
}

func (r *rateLimitState) unpause() {
	atomic.StoreInt32(&r.paused, 0)
}

// waitIfPaused blocks until the rate limit pause is over.
func (r *rateLimitState) waitIfPaused(ctx context.Context) error {
	for r.isPaused() {
		r.mu.Lock()
		remaining := time.Until(r.pauseEnd)
		r.mu.Unlock()
		if remaining <= 0 {
			r.unpause()
			return nil
		}
		wait := remaining
		if wait > 100*time.Millisecond {
			wait = 100 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
