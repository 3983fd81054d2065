// Package advisor asks an OpenAI-compatible chat endpoint for a short
// review of extracted line items. Its output is advisory only: records are
// never changed by it, and callers treat its errors as warnings.
package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/insightdelivered/invoice-item-converter/internal/cache"
	"github.com/insightdelivered/invoice-item-converter/internal/logger"
	"github.com/insightdelivered/invoice-item-converter/internal/models"
	"github.com/insightdelivered/invoice-item-converter/internal/pricing"
)

var (
	// ErrAdvisorUnavailable wraps transport and API failures.
	ErrAdvisorUnavailable = errors.New("advisor unavailable")
	// ErrMalformedResponse is returned when the reply is not the expected JSON.
	ErrMalformedResponse = errors.New("malformed advisor response")
)

// SampleItem is the fixed payload schema sent for each record.
type SampleItem struct {
	ProductCode string  `json:"product_code"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Subtotal    float64 `json:"subtotal"`
}

// Summary is the advisor's reply.
type Summary struct {
	Text     string   `json:"summary"`
	Warnings []string `json:"warnings,omitempty"`
	Model    string   `json:"model,omitempty"`
	Cached   bool     `json:"cached"`
}

// Config configures the advisor client.
type Config struct {
	BaseURL           string
	APIKey            string
	Model             string
	MaxTokens         int
	RequestsPerMinute int
	SampleSize        int
	MaxRetries        int
	Timeout           time.Duration
}

// Advisor summarizes records through a chat completion endpoint.
type Advisor struct {
	client  *openai.Client
	config  Config
	limiter *rate.Limiter
	cache   *cache.Cache[Summary]
	log     zerolog.Logger
}

// New creates an advisor. The cache is optional; when given, identical
// samples are answered from it without a request.
func New(cfg Config, c *cache.Cache[Summary]) *Advisor {
	if cfg.SampleSize <= 0 {
		cfg.SampleSize = 20
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Timeout > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	return &Advisor{
		client:  openai.NewClientWithConfig(clientCfg),
		config:  cfg,
		limiter: rate.NewLimiter(limit, 1),
		cache:   c,
		log:     logger.WithComponent("advisor"),
	}
}

// Sample converts the first n records to the payload schema.
func Sample(records []models.OutputRecord, n int) []SampleItem {
	if n > len(records) || n <= 0 {
		n = len(records)
	}
	items := make([]SampleItem, 0, n)
	for _, r := range records[:n] {
		items = append(items, SampleItem{
			ProductCode: r.ProductCode,
			Description: r.Description,
			Quantity:    r.Quantity,
			UnitPrice:   r.UnitPrice,
			Subtotal:    r.LineSubtotal,
		})
	}
	return items
}

// Summarize reviews records. The cache key covers the sample, the number of
// records and their total, so a changed discount or VAT asks again.
func (a *Advisor) Summarize(ctx context.Context, records []models.OutputRecord) (*Summary, error) {
	const op = "Summarize"

	sample := Sample(records, a.config.SampleSize)
	payload, err := json.Marshal(sample)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to encode sample: %w", op, err)
	}

	subtotals := make([]float64, len(records))
	for i, r := range records {
		subtotals[i] = r.LineSubtotal
	}
	total := pricing.Sum(subtotals...)

	key := cache.Fingerprint(string(payload), a.config.Model,
		strconv.Itoa(len(records)), strconv.FormatFloat(total, 'f', -1, 64))
	if a.cache != nil {
		if s, ok := a.cache.Get(key); ok {
			s.Cached = true
			a.log.Debug().Str("key", key[:12]).Msg("advisor cache hit")
			return &s, nil
		}
	}

	prompt := buildUserPrompt(payload, len(records), total)

	var lastErr error
	for attempt := 1; attempt <= a.config.MaxRetries; attempt++ {
		if err := a.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s: %w: %v", op, ErrAdvisorUnavailable, err)
		}

		a.log.Debug().
			Int("attempt", attempt).
			Int("sample", len(sample)).
			Str("model", a.config.Model).
			Msg("Sending summary request")

		resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: a.config.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			MaxTokens:   a.config.MaxTokens,
			Temperature: math.SmallestNonzeroFloat32, // a literal 0 is dropped by omitempty
		})
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrAdvisorUnavailable, err)
			a.log.Warn().Err(err).Int("attempt", attempt).Msg("Summary request failed")
			if ctx.Err() != nil || !retryable(err) {
				break
			}
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("%w: no choices in response", ErrMalformedResponse)
			continue
		}

		summary, err := ParseReply(resp.Choices[0].Message.Content)
		if err != nil {
			lastErr = err
			a.log.Warn().Err(err).Int("attempt", attempt).Msg("Failed to parse summary, retrying")
			continue
		}
		summary.Model = a.config.Model

		if a.cache != nil {
			a.cache.Put(key, *summary)
		}
		a.log.Info().Int("records", len(records)).Int("warnings", len(summary.Warnings)).Msg("Summary received")
		return summary, nil
	}

	return nil, fmt.Errorf("%s: %w", op, lastErr)
}

// retryable reports whether a failed request is worth repeating. Client
// errors other than rate limiting are not.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return true
}

const systemPrompt = "You review purchase invoice line items before they are imported into an ERP. " +
	"Reply with valid JSON only, no extra text: " +
	`{"summary": "<two or three sentences>", "warnings": ["<suspicious item>", ...]}. ` +
	"Flag zero quantities, zero prices, duplicate product codes and descriptions that look like totals."

func buildUserPrompt(payload []byte, count int, total float64) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The invoice has %d line items with a grand total of %s.\n", count, pricing.Format(total, ""))
	sb.WriteString("Here is a sample of the items:\n\n")
	sb.Write(payload)
	sb.WriteString("\n\nOutput only the JSON.")
	return sb.String()
}

var (
	fencedJSON  = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	strayFences = regexp.MustCompile("```(?:json)?")
)

// ParseReply decodes the model's JSON reply, which may be wrapped in a
// markdown code fence.
func ParseReply(text string) (*Summary, error) {
	text = strings.TrimSpace(text)
	if m := fencedJSON.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	text = strings.TrimSpace(strayFences.ReplaceAllString(text, ""))

	var s Summary
	if err := json.Unmarshal([]byte(text), &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if strings.TrimSpace(s.Text) == "" {
		return nil, fmt.Errorf("%w: empty summary", ErrMalformedResponse)
	}
	s.Cached = false
	return &s, nil
}
