// Package classify detects seller motivation in listing descriptions via an
// external chat-completion endpoint.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wasatchdata/listingradar/internal/listing"
	"github.com/wasatchdata/listingradar/internal/metrics"
)

// Phrases the classifier is primed with. Guidance only; the model is told
// not to rely on them exclusively.
var sellerTerms = []string{
	"motivated seller", "must sell", "price reduced", "quick sale",
	"priced to sell", "below market value", "must be sold", "moving out",
	"must relocate", "must downsize", "must liquidate", "must settle estate",
	"seller financing available", "flexible terms", "bring offers",
	"seller eager to close", "willing to negotiate", "time sensitive sale",
	"desperate to sell", "must move quickly", "relocating soon",
	"vacant property", "estate sale", "foreclosure", "divorce sale",
	"job transfer", "financial hardship", "investor opportunity",
	"fixer upper", "cash offers preferred", "closing cost assistance",
	"price dropped", "distressed property", "reduced for a fast sale",
	"highly motivated seller", "urgent sale", "serious inquiries only",
	"drastic price reduction", "moving must sell", "need to sell fast",
	"seller wants quick closing", "selling below appraised value",
	"seller willing to pay closing costs",
}

// Config controls the classifier client. The key and model are scoped to the
// client instance, not the process.
type Config struct {
	APIKey    string
	Model     string
	BaseURL   string
	BatchSize int
	Timeout   time.Duration
}

// Client batches (id, description) pairs to a chat-completion endpoint and
// parses boolean motivation flags out of the response.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// New builds a Client with defaults filled in.
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = "gpt-3.5-turbo"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Classify sends pairs in fixed-size batches and merges the per-id flags.
// A batch whose response cannot be fetched or parsed contributes no flags;
// the run continues and the caller treats missing ids as unknown.
func (c *Client) Classify(ctx context.Context, pairs []listing.DescriptionPair) (map[string]bool, error) {
	flags := make(map[string]bool, len(pairs))
	for start := 0; start < len(pairs); start += c.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return flags, fmt.Errorf("classify canceled: %w", err)
		}
		end := start + c.cfg.BatchSize
		if end > len(pairs) {
			end = len(pairs)
		}
		batch := pairs[start:end]
		results, err := c.classifyBatch(ctx, batch)
		if err != nil {
			metrics.ObserveClassifierBatch("failed")
			c.logger.Warn("motivation batch failed",
				zap.Int("batch_start", start),
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
			continue
		}
		metrics.ObserveClassifierBatch("ok")
		for _, r := range results {
			flags[r.MLSNumber] = r.SellerMotivation
		}
	}
	return flags, nil
}

type flagRecord struct {
	MLSNumber        string `json:"mls_number"`
	SellerMotivation bool   `json:"seller_motivation"`
}

func (c *Client) classifyBatch(ctx context.Context, batch []listing.DescriptionPair) ([]flagRecord, error) {
	prompt, err := buildPrompt(batch)
	if err != nil {
		return nil, err
	}
	content, err := c.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return parseFlagArray(content)
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.cfg.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("completion status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read completion body: %w", err)
	}
	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("decode completion body: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("completion returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// parseFlagArray pulls the last well-formed JSON array out of free-form model
// output, tolerating commentary before and after it.
func parseFlagArray(content string) ([]flagRecord, error) {
	start := strings.LastIndex(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in completion output")
	}
	var records []flagRecord
	if err := json.Unmarshal([]byte(content[start:end+1]), &records); err != nil {
		return nil, fmt.Errorf("decode flag array: %w", err)
	}
	return records, nil
}

func buildPrompt(batch []listing.DescriptionPair) (string, error) {
	listings, err := json.Marshal(batch)
	if err != nil {
		return "", fmt.Errorf("marshal listing batch: %w", err)
	}
	var b strings.Builder
	b.WriteString("Pretend you are an expert in real estate and you are analyzing listing descriptions to detect seller motivation.\n")
	b.WriteString("You will be given a JSON array of listings in this format:\n")
	b.WriteString(`[{"mls_number": "1234567", "description": "This is the first description."}]` + "\n\n")
	b.WriteString("Your task as an expert is to read the description of each listing and determine if it indicates a motivated seller.\n")
	b.WriteString("To help with this task, here are a list of phrases you might see in a description that shows seller motivation: ")
	b.WriteString(strings.Join(sellerTerms, ", "))
	b.WriteString("\nDon't rely completely on the given terms, but use them as a guide.\n\n")
	b.WriteString("You will return TRUE if you find an indication of seller motivation, and FALSE if not. You will then return a JSON array of each listing, matched to the correct mls_number, with your given result as such:\n")
	b.WriteString(`[{"mls_number": "1234567", "seller_motivation": true}]` + "\n")
	b.WriteString("Do not include any other text or language in your response besides the JSON array as shown above.\n\n")
	b.WriteString("Here are the listings: ")
	b.Write(listings)
	b.WriteString("\n\nYour response: \n")
	return b.String(), nil
}
