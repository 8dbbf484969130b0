package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/solovey/codemesh/internal/application/config"
)

// Review is the structured result of an AI code review.
type Review struct {
	OverallScore int           `json:"overallScore"`
	Summary      string        `json:"summary"`
	Issues       []ReviewIssue `json:"issues"`
	Suggestions  []string      `json:"suggestions"`
	CodeQuality  CodeQuality   `json:"codeQuality"`
}

type ReviewIssue struct {
	Severity   string `json:"severity"`
	Line       int    `json:"line"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion"`
}

type CodeQuality struct {
	Readability   int `json:"readability"`
	Performance   int `json:"performance"`
	BestPractices int `json:"bestPractices"`
	Security      int `json:"security"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatReply is the assistant's reply plus the replacement code block,
// if the reply contained one.
type ChatReply struct {
	Reply string `json:"reply"`
	Code  string `json:"code,omitempty"`
}

// AIUsecase calls a hosted language model for code review and chat.
// It is a plain request/response collaborator of the collaboration
// core; nothing here touches room state.
type AIUsecase interface {
	Review(ctx context.Context, code, language string) (*Review, error)
	Chat(ctx context.Context, code, language, message string, history []ChatMessage) (*ChatReply, error)
}

type aiUsecase struct {
	cfg    config.AIConfig
	client *http.Client

	newBackoff func() retry.Backoff
}

func NewAIUsecase(cfg config.AIConfig) AIUsecase {
	return &aiUsecase{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
		newBackoff: func() retry.Backoff {
			return retry.WithMaxRetries(2, retry.NewFibonacci(5*time.Second))
		},
	}
}

func (uc *aiUsecase) Review(ctx context.Context, code, language string) (*Review, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("code is required for review")
	}

	if language == "" {
		language = "code"
	}

	prompt := fmt.Sprintf(`You are an expert code reviewer. Analyze this %s:

`+"```%s\n%s\n```"+`

Respond ONLY with valid JSON (no markdown wrapping, no code fences, just raw JSON):
{
  "overallScore": <1-10>,
  "summary": "<2-3 sentence overview>",
  "issues": [{"severity": "<error|warning|info>", "line": <number>, "message": "<text>", "suggestion": "<text>"}],
  "suggestions": ["<text>"],
  "codeQuality": {"readability": <1-10>, "performance": <1-10>, "bestPractices": <1-10>, "security": <1-10>}
}`, language, language, code)

	text, err := uc.generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var review Review
	if err := json.Unmarshal([]byte(stripCodeFences(text)), &review); err != nil {
		return nil, fmt.Errorf("parse review response: %w", err)
	}

	return &review, nil
}

func (uc *aiUsecase) Chat(ctx context.Context, code, language, message string, history []ChatMessage) (*ChatReply, error) {
	var sb strings.Builder

	sb.WriteString("You are a helpful pair-programming assistant.\n")
	if code != "" {
		fmt.Fprintf(&sb, "The current %s document is:\n```%s\n%s\n```\n", language, language, code)
	}
	for _, msg := range history {
		fmt.Fprintf(&sb, "%s: %s\n", msg.Role, msg.Content)
	}
	fmt.Fprintf(&sb, "user: %s\n", message)

	text, err := uc.generate(ctx, sb.String())
	if err != nil {
		return nil, err
	}

	return &ChatReply{
		Reply: text,
		Code:  ExtractCodeBlock(text),
	}, nil
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// generate issues one model call, retrying on rate limits with
// fibonacci backoff.
func (uc *aiUsecase) generate(ctx context.Context, prompt string) (string, error) {
	if uc.cfg.APIKey == "" {
		return "", fmt.Errorf("AI is not configured")
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", uc.cfg.Endpoint, uc.cfg.Model, uc.cfg.APIKey)

	var text string

	err = retry.Do(ctx, uc.newBackoff(), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := uc.client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return retry.RetryableError(err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			return retry.RetryableError(fmt.Errorf("rate limited: %s", resp.Status))
		}

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("model call failed: %s", resp.Status)
		}

		var parsed generateResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return fmt.Errorf("parse model response: %w", err)
		}

		if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
			return fmt.Errorf("empty model response")
		}

		text = parsed.Candidates[0].Content.Parts[0].Text
		return nil
	})

	if err != nil {
		return "", err
	}

	return text, nil
}

var codeBlockRe = regexp.MustCompile("(?s)```(?:\\w+)?\\n(.*?)```")

// ExtractCodeBlock returns the largest fenced code block in text, or
// empty when there is none. The largest block is the most likely full
// replacement document.
func ExtractCodeBlock(text string) string {
	matches := codeBlockRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return ""
	}

	largest := ""
	for _, m := range matches {
		if len(m[1]) > len(largest) {
			largest = m[1]
		}
	}

	return strings.TrimSpace(largest)
}

func stripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	if block := ExtractCodeBlock(trimmed); block != "" {
		return block
	}

	return trimmed
}
