package usecase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solovey/codemesh/internal/application/config"
)

func TestExtractCodeBlock(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			name: "no block",
			text: "just prose, nothing fenced",
			want: "",
		},
		{
			name: "single block with language",
			text: "Here you go:\n```go\nfunc main() {}\n```\ndone",
			want: "func main() {}",
		},
		{
			name: "single block without language",
			text: "```\nplain\n```",
			want: "plain",
		},
		{
			name: "largest of several blocks wins",
			text: "```js\nshort\n```\nand the full file:\n```js\nconst a = 1;\nconst b = 2;\n```",
			want: "const a = 1;\nconst b = 2;",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCodeBlock(tt.text))
		})
	}
}

func TestStripCodeFences(t *testing.T) {
	raw := `{"overallScore": 7}`

	assert.Equal(t, raw, stripCodeFences(raw))
	assert.Equal(t, raw, stripCodeFences("```json\n"+raw+"\n```"))
	assert.Equal(t, raw, stripCodeFences("  \n```\n"+raw+"\n```\n"))
}

func modelResponse(text string) string {
	out, _ := json.Marshal(generateResponse{
		Candidates: []struct {
			Content content `json:"content"`
		}{
			{Content: content{Parts: []part{{Text: text}}}},
		},
	})
	return string(out)
}

func newAITestServer(t *testing.T, handler http.HandlerFunc) (AIUsecase, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	uc := NewAIUsecase(config.AIConfig{
		Endpoint: srv.URL,
		APIKey:   "test-key",
		Model:    "test-model",
	})
	uc.(*aiUsecase).newBackoff = func() retry.Backoff {
		return retry.WithMaxRetries(2, retry.NewConstant(time.Millisecond))
	}
	return uc, srv
}

func TestReviewParsesModelJSON(t *testing.T) {
	review := `{"overallScore": 8, "summary": "solid", "issues": [{"severity": "warning", "line": 3, "message": "m", "suggestion": "s"}], "suggestions": ["split it"], "codeQuality": {"readability": 9, "performance": 7, "bestPractices": 8, "security": 6}}`

	uc, _ := newAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(modelResponse("```json\n" + review + "\n```")))
	})

	got, err := uc.Review(context.Background(), "const a = 1;", "javascript")
	require.NoError(t, err)

	assert.Equal(t, 8, got.OverallScore)
	assert.Equal(t, "solid", got.Summary)
	require.Len(t, got.Issues, 1)
	assert.Equal(t, "warning", got.Issues[0].Severity)
	assert.Equal(t, 9, got.CodeQuality.Readability)
}

func TestReviewRequiresCode(t *testing.T) {
	uc := NewAIUsecase(config.AIConfig{APIKey: "k"})

	_, err := uc.Review(context.Background(), "   ", "javascript")
	assert.Error(t, err)
}

func TestReviewWithoutAPIKeyFails(t *testing.T) {
	uc := NewAIUsecase(config.AIConfig{})

	_, err := uc.Review(context.Background(), "code", "javascript")
	assert.Error(t, err)
}

func TestChatReturnsReplyAndLargestCodeBlock(t *testing.T) {
	reply := "Try this instead:\n```js\nconsole.log('hi');\n```"

	var prompt struct {
		Contents []content `json:"contents"`
	}
	uc, _ := newAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&prompt)
		w.Write([]byte(modelResponse(reply)))
	})

	got, err := uc.Chat(context.Background(), "old code", "js", "make it log", []ChatMessage{
		{Role: "user", Content: "earlier question"},
	})
	require.NoError(t, err)

	assert.Equal(t, reply, got.Reply)
	assert.Equal(t, "console.log('hi');", got.Code)

	// Document and history travel inside the prompt.
	require.Len(t, prompt.Contents, 1)
	sent := prompt.Contents[0].Parts[0].Text
	assert.True(t, strings.Contains(sent, "old code"))
	assert.True(t, strings.Contains(sent, "earlier question"))
	assert.True(t, strings.Contains(sent, "make it log"))
}

func TestGenerateRetriesOnRateLimit(t *testing.T) {
	var calls atomic.Int32

	uc, _ := newAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(modelResponse("fine")))
	})

	got, err := uc.Chat(context.Background(), "", "js", "hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "fine", got.Reply)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGenerateDoesNotRetryHardErrors(t *testing.T) {
	var calls atomic.Int32

	uc, _ := newAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := uc.Chat(context.Background(), "", "js", "hello", nil)
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "a 400 is not retryable")
}
