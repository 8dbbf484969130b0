package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/solovey/codemesh/internal/application/config"
)

// ExecResult is what one sandboxed run produced.
type ExecResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exitCode"`
	TimedOut bool   `json:"timedOut"`
}

type languageConfig struct {
	extension string
	command   string
	args      func(path string) []string
}

var languageConfigs = map[string]languageConfig{
	"javascript": {
		extension: ".js",
		command:   "node",
		args:      func(path string) []string { return []string{path} },
	},
	"python": {
		extension: ".py",
		command:   "python3",
		args:      func(path string) []string { return []string{path} },
	},
	"typescript": {
		extension: ".ts",
		command:   "npx",
		args:      func(path string) []string { return []string{"ts-node", "--transpile-only", path} },
	},
}

// ExecuteUsecase runs a code snippet through an external interpreter,
// bounded by a wall-clock timeout and an output cap.
type ExecuteUsecase interface {
	Execute(ctx context.Context, code, language string) (*ExecResult, error)
	SupportedLanguages() []string
}

type executeUsecase struct {
	cfg config.ExecConfig
}

func NewExecuteUsecase(cfg config.ExecConfig) ExecuteUsecase {
	return &executeUsecase{cfg: cfg}
}

func (uc *executeUsecase) SupportedLanguages() []string {
	langs := make([]string, 0, len(languageConfigs))
	for lang := range languageConfigs {
		langs = append(langs, lang)
	}
	return langs
}

func (uc *executeUsecase) Execute(ctx context.Context, code, language string) (*ExecResult, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("code is required")
	}

	langCfg, ok := languageConfigs[language]
	if !ok {
		return nil, fmt.Errorf("language %q is not supported", language)
	}

	file, err := os.CreateTemp("", "codemesh_exec_*"+langCfg.extension)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	path := file.Name()
	defer os.Remove(path)

	if _, err := file.WriteString(code); err != nil {
		file.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	file.Close()

	execCtx, cancel := context.WithTimeout(ctx, uc.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, langCfg.command, langCfg.args(path)...)
	cmd.Dir = filepath.Dir(path)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &capWriter{buf: &stdout, cap: uc.cfg.OutputCap}
	cmd.Stderr = &capWriter{buf: &stderr, cap: uc.cfg.OutputCap}

	runErr := cmd.Run()

	result := &ExecResult{
		Stdout:   stripAnsi(stdout.String()),
		Stderr:   stripAnsi(stderr.String()),
		TimedOut: errors.Is(execCtx.Err(), context.DeadlineExceeded),
	}

	if result.TimedOut {
		result.Stderr = strings.TrimSpace(result.Stderr + "\nExecution timed out after " + uc.cfg.Timeout.String())
		result.ExitCode = -1
		return result, nil
	}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
		result.ExitCode = 0
	case errors.As(runErr, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		return nil, fmt.Errorf("spawn interpreter: %w", runErr)
	}

	return result, nil
}

// capWriter discards everything beyond cap bytes; runaway output must
// not grow the response without bound.
type capWriter struct {
	buf *bytes.Buffer
	cap int
}

func (w *capWriter) Write(p []byte) (int, error) {
	remaining := w.cap - w.buf.Len()
	if remaining > 0 {
		if len(p) > remaining {
			w.buf.Write(p[:remaining])
		} else {
			w.buf.Write(p)
		}
	}

	// Report full consumption so the child never blocks on a full pipe.
	return len(p), nil
}

var ansiRe = regexp.MustCompile(`\x1B\[[0-9;]*[a-zA-Z]`)

func stripAnsi(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}
