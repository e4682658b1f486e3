package feed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"strconv"
	"time"

	coreerrors "github.com/lueurxax/ticker-sentiment-bot/internal/core/errors"
)

const (
	transportCommand = "command"

	defaultCommandTimeout = 15 * time.Second

	// curl exit code for an operation timeout.
	curlExitTimeout = 28
)

// ErrMissingStatus indicates the command output did not end with a status code.
var ErrMissingStatus = errors.New("command output missing status code")

// Runner executes a command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return out, fmt.Errorf("run %s: %w", name, err)
	}

	return out, nil
}

// CommandTransport fetches by spawning a command-line HTTP client (curl-compatible flags).
// The trailing line of output carries the HTTP status code.
type CommandTransport struct {
	binary    string
	timeout   time.Duration
	userAgent string
	run       Runner
}

// NewCommandTransport creates the fallback transport. A nil runner uses ExecRunner.
func NewCommandTransport(binary string, timeout time.Duration, userAgent string, run Runner) *CommandTransport {
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}

	if run == nil {
		run = ExecRunner
	}

	return &CommandTransport{
		binary:    binary,
		timeout:   timeout,
		userAgent: userAgent,
		run:       run,
	}
}

// Name implements FetchTransport.
func (t *CommandTransport) Name() string {
	return transportCommand
}

func (t *CommandTransport) args(rawURL string) []string {
	args := []string{
		"--silent",
		"--show-error",
		"--location",
		"--compressed",
		"--max-time", strconv.FormatFloat(t.timeout.Seconds(), 'f', -1, 64),
		"--header", headerAccept + ": " + acceptJSON,
		"--header", headerAcceptLanguage + ": " + acceptLanguage,
		"--write-out", "\n%{http_code}",
	}

	if t.userAgent != "" {
		args = append(args, "--user-agent", t.userAgent)
	}

	return append(args, rawURL)
}

// Fetch implements FetchTransport.
func (t *CommandTransport) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, t.timeout+time.Second)
	defer cancel()

	out, err := t.run(runCtx, t.binary, t.args(rawURL)...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", transportCommand, ctx.Err())
		}

		if runCtx.Err() != nil || exitCode(err) == curlExitTimeout {
			return nil, fmt.Errorf("%s: %w: %w", transportCommand, coreerrors.ErrUpstreamBlocked, err)
		}

		return nil, fmt.Errorf("%s: %w", transportCommand, err)
	}

	body, status, err := splitStatus(out)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", transportCommand, err)
	}

	if status != http.StatusOK {
		return nil, statusError(transportCommand, status)
	}

	return body, nil
}

// splitStatus separates the body from the trailing status line written by --write-out.
func splitStatus(out []byte) ([]byte, int, error) {
	out = bytes.TrimRight(out, "\r\n ")

	idx := bytes.LastIndexByte(out, '\n')

	statusText := out[idx+1:]

	status, err := strconv.Atoi(string(bytes.TrimSpace(statusText)))
	if err != nil || status == 0 {
		return nil, 0, ErrMissingStatus
	}

	if idx < 0 {
		return nil, status, nil
	}

	return out[:idx], status, nil
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}

	return -1
}
