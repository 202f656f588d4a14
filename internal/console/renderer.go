// Package console renders workflow runs for terminal consumption. It is
// pure presentation: it receives plain data and prints it, making no
// decisions about execution.
package console

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"conductor/internal/orchestrator"
	"conductor/pkg/errors"
)

// Renderer writes formatted run progress to an output stream.
type Renderer struct {
	out     io.Writer
	verbose bool
}

// Option customizes a Renderer.
type Option func(*Renderer)

// WithOutput redirects rendering, stdout by default.
func WithOutput(w io.Writer) Option {
	return func(r *Renderer) { r.out = w }
}

// WithVerbose enables tool argument and response dumps.
func WithVerbose() Option {
	return func(r *Renderer) { r.verbose = true }
}

// New creates a renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{out: os.Stdout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Banner prints the run header.
func (r *Renderer) Banner(workflowName, sessionID string) {
	fmt.Fprintf(r.out, "\n=== %s ===\n", workflowName)
	fmt.Fprintf(r.out, "session: %s\n\n", sessionID)
}

// Event renders one stream event.
func (r *Renderer) Event(ev orchestrator.Event) {
	switch ev.Type {
	case orchestrator.EventText:
		if ev.Partial {
			fmt.Fprint(r.out, ev.Text)
			return
		}
		fmt.Fprintf(r.out, "[%s] %s\n", ev.Author, ev.Text)

	case orchestrator.EventToolCall:
		fmt.Fprintf(r.out, "[%s] -> %s%s\n", ev.Author, ev.ToolName, r.compactArgs(ev.ToolArgs))

	case orchestrator.EventToolResult:
		if r.verbose {
			fmt.Fprintf(r.out, "[%s] <- %s %s\n", ev.Author, ev.ToolName, compactJSON(ev.ToolResp))
			return
		}
		fmt.Fprintf(r.out, "[%s] <- %s\n", ev.Author, ev.ToolName)

	case orchestrator.EventFinal:
		fmt.Fprintf(r.out, "\n%s\n", ev.Text)

	case orchestrator.EventError:
		if ev.Envelope != nil {
			r.Error(*ev.Envelope)
		}
	}
}

// Result prints the run summary.
func (r *Renderer) Result(result *orchestrator.RunResult) {
	fmt.Fprintf(r.out, "\n--- completed in %s ---\n", humanizeDuration(result.Duration))
	if result.Usage.Total > 0 {
		fmt.Fprintf(r.out, "tokens: %s in / %s out\n",
			humanize.Comma(int64(result.Usage.Input)),
			humanize.Comma(int64(result.Usage.Output)),
		)
	}
	if len(result.State) > 0 && r.verbose {
		fmt.Fprintf(r.out, "state: %s\n", compactJSON(result.State))
	}
}

// Error prints a structured error envelope. Raw internal error text never
// goes through this path.
func (r *Renderer) Error(env errors.Envelope) {
	fmt.Fprintf(r.out, "\nerror [%s/%s]: %s\n", env.Kind, env.Code, env.Msg)
	if env.RetryInMs != nil {
		retryIn := time.Duration(*env.RetryInMs) * time.Millisecond
		fmt.Fprintf(r.out, "retry in %s\n", humanizeDuration(retryIn))
	}
}

// Workflows prints the registered workflow names.
func (r *Renderer) Workflows(names []string) {
	if len(names) == 0 {
		fmt.Fprintln(r.out, "no workflows registered")
		return
	}
	fmt.Fprintf(r.out, "workflows (%d):\n", len(names))
	for _, name := range names {
		fmt.Fprintf(r.out, "  %s\n", name)
	}
}

func (r *Renderer) compactArgs(args map[string]interface{}) string {
	if len(args) == 0 {
		return "()"
	}
	if !r.verbose && len(args) > 3 {
		return fmt.Sprintf("(%d args)", len(args))
	}
	return "(" + strings.TrimPrefix(strings.TrimSuffix(compactJSON(args), "}"), "{") + ")"
}

func compactJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func humanizeDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	if d < time.Minute {
		return d.Round(100 * time.Millisecond).String()
	}
	return humanize.RelTime(time.Now().Add(-d), time.Now(), "", "")
}
