package agent

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/ShayCichocki/weave/internal/stream"
	"github.com/ShayCichocki/weave/pkg/models"
)

// ProcessAgent runs an external CLI backend as a subprocess and decodes
// its stream-json stdout.
type ProcessAgent struct {
	name    string
	command string
	// baseArgs precede the model and prompt flags.
	baseArgs []string
	// model is used when a run does not override it.
	model string
}

// NewProcessAgent creates a subprocess backend. The prompt is appended as
// "-p <prompt>" after baseArgs; a model override is appended as
// "--model <model>".
func NewProcessAgent(name, command string, baseArgs []string) *ProcessAgent {
	return &ProcessAgent{
		name:     name,
		command:  command,
		baseArgs: baseArgs,
	}
}

// NewClaudeCLI creates the default claude CLI backend with the flags
// required for non-interactive stream-json output.
func NewClaudeCLI() *ProcessAgent {
	return NewProcessAgent("claude", "claude", []string{
		"--output-format", "stream-json",
		"--print",
		"--verbose",
	})
}

// SetDefaultModel sets the model passed as --model when a run does not
// specify one.
func (p *ProcessAgent) SetDefaultModel(model string) {
	p.model = model
}

// Name returns the backend name.
func (p *ProcessAgent) Name() string {
	return p.name
}

// IsAvailable reports whether the backend command is on PATH.
func (p *ProcessAgent) IsAvailable(_ context.Context) bool {
	_, err := exec.LookPath(p.command)
	return err == nil
}

// Run launches the subprocess, decodes its stdout line by line, and
// aggregates the stream into a Result. The process is killed when ctx is
// cancelled or the timeout elapses.
func (p *ProcessAgent) Run(ctx context.Context, prompt string, opts *RunOptions) (*Result, error) {
	ctx, cancel := withTimeout(ctx, opts)
	defer cancel()

	model := p.model
	if opts != nil && opts.Model != "" {
		model = opts.Model
	}

	args := append([]string{}, p.baseArgs...)
	if model != "" {
		args = append(args, "--model", model)
	}
	args = append(args, "-p", prompt)

	cmd := exec.CommandContext(ctx, p.command, args...)
	if opts != nil && opts.WorkDir != "" {
		cmd.Dir = opts.WorkDir
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", p.command, err)
	}

	// Drain stderr concurrently so the process cannot block on a full pipe.
	var stderrBuf strings.Builder
	var stderrMu sync.Mutex
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 16*1024), 256*1024)
		for scanner.Scan() {
			stderrMu.Lock()
			stderrBuf.Write(scanner.Bytes())
			stderrBuf.WriteByte('\n')
			stderrMu.Unlock()
		}
	}()

	decoder := stream.NewDecoder()
	var acc resultAccumulator

	scanner := bufio.NewScanner(stdout)
	// Single stream-json lines can be large.
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		for _, ev := range decoder.Feed(scanner.Text()) {
			if opts != nil && opts.OnEvent != nil {
				opts.OnEvent(ev)
			}
			acc.observe(ev)
		}
	}
	scanErr := scanner.Err()

	wg.Wait()
	waitErr := cmd.Wait()

	result := acc.finalize(time.Since(started))
	if opts != nil && opts.Model != "" && result.Model == "" {
		result.Model = opts.Model
	}

	if ctx.Err() != nil {
		return result, fmt.Errorf("%s run: %w", p.name, ctx.Err())
	}
	if waitErr != nil {
		stderrMu.Lock()
		captured := strings.TrimSpace(stderrBuf.String())
		stderrMu.Unlock()
		if captured != "" {
			return result, fmt.Errorf("%s exited: %w; stderr: %s", p.name, waitErr, captured)
		}
		return result, fmt.Errorf("%s exited: %w", p.name, waitErr)
	}
	if scanErr != nil {
		return result, fmt.Errorf("read %s output: %w", p.name, scanErr)
	}
	if acc.failed {
		return result, fmt.Errorf("%s reported failure: %s", p.name, firstLine(result.Content))
	}
	return result, nil
}

// resultAccumulator folds decoded events into a Result. The final-result
// line wins over accumulated text deltas when present.
type resultAccumulator struct {
	sessionID string
	text      strings.Builder
	final     string
	haveFinal bool
	usage     models.TokenUsage
	costUSD   float64
	failed    bool
}

func (a *resultAccumulator) observe(ev stream.Event) {
	switch ev.Type {
	case stream.EventInit:
		a.sessionID = ev.SessionID
	case stream.EventTextDelta:
		a.text.WriteString(ev.Content)
	case stream.EventFinalResult:
		a.final = ev.Content
		a.haveFinal = true
		a.usage = ev.Usage
		a.costUSD = ev.CostUSD
		a.failed = ev.IsError
	}
}

func (a *resultAccumulator) finalize(elapsed time.Duration) *Result {
	content := a.final
	if !a.haveFinal {
		content = a.text.String()
	}
	return &Result{
		Content:   content,
		Duration:  elapsed,
		Usage:     a.usage,
		CostUSD:   a.costUSD,
		SessionID: a.sessionID,
	}
}

// firstLine truncates multi-line content for error messages.
func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
