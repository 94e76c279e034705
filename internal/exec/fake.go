package exec

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FakeExitError is the error a ScriptedExecutor returns for a scripted
// non-zero exit. Exported so ExitCode can recover the code from fakes the
// same way it does from os/exec.
type FakeExitError struct {
	Code int
}

func (e *FakeExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// FakeResult is one scripted command outcome.
type FakeResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	// Block, when non-nil, is closed by the test to release the command.
	// Used to hold a fake git call open while asserting serialization.
	Block <-chan struct{}
}

// ScriptedExecutor matches commands against registered prefixes and replays
// canned results. Unmatched commands succeed with empty output, which keeps
// fixtures small. All calls are recorded for assertion.
type ScriptedExecutor struct {
	mu      sync.Mutex
	scripts map[string]FakeResult
	calls   []string
}

// NewScriptedExecutor returns an executor with no scripts registered.
func NewScriptedExecutor() *ScriptedExecutor {
	return &ScriptedExecutor{scripts: make(map[string]FakeResult)}
}

// Script registers a result for any command whose joined argv starts with
// prefix, e.g. "git merge" or "git -C /repo status".
func (e *ScriptedExecutor) Script(prefix string, result FakeResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripts[prefix] = result
}

// Calls returns the joined argv of every command run so far.
func (e *ScriptedExecutor) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.calls))
	copy(out, e.calls)
	return out
}

func (e *ScriptedExecutor) lookup(name string, args []string) FakeResult {
	argv := strings.Join(append([]string{name}, args...), " ")

	e.mu.Lock()
	e.calls = append(e.calls, argv)
	var match FakeResult
	matchLen := -1
	for prefix, result := range e.scripts {
		if strings.HasPrefix(argv, prefix) && len(prefix) > matchLen {
			match = result
			matchLen = len(prefix)
		}
	}
	e.mu.Unlock()

	return match
}

func (e *ScriptedExecutor) run(ctx context.Context, name string, args []string) (FakeResult, error) {
	result := e.lookup(name, args)
	if result.Block != nil {
		select {
		case <-result.Block:
		case <-ctx.Done():
			return result, ctx.Err()
		}
	}
	if result.ExitCode != 0 {
		return result, &FakeExitError{Code: result.ExitCode}
	}
	return result, nil
}

func (e *ScriptedExecutor) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, []byte, error) {
	result, err := e.run(ctx, name, args)
	return []byte(result.Stdout), []byte(result.Stderr), err
}

func (e *ScriptedExecutor) Output(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	result, err := e.run(ctx, name, args)
	return []byte(result.Stdout), err
}

func (e *ScriptedExecutor) CombinedOutput(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	result, err := e.run(ctx, name, args)
	return []byte(result.Stdout + result.Stderr), err
}
