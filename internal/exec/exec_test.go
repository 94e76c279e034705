package exec

import (
	"context"
	"errors"
	"testing"
)

func TestScriptedExecutorLongestPrefixWins(t *testing.T) {
	fake := NewScriptedExecutor()
	fake.Script("git rev-parse", FakeResult{Stdout: "generic"})
	fake.Script("git rev-parse HEAD", FakeResult{Stdout: "specific"})

	out, err := fake.Output(context.Background(), "/wt", "git", "rev-parse", "HEAD")
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "specific" {
		t.Errorf("output = %q, want the longest matching script", out)
	}
}

func TestScriptedExecutorUnmatchedSucceeds(t *testing.T) {
	fake := NewScriptedExecutor()
	stdout, stderr, err := fake.Run(context.Background(), "/wt", "git", "status")
	if err != nil || len(stdout) != 0 || len(stderr) != 0 {
		t.Errorf("unmatched command: out=%q err-out=%q err=%v", stdout, stderr, err)
	}
	if calls := fake.Calls(); len(calls) != 1 || calls[0] != "git status" {
		t.Errorf("calls = %v", calls)
	}
}

func TestExitCode(t *testing.T) {
	if got := ExitCode(nil); got != 0 {
		t.Errorf("ExitCode(nil) = %d", got)
	}
	if got := ExitCode(&FakeExitError{Code: 128}); got != 128 {
		t.Errorf("ExitCode(fake 128) = %d", got)
	}
	if got := ExitCode(errors.New("spawn failed")); got != -1 {
		t.Errorf("ExitCode(other) = %d, want -1", got)
	}
}
