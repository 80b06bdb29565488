// SPDX-License-Identifier: MPL-2.0

package toolexec

import (
	"context"
	"errors"
	"fmt"
	goruntime "runtime"
	"strings"
	"testing"
	"time"
)

// requirePosixShell skips process-spawning tests on Windows, where no POSIX
// shell is guaranteed.
func requirePosixShell(t *testing.T) {
	t.Helper()
	if goruntime.GOOS == "windows" {
		t.Skip("skipping: requires a POSIX shell")
	}
}

func shellInvocation(script string) Invocation {
	return Invocation{Path: "sh", Args: []string{"-c", script}}
}

func TestRunCapturesStdout(t *testing.T) {
	requirePosixShell(t)
	t.Parallel()

	r := NewRunner()
	res, err := r.Run(context.Background(), shellInvocation("echo hello"))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Stdout != "hello\n" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "hello\n")
	}
	if res.Stderr != "" {
		t.Errorf("Stderr = %q, want empty", res.Stderr)
	}
	if !res.Success || res.ExitCode != 0 {
		t.Errorf("Success = %v, ExitCode = %d, want success with code 0", res.Success, res.ExitCode)
	}
	if res.Tool != "sh" {
		t.Errorf("Tool = %q, want %q", res.Tool, "sh")
	}
}

func TestRunCapturesBothStreamsWithoutDeadlock(t *testing.T) {
	requirePosixShell(t)
	t.Parallel()

	// Each stream writes well past a typical 64 KiB pipe buffer. A runner
	// that read the streams sequentially would deadlock here.
	script := `
i=0
while [ $i -lt 4000 ]; do
  echo "stdout-line-$i-0123456789012345678901234567890123456789"
  echo "stderr-line-$i-0123456789012345678901234567890123456789" 1>&2
  i=$((i+1))
done`

	r := NewRunner()
	res, err := r.Run(context.Background(), shellInvocation(script))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(res.Stdout, "stdout-line-3999") {
		t.Error("stdout capture is missing the final line")
	}
	if !strings.Contains(res.Stderr, "stderr-line-3999") {
		t.Error("stderr capture is missing the final line")
	}
	if strings.Contains(res.Stdout, "stderr-line") || strings.Contains(res.Stderr, "stdout-line") {
		t.Error("streams were mixed")
	}
}

func TestRunFailureSynthesizesError(t *testing.T) {
	requirePosixShell(t)
	t.Parallel()

	r := NewRunner()
	res, err := r.Run(context.Background(), shellInvocation("echo bad thing happened 1>&2; exit 3"))
	if err == nil {
		t.Fatal("Run() succeeded, want policy failure")
	}
	if !errors.Is(err, ErrToolFailed) {
		t.Errorf("error does not wrap ErrToolFailed: %v", err)
	}
	var toolErr *ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("error is not *ToolError: %T", err)
	}
	if toolErr.ExitCode != 3 {
		t.Errorf("ToolError.ExitCode = %d, want 3", toolErr.ExitCode)
	}
	if !strings.Contains(toolErr.StderrExcerpt, "bad thing happened") {
		t.Errorf("ToolError.StderrExcerpt = %q, want stderr content", toolErr.StderrExcerpt)
	}
	if toolErr.Path == "" || toolErr.CommandLine() == "" {
		t.Errorf("ToolError carries no command line: %+v", toolErr)
	}
	if !strings.Contains(err.Error(), toolErr.CommandLine()) {
		t.Errorf("error message %q omits the command line", err)
	}

	// The result must still be fully populated alongside the error.
	if res == nil {
		t.Fatal("Run() returned nil result alongside ToolError")
	}
	if res.ExitCode != 3 || res.Success {
		t.Errorf("Result = {ExitCode: %d, Success: %v}, want {3, false}", res.ExitCode, res.Success)
	}
	if !strings.Contains(res.Stderr, "bad thing happened") {
		t.Errorf("Result.Stderr = %q, want captured stderr", res.Stderr)
	}
}

func TestRunPassThroughFailure(t *testing.T) {
	requirePosixShell(t)
	t.Parallel()

	r := NewRunner()
	inv := shellInvocation("exit 5")
	inv.PassThroughFailure = true

	res, err := r.Run(context.Background(), inv)
	if err != nil {
		t.Fatalf("Run() error = %v, want nil with pass-through", err)
	}
	if res.Success {
		t.Error("Success = true for exit 5")
	}
	if res.ExitCode != 5 {
		t.Errorf("ExitCode = %d, want 5", res.ExitCode)
	}
}

func TestRunTimeoutKillsProcessTree(t *testing.T) {
	requirePosixShell(t)
	t.Parallel()

	r := NewRunner()
	inv := shellInvocation("sleep 30 & sleep 30")
	inv.Timeout = 300 * time.Millisecond

	start := time.Now()
	res, err := r.Run(context.Background(), inv)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("Run() succeeded, want timeout")
	}
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("error does not wrap ErrTimeout: %v", err)
	}
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("error is not *TimeoutError: %T", err)
	}
	if timeoutErr.Timeout != inv.Timeout {
		t.Errorf("TimeoutError.Timeout = %v, want %v", timeoutErr.Timeout, inv.Timeout)
	}

	// The background child must not keep the run (or the reader drain)
	// alive anywhere near the sleep duration.
	if elapsed > 10*time.Second {
		t.Errorf("Run() took %v after a %v timeout; process tree not terminated", elapsed, inv.Timeout)
	}
	if res == nil {
		t.Fatal("Run() returned nil result alongside TimeoutError")
	}
	if !res.TimedOut {
		t.Error("Result.TimedOut = false")
	}
	if res.Success {
		t.Error("Result.Success = true for timed-out run")
	}
	if !res.ExitCode.IsKilled() {
		t.Errorf("Result.ExitCode = %d, want killed marker", res.ExitCode)
	}
}

func TestRunTimeoutKeepsPartialOutput(t *testing.T) {
	requirePosixShell(t)
	t.Parallel()

	r := NewRunner()
	inv := shellInvocation("echo partial-output; sleep 30")
	inv.Timeout = 500 * time.Millisecond

	res, err := r.Run(context.Background(), inv)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Run() error = %v, want timeout", err)
	}
	if !strings.Contains(res.Stdout, "partial-output") {
		t.Errorf("Stdout = %q, want partial output captured before the kill", res.Stdout)
	}
}

func TestRunContextCancellation(t *testing.T) {
	requirePosixShell(t)
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	r := NewRunner()
	start := time.Now()
	res, err := r.Run(ctx, shellInvocation("sleep 30"))
	if err == nil {
		t.Fatal("Run() succeeded, want cancellation error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error does not wrap context.Canceled: %v", err)
	}
	if time.Since(start) > 10*time.Second {
		t.Error("cancellation did not terminate the process promptly")
	}
	if res == nil || res.Success {
		t.Error("canceled run must return an unsuccessful result")
	}
}

func TestRunBufferCap(t *testing.T) {
	requirePosixShell(t)
	t.Parallel()

	// ~400 KiB of output against a 4 KiB cap: the capture truncates but the
	// stream is still drained to completion.
	script := `
i=0
while [ $i -lt 10000 ]; do
  echo "0123456789012345678901234567890123456789"
  i=$((i+1))
done`

	r := NewRunner()
	inv := shellInvocation(script)
	inv.BufferCap = 4096

	res, err := r.Run(context.Background(), inv)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.Stdout) != 4096 {
		t.Errorf("len(Stdout) = %d, want exactly the 4096-byte cap", len(res.Stdout))
	}
	if !res.StdoutTruncated {
		t.Error("StdoutTruncated = false for over-cap output")
	}
	if res.StdoutBytes <= 4096 {
		t.Errorf("StdoutBytes = %d, want the full pre-truncation count", res.StdoutBytes)
	}
	if !res.Success {
		t.Error("Success = false; truncation must not affect the exit verdict")
	}
}

func TestRunEnvOverlay(t *testing.T) {
	requirePosixShell(t)
	t.Parallel()

	r := NewRunner()
	inv := shellInvocation("echo $PACKMULE_TEST_VALUE")
	inv.Env = map[string]string{"PACKMULE_TEST_VALUE": "overlay-wins"}

	res, err := r.Run(context.Background(), inv)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "overlay-wins" {
		t.Errorf("Stdout = %q, want overlay value", res.Stdout)
	}
}

func TestRunWorkingDirectory(t *testing.T) {
	requirePosixShell(t)
	t.Parallel()

	dir := t.TempDir()
	r := NewRunner()
	inv := shellInvocation("pwd")
	inv.Dir = dir

	res, err := r.Run(context.Background(), inv)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	// On macOS pwd resolves through /private, so compare by suffix.
	if got := strings.TrimSpace(res.Stdout); !strings.HasSuffix(got, dir) {
		t.Errorf("pwd = %q, want suffix %q", got, dir)
	}
}

func TestRunExecutableNotFound(t *testing.T) {
	t.Parallel()

	r := NewRunner()
	_, err := r.Run(context.Background(), Invocation{Path: "definitely-not-a-real-tool-4c1a"})
	if err == nil {
		t.Fatal("Run() succeeded for a nonexistent tool")
	}
	if !errors.Is(err, ErrExecutableNotFound) {
		t.Errorf("error does not wrap ErrExecutableNotFound: %v", err)
	}
}

func TestRunExplicitPathNotFound(t *testing.T) {
	t.Parallel()

	r := NewRunner()
	_, err := r.Run(context.Background(), Invocation{Path: "/definitely/not/a/real/tool"})
	if !errors.Is(err, ErrExecutableNotFound) {
		t.Errorf("error does not wrap ErrExecutableNotFound: %v", err)
	}
}

func TestRunWorkingDirNotFound(t *testing.T) {
	requirePosixShell(t)
	t.Parallel()

	r := NewRunner()
	inv := shellInvocation("true")
	inv.Dir = "/definitely/not/a/real/dir"

	_, err := r.Run(context.Background(), inv)
	if !errors.Is(err, ErrWorkingDirNotFound) {
		t.Errorf("error does not wrap ErrWorkingDirNotFound: %v", err)
	}
}

func TestRunSimple(t *testing.T) {
	requirePosixShell(t)
	t.Parallel()

	r := NewRunner()
	res, err := r.RunSimple(context.Background(), "sh", "-c", "echo simple")
	if err != nil {
		t.Fatalf("RunSimple() error = %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "simple" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "simple")
	}
}

func TestRunPolicyOverride(t *testing.T) {
	requirePosixShell(t)
	t.Parallel()

	r := NewRunner()
	// Mirror the robocopy convention onto sh for the test.
	r.Policies.Set("sh", ExitPolicy{SuccessBelow: 8})

	for _, code := range []int{0, 3, 7} {
		res, err := r.Run(context.Background(), shellInvocation(fmt.Sprintf("exit %d", code)))
		if err != nil {
			t.Fatalf("Run(exit %d) error = %v, want policy success", code, err)
		}
		if !res.Success {
			t.Errorf("Success = false for exit %d under below-8 policy", code)
		}
	}

	res, err := r.Run(context.Background(), shellInvocation("exit 8"))
	if err == nil {
		t.Fatal("Run(exit 8) succeeded under below-8 policy")
	}
	if res.Success {
		t.Error("Success = true for exit 8 under below-8 policy")
	}
}

func TestCombinedOutput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result Result
		want   string
	}{
		{"stdout only", Result{Stdout: "out\n"}, "out\n"},
		{"stderr only", Result{Stderr: "err\n"}, "err\n"},
		{"both newline separated", Result{Stdout: "out", Stderr: "err"}, "out\nerr"},
		{"no double newline", Result{Stdout: "out\n", Stderr: "err"}, "out\nerr"},
		{"both empty", Result{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.result.CombinedOutput(); got != tt.want {
				t.Errorf("CombinedOutput() = %q, want %q", got, tt.want)
			}
		})
	}
}
