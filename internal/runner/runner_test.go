package runner

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/marcus-qen/analyzerd/internal/analyzer"
)

func testLogger() *zap.Logger {
	l, _ := zap.NewDevelopment()
	return l
}

func TestRun_EchoesStdinToStdout(t *testing.T) {
	r := New(2, testLogger())
	def := analyzer.AnalyzerDefinition{Command: "cat", BaseDirectory: t.TempDir()}

	stdout, _, exitCode, err := r.Run(context.Background(), def, []byte("hello analyzer"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if exitCode != 0 {
		t.Fatalf("exitCode = %d, want 0", exitCode)
	}
	if string(stdout) != "hello analyzer" {
		t.Errorf("stdout = %q, want %q", stdout, "hello analyzer")
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	r := New(2, testLogger())
	def := analyzer.AnalyzerDefinition{Command: "sh -c 'echo boom 1>&2; exit 3'", BaseDirectory: t.TempDir()}

	_, stderr, exitCode, err := r.Run(context.Background(), def, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if exitCode != 3 {
		t.Fatalf("exitCode = %d, want 3", exitCode)
	}
	if !strings.Contains(string(stderr), "boom") {
		t.Errorf("stderr = %q, want to contain boom", stderr)
	}
}

func TestRun_BoundedConcurrency(t *testing.T) {
	r := New(1, testLogger())
	def := analyzer.AnalyzerDefinition{Command: "cat", BaseDirectory: t.TempDir()}

	done := make(chan struct{}, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, _, _, _ = r.Run(context.Background(), def, []byte("x"))
			done <- struct{}{}
		}()
	}
	<-done
	<-done
}

func TestRun_CancelledContext(t *testing.T) {
	r := New(1, testLogger())
	def := analyzer.AnalyzerDefinition{Command: "sleep 5", BaseDirectory: t.TempDir()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, exitCode, err := r.Run(ctx, def, nil)
	if err == nil && exitCode == 0 {
		t.Fatalf("expected cancellation to prevent or fail the run, got exitCode=0 err=nil")
	}
}
