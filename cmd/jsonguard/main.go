// File: cmd/jsonguard/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/xkilldash9x/jsonguard/cmd"
	"github.com/xkilldash9x/jsonguard/internal/observability"
)

// Exit statuses.
const (
	exitOK          = 0
	exitError       = 1
	exitFindings    = 2
	exitInterrupted = 130
)

var osExit = os.Exit

func main() {
	defer handlePanic()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	osExit(exitCode(cmd.Execute(ctx)))
}

// exitCode maps the result of a command to the process status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, cmd.ErrFindingsReported):
		return exitFindings
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		return exitError
	}
}

func handlePanic() {
	if r := recover(); r != nil {
		observability.Sync()
		fmt.Fprintf(os.Stderr, "panic: %v\n\n%s\n", r, debug.Stack())
		osExit(exitError)
	}
}
