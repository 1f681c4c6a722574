package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/xkilldash9x/lancet/cmd"
	"github.com/xkilldash9x/lancet/internal/observability"
)

const panicLogFile = "panic.log"

// Function variables so tests can stub the process boundary.
var (
	osWriteFile = os.WriteFile
	osExit      = os.Exit
)

func main() {
	defer handlePanic()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(os.Args) > 1 {
		osExit(cmd.ExitCode(cmd.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)))
		return
	}

	// No arguments: read one command line per input line until EOF or "exit".
	if err := interactive(ctx, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "Error reading from stdin:", err)
		osExit(cmd.ExitError)
	}
}

func interactive(ctx context.Context, in io.Reader, stdout, stderr io.Writer) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(stdout, "lancet > ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}
		executeInteractiveCommand(ctx, line, stdout, stderr)
		if ctx.Err() != nil {
			break
		}
	}
	return scanner.Err()
}

// executeInteractiveCommand runs one line against a fresh command tree.
// Errors and panics are reported without leaving the shell.
func executeInteractiveCommand(ctx context.Context, line string, stdout, stderr io.Writer) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(stderr, "Error: command panicked: %v\n", r)
		}
	}()
	_ = cmd.Execute(ctx, strings.Fields(line), stdout, stderr)
}

func handlePanic() {
	r := recover()
	if r == nil {
		return
	}
	observability.Sync()

	panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())
	if err := osWriteFile(panicLogFile, []byte(panicMessage), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
		fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
		osExit(cmd.ExitError)
		return
	}
	fmt.Fprintf(os.Stderr, "lancet crashed; details logged to %s\n", panicLogFile)
	osExit(cmd.ExitError)
}
