// Package main provides the gobackup CLI entrypoint.
//
// Usage:
//
//	gobackup <command> [subcommand] [options]
//
// Exit codes for `run`:
//   - 0: archive retrieved
//   - 1: nothing uploaded, or the trigger failed
//   - 2: polling timed out
//   - 3: metadata fetch or delivery failed
//   - 130: interrupted
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/MateoLopez004/Gobackup/cli/cmd"
	"github.com/MateoLopez004/Gobackup/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

// Replaced in tests.
var (
	exit             = os.Exit
	stderr io.Writer = os.Stderr
)

func main() {
	app := &cli.App{
		Name:           "gobackup",
		Usage:          "Upload files to a gobackup service and retrieve the archive",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands:       cmd.Commands(commit),
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		os.Exit(1)
	}
}

// exitErrHandler preserves exit codes from cli.Exit so run outcomes reach
// the shell.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() returns "exit status N"; skip those.
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(stderr, msg)
		}
		exit(code)
		return
	}

	fmt.Fprintf(stderr, "Error: %v\n", err)
	exit(1)
}
