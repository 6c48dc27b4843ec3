// Package cmd provides CLI commands for the gobackup binary.
package cmd

import (
	"time"

	"github.com/urfave/cli/v2"
)

// DefaultServer is used when neither --server, GOBACKUP_SERVER nor the
// config file names a service.
const DefaultServer = "http://localhost:8080"

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for stats summary, history and filetypes.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (stats only)",
	}
)

// ServerFlags returns the flags that locate the gobackup service.
func ServerFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to gobackup.yaml",
			EnvVars: []string{"GOBACKUP_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "gobackup service URL",
			Value:   DefaultServer,
			EnvVars: []string{"GOBACKUP_SERVER"},
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "Per-request timeout for status and metadata calls",
			Value: 30 * time.Second,
		},
	}
}

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// QueryFlags returns the flags for read-only commands that contact the service.
func QueryFlags() []cli.Flag {
	return append(ServerFlags(), ReadOnlyFlags()...)
}
