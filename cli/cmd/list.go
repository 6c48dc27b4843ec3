package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/MateoLopez004/Gobackup/cli/render"
)

// listWarningThreshold is the number of items above which we warn about using --limit.
const listWarningThreshold = 100

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// ListCommand returns the list command, which shows the archives the
// service holds.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List finished backup archives",
		Flags: append(QueryFlags(),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of archives to return (0 = no limit)",
				Value: 0,
			},
		),
		Action: listAction,
	}
}

func listAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	// TUI not supported for list
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for list command", 1)
	}

	client, err := queryClient(c)
	if err != nil {
		return err
	}

	list, err := client.ListBackups(c.Context)
	if err != nil {
		return cli.Exit(fmt.Sprintf("list backups: %v", err), 1)
	}

	results := list.Backups
	limit := c.Int("limit")
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	// Warn if output is large and --limit was not specified (TTY only to avoid noise in pipelines)
	if len(results) > listWarningThreshold && limit == 0 && isStderrTTY() {
		fmt.Fprintf(os.Stderr, "Warning: returning %d results. Consider using --limit to reduce output.\n\n", len(results))
	}

	return r.Render(results)
}
