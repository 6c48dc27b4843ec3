package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/MateoLopez004/Gobackup/cli/render"
)

// StatusCommand returns the status command, a single read of the
// service's job status.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show the current backup job status",
		Flags:  QueryFlags(),
		Action: statusAction,
	}
}

func statusAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for status command", 1)
	}

	client, err := queryClient(c)
	if err != nil {
		return err
	}
	snap, err := client.Status(c.Context)
	if err != nil {
		return cli.Exit(fmt.Sprintf("status: %v", err), 1)
	}
	return r.Render(snap)
}

// HealthCommand returns the health command. It exits 1 when the service
// is down or unreachable.
func HealthCommand() *cli.Command {
	return &cli.Command{
		Name:   "health",
		Usage:  "Check service health",
		Flags:  QueryFlags(),
		Action: healthAction,
	}
}

func healthAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for health command", 1)
	}

	client, err := queryClient(c)
	if err != nil {
		return err
	}
	h, err := client.Health(c.Context)
	if h == nil {
		return cli.Exit(fmt.Sprintf("health: %v", err), 1)
	}
	if rerr := r.Render(h); rerr != nil {
		return rerr
	}
	if !h.Up() {
		return cli.Exit("", 1)
	}
	return nil
}

// CleanupCommand returns the cleanup command, which deletes a session's
// uploads and archive on the service.
func CleanupCommand() *cli.Command {
	return &cli.Command{
		Name:      "cleanup",
		Usage:     "Delete a session's files on the service",
		ArgsUsage: "<session-id>",
		Flags:     ServerFlags(),
		Action:    cleanupAction,
	}
}

func cleanupAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("cleanup requires exactly one session id", 1)
	}
	sessionID := c.Args().First()

	client, err := queryClient(c)
	if err != nil {
		return err
	}
	if err := client.Cleanup(c.Context, sessionID); err != nil {
		return cli.Exit(fmt.Sprintf("cleanup %s: %v", sessionID, err), 1)
	}
	fmt.Fprintf(c.App.Writer, "session %s cleaned up\n", sessionID)
	return nil
}
