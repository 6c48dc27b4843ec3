package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/MateoLopez004/Gobackup/cli/render"
	"github.com/MateoLopez004/Gobackup/cli/tui"
	"github.com/MateoLopez004/Gobackup/remote"
)

// StatsCommand returns the stats command with subcommands.
// Stats are aggregated by the service; the CLI only renders them.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show backup statistics (summary, history, filetypes, server)",
		Subcommands: []*cli.Command{
			statsCommand("summary", "Show aggregated backup statistics", tui.ViewStatsSummary,
				func(c *cli.Context, client *remote.Client) (any, error) { return client.StatsSummary(c.Context) }),
			statsCommand("history", "Show past backup jobs", tui.ViewStatsHistory,
				func(c *cli.Context, client *remote.Client) (any, error) { return client.StatsHistory(c.Context) }),
			statsCommand("filetypes", "Show backed-up bytes by file type", tui.ViewStatsFileTypes,
				func(c *cli.Context, client *remote.Client) (any, error) { return client.StatsFileTypes(c.Context) }),
			statsCommand("server", "Show service disk and directory usage", "stats_server",
				func(c *cli.Context, client *remote.Client) (any, error) { return client.ServerStats(c.Context) }),
		},
	}
}

type statsFetch func(c *cli.Context, client *remote.Client) (any, error)

func statsCommand(name, usage, viewType string, fetch statsFetch) *cli.Command {
	return &cli.Command{
		Name:   name,
		Usage:  usage,
		Flags:  QueryFlags(),
		Action: statsAction(name, viewType, fetch),
	}
}

func statsAction(name, viewType string, fetch statsFetch) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}
		if c.Bool("tui") && !tui.IsTUISupported(viewType) {
			return cli.Exit(fmt.Sprintf("--tui is not supported for stats %s", name), 1)
		}

		client, err := queryClient(c)
		if err != nil {
			return err
		}
		data, err := fetch(c, client)
		if err != nil {
			return cli.Exit(fmt.Sprintf("stats %s: %v", name, err), 1)
		}

		if c.Bool("tui") {
			return r.RenderTUI(viewType, data)
		}
		// Table output of the history list reads better row by row.
		if h, ok := data.(*remote.History); ok && r.Format() == render.FormatTable {
			return r.Render(h.Backups)
		}
		if ft, ok := data.(*remote.FileTypes); ok && r.Format() == render.FormatTable {
			return r.Render(ft.FileTypes)
		}
		return r.Render(data)
	}
}
