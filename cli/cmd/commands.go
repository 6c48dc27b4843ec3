package cmd

import "github.com/urfave/cli/v2"

// Commands returns every gobackup command. Only run and cleanup change
// server state.
func Commands(commit string) []*cli.Command {
	return []*cli.Command{
		RunCommand(),
		StatusCommand(),
		ListCommand(),
		HealthCommand(),
		StatsCommand(),
		CleanupCommand(),
		ReplayCommand(),
		VersionCommand(commit),
	}
}
