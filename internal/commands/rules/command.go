// Package rules implements `syrah rules list|put|delete`, a small offline
// CLI over the same JSON file internal/rulestore loads at server startup
// and the bridge's "updateRules" command writes back to.
package rules

import (
	"context"
	"io"

	"github.com/mitchellh/cli"
)

// RegisterCommands installs the "rules", "rules list", "rules put", and
// "rules delete" entries into commands.
func RegisterCommands(ctx context.Context, commands map[string]cli.CommandFactory, ui cli.Ui, logOutput io.Writer) {
	commands["rules"] = func() (cli.Command, error) {
		return &groupCommand{}, nil
	}
	commands["rules list"] = func() (cli.Command, error) {
		return NewListCommand(ctx, ui, logOutput), nil
	}
	commands["rules put"] = func() (cli.Command, error) {
		return NewPutCommand(ctx, ui, logOutput), nil
	}
	commands["rules delete"] = func() (cli.Command, error) {
		return NewDeleteCommand(ctx, ui, logOutput), nil
	}
}

type groupCommand struct{}

func (c *groupCommand) Run(args []string) int {
	return cli.RunResultHelp
}

func (c *groupCommand) Synopsis() string {
	return "Manage the persisted rule set"
}

func (c *groupCommand) Help() string {
	return `
Usage: syrah rules <subcommand> [options]

  This command has subcommands for managing the JSON rule set a running
  server loads at startup (and reloads on a bridge "updateRules" command).

    $ syrah rules list -file rules.json

    $ syrah rules put -file rules.json -rule new-rule.json

    $ syrah rules delete -file rules.json -id abc123
`
}
