// Package ca implements `syrah ca init` and `syrah ca export`.
package ca

import (
	"context"
	"io"

	"github.com/mitchellh/cli"
)

// RegisterCommands installs the "ca", "ca init", and "ca export" entries
// into commands, following the per-resource command-group layout used
// throughout this CLI (a group command returning cli.RunResultHelp plus
// flat dotted-key subcommands).
func RegisterCommands(ctx context.Context, commands map[string]cli.CommandFactory, ui cli.Ui, logOutput io.Writer) {
	commands["ca"] = func() (cli.Command, error) {
		return &groupCommand{}, nil
	}
	commands["ca init"] = func() (cli.Command, error) {
		return NewInitCommand(ctx, ui, logOutput), nil
	}
	commands["ca export"] = func() (cli.Command, error) {
		return NewExportCommand(ctx, ui, logOutput), nil
	}
}

type groupCommand struct{}

func (c *groupCommand) Run(args []string) int {
	return cli.RunResultHelp
}

func (c *groupCommand) Synopsis() string {
	return "Manage the root CA used for TLS interception"
}

func (c *groupCommand) Help() string {
	return `
Usage: syrah ca <subcommand> [options]

  This command has subcommands for managing the root CA's key material.

    $ syrah ca init -ca-dir ~/.syrah

    $ syrah ca export -ca-dir ~/.syrah -format pem -out ca.pem
`
}
