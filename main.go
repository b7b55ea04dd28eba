package main

import (
	"context"
	"io"
	"log"
	"os"

	"github.com/mitchellh/cli"

	cmdCA "github.com/syrahproxy/syrah/internal/commands/ca"
	cmdRules "github.com/syrahproxy/syrah/internal/commands/rules"
	cmdServer "github.com/syrahproxy/syrah/internal/commands/server"
	cmdVersion "github.com/syrahproxy/syrah/internal/commands/version"

	"github.com/syrahproxy/syrah/internal/version"
)

func main() {
	ui := &cli.BasicUi{Writer: os.Stdout, ErrorWriter: os.Stderr}
	os.Exit(run(os.Args[1:], ui, os.Stdout))
}

func run(args []string, ui cli.Ui, logOutput io.Writer) int {
	c := cli.NewCLI("syrah", version.GetHumanVersion())
	c.Args = args
	c.Commands = initializeCommands(ui, logOutput)
	c.HelpFunc = helpFunc(c.Commands)
	c.HelpWriter = logOutput

	exitStatus, err := c.Run()
	if err != nil {
		log.Println(err)
	}
	return exitStatus
}

func initializeCommands(ui cli.Ui, logOutput io.Writer) map[string]cli.CommandFactory {
	ctx := context.Background()

	commands := map[string]cli.CommandFactory{
		"server": func() (cli.Command, error) {
			return cmdServer.New(ctx, ui, logOutput), nil
		},
		"version": func() (cli.Command, error) {
			return &cmdVersion.Command{UI: ui, Version: version.GetHumanVersion()}, nil
		},
	}

	cmdCA.RegisterCommands(ctx, commands, ui, logOutput)
	cmdRules.RegisterCommands(ctx, commands, ui, logOutput)

	return commands
}

func helpFunc(commands map[string]cli.CommandFactory) cli.HelpFunc {
	var include []string
	for k := range commands {
		include = append(include, k)
	}
	return cli.FilteredHelpFunc(include, cli.BasicHelpFunc("syrah"))
}
