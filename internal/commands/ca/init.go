package ca

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sync"

	"github.com/mitchellh/cli"

	"github.com/syrahproxy/syrah/internal/ca"
	"github.com/syrahproxy/syrah/internal/common"
	"github.com/syrahproxy/syrah/internal/config"
)

// InitCommand creates the root CA under -ca-dir if it does not already
// exist, and is a no-op (beyond reporting the existing CA's subject) if it
// does: ca.Store.Load already implements load_or_create.
type InitCommand struct {
	UI     cli.Ui
	output io.Writer
	ctx    context.Context

	flagCADir string

	flagSet *flag.FlagSet
	once    sync.Once
}

// NewInitCommand returns a new "ca init" command.
func NewInitCommand(ctx context.Context, ui cli.Ui, logOutput io.Writer) *InitCommand {
	return &InitCommand{UI: ui, output: common.SynchronizeWriter(logOutput), ctx: ctx}
}

func (c *InitCommand) init() {
	c.flagSet = flag.NewFlagSet("", flag.ContinueOnError)
	c.flagSet.StringVar(&c.flagCADir, "ca-dir", config.Default().CADir, "Directory to hold the root CA's key and certificate artifacts.")
}

func (c *InitCommand) Run(args []string) int {
	c.once.Do(c.init)
	c.flagSet.SetOutput(c.output)
	if err := c.flagSet.Parse(args); err != nil {
		c.UI.Error("error parsing flags: " + err.Error())
		return 1
	}

	store := ca.NewStore(c.flagCADir)
	material, err := store.Load()
	if err != nil {
		c.UI.Error("error loading or creating root CA: " + err.Error())
		return 1
	}

	c.UI.Output(fmt.Sprintf("root CA ready in %s (subject: %s)", c.flagCADir, material.Cert.Subject.CommonName))
	return 0
}

func (c *InitCommand) Synopsis() string {
	return "Creates the root CA if it does not already exist"
}

func (c *InitCommand) Help() string {
	return `
Usage: syrah ca init [options]

  Loads the root CA from -ca-dir, generating and persisting a new one if
  none is present.
`
}
