package ca

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mitchellh/cli"

	"github.com/syrahproxy/syrah/internal/ca"
	"github.com/syrahproxy/syrah/internal/common"
	"github.com/syrahproxy/syrah/internal/config"
)

// ExportCommand writes the root CA certificate (and, for the p12 format,
// the key too) to -out in the requested format, for installation into an
// OS or browser trust store.
type ExportCommand struct {
	UI     cli.Ui
	output io.Writer
	ctx    context.Context

	flagCADir  string
	flagFormat string
	flagOut    string

	flagSet *flag.FlagSet
	once    sync.Once
}

// NewExportCommand returns a new "ca export" command.
func NewExportCommand(ctx context.Context, ui cli.Ui, logOutput io.Writer) *ExportCommand {
	return &ExportCommand{UI: ui, output: common.SynchronizeWriter(logOutput), ctx: ctx}
}

func (c *ExportCommand) init() {
	c.flagSet = flag.NewFlagSet("", flag.ContinueOnError)
	c.flagSet.StringVar(&c.flagCADir, "ca-dir", config.Default().CADir, "Directory holding the root CA's key and certificate artifacts.")
	c.flagSet.StringVar(&c.flagFormat, "format", "pem", "Export format: pem, der, or p12.")
	c.flagSet.StringVar(&c.flagOut, "out", "", "Path to write the exported certificate to.")
}

func (c *ExportCommand) Run(args []string) int {
	c.once.Do(c.init)
	c.flagSet.SetOutput(c.output)
	if err := c.flagSet.Parse(args); err != nil {
		c.UI.Error("error parsing flags: " + err.Error())
		return 1
	}
	if c.flagOut == "" {
		c.UI.Error("error: -out must be set")
		return 1
	}

	format, err := parseFormat(c.flagFormat)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}

	store := ca.NewStore(c.flagCADir)
	if _, err := store.Load(); err != nil {
		c.UI.Error("error loading root CA: " + err.Error())
		return 1
	}

	data, err := store.Export(format)
	if err != nil {
		c.UI.Error("error exporting root CA: " + err.Error())
		return 1
	}
	if err := os.WriteFile(c.flagOut, data, 0o644); err != nil {
		c.UI.Error("error writing export file: " + err.Error())
		return 1
	}

	c.UI.Output(fmt.Sprintf("wrote %s (%s) to %s", c.flagFormat, c.flagCADir, c.flagOut))
	return 0
}

func parseFormat(s string) (ca.Format, error) {
	switch ca.Format(s) {
	case ca.FormatPEM, ca.FormatDER, ca.FormatP12:
		return ca.Format(s), nil
	default:
		return "", errors.New("error: -format must be one of pem, der, p12")
	}
}

func (c *ExportCommand) Synopsis() string {
	return "Exports the root CA certificate for trust-store installation"
}

func (c *ExportCommand) Help() string {
	return `
Usage: syrah ca export [options]

  Writes the root CA certificate in the requested format to -out.
`
}
