// Package version implements `syrah version`.
package version

import (
	"fmt"

	"github.com/mitchellh/cli"
)

// Command prints the binary's version string.
type Command struct {
	UI      cli.Ui
	Version string
}

func (c *Command) Run(_ []string) int {
	c.UI.Output(fmt.Sprintf("syrah %s", c.Version))
	return 0
}

func (c *Command) Synopsis() string {
	return "Prints the version"
}

func (c *Command) Help() string {
	return "Usage: syrah version\n\n  Prints the running syrah binary's version."
}
