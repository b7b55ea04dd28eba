package rules

import (
	"context"
	"flag"
	"io"
	"sync"

	"github.com/mitchellh/cli"

	"github.com/syrahproxy/syrah/internal/common"
	"github.com/syrahproxy/syrah/internal/rules"
	"github.com/syrahproxy/syrah/internal/rulestore"
)

// DeleteCommand removes a single rule, by ID, from the persisted rule set
// at -file.
type DeleteCommand struct {
	UI     cli.Ui
	output io.Writer
	ctx    context.Context

	flagFile string
	flagID   string

	flagSet *flag.FlagSet
	once    sync.Once
}

// NewDeleteCommand returns a new "rules delete" command.
func NewDeleteCommand(ctx context.Context, ui cli.Ui, logOutput io.Writer) *DeleteCommand {
	return &DeleteCommand{UI: ui, output: common.SynchronizeWriter(logOutput), ctx: ctx}
}

func (c *DeleteCommand) init() {
	c.flagSet = flag.NewFlagSet("", flag.ContinueOnError)
	c.flagSet.StringVar(&c.flagFile, "file", "", "Path to the persisted rule set.")
	c.flagSet.StringVar(&c.flagID, "id", "", "ID of the rule to remove.")
}

func (c *DeleteCommand) Run(args []string) int {
	c.once.Do(c.init)
	c.flagSet.SetOutput(c.output)
	if err := c.flagSet.Parse(args); err != nil {
		c.UI.Error("error parsing flags: " + err.Error())
		return 1
	}
	if c.flagFile == "" || c.flagID == "" {
		c.UI.Error("error: -file and -id must both be set")
		return 1
	}

	store := rulestore.NewStore(c.flagFile)
	set, err := store.Load()
	if err != nil {
		c.UI.Error("error loading rule set: " + err.Error())
		return 1
	}

	out := make([]*rules.Rule, 0, len(set))
	found := false
	for _, r := range set {
		if r.ID == c.flagID {
			found = true
			continue
		}
		out = append(out, r)
	}
	if !found {
		c.UI.Error("error: no rule with id " + c.flagID)
		return 1
	}

	if err := store.Save(out); err != nil {
		c.UI.Error("error saving rule set: " + err.Error())
		return 1
	}

	c.UI.Output("deleted rule " + c.flagID)
	return 0
}

func (c *DeleteCommand) Synopsis() string {
	return "Removes a rule from the persisted rule set"
}

func (c *DeleteCommand) Help() string {
	return `
Usage: syrah rules delete -file <rules.json> -id <id>

  Removes the rule with the given id from the set in -file.
`
}
