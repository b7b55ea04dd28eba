package rules

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"sync"

	"github.com/mitchellh/cli"

	"github.com/syrahproxy/syrah/internal/common"
	"github.com/syrahproxy/syrah/internal/rules"
	"github.com/syrahproxy/syrah/internal/rulestore"
)

// PutCommand inserts or replaces (by ID) a single rule in the persisted
// rule set at -file, reading the new rule's definition from -rule.
type PutCommand struct {
	UI     cli.Ui
	output io.Writer
	ctx    context.Context

	flagFile string
	flagRule string

	flagSet *flag.FlagSet
	once    sync.Once
}

// NewPutCommand returns a new "rules put" command.
func NewPutCommand(ctx context.Context, ui cli.Ui, logOutput io.Writer) *PutCommand {
	return &PutCommand{UI: ui, output: common.SynchronizeWriter(logOutput), ctx: ctx}
}

func (c *PutCommand) init() {
	c.flagSet = flag.NewFlagSet("", flag.ContinueOnError)
	c.flagSet.StringVar(&c.flagFile, "file", "", "Path to the persisted rule set.")
	c.flagSet.StringVar(&c.flagRule, "rule", "", "Path to a JSON file containing the rule to insert or replace.")
}

func (c *PutCommand) Run(args []string) int {
	c.once.Do(c.init)
	c.flagSet.SetOutput(c.output)
	if err := c.flagSet.Parse(args); err != nil {
		c.UI.Error("error parsing flags: " + err.Error())
		return 1
	}
	if c.flagFile == "" || c.flagRule == "" {
		c.UI.Error("error: -file and -rule must both be set")
		return 1
	}

	data, err := os.ReadFile(c.flagRule)
	if err != nil {
		c.UI.Error("error reading rule file: " + err.Error())
		return 1
	}
	var raw rules.Rule
	if err := json.Unmarshal(data, &raw); err != nil {
		c.UI.Error("error parsing rule file: " + err.Error())
		return 1
	}
	if raw.ID == "" {
		c.UI.Error("error: rule must have a non-empty id")
		return 1
	}
	r := rules.NewRule(raw.ID, raw.Name, raw.Type, raw.Phase, raw.Matcher, raw.Action, raw.Priority)
	r.Enabled = raw.Enabled

	store := rulestore.NewStore(c.flagFile)
	set, err := store.Load()
	if err != nil {
		c.UI.Error("error loading rule set: " + err.Error())
		return 1
	}

	replaced := false
	for i, existing := range set {
		if existing.ID == r.ID {
			set[i] = r
			replaced = true
			break
		}
	}
	if !replaced {
		set = append(set, r)
	}

	if err := store.Save(set); err != nil {
		c.UI.Error("error saving rule set: " + err.Error())
		return 1
	}

	if replaced {
		c.UI.Output("replaced rule " + r.ID)
	} else {
		c.UI.Output("added rule " + r.ID)
	}
	return 0
}

func (c *PutCommand) Synopsis() string {
	return "Inserts or replaces a rule in the persisted rule set"
}

func (c *PutCommand) Help() string {
	return `
Usage: syrah rules put -file <rules.json> -rule <rule.json>

  Inserts the rule in -rule into the set in -file, replacing any existing
  rule with the same id.
`
}
