package rules

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"sync"

	"github.com/mitchellh/cli"

	"github.com/syrahproxy/syrah/internal/common"
	"github.com/syrahproxy/syrah/internal/rules"
	"github.com/syrahproxy/syrah/internal/rulestore"
)

// listEntry mirrors rules.Rule's persisted fields plus its runtime hit
// counter, which rules.Rule deliberately excludes from its own JSON tags.
type listEntry struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Type     rules.Type    `json:"type"`
	Phase    rules.Phase   `json:"phase"`
	Matcher  rules.Matcher `json:"matcher"`
	Action   rules.Action  `json:"action"`
	Enabled  bool          `json:"isEnabled"`
	Priority int           `json:"priority"`
	HitCount int64         `json:"hitCount"`
}

// ListCommand prints the persisted rule set as JSON, including each rule's
// hit counter.
type ListCommand struct {
	UI     cli.Ui
	output io.Writer
	ctx    context.Context

	flagFile string

	flagSet *flag.FlagSet
	once    sync.Once
}

// NewListCommand returns a new "rules list" command.
func NewListCommand(ctx context.Context, ui cli.Ui, logOutput io.Writer) *ListCommand {
	return &ListCommand{UI: ui, output: common.SynchronizeWriter(logOutput), ctx: ctx}
}

func (c *ListCommand) init() {
	c.flagSet = flag.NewFlagSet("", flag.ContinueOnError)
	c.flagSet.StringVar(&c.flagFile, "file", "", "Path to the persisted rule set.")
}

func (c *ListCommand) Run(args []string) int {
	c.once.Do(c.init)
	c.flagSet.SetOutput(c.output)
	if err := c.flagSet.Parse(args); err != nil {
		c.UI.Error("error parsing flags: " + err.Error())
		return 1
	}
	if c.flagFile == "" {
		c.UI.Error("error: -file must be set")
		return 1
	}

	set, err := rulestore.NewStore(c.flagFile).Load()
	if err != nil {
		c.UI.Error("error loading rule set: " + err.Error())
		return 1
	}

	entries := make([]listEntry, 0, len(set))
	for _, r := range set {
		entries = append(entries, listEntry{
			ID: r.ID, Name: r.Name, Type: r.Type, Phase: r.Phase,
			Matcher: r.Matcher, Action: r.Action, Enabled: r.Enabled,
			Priority: r.Priority, HitCount: r.HitCount(),
		})
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		c.UI.Error("error encoding rule set: " + err.Error())
		return 1
	}
	c.UI.Output(string(data))
	return 0
}

func (c *ListCommand) Synopsis() string {
	return "Lists the persisted rule set, including hit counts"
}

func (c *ListCommand) Help() string {
	return `
Usage: syrah rules list -file <rules.json>

  Prints the rule set persisted at -file as JSON.
`
}
