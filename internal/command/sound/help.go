package sound

import (
	"fmt"
	"sort"
	"strings"

	"soundbort/internal/command"
)

type HelpCommand struct{}

func (HelpCommand) Name() string        { return "help" }
func (HelpCommand) Aliases() []string   { return nil }
func (HelpCommand) Description() string { return "Show this help." }
func (HelpCommand) Usage() string       { return "help" }

func (c HelpCommand) Run(ctx *command.Context) error {
	cmds := command.All()
	sort.Slice(cmds, func(i, j int) bool { return cmds[i].Name() < cmds[j].Name() })

	var b strings.Builder
	b.WriteString("**Commands**\n")
	for _, cmd := range cmds {
		fmt.Fprintf(&b, "`%s` — %s\n", cmd.Usage(), cmd.Description())
	}
	return ctx.Reply(b.String())
}
