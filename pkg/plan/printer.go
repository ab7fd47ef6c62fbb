// pkg/plan/printer.go
package plan

import (
	"fmt"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/David-Botos/snowplan/pkg/model"
)

// Render formats a plan for terminal output. Verbose mode adds the
// synthesized alter statements and a unified diff of current against
// desired text for each modified item.
func Render(p *model.Plan, verbose bool) string {
	var b strings.Builder
	banner := strings.Repeat("-", 22)
	fmt.Fprintf(&b, "%s PLAN %s\n", banner, banner)

	if p.Empty() {
		b.WriteString("No changes. Definitions match the recorded state.\n")
		return b.String()
	}

	if len(p.NewObjects) > 0 {
		b.WriteString("\nAdd:\n")
		for _, obj := range p.NewObjects {
			writeItem(&b, obj.FQN, obj.Validation, obj.Message)
		}
	}

	if len(p.ModifiedObjects) > 0 {
		b.WriteString("\nModify:\n")
		for _, obj := range p.ModifiedObjects {
			writeItem(&b, obj.FQN, obj.Validation, obj.Message)
			if !verbose {
				continue
			}
			for _, stmt := range obj.AlterSQL {
				fmt.Fprintf(&b, "      %s\n", stmt)
			}
			writeDiff(&b, obj)
		}
	}

	if len(p.DeletedObjects) > 0 {
		b.WriteString("\nDrop:\n")
		for _, obj := range p.DeletedObjects {
			writeItem(&b, obj.FQN, obj.Validation, obj.Message...)
		}
	}

	adds, mods, drops := p.Counts()
	fmt.Fprintf(&b, "\nPlan: %d to add, %d to modify, %d to drop.\n", adds, mods, drops)
	return b.String()
}

func writeItem(b *strings.Builder, fqn, validation string, messages ...string) {
	if validation == "" {
		fmt.Fprintf(b, "  • %s\n", fqn)
	} else {
		fmt.Fprintf(b, "  • %s [%s]\n", fqn, validation)
	}
	for _, message := range messages {
		if message != "" {
			fmt.Fprintf(b, "      %s\n", message)
		}
	}
}

func writeDiff(b *strings.Builder, obj model.ModifiedObject) {
	if obj.CurrentDDL == "" {
		return
	}

	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(obj.CurrentDDL),
		B:        difflib.SplitLines(obj.DDL),
		FromFile: "state",
		ToFile:   obj.FilePath,
		Context:  3,
	})
	if err != nil || text == "" {
		return
	}
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		fmt.Fprintf(b, "      %s\n", line)
	}
}
