package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/freezegate/freezegate/internal/clock"
	"github.com/freezegate/freezegate/internal/template"
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "inspect and lint freeze schedule templates",
}

var templateValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "lint a templates record before it is applied",
	Args:  cobra.ExactArgs(1),
	RunE:  runTemplateValidate,
}

func init() {
	templateCmd.AddCommand(templateValidateCmd)
	rootCmd.AddCommand(templateCmd)
}

// runTemplateValidate decodes the given YAML body the same way the
// Template Engine does, then renders every template with its declared
// defaults (no override parameters) so a malformed cron expression or an
// end before start surfaces before an operator ever PATCHes the
// templates record.
func runTemplateValidate(cmd *cobra.Command, args []string) error {
	body, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("template validate: read %s: %w", args[0], err)
	}

	templates, err := template.Decode(string(body))
	if err != nil {
		return fmt.Errorf("template validate: decode: %w", err)
	}
	if len(templates) == 0 {
		return fmt.Errorf("template validate: %s declares no templates", args[0])
	}

	engine := template.NewEngine(clock.Fixed{At: time.Now().UTC()}, templates)

	var failures int
	for _, t := range templates {
		if _, err := engine.ApplyTemplate(t.Name, template.Parameters{}); err != nil {
			failures++
			fmt.Printf("FAIL %s: %v\n", t.Name, err)
			continue
		}
		fmt.Printf("OK   %s\n", t.Name)
	}
	if failures > 0 {
		return fmt.Errorf("template validate: %d of %d templates failed", failures, len(templates))
	}
	return nil
}
