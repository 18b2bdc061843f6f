package cmd

import (
	"fmt"
	"strings"

	"github.com/Iron-Ham/phasegate/internal/assess"
	errs "github.com/Iron-Ham/phasegate/internal/errors"
	"github.com/spf13/cobra"
)

var assessCmd = &cobra.Command{
	Use:   "assess <description>",
	Short: "Score a task description into a concurrency recommendation",
	Long: `Run the impact assessor over a task description. The first matching
risk pattern supplies the (risk, complexity, scope) triple, the triple
combines into a 0-100 impact radius, and the radius category maps to a
recommended worker count. Uses the active phase's risk table when a
phase is active, the built-in defaults otherwise.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAssess,
}

func init() {
	rootCmd.AddCommand(assessCmd)
}

func runAssess(cmd *cobra.Command, args []string) error {
	eng, err := loadEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	description := strings.Join(args, " ")

	a, err := eng.Assess(description)
	if errs.Is(err, errs.ErrPhaseUninitialized) {
		a = assess.Assess(description, assess.Table{})
	} else if err != nil {
		return err
	}

	fmt.Printf("Risk: %d  Complexity: %d  Scope: %d\n", a.Risk, a.Complexity, a.Scope)
	fmt.Printf("Impact radius: %d (%s)\n", a.Radius, a.Category)
	fmt.Printf("Recommended workers: %d\n", a.Workers)
	if a.MatchedPattern != "" {
		fmt.Printf("Matched pattern: %q\n", a.MatchedPattern)
	} else {
		fmt.Println("No risk pattern matched; default triple applied.")
	}
	return nil
}
