package cmd

import (
	"fmt"

	"github.com/Iron-Ham/phasegate/internal/config"
	"github.com/Iron-Ham/phasegate/internal/engine"
	errs "github.com/Iron-Ham/phasegate/internal/errors"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and the current phase gate",
	Long: `Load the configuration and run the full schema validation:
unknown dependency targets, undefined group references, dependency
cycles, malformed globs and unknown rule keywords are all reported.

When a phase is active, the gate to the next phase is checked as well:
whether the scheduler run completed and which deliverables are unmet.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration invalid:\n%w", err)
	}

	phases := cfg.PhaseList()
	groups := 0
	for _, p := range phases {
		groups += len(cfg.GroupsFor(p.Name))
	}

	fmt.Println("Configuration valid.")
	fmt.Printf("Phases: %d, groups: %d, conflict rules: %d, downgrade rules: %d\n",
		len(phases), groups, len(cfg.ConflictRules), len(cfg.Downgrade.Rules))

	return validateGate(cfg)
}

// validateGate reports the active phase's readiness against its gate.
func validateGate(cfg *config.Config) error {
	eng, err := engine.New(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	st, err := eng.Status()
	if err != nil {
		if errs.Is(err, errs.ErrPhaseUninitialized) {
			fmt.Println("No active phase to check. Run 'phasegate init' to start.")
			return nil
		}
		return err
	}

	fmt.Printf("\nActive phase: %s (%d of %d)\n", st.Phase.Name, st.Phase.Ordinal, len(eng.Machine().Phases()))
	if st.RunComplete && len(st.Unmet) == 0 {
		fmt.Println("Gate: satisfied, the phase can advance")
		return nil
	}

	fmt.Println("Gate: not satisfied")
	if !st.RunComplete {
		fmt.Println("  - scheduler run not complete")
	}
	for _, d := range st.Unmet {
		fmt.Printf("  - deliverable %s missing (%s)\n", d.Name, d.Path)
	}
	return nil
}
