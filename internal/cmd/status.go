package cmd

import (
	"fmt"
	"strings"

	errs "github.com/Iron-Ham/phasegate/internal/errors"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active phase and gate readiness",
	Long: `Display the active phase, its lane, whether the gate to the next
phase is satisfied, and the resource locks currently held.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	eng, err := loadEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	st, err := eng.Status()
	if err != nil {
		if errs.Is(err, errs.ErrPhaseUninitialized) {
			fmt.Println("No active phase. Run 'phasegate init' to start.")
			return nil
		}
		return err
	}

	fmt.Printf("Phase: %s (%d of %d)\n", st.Phase.Name, st.Phase.Ordinal, len(eng.Machine().Phases()))
	fmt.Printf("Lane: %s\n", strings.Join(st.Phase.Lane, ", "))
	if st.Phase.MaxWorkers > 0 {
		fmt.Printf("Worker ceiling: %d\n", st.Phase.MaxWorkers)
	}

	if st.RunComplete {
		fmt.Println("Scheduler run: complete")
	} else {
		fmt.Println("Scheduler run: not complete")
	}

	if len(st.Unmet) == 0 {
		fmt.Println("Deliverables: all hold")
	} else {
		fmt.Printf("Deliverables: %d unmet\n", len(st.Unmet))
		for _, d := range st.Unmet {
			fmt.Printf("  - %s (%s)\n", d.Name, d.Path)
		}
	}

	if len(st.Holdings) > 0 {
		fmt.Printf("\nHeld locks:\n")
		for _, h := range st.Holdings {
			fmt.Printf("  %s held by %s\n", h.Resource, h.Holder)
		}
	}

	return nil
}
