package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var advanceCmd = &cobra.Command{
	Use:   "advance",
	Short: "Advance to the next phase",
	Long: `Move the gate from the active phase to the next one. The advance is
refused unless the scheduler run completed and every deliverable holds;
the refusal names the unmet condition. Completing the final phase
clears the pointer entirely.`,
	RunE: runAdvance,
}

func init() {
	rootCmd.AddCommand(advanceCmd)
}

func runAdvance(cmd *cobra.Command, args []string) error {
	eng, err := loadEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	p, err := eng.Advance()
	if err != nil {
		return fmt.Errorf("advance refused: %w", err)
	}

	if p.Name == "" {
		fmt.Println("Final phase complete. Phase pointer cleared.")
		return nil
	}
	fmt.Printf("Advanced to phase %q (%d of %d)\n", p.Name, p.Ordinal, len(eng.Machine().Phases()))
	return nil
}
