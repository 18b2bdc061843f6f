package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset to the first phase",
	Long: `Clear the phase pointer, all completion markers and run records,
and start over at the first phase.`,
	RunE: runReset,
}

func init() {
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	eng, err := loadEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	p, err := eng.Reset()
	if err != nil {
		return fmt.Errorf("failed to reset: %w", err)
	}

	fmt.Printf("Reset to phase %q\n", p.Name)
	return nil
}
