package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the phase pointer",
	Long: `Initialize the workflow at its first phase.
This creates the state directory and writes the phase pointer. It fails
if a unit of work is already in progress.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	eng, err := loadEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	p, err := eng.Init()
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}

	fmt.Printf("Initialized at phase %q (%d of %d)\n", p.Name, p.Ordinal, len(eng.Machine().Phases()))
	return nil
}
