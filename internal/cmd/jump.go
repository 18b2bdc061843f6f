package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var jumpCmd = &cobra.Command{
	Use:   "jump <phase>",
	Short: "Jump forward past intermediate phases",
	Long: `Move the gate forward to a non-adjacent phase. The jump is refused
unless every intermediate phase has a verifiable completion marker; the
refusal names the first phase whose marker is missing. Backward jumps
are never allowed, use reset instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runJump,
}

func init() {
	rootCmd.AddCommand(jumpCmd)
}

func runJump(cmd *cobra.Command, args []string) error {
	eng, err := loadEngine()
	if err != nil {
		return err
	}
	defer eng.Close()

	p, err := eng.Jump(args[0])
	if err != nil {
		return fmt.Errorf("jump refused: %w", err)
	}

	fmt.Printf("Jumped to phase %q (%d of %d)\n", p.Name, p.Ordinal, len(eng.Machine().Phases()))
	return nil
}
