package cmd

import (
	"strings"

	"github.com/Iron-Ham/phasegate/internal/config"
	"github.com/Iron-Ham/phasegate/internal/engine"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "phasegate",
	Short: "Phase-gated parallel task orchestration engine",
	Long: `Phasegate drives units of work through a fixed sequence of phases.
Within a phase, independent task groups run in parallel under an
assessed concurrency ceiling; between phases, a gate refuses to advance
until the scheduler has finished and every deliverable holds.`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/phasegate/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("PHASEGATE")
	// Replace dots with underscores for nested keys in env vars
	// e.g., PHASEGATE_LOGGING_LEVEL for logging.level
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

// loadEngine loads the validated configuration and assembles the engine.
func loadEngine() (*engine.Engine, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return engine.New(cfg)
}
