package main

import (
	"github.com/spf13/cobra"

	"tickos/config"
)

var (
	profileFlag  string
	logLevelFlag string

	profile *config.Profile
)

var rootCmd = &cobra.Command{
	Use:   "tickos-host",
	Short: "Timer subsystem simulator and device client",
	Long: `tickos-host drives a virtual timer subsystem.

  sim      run the subsystem on the host clock and report wakeup jitter
  clock    measure a device's counter against the host clock
  convert  show tick and microsecond conversions for a counter frequency`,
	PersistentPreRunE: loadProfile,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&profileFlag, "config", "c", "", "board profile (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "override the profile log level")

	rootCmd.AddCommand(simCmd, clockCmd, convertCmd)
}

func loadProfile(cmd *cobra.Command, args []string) error {
	var err error
	if profileFlag == "" {
		profile = config.Default()
	} else if profile, err = config.LoadFile(profileFlag); err != nil {
		return err
	}
	if logLevelFlag != "" {
		if _, err := config.ParseLogLevel(logLevelFlag); err != nil {
			return err
		}
		profile.Log.Level = logLevelFlag
	}
	return nil
}
