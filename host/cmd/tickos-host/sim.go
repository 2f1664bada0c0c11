package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"tickos/host/sim"
)

var (
	simDuration time.Duration
	simPeriod   uint32
	simEvent    uint32
	simMetrics  string
	simTrace    bool
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Run the timer subsystem on the host clock",
	RunE: func(cmd *cobra.Command, args []string) error {
		listen := simMetrics
		if listen == "" {
			listen = profile.Metrics.Listen
		}
		opts := sim.Options{
			Profile:       profile,
			Duration:      simDuration,
			PeriodUs:      simPeriod,
			EventMs:       simEvent,
			MetricsListen: listen,
			Logger:        profile.LoggerFactory(os.Stderr),
		}
		if simTrace {
			opts.Trace = cmd.OutOrStdout()
		}
		rep, err := sim.Run(cmd.Context(), opts)
		if err != nil {
			return err
		}
		rep.Print(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	simCmd.Flags().DurationVar(&simDuration, "duration", 2*time.Second, "how long to run")
	simCmd.Flags().Uint32Var(&simPeriod, "period", 10000, "periodic wakeup interval in microseconds")
	simCmd.Flags().Uint32Var(&simEvent, "event", 100, "evtimer event interval in milliseconds")
	simCmd.Flags().StringVar(&simMetrics, "metrics", "", "serve Prometheus metrics on this address")
	simCmd.Flags().BoolVar(&simTrace, "trace", false, "dump the timer trace ring at the end")
}
