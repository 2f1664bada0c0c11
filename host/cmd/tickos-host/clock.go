package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"tickos/host/mcu"
)

var (
	clockDevice   string
	clockSamples  int
	clockInterval time.Duration
)

var clockCmd = &cobra.Command{
	Use:   "clock",
	Short: "Measure a device's timer against the host clock",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		client, err := mcu.Open(ctx, profile.SerialConfig(clockDevice),
			mcu.WithLoggerFactory(profile.LoggerFactory(os.Stderr)))
		if err != nil {
			return err
		}
		defer client.Close()

		cfg, err := client.GetConfig(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "device: hz=%d width=%d backoff=%d isr_backoff=%d overhead=%d\n",
			cfg.HZ, cfg.Width, cfg.Backoff, cfg.ISRBackoff, cfg.Overhead)

		cs := mcu.NewClockSync(client)
		for i := 0; i < clockSamples; i++ {
			if i > 0 {
				select {
				case <-time.After(clockInterval):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if err := cs.Sample(ctx); err != nil {
				return err
			}
		}
		freq, err := cs.Frequency()
		if err != nil {
			return err
		}
		ppm, _ := cs.DriftPPM(cfg.HZ)
		fmt.Fprintf(out, "measured: %.1f Hz (%+.1f ppm) over %d samples\n", freq, ppm, cs.Samples())

		st, err := client.GetTimerStats(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "timers: active=%d fired=%d late=%d spins=%d overflows=%d\n",
			st.Active, st.Fired, st.Late, st.Spins, st.Overflows)
		return nil
	},
}

func init() {
	clockCmd.Flags().StringVarP(&clockDevice, "device", "d", "", "serial device (overrides the profile)")
	clockCmd.Flags().IntVarP(&clockSamples, "samples", "n", 10, "number of clock samples")
	clockCmd.Flags().DurationVar(&clockInterval, "interval", 100*time.Millisecond, "time between samples")
}
