package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"tickos/xtimer"
)

var convertHZ uint32

var convertCmd = &cobra.Command{
	Use:   "convert MICROSECONDS...",
	Short: "Show tick conversions for a counter frequency",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hz := convertHZ
		if hz == 0 {
			hz = profile.Timer.HZ
		}
		conv, err := xtimer.NewConverter(hz)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%d Hz (%s)\n", hz, conv.Strategy())
		for _, a := range args {
			us, err := strconv.ParseUint(a, 10, 64)
			if err != nil {
				return fmt.Errorf("bad microseconds %q: %w", a, err)
			}
			ticks := conv.TicksFromUsec64(us)
			ceil := conv.TicksFromUsecCeil64(us)
			fmt.Fprintf(out, "%d us = %d ticks (ceil %d) -> %d us\n", us, ticks, ceil, conv.UsecFromTicks64(ticks))
		}
		return nil
	},
}

func init() {
	convertCmd.Flags().Uint32Var(&convertHZ, "hz", 0, "counter frequency (defaults to the profile)")
}
