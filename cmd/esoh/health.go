package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/charlie0129/esoh/pkg/hostbattery"
)

func NewHealthCommand() *cobra.Command {
	var (
		history    bool
		snapshot   bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "health",
		Short:   "Show the capacity retention of this machine's battery",
		GroupID: gInspect,
		Long: `Show the capacity retention of this machine's battery, that is the full
charge capacity over the design capacity, as reported by the operating system.

--history prints the snapshots the daemon recorded on its schedule, and
--snapshot asks the daemon to record one now. 'esoh health schedule' manages
when the daemon records them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if history {
				snaps, err := newAPIClient().HealthHistory()
				if err != nil {
					return err
				}
				if jsonOutput {
					return printJSON(cmd, snaps)
				}
				printHealthHistory(cmd, snaps)
				return nil
			}

			var s *hostbattery.Snapshot
			if snapshot {
				var err error
				if s, err = newAPIClient().TakeHealthSnapshot(); err != nil {
					return err
				}
			} else {
				local, err := hostbattery.Read()
				if err != nil {
					return err
				}
				s = &local
			}

			if jsonOutput {
				return printJSON(cmd, s)
			}
			cmd.Println(bold("Battery health:"))
			cmd.Printf("  Retention: %s\n", bold("%.1f%%", s.Retention*100))
			cmd.Printf("  Full charge capacity: %s\n", bold("%.0f mWh", s.FullCapacity))
			cmd.Printf("  Design capacity: %s\n", bold("%.0f mWh", s.DesignCapacity))
			if s.Voltage > 0 {
				cmd.Printf("  Voltage: %s\n", bold("%.2f V", s.Voltage))
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&history, "history", false, "print the snapshots recorded by the daemon")
	flags.BoolVar(&snapshot, "snapshot", false, "ask the daemon to record a snapshot now")
	flags.BoolVar(&jsonOutput, "json", false, "print as JSON")
	cmd.MarkFlagsMutuallyExclusive("history", "snapshot")

	cmd.AddCommand(newHealthScheduleCommand())

	return cmd
}

func printHealthHistory(cmd *cobra.Command, snaps []hostbattery.Snapshot) {
	if len(snaps) == 0 {
		cmd.Println("No snapshots recorded yet.")
		return
	}

	w := tabwriter.NewWriter(cmd.OutOrStderr(), 0, 0, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "TIME\tRETENTION\tFULL (mWh)\tDESIGN (mWh)")
	for _, s := range snaps {
		fmt.Fprintf(w, "%s\t%.1f%%\t%.0f\t%.0f\n", s.Time.Local().Format(time.DateTime), s.Retention*100, s.FullCapacity, s.DesignCapacity)
	}
}
