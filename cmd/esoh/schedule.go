package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/charlie0129/esoh/pkg/types"
)

func newHealthScheduleCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule [cron-expression]",
		Short: "Manage the daemon's health snapshot schedule",
		Long: `Manage the schedule on which the daemon records host battery snapshots.

  esoh health schedule                     Show the current schedule
  esoh health schedule '0 10 * * 0'        Set the schedule with a cron expression
  esoh health schedule disable             Disable scheduled snapshots
  esoh health schedule postpone [duration] Postpone the next snapshot
  esoh health schedule skip                Skip the next snapshot`,
		Example: `  esoh health schedule '@every 6h'
  esoh health schedule '0 10 * * *' (At 10:00 every day)`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				st, err := newAPIClient().HealthSchedule()
				if err != nil {
					return err
				}
				printHealthSchedule(cmd, st)
				return nil
			}
			return runHealthScheduleSet(cmd, args[0])
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "disable",
			Short: "Disable scheduled health snapshots",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if _, err := newAPIClient().SetHealthSchedule(""); err != nil {
					return err
				}
				cmd.Println("Health snapshot schedule disabled.")
				return nil
			},
		},
		newHealthPostponeCommand(),
		&cobra.Command{
			Use:   "skip",
			Short: "Skip the next scheduled health snapshot",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				st, err := newAPIClient().SkipHealthSnapshot()
				if err != nil {
					return err
				}
				cmd.Println("Next health snapshot skipped.")
				printHealthSchedule(cmd, st)
				return nil
			},
		},
	)

	return cmd
}

func newHealthPostponeCommand() *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "postpone [duration]",
		Short: "Postpone the next scheduled health snapshot",
		Long: `Postpone the next scheduled health snapshot by a duration. The snapshot
cannot be moved past the one after it.`,
		Example: `  esoh health schedule postpone      (Postpone by 1 hour)
  esoh health schedule postpone 90m  (Postpone by 90 minutes)`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := duration
			if len(args) == 1 {
				var err error
				if d, err = time.ParseDuration(args[0]); err != nil {
					return fmt.Errorf("invalid duration %q: %w", args[0], err)
				}
			}
			if d <= 0 {
				return fmt.Errorf("postpone duration must be positive, got %s", d)
			}

			st, err := newAPIClient().PostponeHealthSnapshot(d)
			if err != nil {
				return err
			}
			cmd.Printf("Next health snapshot postponed by %s.\n", d)
			printHealthSchedule(cmd, st)
			return nil
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", time.Hour, "duration to postpone (e.g. 1h, 90m)")

	return cmd
}

func runHealthScheduleSet(cmd *cobra.Command, expr string) error {
	apiClient := newAPIClient()
	if _, err := apiClient.SetHealthSchedule(expr); err != nil {
		return err
	}
	st, err := apiClient.HealthSchedule()
	if err != nil {
		return err
	}
	cmd.Println("Health snapshots scheduled.")
	printHealthSchedule(cmd, st)
	return nil
}

func printHealthSchedule(cmd *cobra.Command, st *types.HealthScheduleStatus) {
	if st.Schedule == "" || st.NextRun == nil {
		cmd.Println("Health snapshot schedule is not set.")
		return
	}
	cmd.Printf("  Schedule: %s\n", bold("%s", st.Schedule))
	next := st.NextRun.Local().Format(time.DateTime)
	if st.Postponed {
		next += " (postponed)"
	}
	cmd.Printf("  Next snapshot: %s\n", bold("%s", next))
}
