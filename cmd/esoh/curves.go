package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/charlie0129/esoh/pkg/esoh"
	"github.com/charlie0129/esoh/pkg/ocp"
	"github.com/charlie0129/esoh/pkg/types"
)

func NewCurvesCommand() *cobra.Command {
	var (
		points      int
		temperature float64
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:     "curves [name]",
		Short:   "List OCP curves, or tabulate one",
		GroupID: gInspect,
		Long: `List the registered open-circuit potential curves.

With a curve name, print the potential at evenly spaced stoichiometries.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				curves := ocp.Curves()
				if jsonOutput {
					infos := make([]types.OCPCurveInfo, len(curves))
					for i, c := range curves {
						infos[i] = types.OCPCurveInfo{Name: c.Name, Electrode: c.Electrode, Description: c.Description}
					}
					return printJSON(cmd, infos)
				}

				w := tabwriter.NewWriter(cmd.OutOrStderr(), 0, 0, 2, ' ', 0)
				defer w.Flush()
				fmt.Fprintln(w, "NAME\tELECTRODE\tDESCRIPTION")
				for _, c := range curves {
					fmt.Fprintf(w, "%s\t%s\t%s\n", c.Name, c.Electrode, c.Description)
				}
				return nil
			}

			c, err := ocp.Lookup(args[0])
			if err != nil {
				return err
			}
			if points < 2 || points > ocp.MaxTablePoints {
				return fmt.Errorf("--points must be between 2 and %d, got %d", ocp.MaxTablePoints, points)
			}

			samples := ocp.Table(c, points, temperature)
			if jsonOutput {
				return printJSON(cmd, types.OCPCurveInfo{
					Name:        c.Name,
					Electrode:   c.Electrode,
					Description: c.Description,
					Samples:     samples,
				})
			}

			cmd.Println(bold("%s (%s electrode, %.2f K):", c.Name, c.Electrode, temperature))
			w := tabwriter.NewWriter(cmd.OutOrStderr(), 0, 0, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintln(w, "STOICHIOMETRY\tPOTENTIAL (V)")
			for _, s := range samples {
				fmt.Fprintf(w, "%.4f\t%.5f\n", s.Stoichiometry, s.Potential)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&points, "points", 11, "number of stoichiometries to tabulate")
	flags.Float64Var(&temperature, "temperature", esoh.DefaultReferenceTemperature, "temperature in K")
	flags.BoolVar(&jsonOutput, "json", false, "print as JSON")

	return cmd
}
