package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/esoh/pkg/esoh"
	"github.com/charlie0129/esoh/pkg/export"
	"github.com/charlie0129/esoh/pkg/sweep"
	"github.com/charlie0129/esoh/pkg/types"
)

type sweepFlags struct {
	set    string
	grid   sweep.Grid
	xlsx   string
	json   bool
	remote bool
}

func NewSweepCommand() *cobra.Command {
	f := &sweepFlags{}

	cmd := &cobra.Command{
		Use:     "sweep",
		Short:   "Solve a grid of degradation modes",
		GroupID: gSolve,
		Long: `Solve the electrode state of health over a grid of degradation modes.

Every combination of loss of lithium inventory (--lli) and loss of active
material in the negative (--lam-neg) and positive (--lam-pos) electrode is
applied to the parameter set and solved. Fractions are in [0, 1). Points that
cannot be solved are reported with their error instead of failing the sweep.`,
		Example: `  esoh sweep --lli 0,0.05,0.1,0.15
  esoh sweep --set Mohtat2020 --lli 0,0.1 --lam-neg 0,0.1 --xlsx sweep.xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp *types.SweepResponse
			var err error
			if f.remote {
				resp, err = newAPIClient().Sweep(types.SweepRequest{ParameterSet: f.set, Grid: f.grid})
			} else {
				resp, err = sweepLocal(cmd, f)
			}
			if err != nil {
				return err
			}

			if f.xlsx != "" {
				if err := writeXLSXFile(f.xlsx, resp.Points); err != nil {
					return err
				}
				logrus.Infof("wrote %d points to %s", len(resp.Points), f.xlsx)
			}

			if f.json {
				return printJSON(cmd, resp)
			}
			printSweepTable(cmd, resp)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.set, "set", "", "parameter set name (default from config)")
	flags.Float64SliceVar(&f.grid.LLI, "lli", []float64{0}, "loss of lithium inventory fractions")
	flags.Float64SliceVar(&f.grid.LAMNegative, "lam-neg", []float64{0}, "loss of negative active material fractions")
	flags.Float64SliceVar(&f.grid.LAMPositive, "lam-pos", []float64{0}, "loss of positive active material fractions")
	flags.IntVar(&f.grid.Workers, "workers", 0, "concurrent solves (default GOMAXPROCS)")
	flags.StringVar(&f.xlsx, "xlsx", "", "also write the points to this xlsx file")
	flags.BoolVar(&f.json, "json", false, "print the result as JSON")
	flags.BoolVar(&f.remote, "remote", false, "run the sweep in the esoh daemon")

	return cmd
}

func sweepLocal(cmd *cobra.Command, f *sweepFlags) (*types.SweepResponse, error) {
	conf, err := loadConfig()
	if err != nil {
		return nil, err
	}

	set, err := conf.LookupCell(f.set)
	if err != nil {
		return nil, err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	points, err := sweep.Run(ctx, esoh.NewSolver(conf.SolverOptions()), set, f.grid)
	if err != nil {
		return nil, err
	}

	resp := &types.SweepResponse{ParameterSet: set.Name, Points: points}
	for _, p := range points {
		if p.Error != "" {
			resp.Failed++
		}
	}
	return resp, nil
}

func writeXLSXFile(path string, points []sweep.Point) error {
	fp, err := os.Create(path)
	if err != nil {
		return pkgerrors.Wrapf(err, "failed to create %s", path)
	}

	if err := export.WriteXLSX(fp, points); err != nil {
		_ = fp.Close()
		return err
	}

	return pkgerrors.Wrapf(fp.Close(), "failed to close %s", path)
}

func printSweepTable(cmd *cobra.Command, resp *types.SweepResponse) {
	cmd.Println(bold("Degradation sweep of %s (%d points, %d failed):", resp.ParameterSet, len(resp.Points), resp.Failed))

	w := tabwriter.NewWriter(cmd.OutOrStderr(), 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "LLI\tLAM-\tLAM+\tCAPACITY (A.h)\tx_0\tx_100\ty_100\ty_0")
	for _, p := range resp.Points {
		if p.Outputs == nil {
			fmt.Fprintf(w, "%.3f\t%.3f\t%.3f\t%s\n", p.LLI, p.LAMNegative, p.LAMPositive, p.Error)
			continue
		}
		o := p.Outputs
		fmt.Fprintf(w, "%.3f\t%.3f\t%.3f\t%.4f\t%.5f\t%.5f\t%.5f\t%.5f\n",
			p.LLI, p.LAMNegative, p.LAMPositive, o.CellCapacity, o.X0, o.X100, o.Y100, o.Y0)
	}
}
