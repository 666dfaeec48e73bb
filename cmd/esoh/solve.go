package main

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/esoh/pkg/esoh"
	"github.com/charlie0129/esoh/pkg/parameters"
	"github.com/charlie0129/esoh/pkg/types"
)

type solveFlags struct {
	set           string
	inputs        esoh.Inputs
	negativeOCP   string
	positiveOCP   string
	temperature   float64
	tolerance     float64
	maxIterations int
	json          bool
	remote        bool
}

// applyInputFlags overrides the inputs of s with the flags the user set.
func (f *solveFlags) applyInputFlags(cmd *cobra.Command, s *parameters.Set) {
	flags := cmd.Flags()
	if flags.Changed("vmin") {
		s.Inputs.MinimumVoltage = f.inputs.MinimumVoltage
	}
	if flags.Changed("vmax") {
		s.Inputs.MaximumVoltage = f.inputs.MaximumVoltage
	}
	if flags.Changed("cn") {
		s.Inputs.NegativeCapacity = f.inputs.NegativeCapacity
	}
	if flags.Changed("cp") {
		s.Inputs.PositiveCapacity = f.inputs.PositiveCapacity
	}
	if flags.Changed("nli") {
		s.Inputs.TotalLithiumMoles = f.inputs.TotalLithiumMoles
	}
	if f.negativeOCP != "" {
		s.NegativeOCP = f.negativeOCP
	}
	if f.positiveOCP != "" {
		s.PositiveOCP = f.positiveOCP
	}
}

func NewSolveCommand() *cobra.Command {
	f := &solveFlags{}

	cmd := &cobra.Command{
		Use:     "solve",
		Short:   "Solve the electrode state of health of a cell",
		GroupID: gSolve,
		Long: `Solve the electrode state of health of a cell.

The cell is taken from a parameter set (--set, the configured default when
omitted). Any of --vmin, --vmax, --cn, --cp and --nli override the matching
input of that set, and --neg-ocp / --pos-ocp override its curves.

With --remote the solve runs in the esoh daemon, using the daemon's solver
settings.`,
		Example: `  esoh solve
  esoh solve --set Mohtat2020 --nli 0.18
  esoh solve --vmin 3.0 --vmax 4.1 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.remote {
				return solveRemote(cmd, f)
			}
			return solveLocal(cmd, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.set, "set", "", "parameter set name (default from config)")
	flags.Float64Var(&f.inputs.MinimumVoltage, "vmin", 0, "minimum cell voltage in V")
	flags.Float64Var(&f.inputs.MaximumVoltage, "vmax", 0, "maximum cell voltage in V")
	flags.Float64Var(&f.inputs.NegativeCapacity, "cn", 0, "negative electrode capacity in A.h")
	flags.Float64Var(&f.inputs.PositiveCapacity, "cp", 0, "positive electrode capacity in A.h")
	flags.Float64Var(&f.inputs.TotalLithiumMoles, "nli", 0, "total cyclable lithium in mol")
	flags.StringVar(&f.negativeOCP, "neg-ocp", "", "negative electrode OCP curve name")
	flags.StringVar(&f.positiveOCP, "pos-ocp", "", "positive electrode OCP curve name")
	flags.Float64Var(&f.temperature, "temperature", 0, "temperature in K (default from the parameter set)")
	flags.Float64Var(&f.tolerance, "tolerance", 0, "voltage residual tolerance in V (default from config)")
	flags.IntVar(&f.maxIterations, "max-iterations", 0, "iteration cap per root search (default from config)")
	flags.BoolVar(&f.json, "json", false, "print the result as JSON")
	flags.BoolVar(&f.remote, "remote", false, "solve in the esoh daemon")

	return cmd
}

func solveLocal(cmd *cobra.Command, f *solveFlags) error {
	conf, err := loadConfig()
	if err != nil {
		return err
	}

	set, err := conf.LookupCell(f.set)
	if err != nil {
		return err
	}
	f.applyInputFlags(cmd, &set)

	pair, err := set.OCP()
	if err != nil {
		return err
	}

	temperature := set.Temperature()
	if f.temperature != 0 {
		temperature = f.temperature
	}

	opts := conf.SolverOptions()
	if f.tolerance > 0 {
		opts.Tolerance = f.tolerance
	}
	if f.maxIterations > 0 {
		opts.MaxIterations = f.maxIterations
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	logrus.WithFields(set.Inputs.LogrusFields()).WithField("parameterSet", set.Name).Debug("solving locally")

	out, err := esoh.NewSolver(opts).Solve(ctx, set.Inputs, pair, temperature)
	if err != nil {
		return err
	}

	resp := types.SolveResponse{
		ParameterSet: set.Name,
		Temperature:  temperature,
		Inputs:       set.Inputs,
		Outputs:      out,
		Residuals:    esoh.ComputeResiduals(set.Inputs, pair, temperature, out),
	}
	return printSolveResult(cmd, f, &resp)
}

func solveRemote(cmd *cobra.Command, f *solveFlags) error {
	if f.tolerance > 0 || f.maxIterations > 0 {
		logrus.Warn("--tolerance and --max-iterations are ignored with --remote, the daemon uses its own solver settings")
	}

	apiClient := newAPIClient()

	req := types.SolveRequest{
		ParameterSet: f.set,
		NegativeOCP:  f.negativeOCP,
		PositiveOCP:  f.positiveOCP,
		Temperature:  f.temperature,
	}

	flags := cmd.Flags()
	if flags.Changed("vmin") || flags.Changed("vmax") || flags.Changed("cn") || flags.Changed("cp") || flags.Changed("nli") {
		// Overrides are applied to the daemon's copy of the set.
		set, err := apiClient.GetParameterSet(f.set)
		if err != nil {
			return err
		}
		f.applyInputFlags(cmd, set)
		req.Inputs = &set.Inputs
	}

	resp, err := apiClient.Solve(req)
	if err != nil {
		return err
	}
	return printSolveResult(cmd, f, resp)
}

func printSolveResult(cmd *cobra.Command, f *solveFlags, resp *types.SolveResponse) error {
	if f.json {
		return printJSON(cmd, resp)
	}

	out := resp.Outputs
	cmd.Println(bold("Electrode state of health (%s, %.2f K):", resp.ParameterSet, resp.Temperature))
	cmd.Printf("  Cell capacity: %s\n", bold("%.4f A.h", out.CellCapacity))
	cmd.Printf("  Negative electrode x_0 .. x_100: %s\n", bold("%.6f .. %.6f", out.X0, out.X100))
	cmd.Printf("  Positive electrode y_100 .. y_0: %s\n", bold("%.6f .. %.6f", out.Y100, out.Y0))
	cmd.Println()

	in := resp.Inputs
	cmd.Println(bold("Inputs:"))
	cmd.Printf("  Voltage window: %s\n", bold("%.3f .. %.3f V", in.MinimumVoltage, in.MaximumVoltage))
	cmd.Printf("  Electrode capacities (negative / positive): %s\n", bold("%.4f / %.4f A.h", in.NegativeCapacity, in.PositiveCapacity))
	cmd.Printf("  Cyclable lithium: %s\n", bold("%.5f mol (%.4f A.h)", in.TotalLithiumMoles, in.LithiumCapacity()))
	cmd.Println()

	cmd.Printf("Largest residual: %.2e V\n", resp.Residuals.Max())
	return nil
}
