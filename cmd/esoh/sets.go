package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/charlie0129/esoh/pkg/types"
)

func NewSetsCommand() *cobra.Command {
	var (
		jsonOutput bool
		remote     bool
	)

	cmd := &cobra.Command{
		Use:     "sets",
		Short:   "List parameter sets",
		GroupID: gInspect,
		Long: `List the built-in parameter sets and the cells defined in the config file.
Cells from the config file shadow built-in sets of the same name.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var sets []types.ParameterSetInfo
			var defaultSet string
			if remote {
				apiClient := newAPIClient()
				var err error
				if sets, err = apiClient.ParameterSets(); err != nil {
					return err
				}
				conf, err := apiClient.GetConfig()
				if err != nil {
					return err
				}
				if conf.DefaultParameterSet != nil {
					defaultSet = *conf.DefaultParameterSet
				}
			} else {
				conf, err := loadConfig()
				if err != nil {
					return err
				}
				sets = types.ListParameterSets(conf.Cells())
				defaultSet = conf.DefaultParameterSet()
			}

			if jsonOutput {
				return printJSON(cmd, sets)
			}

			w := tabwriter.NewWriter(cmd.OutOrStderr(), 0, 0, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintln(w, "NAME\tBUILT-IN\tDEFAULT\tDESCRIPTION")
			for _, s := range sets {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Name, bool2Text(s.Builtin), bool2Text(s.Name == defaultSet), s.Description)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the sets as JSON")
	cmd.Flags().BoolVar(&remote, "remote", false, "list the sets known to the esoh daemon")

	cmd.AddCommand(newShowSetCommand())

	return cmd
}

func newShowSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show [name]",
		Short: "Print a parameter set as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig()
			if err != nil {
				return err
			}

			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			s, err := conf.LookupCell(name)
			if err != nil {
				return err
			}
			return printJSON(cmd, s)
		},
	}
}
