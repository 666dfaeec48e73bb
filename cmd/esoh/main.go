package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/charlie0129/esoh/pkg/client"
	"github.com/charlie0129/esoh/pkg/esoh"
	"github.com/charlie0129/esoh/pkg/ocp"
	"github.com/charlie0129/esoh/pkg/parameters"
	"github.com/charlie0129/esoh/pkg/version"
)

const (
	envConfig   = "ESOH_CONFIG"
	envSocket   = "ESOH_SOCKET"
	envLogLevel = "ESOH_LOG_LEVEL"
)

var (
	logLevel       = "info"
	unixSocketPath = "/var/run/esoh.sock"
	configPath     = "/etc/esoh.json"
)

var (
	gSolve        = "Solve:"
	gInspect      = "Inspect:"
	gDaemon       = "Daemon:"
	commandGroups = []string{
		gSolve,
		gInspect,
		gDaemon,
	}
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

// loadEnv reads a .env file in the working directory, if any, and applies
// the ESOH_* variables as flag defaults.
func loadEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env file: %v\n", err)
	}

	if v := os.Getenv(envConfig); v != "" {
		configPath = v
	}
	if v := os.Getenv(envSocket); v != "" {
		unixSocketPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		logLevel = v
	}
}

func handleCmdError(err error) {
	switch {
	case errors.Is(err, client.ErrDaemonNotRunning):
		fmt.Fprintln(os.Stderr, "\nError: esoh daemon is not running")
		fmt.Fprintln(os.Stderr, "Start it with 'esoh daemon', or drop '--remote' to solve locally.")
	case errors.Is(err, client.ErrPermissionDenied):
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or restart the daemon with the '--always-allow-non-root-access' flag to grant permissions to your user")
	case errors.Is(err, client.ErrNoSchedule):
		fmt.Fprintln(os.Stderr, "\nNo health snapshot schedule is set. Set one with 'esoh health schedule <cron-expression>'.")
	case errors.Is(err, esoh.ErrInvalidInput):
		fmt.Fprintln(os.Stderr, "\nThe cell inputs are not usable. Voltages, capacities and lithium must be positive, and the minimum voltage must be below the maximum.")
	case errors.Is(err, esoh.ErrInfeasibleVoltageWindow):
		fmt.Fprintln(os.Stderr, "\nThe voltage window cannot be reached with these electrodes and this lithium inventory.")
		fmt.Fprintln(os.Stderr, "Check the voltage limits against the OCP curves ('esoh curves').")
	case errors.Is(err, esoh.ErrSolverDidNotConverge):
		fmt.Fprintln(os.Stderr, "\nThe solver did not converge. Try a larger '--tolerance' or '--max-iterations'.")
	case errors.Is(err, parameters.ErrNotFound):
		fmt.Fprintln(os.Stderr, "\nUnknown parameter set. List the available ones with 'esoh sets'.")
	case errors.Is(err, ocp.ErrNotFound):
		fmt.Fprintln(os.Stderr, "\nUnknown OCP curve. List the available ones with 'esoh curves'.")
	}
}

func main() {
	loadEnv()

	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "esoh",
		Short: "esoh computes the electrode state of health of lithium-ion cells",
		Long: `esoh computes the electrode state of health (eSOH) of lithium-ion cells.

Given the voltage window, the electrode capacities and the cyclable lithium,
it finds the electrode stoichiometry limits and the usable cell capacity.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return setupLogger()
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", logLevel, "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", unixSocketPath, "esoh daemon unix socket path")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewSolveCommand(),
		NewSweepCommand(),
		NewSetsCommand(),
		NewCurvesCommand(),
		NewHealthCommand(),
		NewDaemonCommand(),
		NewVersionCommand(),
	)

	return cmd
}

// checkDaemonVersion warns when the daemon runs a different version.
func checkDaemonVersion(apiClient *client.Client) {
	daemonVersion, err := apiClient.GetVersion()
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			logrus.Error("esoh daemon is too old to report its version. Restart it with the same version as this client.")
		}
		return
	}
	if daemonVersion != version.Version {
		logrus.WithFields(logrus.Fields{
			"clientVersion": version.Version,
			"daemonVersion": daemonVersion,
		}).Warn("Version mismatch between client and daemon. Results may differ from a local solve.")
	}
}
