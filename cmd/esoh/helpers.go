package main

import (
	"encoding/json"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/esoh/pkg/client"
	"github.com/charlie0129/esoh/pkg/config"
)

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// loadConfig reads the config file used by local commands. A missing file
// yields the defaults.
func loadConfig() (*config.File, error) {
	return config.NewFile(configPath)
}

// newAPIClient connects to the daemon and checks that its version matches.
func newAPIClient() *client.Client {
	c := client.NewClient(unixSocketPath)
	checkDaemonVersion(c)
	return c
}
