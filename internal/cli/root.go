package cli

import (
	"github.com/spf13/cobra"
)

var version = "0.1.0"

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "hwsimperf",
	Short:   "WiFi throughput benchmarks over simulated radios",
	Version: version,
	Long: `Hwsimperf benchmarks WiFi throughput over the kernel's mac80211_hwsim
simulated radio medium. It provisions isolated network namespaces, binds a
simulated radio into each, starts an access point and client stations, waits
for association, and drives an iperf throughput run. Every kernel resource
it creates is torn back down when the run ends, whatever happened in between.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// If no subcommand is provided, print help
		return cmd.Help()
	},
}

// Execute runs the root command. This is called by main.main().
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.AddCommand(runCmd)
}
