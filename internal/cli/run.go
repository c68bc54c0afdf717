package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hwsimlab/hwsimperf/internal/config"
	"github.com/hwsimlab/hwsimperf/internal/harness"
	"github.com/hwsimlab/hwsimperf/internal/output"
	"github.com/hwsimlab/hwsimperf/internal/proc"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a throughput benchmark over simulated radios",
	Long: `Run loads mac80211_hwsim with one radio per client plus one for the
access point, provisions a network namespace around each radio, waits for
every station to associate, and drives iperf between the stations and the
access point.

Flag mode:
  hwsimperf run --num-clients 2 --time 30 --cpulimit 100

Config file mode (flags override file values):
  hwsimperf run --config run.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBenchmark(cmd)
	},
}

func runBenchmark(cmd *cobra.Command) error {
	cfg, err := configFromFlags(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	noColor, _ := cmd.Flags().GetBool("no-color")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	printer := output.NewPrinter(os.Stderr, noColor)
	h := harness.New(cfg, proc.OSRunner{}, printer)

	result, err := h.Run()
	if err != nil {
		return err
	}

	if jsonOutput {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}
	printSummary(printer, result)
	return nil
}

// configFromFlags builds the run configuration: file values (when --config
// is given) underneath, explicitly set flags on top.
func configFromFlags(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")

	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("num-clients") {
		cfg.NumClients, _ = flags.GetInt("num-clients")
	}
	if flags.Changed("time") {
		cfg.Time, _ = flags.GetInt("time")
	}
	if flags.Changed("tcp-window-size") {
		cfg.TCPWindowSize, _ = flags.GetString("tcp-window-size")
	}
	if flags.Changed("bandwidth") {
		cfg.Bandwidth, _ = flags.GetString("bandwidth")
	}
	if flags.Changed("cpuset") {
		cfg.CPUSet, _ = flags.GetString("cpuset")
	}
	if flags.Changed("cpulimit") {
		cfg.CPULimit, _ = flags.GetInt("cpulimit")
	}
	if flags.Changed("hostapd-conf") {
		cfg.HostapdConf, _ = flags.GetString("hostapd-conf")
	}
	if flags.Changed("supplicant-conf") {
		cfg.SupplicantConf, _ = flags.GetString("supplicant-conf")
	}
	if flags.Changed("assoc-timeout") {
		d, _ := flags.GetDuration("assoc-timeout")
		cfg.AssocTimeout = config.Duration(d)
	}
	if flags.Changed("parallel-wait") {
		cfg.ParallelWait, _ = flags.GetBool("parallel-wait")
	}
	return cfg, nil
}

func printSummary(printer *output.Printer, result *harness.Result) {
	printer.Successf("Run complete: %d clients, %d namespaces, %s",
		result.Clients, len(result.Namespaces), result.Elapsed.Round(time.Millisecond))
	if result.AssocWaits.Count > 0 {
		w := result.AssocWaits
		printer.Stepf("Association waits: n=%d min=%s mean=%s p50=%s p99=%s max=%s",
			w.Count,
			w.Min.Round(time.Millisecond),
			w.Mean.Round(time.Millisecond),
			w.P50.Round(time.Millisecond),
			w.P99.Round(time.Millisecond),
			w.Max.Round(time.Millisecond))
	}
	for _, warn := range result.Warnings {
		printer.Warnf("%s", warn)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Int("num-clients", 1, "Number of client stations")
	cmd.Flags().Int("time", 10, "Benchmark duration in seconds")
	cmd.Flags().String("tcp-window-size", "416K", "TCP window size in bytes (K/M/G suffixes allowed)")
	cmd.Flags().String("bandwidth", "", "Bandwidth cap in bits per second (K/M/G suffixes allowed)")
	cmd.Flags().String("cpuset", "", "Pin all benchmark processes to specific CPU core(s)")
	cmd.Flags().Int("cpulimit", 100, "Limit CPU usage (in %, 1 core = 100%)")
	cmd.Flags().String("hostapd-conf", "hostapd.conf", "hostapd configuration file")
	cmd.Flags().String("supplicant-conf", "wpa_supplicant.conf", "wpa_supplicant configuration file")
	cmd.Flags().Duration("assoc-timeout", 0, "Per-client association timeout (0 waits forever)")
	cmd.Flags().Bool("parallel-wait", false, "Wait for client associations concurrently")
	cmd.Flags().StringP("config", "c", "", "YAML configuration file")
	cmd.Flags().Bool("json", false, "Print the run summary as JSON")
	cmd.Flags().Bool("no-color", false, "Disable colorized output")
}

func init() {
	addRunFlags(runCmd)
}
