// Package harness orchestrates a hwsim throughput run: it provisions the
// simulated radios, the resource-limit cgroups, the access-point and client
// namespaces with their daemons, waits for each station to associate, and
// drives the load-generator processes. Everything is acquired through a
// guaranteed-cleanup resource stack, so no kernel resource outlives the run.
package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hwsimlab/hwsimperf/internal/cgroup"
	"github.com/hwsimlab/hwsimperf/internal/config"
	"github.com/hwsimlab/hwsimperf/internal/hwsim"
	"github.com/hwsimlab/hwsimperf/internal/netns"
	"github.com/hwsimlab/hwsimperf/internal/output"
	"github.com/hwsimlab/hwsimperf/internal/proc"
	"github.com/hwsimlab/hwsimperf/internal/scope"
	"github.com/hwsimlab/hwsimperf/internal/stats"
	"github.com/hwsimlab/hwsimperf/internal/wpa"
)

const (
	apNamespace = "access_point"
	apInterface = "wlan_ap"
	apAddress   = "192.168.200.1"
	broadcast   = "192.168.200.255"
	cgroupName  = "hwsim_perf"
)

// SetupError reports a precondition the run cannot proceed without:
// insufficient simulated radios or a driver that could not be (re)loaded.
type SetupError struct {
	Msg string
	Err error
}

func (e *SetupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("setup: %s: %v", e.Msg, e.Err)
	}
	return "setup: " + e.Msg
}

func (e *SetupError) Unwrap() error { return e.Err }

// Result summarizes a completed run.
type Result struct {
	Clients    int           `json:"clients"`
	Namespaces []string      `json:"namespaces"`
	AssocWaits stats.Summary `json:"assocWaits"`
	Warnings   []string      `json:"warnings,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Harness runs the end-to-end orchestration sequence.
type Harness struct {
	cfg     *config.Config
	runner  proc.Runner
	printer *output.Printer
}

// New creates a harness. The runner is the seam tests use to intercept
// every external program the harness would execute.
func New(cfg *config.Config, runner proc.Runner, printer *output.Printer) *Harness {
	return &Harness{cfg: cfg, runner: runner, printer: printer}
}

type client struct {
	index   int
	ns      *netns.Namespace
	monitor proc.Handle
}

// Run executes the full sequence. Whatever the outcome, every resource
// acquired along the way is released in reverse order before Run returns; a
// release failure during the unwind is reported and does not stop the
// remaining releases.
func (h *Harness) Run() (result *Result, err error) {
	cfg := h.cfg
	start := time.Now()

	iperfArgs := []string{"-N", "-w", cfg.TCPWindowSize, "-l", cfg.TCPWindowSize}
	if cfg.Bandwidth != "" {
		iperfArgs = append(iperfArgs, "-b", cfg.Bandwidth)
	}

	if err := cgroup.CheckHierarchy(cfg.CgroupRoot); err != nil {
		return nil, err
	}

	h.printer.Stepf("Loading %s with %d radios", hwsim.ModuleName, cfg.NumClients+1)
	if err := hwsim.EnsureDriver(h.runner, cfg.SysRoot, cfg.NumClients+1); err != nil {
		return nil, &SetupError{Msg: "load driver", Err: err}
	}

	radios, err := hwsim.DiscoverRadios(filepath.Join(cfg.SysRoot, "class", hwsim.ModuleName))
	if err != nil {
		return nil, &SetupError{Msg: "discover radios", Err: err}
	}
	if len(radios) < cfg.NumClients+1 {
		return nil, &SetupError{Msg: fmt.Sprintf("need %d radios, found %d",
			cfg.NumClients+1, len(radios))}
	}
	apRadio := radios[0]
	clientRadios := radios[1 : cfg.NumClients+1]

	st := scope.New(func(label string, rerr error) {
		h.printer.Errorf("releasing %s: %v", label, rerr)
	})
	defer func() {
		if cerr := st.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	cpusetCG, err := h.setupCgroups(st)
	if err != nil {
		return nil, err
	}
	enroll := func(pid int) error { return cpusetCG.AddTask(pid) }

	if err := h.setupAccessPoint(st, apRadio, iperfArgs, enroll); err != nil {
		return nil, err
	}

	clients, err := h.setupClients(st, clientRadios)
	if err != nil {
		return nil, err
	}

	rec := stats.NewRecorder()
	warnings, err := h.waitForAssociations(clients, rec)
	if err != nil {
		return nil, err
	}

	h.printer.Stepf("Starting %d benchmark clients for %ds", len(clients), cfg.Time)
	for _, c := range clients {
		argv := append([]string{"iperf", "-c", apAddress, "-t", strconv.Itoa(cfg.Time)}, iperfArgs...)
		bench, err := c.ns.StartDaemon(argv, &proc.ExecConfig{OnStart: enroll})
		if err != nil {
			return nil, err
		}
		// Released by waiting, not terminating: the benchmark runs for
		// its full duration during the unwind, before any daemon or
		// namespace underneath it is torn down.
		st.Push(fmt.Sprintf("iperf client %d", c.index), bench.Wait)
	}

	namespaces := []string{apNamespace}
	for _, c := range clients {
		namespaces = append(namespaces, c.ns.Name)
	}
	return &Result{
		Clients:    len(clients),
		Namespaces: namespaces,
		AssocWaits: rec.Summary(),
		Warnings:   warnings,
		Elapsed:    time.Since(start),
	}, nil
}

// setupCgroups creates the CPU-bandwidth and CPU-set groups. The bandwidth
// group enrolls the harness itself, so every process it spawns inherits the
// quota; the CPU-set group is joined per process through the enroll hook.
func (h *Harness) setupCgroups(st *scope.Stack) (*cgroup.Group, error) {
	cfg := h.cfg

	cpuCG, err := cgroup.Create(cfg.CgroupRoot, "cpu/"+cgroupName)
	if err != nil {
		return nil, err
	}
	st.Push("cpu cgroup", cpuCG.Destroy)

	if err := cpuCG.Set("cpu.cfs_period_us", "100000"); err != nil {
		return nil, err
	}
	if err := cpuCG.Set("cpu.cfs_quota_us", strconv.Itoa(cfg.CPULimit*1000)); err != nil {
		return nil, err
	}
	if err := cpuCG.AddSelf(); err != nil {
		return nil, err
	}

	cpusetCG, err := cgroup.Create(cfg.CgroupRoot, "cpuset/"+cgroupName)
	if err != nil {
		return nil, err
	}
	st.Push("cpuset cgroup", cpusetCG.Destroy)

	// A fresh cpuset group starts with empty cpus/mems and refuses
	// members until both are set; copy from the parent, overriding the
	// cpu list when a pin was requested.
	mems, err := cpusetCG.Parent().Get("cpuset.mems")
	if err != nil {
		return nil, err
	}
	if err := cpusetCG.Set("cpuset.mems", strings.TrimSpace(mems)); err != nil {
		return nil, err
	}
	cpus := cfg.CPUSet
	if cpus == "" {
		parentCPUs, err := cpusetCG.Parent().Get("cpuset.cpus")
		if err != nil {
			return nil, err
		}
		cpus = strings.TrimSpace(parentCPUs)
	}
	if err := cpusetCG.Set("cpuset.cpus", cpus); err != nil {
		return nil, err
	}
	return cpusetCG, nil
}

// setupAccessPoint stands up the AP namespace, moves the first radio in,
// relabels and addresses its interface, and starts hostapd plus the
// load-generator server.
func (h *Harness) setupAccessPoint(st *scope.Stack, radio hwsim.Radio, iperfArgs []string, enroll func(int) error) error {
	h.printer.Stepf("Creating ns %s", apNamespace)
	ns, err := netns.Create(apNamespace, h.runner)
	if err != nil {
		return err
	}
	st.Push("namespace "+apNamespace, ns.Delete)

	h.printer.Stepf("Moving %s to ns %s", radio, apNamespace)
	if err := ns.MovePhy(radio); err != nil {
		return err
	}
	if err := ns.Run([]string{"ip", "link", "set", "dev", radio.Dev, "name", apInterface}, nil); err != nil {
		return err
	}
	if err := ns.Run([]string{"ip", "addr", "add", apAddress + "/24",
		"broadcast", broadcast, "dev", apInterface}, nil); err != nil {
		return err
	}

	hostapd, err := ns.StartDaemon([]string{"hostapd", h.cfg.HostapdConf}, nil)
	if err != nil {
		return err
	}
	st.Push("hostapd", hostapd.Stop)

	server, err := ns.StartDaemon(append([]string{"iperf", "-s"}, iperfArgs...),
		&proc.ExecConfig{OnStart: enroll})
	if err != nil {
		return err
	}
	st.Push("iperf server", server.Stop)
	return nil
}

// setupClients stands up one namespace per client radio with its supplicant
// and association monitor.
func (h *Harness) setupClients(st *scope.Stack, radios []hwsim.Radio) ([]client, error) {
	cfg := h.cfg
	clients := make([]client, 0, len(radios))

	for i, radio := range radios {
		name := fmt.Sprintf("client%d", i)

		scratch, err := os.MkdirTemp("", "hwsimperf-"+name+"-")
		if err != nil {
			return nil, fmt.Errorf("scratch dir for %s: %w", name, err)
		}
		st.Push("scratch dir "+scratch, func() error { return os.RemoveAll(scratch) })
		ctrl := filepath.Join(scratch, "wpa_ctrl")

		h.printer.Stepf("Creating ns %s", name)
		ns, err := netns.Create(name, h.runner)
		if err != nil {
			return nil, err
		}
		st.Push("namespace "+name, ns.Delete)

		h.printer.Stepf("Moving %s to ns %s", radio, name)
		if err := ns.MovePhy(radio); err != nil {
			return nil, err
		}
		addr := fmt.Sprintf("192.168.200.%d/24", i+2)
		if err := ns.Run([]string{"ip", "addr", "add", addr,
			"broadcast", broadcast, "dev", radio.Dev}, nil); err != nil {
			return nil, err
		}

		supplicant, err := ns.StartDaemon([]string{"wpa_supplicant",
			"-i", radio.Dev, "-c", cfg.SupplicantConf, "-C", ctrl, "-W"}, nil)
		if err != nil {
			return nil, err
		}
		st.Push("wpa_supplicant "+name, supplicant.Stop)

		monitor, err := ns.StartDaemon([]string{"wpa_cli", "-i", radio.Dev, "-p", ctrl},
			&proc.ExecConfig{PipeStdout: true, PipeStdin: true})
		if err != nil {
			return nil, err
		}
		st.Push("wpa_cli "+name, monitor.Stop)

		clients = append(clients, client{index: i, ns: ns, monitor: monitor})
	}
	return clients, nil
}

// waitForAssociations blocks until every client reports association.
// Sequential in client order by default, bounding setup latency to the sum
// of per-client association times; ParallelWait opts into concurrent waits.
func (h *Harness) waitForAssociations(clients []client, rec *stats.Recorder) ([]string, error) {
	if h.cfg.ParallelWait {
		return h.waitParallel(clients, rec)
	}

	var warnings []string
	for _, c := range clients {
		h.printer.Stepf("Waiting for client%d to associate", c.index)
		warn, err := h.waitOne(c, rec)
		if err != nil {
			return nil, err
		}
		if warn != "" {
			h.printer.Warnf("%s", warn)
			warnings = append(warnings, warn)
		}
	}
	return warnings, nil
}

func (h *Harness) waitParallel(clients []client, rec *stats.Recorder) ([]string, error) {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		warnings []string
		firstErr error
	)
	h.printer.Stepf("Waiting for %d clients to associate", len(clients))
	for _, c := range clients {
		wg.Add(1)
		go func(c client) {
			defer wg.Done()
			warn, err := h.waitOne(c, rec)
			mu.Lock()
			defer mu.Unlock()
			if err != nil && firstErr == nil {
				firstErr = err
			}
			if warn != "" {
				warnings = append(warnings, warn)
			}
		}(c)
	}
	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	for _, warn := range warnings {
		h.printer.Warnf("%s", warn)
	}
	return warnings, nil
}

// waitOne runs the association barrier for a single client. A monitor whose
// event stream closed without the connected marker yields a warning, not an
// error: the run proceeds, preserving the historical behavior.
func (h *Harness) waitOne(c client, rec *stats.Recorder) (string, error) {
	start := time.Now()
	found, err := wpa.WaitForConnection(c.monitor.Stdout(), time.Duration(h.cfg.AssocTimeout))
	if err != nil {
		return "", fmt.Errorf("client%d: %w", c.index, err)
	}
	rec.Record(time.Since(start))
	if !found {
		return fmt.Sprintf("client%d: event stream ended before association was reported", c.index), nil
	}
	// The monitor's job is done once the marker is seen.
	return "", c.monitor.Stop()
}
