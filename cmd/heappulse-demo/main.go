// Command heappulse-demo wires a HeapPulse instance against its own
// process (allocating in a small background loop so there is something
// to measure) and exposes the scheduler's self-telemetry on /metrics,
// the same kingpin-flags-plus-promhttp-server shape
// talyz-systemd_exporter's own main uses for its Collector.
package main

import (
	"net/http"
	"os"
	"time"
	"unsafe"

	"github.com/povilasv/prommod"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/log"
	"github.com/prometheus/common/version"
	kingpin "gopkg.in/alecthomas/kingpin.v2"

	"github.com/adam-mcdaniel/heappulse/internal/bootstrap"
	"github.com/adam-mcdaniel/heappulse/internal/telemetry"
)

var (
	listenAddress  = kingpin.Flag("web.listen-address", "Address to listen on for telemetry.").Default(":9954").String()
	metricsPath    = kingpin.Flag("web.telemetry-path", "Path under which to expose metrics.").Default("/metrics").String()
	configFile     = kingpin.Flag("config.file", "Path to a HeapPulse config file; flags below override values from it.").Default("").String()
	intervalMs     = kingpin.Flag("interval-ms", "Measurement interval period, in milliseconds.").Int64()
	outputDir      = kingpin.Flag("output-dir", "Directory CSV sinks and the log file are written to.").String()
	logFile        = kingpin.Flag("log-file", "Log sink filename, relative to output-dir.").String()
	clearSoftDirty = kingpin.Flag("clear-soft-dirty", "Clear the soft-dirty bit at the start of every interval.").Bool()
	codecsFlag     = kingpin.Flag("codecs", "Comma-separated compression codec subset.").String()
	protectionMode = kingpin.Flag("protection-mode", "Access-protection backend: mprotect, pkey, or disabled.").String()
	hostLabels     = kingpin.Flag("host-labels", "Label generational/huge-page rows with the owning systemd unit and cgroup context.").Bool()
)

func main() {
	kingpin.Version(version.Print("heappulse"))
	kingpin.HelpFlag.Short('h')
	kingpin.Parse()

	logger := log.Base()

	cfg, err := loadConfig(logger)
	if err != nil {
		logger.Errorf("heappulse: config error: %v", err)
		os.Exit(1)
	}

	instance, err := bootstrap.Build(cfg, os.Getpid(), logger)
	if err != nil {
		logger.Errorf("heappulse: bootstrap error: %v", err)
		os.Exit(1)
	}
	defer instance.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(telemetry.NewCollector(instance.Scheduler, instance.Store))
	registry.MustRegister(prommod.NewCollector("heappulse"))

	go driveAllocations(instance)

	http.Handle(*metricsPath, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	logger.Infof("heappulse: listening on %s", *listenAddress)
	if err := http.ListenAndServe(*listenAddress, nil); err != nil {
		logger.Errorf("heappulse: http server error: %v", err)
		os.Exit(1)
	}
}

// loadConfig reads configFile if given, then layers any explicitly-set
// kingpin flags on top, so a flag always wins over the file.
func loadConfig(logger log.Logger) (bootstrap.Config, error) {
	cfg := bootstrap.DefaultConfig()
	if *configFile != "" {
		fileCfg, err := bootstrap.LoadFile(*configFile)
		if err != nil {
			return bootstrap.Config{}, err
		}
		cfg = fileCfg
	} else {
		logger.Infof("heappulse: no --config.file given, using built-in defaults plus any flags")
	}

	if *intervalMs > 0 {
		cfg.IntervalMs = *intervalMs
	}
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}
	if *logFile != "" {
		cfg.LogFile = *logFile
	}
	if *clearSoftDirty {
		cfg.ClearSoftDirty = true
	}
	if *codecsFlag != "" {
		cfg.Codecs = bootstrap.SplitCommaList(*codecsFlag)
	}
	if *protectionMode != "" {
		cfg.ProtectionMode = *protectionMode
	}
	if *hostLabels {
		cfg.HostLabels = true
	}
	return cfg, nil
}

func sliceAddr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

// driveAllocations is the demo's stand-in allocator: the real HeapPulse
// build expects an external allocator to call instance.Hooks directly,
// but the demo binary has no such allocator wired in, so it simulates
// one by allocating and freeing slices itself and calling the hooks by
// hand, just enough to give the measurement tests live data to report on.
func driveAllocations(instance *bootstrap.Instance) {
	type liveBlock struct {
		addr uintptr
		buf  []byte
	}
	var live []liveBlock

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		buf := make([]byte, 4096)
		addr := sliceAddr(buf)
		instance.Hooks.PostAlloc(uint64(len(buf)), addr)
		live = append(live, liveBlock{addr: addr, buf: buf})

		if len(live) > 64 {
			old := live[0]
			live = live[1:]
			instance.Hooks.PreFree(old.addr)
		}
	}
}
