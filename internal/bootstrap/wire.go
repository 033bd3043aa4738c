package bootstrap

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/prometheus/common/log"

	"github.com/adam-mcdaniel/heappulse/hooks"
	"github.com/adam-mcdaniel/heappulse/internal/codec"
	"github.com/adam-mcdaniel/heappulse/internal/faultsig"
	"github.com/adam-mcdaniel/heappulse/internal/hostprobe"
	"github.com/adam-mcdaniel/heappulse/internal/measure"
	"github.com/adam-mcdaniel/heappulse/internal/procio"
	"github.com/adam-mcdaniel/heappulse/internal/protect"
	"github.com/adam-mcdaniel/heappulse/internal/registry"
	"github.com/adam-mcdaniel/heappulse/internal/scheduler"
)

// Instance is a fully wired HeapPulse instance: everything bootstrap
// built, handed back so a caller (the demo binary, or a test) can drive
// the allocator hooks and eventually tear it down.
type Instance struct {
	Store     *registry.Store
	Scheduler *scheduler.Scheduler
	Hooks     *hooks.Adapter
	Logger    log.Logger

	sinkFiles []*os.File
}

// Close closes every opened output sink and the log file. Matches
// spec.md §5's "resource scoping": sinks opened at setup, closed at
// teardown.
func (in *Instance) Close() {
	for _, f := range in.sinkFiles {
		f.Close()
	}
}

// testDefaults lists every measurement test's enable-key, used both to
// decide what to build and to apply each test's config-driven default.
var testDefaults = map[string]bool{
	"dummy":                 false,
	"access-pattern":        true,
	"access-compression":    true,
	"huge-page-compression": true,
	"generational":          true,
	"page-tracking":         true,
	"object-liveness":       true,
	"page-liveness":         true,
}

// Build wires a Config into a running Instance: opens the log and CSV
// sinks, builds the codec registry, the page-info oracle for the
// current process, the protection backend, the registry store, the
// interval scheduler, registers every enabled test, installs the fault
// handler, and returns the hook adapter the allocator calls into.
//
// pid is the process whose /proc/<pid>/pagemap the oracle reads — the
// current process in the ordinary case, a parameter only so tests can
// exercise Build without depending on os.Getpid() behavior.
func Build(cfg Config, pid int, logger log.Logger) (*Instance, error) {
	if logger == nil {
		logger = log.Base()
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create output dir %s", cfg.OutputDir)
	}

	in := &Instance{Logger: logger}

	sinks, err := openSinks(cfg, in)
	if err != nil {
		in.Close()
		return nil, err
	}

	var codecTypes []codec.Type
	for _, name := range cfg.Codecs {
		t, ok := codec.ParseType(name)
		if !ok {
			logger.Warnf("bootstrap: unrecognized codec %q, skipping", name)
			continue
		}
		codecTypes = append(codecTypes, t)
	}
	codecs := codec.NewRegistry(logger, codecTypes)

	mode, ok := protect.ParseMode(cfg.ProtectionMode)
	if !ok {
		logger.Warnf("bootstrap: unrecognized protection-mode %q, defaulting to mprotect", cfg.ProtectionMode)
		mode = protect.ModeMprotect
	}
	protector := protect.New(mode, -1)

	oracle := procio.New(pid)

	store := registry.New()
	in.Store = store

	var hostLabel hostprobe.Label
	if cfg.HostLabels {
		label, err := hostprobe.New(logger).Resolve(pid)
		if err != nil {
			logger.Warnf("bootstrap: host-labels enabled but resolution failed, rows will carry an empty label: %v", err)
		}
		hostLabel = label
	}

	sched := scheduler.New(scheduler.Config{
		Logger:         logger,
		Store:          store,
		Oracle:         oracle,
		Codecs:         codecs,
		Protector:      protector,
		Sinks:          sinks,
		HostLabel:      hostLabel,
		PeriodMs:       cfg.IntervalMs,
		ClearSoftDirty: cfg.ClearSoftDirty,
	})
	in.Scheduler = sched

	for _, t := range buildEnabledTests(cfg) {
		if err := t.Setup(logger, sinks); err != nil {
			logger.Warnf("bootstrap: setup failed for test %s: %v", t.Name(), err)
			continue
		}
		if !sched.Register(t) {
			logger.Warnf("bootstrap: test registry full, dropping %s", t.Name())
		}
	}

	if mode != protect.ModeDisabled {
		if err := faultsig.Install(); err != nil {
			logger.Warnf("bootstrap: fault handler install failed, continuing with soft-dirty only: %v", err)
		}
	}

	in.Hooks = hooks.New(store, sched)

	return in, nil
}

func openSinks(cfg Config, in *Instance) (map[string]io.Writer, error) {
	logPath := filepath.Join(cfg.OutputDir, cfg.LogFile)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "open log file %s", logPath)
	}
	in.sinkFiles = append(in.sinkFiles, logFile)

	names := []string{
		"access-pattern.csv",
		"access-compression.csv",
		"huge-page-compression.csv",
		"generational.csv",
		"page-tracking.csv",
		"object-liveness.csv",
		"page-liveness.csv",
	}

	sinks := make(map[string]io.Writer, len(names))
	for _, name := range names {
		path := filepath.Join(cfg.OutputDir, name)
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, errors.Wrapf(err, "open sink %s", path)
		}
		in.sinkFiles = append(in.sinkFiles, f)
		sinks[name] = f
	}
	return sinks, nil
}

func buildEnabledTests(cfg Config) []measure.Test {
	var tests []measure.Test

	if cfg.IsEnabled("dummy", testDefaults["dummy"]) {
		tests = append(tests, measure.NewDummy())
	}
	if cfg.IsEnabled("access-pattern", testDefaults["access-pattern"]) {
		tests = append(tests, measure.NewAccessPattern())
	}
	if cfg.IsEnabled("access-compression", testDefaults["access-compression"]) {
		tests = append(tests, measure.NewAccessCompression(measure.GranularityObject))
		tests = append(tests, measure.NewAccessCompression(measure.GranularityPage))
	}
	if cfg.IsEnabled("huge-page-compression", testDefaults["huge-page-compression"]) {
		tests = append(tests, measure.NewHugePageCompression())
	}
	if cfg.IsEnabled("generational", testDefaults["generational"]) {
		tests = append(tests, measure.NewGenerational())
	}
	if cfg.IsEnabled("page-tracking", testDefaults["page-tracking"]) {
		tests = append(tests, measure.NewPageTracking())
	}
	if cfg.IsEnabled("object-liveness", testDefaults["object-liveness"]) {
		tests = append(tests, measure.NewObjectLiveness())
	}
	if cfg.IsEnabled("page-liveness", testDefaults["page-liveness"]) {
		tests = append(tests, measure.NewPageLiveness())
	}

	return tests
}
