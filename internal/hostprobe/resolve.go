// Package hostprobe is the (new) host/unit labeling component from
// SPEC_FULL.md: when the instrumented process runs as a systemd-managed
// service, HeapPulse's generational and huge-page rows are labeled with
// the owning unit name and cgroup memory/cpu context, resolved the same
// way talyz-systemd_exporter's Collector resolves a unit's control
// group — conn.GetUnitTypeProperty(..., "ControlGroup") after a
// conn.ListUnits() — trimmed down from a full metrics collector to a
// one-shot PID-to-unit lookup.
package hostprobe

import (
	"bufio"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/coreos/go-systemd/dbus"
	"github.com/pkg/errors"
	"github.com/prometheus/common/log"
)

// Label is what a resolved PID contributes to a measurement row.
type Label struct {
	UnitName   string
	CgroupPath string
	Mem        MemStat
	CPU        CPUAcct
}

// Resolver looks up the systemd unit and cgroup owning a PID. Safe for
// concurrent use; a fresh dbus connection is opened per Resolve call
// since resolution happens once at bootstrap, never on the hot hook
// path.
type Resolver struct {
	logger log.Logger
}

// New constructs a Resolver. A nil logger is replaced with a no-op one.
func New(logger log.Logger) *Resolver {
	if logger == nil {
		logger = log.Base()
	}
	return &Resolver{logger: logger}
}

// Resolve returns the best-effort Label for pid. Only a failure to read
// /proc/<pid>/cgroup yields a zero-value Label and a non-nil error; a
// failure to resolve the unit (no dbus, not running under systemd) or to
// read memory.stat or cpu.stat is logged and leaves that field zero. The
// caller (internal/bootstrap) treats a failed Resolve as "no label".
func (r *Resolver) Resolve(pid int) (Label, error) {
	cgPath, err := processCgroupPath(pid)
	if err != nil {
		return Label{}, errors.Wrapf(err, "read cgroup for pid %d", pid)
	}

	var label Label
	label.CgroupPath = cgPath

	if unit, err := r.unitOwning(cgPath); err == nil {
		label.UnitName = unit
	} else {
		r.logger.Debugf("hostprobe: could not resolve owning unit for %s: %v", cgPath, err)
	}

	if mem, err := NewMemStat(cgPath); err == nil {
		label.Mem = mem
	} else {
		r.logger.Debugf("hostprobe: memory.stat unavailable for %s: %v", cgPath, err)
	}
	if cpu, err := NewCPUAcct(cgPath); err == nil {
		label.CPU = *cpu
	} else {
		r.logger.Debugf("hostprobe: cpu.stat unavailable for %s: %v", cgPath, err)
	}

	return label, nil
}

// processCgroupPath reads /proc/<pid>/cgroup and returns the unified
// (or, failing that, first-listed) hierarchy's subpath.
func processCgroupPath(pid int) (string, error) {
	f, err := os.Open("/proc/" + strconv.Itoa(pid) + "/cgroup")
	if err != nil {
		return "", err
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	var fallback string
	for s.Scan() {
		line := s.Text()
		parts := strings.SplitN(line, ":", 3)
		if len(parts) != 3 {
			continue
		}
		if parts[1] == "" {
			// cgroup v2 unified entry: "0::/path"
			return parts[2], nil
		}
		if fallback == "" {
			fallback = parts[2]
		}
	}
	if fallback == "" {
		return "", errors.New("no cgroup entries found")
	}
	return fallback, nil
}

func (r *Resolver) unitOwning(cgPath string) (string, error) {
	conn, err := dbus.New()
	if err != nil {
		return "", errors.Wrap(err, "dbus connect")
	}
	defer conn.Close()

	units, err := conn.ListUnits()
	if err != nil {
		return "", errors.Wrap(err, "list units")
	}

	for _, unit := range units {
		unitTypeInterface := unitTypeInterfaceName(unit.Name)
		if unitTypeInterface == "" {
			continue
		}
		prop, err := conn.GetUnitTypeProperty(unit.Name, unitTypeInterface, "ControlGroup")
		if err != nil {
			continue
		}
		subpath, ok := prop.Value.Value().(string)
		if !ok || subpath == "" {
			continue
		}
		if strings.HasPrefix(cgPath, subpath) {
			return unit.Name, nil
		}
	}
	return "", errors.New("no unit's ControlGroup matches this process")
}

var unitTypeRE = regexp.MustCompile(`\.([a-z]+)$`)

// unitTypeInterfaceName maps "foo.service" to "Service", "foo.slice" to
// "Slice", etc., mirroring systemd.go's parseUnitTypeInterface without
// needing its full dbus.UnitStatus-keyed Collector state.
func unitTypeInterfaceName(unitName string) string {
	m := unitTypeRE.FindStringSubmatch(unitName)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1][:1]) + m[1][1:]
}
