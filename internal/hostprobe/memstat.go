package hostprobe

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// MemStat is the subset of a cgroup v2 memory.stat file HeapPulse's
// generational test uses to label a row with the
// container-level memory pressure context the instrumented process was
// running under, trimmed from the full field set systemd_exporter reads
// for its own memory metrics (see
// https://www.kernel.org/doc/html/latest/admin-guide/cgroup-v2.html for
// the complete key list).
type MemStat struct {
	AnonBytes       uint64
	FileBytes       uint64
	FileDirtyBytes  uint64
	SlabBytes       uint64
	PgMajFaultBytes uint64
}

func parseMemStat(r *bytes.Reader) (*MemStat, error) {
	var m MemStat
	s := bufio.NewScanner(r)
	for s.Scan() {
		fields := strings.Fields(s.Text())
		if len(fields) < 2 {
			return nil, fmt.Errorf("malformed memory.stat line: %q", s.Text())
		}
		v, err := strconv.ParseUint(fields[1], 0, 64)
		if err != nil {
			return nil, err
		}
		switch fields[0] {
		case "anon":
			m.AnonBytes = v
		case "file":
			m.FileBytes = v
		case "file_dirty":
			m.FileDirtyBytes = v
		case "slab":
			m.SlabBytes = v
		case "pgmajfault":
			m.PgMajFaultBytes = v
		}
	}
	return &m, nil
}

// NewMemStat locates and reads memory.stat for the given cgroup subpath
// under the default cgroup mountpoint.
func NewMemStat(cgSubpath string) (MemStat, error) {
	fs, err := NewDefaultFS()
	if err != nil {
		return MemStat{}, err
	}
	return fs.NewMemStat(cgSubpath)
}

// NewMemStat returns memory.stat for cgSubpath under fs's mountpoint.
func (fs FS) NewMemStat(cgSubpath string) (MemStat, error) {
	cgPath, err := fs.cgGetPath("memory", cgSubpath, "memory.stat")
	if err != nil {
		return MemStat{}, errors.Wrap(err, "unable to get memory controller path")
	}
	b, err := ReadFileNoStat(cgPath)
	if err != nil {
		return MemStat{}, err
	}
	m, err := parseMemStat(bytes.NewReader(b))
	if err != nil {
		return MemStat{}, errors.Wrap(err, "failed to parse memory.stat")
	}
	return *m, nil
}
