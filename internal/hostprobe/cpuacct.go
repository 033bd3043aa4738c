package hostprobe

import (
	"bufio"
	"bytes"
	"io"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// CPUAcct is the cpu.stat-derived usage figure HeapPulse's generational
// test attaches to a row so a reader can tell "this generation aged
// while the owning cgroup was CPU-starved" from "...while it had headroom".
type CPUAcct struct {
	TotalMicrosec  uint64
	SystemMicrosec uint64
	UserMicrosec   uint64
}

// NewCPUAcct will locate and read the kernel's cpu accounting info for
// the provided systemd cgroup subpath.
func NewCPUAcct(cgSubpath string) (*CPUAcct, error) {
	fs, err := NewDefaultFS()
	if err != nil {
		return nil, err
	}
	return fs.NewCPUAcct(cgSubpath)
}

// ReadFileNoStat reads an entire file without stat-ing it first, since
// many files under /proc and /sys/fs/cgroup report bogus sizes (0 or
// 4096) that would otherwise truncate or over-allocate a plain
// ioutil.ReadFile. Caps out at 512kB; callers needing more should scan
// instead.
func ReadFileNoStat(filename string) ([]byte, error) {
	const maxBufferSize = 1024 * 512

	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := io.LimitReader(f, maxBufferSize)
	return ioutil.ReadAll(reader)
}

// NewCPUAcct will locate and read the kernel's cpu accounting info for
// the provided systemd cgroup subpath.
func (fs FS) NewCPUAcct(cgSubpath string) (*CPUAcct, error) {
	var cpuAcct CPUAcct
	var readTotal, readUser, readSystem bool

	cgPath, err := fs.cgGetPath("cpu", cgSubpath, "cpu.stat")
	if err != nil {
		return nil, errors.Wrapf(err, "unable to get cpu controller path")
	}

	// Example cpu.stat (only these three keys are used)
	// usage_usec 34500175
	// user_usec 21165924
	// system_usec 13334251
	b, err := ReadFileNoStat(cgPath)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read file %s", cgPath)
	}

	scanner := bufio.NewScanner(bytes.NewReader(b))
	for scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, errors.Wrapf(err, "unable to scan file %s", cgPath)
		}
		text := scanner.Text()
		vals := strings.Split(text, " ")
		if len(vals) != 2 {
			return nil, errors.Errorf("unable to parse contents of file %s", cgPath)
		}
		header := vals[0]
		value, err := strconv.ParseUint(vals[1], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to parse %s as uint64 (from %s)", vals[1], cgPath)
		}
		// log.Infoln("parsed", header, value)
		switch header {
		case "usage_usec":
			cpuAcct.TotalMicrosec = value
			readTotal = true
		case "user_usec":
			cpuAcct.UserMicrosec = value
			readUser = true
		case "system_usec":
			cpuAcct.SystemMicrosec = value
			readSystem = true
		}
	}
	if !(readTotal && readUser && readSystem) {
		return nil, errors.Errorf("no / incomplete info extracted from %s", cgPath)
	}

	return &cpuAcct, nil
}
