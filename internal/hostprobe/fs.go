package hostprobe

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// FS is a handle over a cgroupfs mountpoint, in the same spirit as
// prometheus/procfs's FS-over-mountpoint pattern (no package of this
// edition imports procfs; hostprobe follows its convention for cgroupfs
// instead of procfs).
type FS struct {
	mountpoint string
}

// DefaultCgroupMountpoint is where most distributions mount the unified
// (and, per-controller, the legacy) cgroup hierarchy.
const DefaultCgroupMountpoint = "/sys/fs/cgroup"

// NewDefaultFS opens an FS at DefaultCgroupMountpoint, failing if the
// path does not exist (e.g. running somewhere cgroups aren't mounted,
// such as inside certain containers or on non-Linux test hosts).
func NewDefaultFS() (FS, error) {
	return NewFS(DefaultCgroupMountpoint)
}

// NewFS opens an FS at an arbitrary mountpoint.
func NewFS(mountpoint string) (FS, error) {
	if _, err := os.Stat(mountpoint); err != nil {
		return FS{}, errors.Wrapf(err, "cgroup mountpoint %s unavailable", mountpoint)
	}
	return FS{mountpoint: mountpoint}, nil
}

// cgGetPath resolves the on-disk path of a per-controller cgroup file,
// trying the cgroup v2 unified layout first (controller-less,
// mountpoint/cgSubpath/file) and falling back to the v1
// per-controller layout (mountpoint/controller/cgSubpath/file) — the
// same dual-layout tolerance systemd_exporter's collectors need, since
// HeapPulse may run under either.
func (fs FS) cgGetPath(controller, cgSubpath, file string) (string, error) {
	unified := filepath.Join(fs.mountpoint, cgSubpath, file)
	if _, err := os.Stat(unified); err == nil {
		return unified, nil
	}
	legacy := filepath.Join(fs.mountpoint, controller, cgSubpath, file)
	if _, err := os.Stat(legacy); err == nil {
		return legacy, nil
	}
	return "", errors.Errorf("no %s file for cgroup %q under controller %q", file, cgSubpath, controller)
}
