package exec

import (
	"os"

	"github.com/shirou/gopsutil/process"

	ilerrors "github.com/inputlayer/inputlayer/errors"
)

// MemoryMonitor samples the running process's resident set size, giving the
// evaluator a second, wall-clock-independent signal for the "max
// intermediate multiset size" resource limit (spec.md §5) beyond the plain
// tuple-count check checkSize already does: a few wide vector columns can
// blow the process's memory budget long before the tuple count looks large.
type MemoryMonitor struct {
	proc *process.Process
}

// NewMemoryMonitor attaches to the current process.
func NewMemoryMonitor() (*MemoryMonitor, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, ilerrors.ErrIoError.New(err.Error())
	}
	return &MemoryMonitor{proc: p}, nil
}

// RSSBytes samples the current resident set size.
func (m *MemoryMonitor) RSSBytes() (uint64, error) {
	info, err := m.proc.MemoryInfo()
	if err != nil {
		return 0, ilerrors.ErrIoError.New(err.Error())
	}
	return info.RSS, nil
}

// Exceeds reports whether the process is currently over limitBytes. A zero
// limit disables the check (the monitor is opt-in; Limits.MaxMemoryBytes
// defaults to 0).
func (m *MemoryMonitor) Exceeds(limitBytes uint64) (bool, error) {
	if limitBytes == 0 {
		return false, nil
	}
	rss, err := m.RSSBytes()
	if err != nil {
		return false, err
	}
	return rss > limitBytes, nil
}
