//go:build !linux

package detector

import (
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// ProcessStart returns when pid started, as reported by gopsutil.
func ProcessStart(pid int) (time.Time, bool) {
	if pid <= 0 {
		return time.Time{}, false
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return time.Time{}, false
	}
	ms, err := p.CreateTime()
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.Unix(ms/1000, 0), true
}
