package detector

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrEmptyPIDFile is returned when the pid file has no pid line.
var ErrEmptyPIDFile = errors.New("empty pidfile")

// PIDFile is the parsed content of a daemon pid file.
// The first line holds the pid; a later line may hold {"start_unix": N}.
type PIDFile struct {
	PID       int
	StartUnix int64
}

type pidMeta struct {
	StartUnix int64 `json:"start_unix"`
}

// ParsePIDFile parses pid file content.
func ParsePIDFile(data []byte) (PIDFile, error) {
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	first := strings.TrimSpace(lines[0])
	if first == "" {
		return PIDFile{}, ErrEmptyPIDFile
	}
	pid, err := strconv.Atoi(first)
	if err != nil {
		return PIDFile{}, fmt.Errorf("invalid pid %q: %w", first, err)
	}
	pf := PIDFile{PID: pid}
	for _, l := range lines[1:] {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		var m pidMeta
		if err := json.Unmarshal([]byte(l), &m); err == nil && m.StartUnix > 0 {
			pf.StartUnix = m.StartUnix
		}
	}
	return pf, nil
}

// WritePIDFile writes pid and, when known, its start time.
func WritePIDFile(path string, pid int, started time.Time) error {
	content := strconv.Itoa(pid) + "\n"
	if !started.IsZero() {
		b, err := json.Marshal(pidMeta{StartUnix: started.Unix()})
		if err != nil {
			return err
		}
		content += string(b) + "\n"
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

// PIDFileDetector detects a daemon via its pid file. A recorded start time
// that differs from the live process means the pid was reused.
type PIDFileDetector struct {
	PIDFile string
}

func (d PIDFileDetector) Alive() (bool, error) {
	data, err := os.ReadFile(d.PIDFile)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	pf, err := ParsePIDFile(data)
	if err != nil {
		return false, fmt.Errorf("%s: %w", d.PIDFile, err)
	}
	if pf.StartUnix > 0 {
		if cur, ok := ProcessStart(pf.PID); ok && !sameStart(pf.StartUnix, cur.Unix()) {
			return false, nil
		}
	}
	return pidAlive(pf.PID), nil
}

// startSkewSeconds is how far a recorded start time may be from the one
// derived from the kernel. Writers that record time.Now() at startup land
// within a second of it.
const startSkewSeconds = 1

func sameStart(recorded, current int64) bool {
	d := recorded - current
	return d >= -startSkewSeconds && d <= startSkewSeconds
}

func (d PIDFileDetector) Describe() string { return "pidfile:" + d.PIDFile }

// PIDDetector detects by a provided PID number.
type PIDDetector struct{ PID int }

func (d PIDDetector) Alive() (bool, error) { return pidAlive(d.PID), nil }
func (d PIDDetector) Describe() string     { return fmt.Sprintf("pid:%d", d.PID) }
