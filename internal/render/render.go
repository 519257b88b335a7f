// Package render formats status reports and command replies for terminals.
package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-isatty"

	"github.com/loykin/daemonctl/internal/daemon"
	"github.com/loykin/daemonctl/internal/statechange"
	"github.com/loykin/daemonctl/internal/status"
)

// TimeLayout formats worker and daemon start times in local time.
const TimeLayout = "2006-01-02 15:04:05"

const (
	MsgNotRunning        = "The daemon is not running"
	MsgPaused            = "The daemon is paused"
	MsgUnexpectedState   = "The daemon is in an unexpected state, try daemonctl resume --reset"
	MsgSupervisorTimeout = "The daemon is running but the call to the supervisor timed out"
	MsgCallTimeout       = "Call to the supervisor timed out"
	MsgNoWorkers         = "--> No workers are running. Use daemonctl incr to start some!"
	msgWorkersHint       = "Use daemonctl [incr | decr] [num] to increase / decrease the amount of workers"
	msgFailedHint        = "Check the daemon logs to potentially see the exception"
)

// ColorMode controls ANSI styling.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

type fdProvider interface {
	Fd() uintptr
}

// ColorEnabled resolves mode against out. Auto enables color only for terminals.
func ColorEnabled(out io.Writer, mode ColorMode) bool {
	switch mode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	default:
		fp, ok := out.(fdProvider)
		if !ok {
			return false
		}
		fd := fp.Fd()
		if fd == ^uintptr(0) {
			return false
		}
		return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	}
}

// Renderer turns results into display text.
type Renderer struct {
	ok     lipgloss.Style
	fail   lipgloss.Style
	info   lipgloss.Style
	warn   lipgloss.Style
	header lipgloss.Style
}

// New returns a renderer; with color disabled every style is a no-op.
func New(color bool) *Renderer {
	if !color {
		plain := lipgloss.NewStyle()
		return &Renderer{ok: plain, fail: plain, info: plain, warn: plain, header: plain}
	}
	return &Renderer{
		ok:     lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		fail:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		info:   lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true),
		warn:   lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
		header: lipgloss.NewStyle().Bold(true),
	}
}

// Status describes one poll result.
func (r *Renderer) Status(rep daemon.StatusReport) string {
	switch rep.Status.Kind {
	case status.NotRunning:
		return MsgNotRunning
	case status.Stopped:
		return MsgPaused
	case status.Error:
		return MsgUnexpectedState
	case status.Timeout:
		if rep.Status.Raw == "timeout" {
			return MsgSupervisorTimeout
		}
		return MsgCallTimeout
	}
	if rep.DaemonInfo == nil {
		return rep.Status.Label()
	}

	workers := MsgNoWorkers + "\n"
	if len(rep.Workers) > 0 {
		workers = r.WorkerTable(rep.Workers)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Daemon is running as PID %d since %s\n", rep.DaemonInfo.PID, rep.DaemonInfo.StartedAt.Local().Format(TimeLayout))
	fmt.Fprintf(&b, "Active workers [%d]:\n", len(rep.Workers))
	b.WriteString(workers)
	if !strings.HasSuffix(workers, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(msgWorkersHint)
	return b.String()
}

// WorkerTable renders PID, memory, cpu and start time per worker.
func (r *Renderer) WorkerTable(workers []daemon.WorkerRecord) string {
	rows := make([][]string, 0, len(workers))
	for _, w := range workers {
		rows = append(rows, []string{
			strconv.Itoa(w.PID),
			formatPercent(w.MemPercent),
			formatPercent(w.CPUPercent),
			w.StartedAt.Local().Format(TimeLayout),
		})
	}
	return table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return r.header.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("PID", "MEM %", "CPU %", "started").
		Rows(rows...).
		String()
}

// CommandResponse describes the reply to a control command. Replies without
// a status render as an empty string.
func (r *Renderer) CommandResponse(st status.Status, ok bool) string {
	if !ok {
		return ""
	}
	switch {
	case st.IsAck():
		return r.ok.Render("OK")
	case st.Kind == status.Active:
		return r.ok.Render("RUNNING")
	case st.Kind == status.NotRunning:
		return r.fail.Render("FAILED") + "\n" + msgFailedHint
	case st.Kind == status.Timeout:
		return r.fail.Render("TIMEOUT")
	default:
		return st.Raw
	}
}

// LastStateChange describes the last activity of a process kind. The daemon
// warning is appended when the daemon is down.
func (r *Renderer) LastStateChange(rep statechange.Report) string {
	line := r.info.Render("Info:") + " last time an entry changed state: " + rep.Relative
	if rep.Found {
		line += " (" + rep.Absolute + ")"
	}
	if !rep.DaemonRunning {
		line += "\n" + r.warn.Render("Warning:") + " " + r.header.Render("the daemon is not running")
	}
	return line
}

func formatPercent(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
