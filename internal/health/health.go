// Package health reports process statistics for the /healthz endpoint.
package health

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Counter is anything that can report a live count, such as the session
// registry or the dispatcher.
type Counter func() int

type Report struct {
	Status     string  `json:"status"`
	Sessions   int     `json:"sessions"`
	Running    int     `json:"running"`
	Goroutines int     `json:"goroutines"`
	RSSBytes   uint64  `json:"rssBytes,omitempty"`
	UptimeSec  float64 `json:"uptimeSeconds"`
}

// Checker assembles a Report on demand.
type Checker struct {
	sessions Counter
	running  Counter
	started  time.Time
	proc     *process.Process
}

func NewChecker(sessions, running Counter) *Checker {
	c := &Checker{sessions: sessions, running: running, started: time.Now()}
	// RSS is reported only when the platform exposes it.
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		c.proc = p
	}
	return c
}

func (c *Checker) Report() Report {
	r := Report{
		Status:     "ok",
		Goroutines: runtime.NumGoroutine(),
		UptimeSec:  time.Since(c.started).Seconds(),
	}
	if c.sessions != nil {
		r.Sessions = c.sessions()
	}
	if c.running != nil {
		r.Running = c.running()
	}
	if c.proc != nil {
		if mem, err := c.proc.MemoryInfo(); err == nil && mem != nil {
			r.RSSBytes = mem.RSS
		}
	}
	return r
}
