// Package daemon manages the background gateway process: pidfile
// bookkeeping and start/stop/status plumbing for the CLI.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
)

// PIDFile tracks the gateway process. One gateway per state directory;
// the pidfile is how a second start detects the first.
type PIDFile struct {
	path string
	mu   sync.Mutex
}

func NewPIDFile(path string) *PIDFile {
	os.MkdirAll(filepath.Dir(path), 0o755)
	return &PIDFile{path: path}
}

// WritePID records pid, refusing when a live process already holds the
// file. Stale entries from dead processes are overwritten.
func (p *PIDFile) WritePID(pid int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, err := p.read(); err == nil && processRunning(existing) {
		return &ProcessRunningError{pid: existing, Path: p.path}
	}

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return fmt.Errorf("failed to write pidfile: %w", err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to create pidfile: %w", err)
	}
	return nil
}

// Write records the current process.
func (p *PIDFile) Write() error {
	return p.WritePID(os.Getpid())
}

// Read returns the recorded PID, or 0 when absent or unreadable.
func (p *PIDFile) Read() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	pid, err := p.read()
	if err != nil {
		return 0
	}
	return pid
}

// Remove deletes the pidfile. Idempotent.
func (p *PIDFile) Remove() {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = os.Remove(p.path)
}

// IsProcessRunning reports whether the recorded process is alive.
func (p *PIDFile) IsProcessRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	pid, err := p.read()
	if err != nil {
		return false
	}
	return processRunning(pid)
}

func (p *PIDFile) read() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, fmt.Errorf("invalid pid in file: %w", err)
	}
	return pid, nil
}

// processRunning probes with signal 0, which checks existence without
// delivering anything.
func processRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

// ProcessRunningError reports a pidfile already held by a live
// process.
type ProcessRunningError struct {
	pid  int
	Path string
}

func (e *ProcessRunningError) Error() string {
	return fmt.Sprintf("process already running with PID %d (pidfile: %s)", e.pid, e.Path)
}

func (e *ProcessRunningError) GetPID() int {
	return e.pid
}
