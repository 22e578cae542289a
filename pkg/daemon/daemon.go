package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nestor-bot/nestor/pkg/logger"
)

const (
	PIDFileName = "gateway.pid"
	LogFileName = "gateway.log"

	shutdownTimeout = 30 * time.Second
)

// Daemon spawns and tears down the background gateway process.
type Daemon struct {
	pidFile    *PIDFile
	logFile    string
	executable string
	args       []string
}

// New builds a daemon manager rooted in the state directory.
func New(stateDir, executable string, args []string) *Daemon {
	return &Daemon{
		pidFile:    NewPIDFile(filepath.Join(stateDir, PIDFileName)),
		logFile:    filepath.Join(stateDir, LogFileName),
		executable: executable,
		args:       args,
	}
}

// Start launches the gateway in the background with output appended to
// the daemon log.
func (d *Daemon) Start() error {
	if d.pidFile.IsProcessRunning() {
		return fmt.Errorf("gateway is already running (PID %d)", d.pidFile.Read())
	}

	logFH, err := os.OpenFile(d.logFile, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open daemon log: %w", err)
	}
	defer logFH.Close()

	cmd := exec.Command(d.executable, d.args...)
	cmd.Stdout = logFH
	cmd.Stderr = logFH
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	pid := cmd.Process.Pid
	if err := d.pidFile.WritePID(pid); err != nil {
		_ = cmd.Process.Kill()
		return fmt.Errorf("failed to record gateway pid: %w", err)
	}

	// Reap the child when it exits so it never lingers as a zombie.
	go func() { _ = cmd.Wait() }()

	logger.InfoCF("daemon", "Gateway daemon started", map[string]interface{}{"pid": pid})
	return nil
}

// Stop signals the gateway with SIGTERM and waits for it to exit,
// escalating to SIGKILL after the shutdown timeout.
func (d *Daemon) Stop() error {
	pid := d.pidFile.Read()
	if pid == 0 {
		return fmt.Errorf("gateway is not running")
	}
	if !processRunning(pid) {
		d.pidFile.Remove()
		return fmt.Errorf("gateway is not running (stale pidfile removed)")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find gateway process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal gateway: %w", err)
	}

	deadline := time.Now().Add(shutdownTimeout)
	for time.Now().Before(deadline) {
		if !processRunning(pid) {
			d.pidFile.Remove()
			logger.InfoCF("daemon", "Gateway daemon stopped", map[string]interface{}{"pid": pid})
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}

	logger.WarnCF("daemon", "Gateway did not exit, killing", map[string]interface{}{"pid": pid})
	if err := process.Kill(); err != nil {
		return fmt.Errorf("failed to kill gateway: %w", err)
	}
	d.pidFile.Remove()
	return nil
}

// Status describes the daemon process.
type Status struct {
	Running bool
	PID     int
	LogFile string
}

func (d *Daemon) Status() Status {
	pid := d.pidFile.Read()
	return Status{
		Running: processRunning(pid),
		PID:     pid,
		LogFile: d.logFile,
	}
}
