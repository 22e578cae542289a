package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestPIDFileWriteReadRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.pid")
	p := NewPIDFile(path)

	if err := p.Write(); err != nil {
		t.Fatal(err)
	}
	if got := p.Read(); got != os.Getpid() {
		t.Fatalf("Read = %d, want %d", got, os.Getpid())
	}
	if !p.IsProcessRunning() {
		t.Fatal("current process reported dead")
	}

	p.Remove()
	if got := p.Read(); got != 0 {
		t.Fatalf("Read after Remove = %d, want 0", got)
	}
	p.Remove() // idempotent
}

func TestPIDFileRefusesLiveProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.pid")
	p := NewPIDFile(path)

	if err := p.Write(); err != nil {
		t.Fatal(err)
	}

	err := p.WritePID(12345)
	var running *ProcessRunningError
	if !errors.As(err, &running) {
		t.Fatalf("err = %v, want ProcessRunningError", err)
	}
	if running.GetPID() != os.Getpid() {
		t.Fatalf("reported pid = %d, want %d", running.GetPID(), os.Getpid())
	}
}

func TestPIDFileOverwritesStaleEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.pid")
	// A pid that cannot be a live process.
	if err := os.WriteFile(path, []byte("999999999"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewPIDFile(path)
	if err := p.Write(); err != nil {
		t.Fatalf("stale pidfile blocked write: %v", err)
	}
	if got := p.Read(); got != os.Getpid() {
		t.Fatalf("Read = %d, want %d", got, os.Getpid())
	}
}

func TestPIDFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.pid")
	if err := os.WriteFile(path, []byte("not-a-pid"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewPIDFile(path)
	if got := p.Read(); got != 0 {
		t.Fatalf("Read of garbage pidfile = %d, want 0", got)
	}
	if p.IsProcessRunning() {
		t.Fatal("garbage pidfile reported a running process")
	}
}

func TestStatusOnEmptyStateDir(t *testing.T) {
	d := New(t.TempDir(), "/usr/bin/true", nil)
	status := d.Status()
	if status.Running || status.PID != 0 {
		t.Fatalf("status = %+v, want not running", status)
	}
}

func TestStopWithoutProcess(t *testing.T) {
	d := New(t.TempDir(), "/usr/bin/true", nil)
	if err := d.Stop(); err == nil {
		t.Fatal("Stop with no pidfile must error")
	}
}
