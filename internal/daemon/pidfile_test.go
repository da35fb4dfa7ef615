package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteReadPIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")

	if err := WritePIDFile(path); err != nil {
		t.Fatalf("WritePIDFile() error: %v", err)
	}
	pid, err := ReadPIDFile(path)
	if err != nil {
		t.Fatalf("ReadPIDFile() error: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}
}

func TestReadPIDFileFormats(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name    string
		content string
		want    int
		wantErr bool
	}{
		{"plain", "1234", 1234, false},
		{"newline terminated", "1234\n", 1234, false},
		{"surrounding whitespace", "  1234 \n", 1234, false},
		{"garbage", "not-a-pid", 0, true},
		{"empty", "", 0, true},
		{"negative", "-7", 0, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(dir, tc.name)
			if err := os.WriteFile(path, []byte(tc.content), 0o600); err != nil {
				t.Fatal(err)
			}
			pid, err := ReadPIDFile(path)
			if tc.wantErr {
				if err == nil {
					t.Errorf("ReadPIDFile(%q) = %d, want error", tc.content, pid)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadPIDFile(%q) error: %v", tc.content, err)
			}
			if pid != tc.want {
				t.Errorf("ReadPIDFile(%q) = %d, want %d", tc.content, pid, tc.want)
			}
		})
	}
}

func TestIsRunningAbsentRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	if IsRunning(path) {
		t.Error("IsRunning() = true for absent pid file")
	}
}

func TestIsRunningGarbageRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	if err := os.WriteFile(path, []byte("bogus\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if IsRunning(path) {
		t.Error("IsRunning() = true for unparseable pid file")
	}
}

func TestIsRunningOwnProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	if err := WritePIDFile(path); err != nil {
		t.Fatal(err)
	}
	if !IsRunning(path) {
		t.Error("IsRunning() = false for the test's own pid")
	}
}

func TestIsRunningDeadProcess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	// Spawn a short-lived process and wait for it so the pid is known-dead.
	// Pid reuse within a single test run is vanishingly unlikely.
	pid := spawnAndReap(t)
	if err := os.WriteFile(path, []byte(formatPID(pid)), 0o600); err != nil {
		t.Fatal(err)
	}
	if IsRunning(path) {
		t.Errorf("IsRunning() = true for exited pid %d", pid)
	}
}

func TestRemovePIDFileIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")
	if err := WritePIDFile(path); err != nil {
		t.Fatal(err)
	}
	if err := RemovePIDFile(path); err != nil {
		t.Fatalf("RemovePIDFile() error: %v", err)
	}
	if err := RemovePIDFile(path); err != nil {
		t.Errorf("second RemovePIDFile() error: %v", err)
	}
}

func TestWaitForRunningTimesOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")

	start := time.Now()
	ok := WaitForRunning(path, 300*time.Millisecond, 100*time.Millisecond)
	elapsed := time.Since(start)

	if ok {
		t.Error("WaitForRunning() = true with no daemon")
	}
	if elapsed < 250*time.Millisecond {
		t.Errorf("returned after %v, want ≈300ms", elapsed)
	}
	if elapsed > 2*time.Second {
		t.Errorf("returned after %v, way past the timeout", elapsed)
	}
}

func TestWaitForRunningObservesLateStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "daemon.pid")

	// Create the liveness record partway through the wait window.
	go func() {
		time.Sleep(150 * time.Millisecond)
		_ = WritePIDFile(path)
	}()

	start := time.Now()
	ok := WaitForRunning(path, 2*time.Second, 50*time.Millisecond)
	elapsed := time.Since(start)

	if !ok {
		t.Fatal("WaitForRunning() = false, daemon record appeared during wait")
	}
	if elapsed > time.Second {
		t.Errorf("observed liveness after %v, want within one poll of 150ms", elapsed)
	}
}
