package pipeline

import (
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stevecastle/stereo180/compositor"
	"github.com/stevecastle/stereo180/faults"
)

// TestLayoutPrepare verifies stale run state is purged and the tree recreated
func TestLayoutPrepare(t *testing.T) {
	root := filepath.Join(t.TempDir(), "work")
	l := NewLayout(root)
	if err := l.Prepare(); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	stale := filepath.Join(l.Stream, "segment_00041.ts")
	os.WriteFile(stale, []byte("old"), 0644)
	os.MkdirAll(l.Batch(2).Composited, 0755)
	keep := filepath.Join(root, "notes.txt")
	os.WriteFile(keep, []byte("mine"), 0644)

	if err := l.Prepare(); err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale segment survived Prepare()")
	}
	if _, err := os.Stat(l.Batch(2).Root); !os.IsNotExist(err) {
		t.Error("stale batch survived Prepare()")
	}
	if _, err := os.Stat(keep); err != nil {
		t.Error("unrelated file removed by Prepare()")
	}
	for _, d := range l.dirs() {
		if fi, err := os.Stat(d); err != nil || !fi.IsDir() {
			t.Errorf("%s missing after Prepare()", d)
		}
	}
}

// TestLayoutNames verifies the deliverable and batch naming
func TestLayoutNames(t *testing.T) {
	l := NewLayout("/w")
	if got := filepath.Base(l.FinalFile(compositor.VR180)); got != "final_vr_180.mp4" {
		t.Errorf("FinalFile(vr180) = %s", got)
	}
	if got := filepath.Base(l.FinalFile(compositor.Anaglyph)); got != "final_anaglyph.mp4" {
		t.Errorf("FinalFile(anaglyph) = %s", got)
	}
	b := l.Batch(7)
	if !strings.HasSuffix(b.Root, "batch_007") || filepath.Dir(b.Depth) != b.Root {
		t.Errorf("Batch(7) = %+v", b)
	}
	if l.Stream != filepath.Join("/w", "output", "stream") || l.FinalHLS != filepath.Join("/w", "output", "final_hls") {
		t.Errorf("stream dirs = %s, %s", l.Stream, l.FinalHLS)
	}
}

// TestLayoutPrepareUnwritable verifies an unusable root is a disk write error
func TestLayoutPrepareUnwritable(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	os.WriteFile(file, nil, 0644)
	err := NewLayout(filepath.Join(file, "work")).Prepare()
	if err == nil || !errors.Is(err, faults.ErrDiskWrite) {
		t.Errorf("Prepare() error = %v; want ErrDiskWrite", err)
	}
}

// TestLock verifies exclusive acquisition and release
func TestLock(t *testing.T) {
	work := filepath.Join(t.TempDir(), "work")
	a, err := AcquireLock(work, "run-a")
	if err != nil {
		t.Fatalf("AcquireLock() error = %v", err)
	}
	_, err = AcquireLock(work, "run-b")
	if !errors.Is(err, ErrLocked) || !strings.Contains(err.Error(), "run-a") {
		t.Errorf("second AcquireLock() error = %v; want ErrLocked naming run-a", err)
	}
	if err := a.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	b, err := AcquireLock(work, "run-b")
	if err != nil {
		t.Fatalf("AcquireLock() after release error = %v", err)
	}
	b.Release()

	var nilLock *Lock
	if err := nilLock.Release(); err != nil {
		t.Errorf("nil Release() error = %v", err)
	}
	if _, err := AcquireLock("  ", "x"); err == nil {
		t.Error("AcquireLock() with empty dir succeeded")
	}
}

// exitedPID starts and reaps a short-lived process and returns its PID.
func exitedPID(t *testing.T) int {
	t.Helper()
	cmd := exec.Command(os.Args[0], "-test.run=^$")
	if err := cmd.Run(); err != nil {
		t.Fatalf("run helper process: %v", err)
	}
	return cmd.Process.Pid
}

func writeLockOwner(t *testing.T, work string, owner lockOwner) {
	t.Helper()
	dir := work + ".lock"
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	data, _ := json.Marshal(owner)
	if err := os.WriteFile(filepath.Join(dir, lockOwnerFile), data, 0644); err != nil {
		t.Fatal(err)
	}
}

// TestLockReclaimsExitedOwner verifies a lock left by a dead process on this
// host is taken over, while live or foreign owners still block
func TestLockReclaimsExitedOwner(t *testing.T) {
	dead := exitedPID(t)
	tests := []struct {
		name   string
		owner  lockOwner
		locked bool
	}{
		{"exited owner", lockOwner{PID: dead, RunID: "dead", Hostname: hostnameOrUnknown()}, false},
		{"live owner", lockOwner{PID: os.Getpid(), RunID: "live", Hostname: hostnameOrUnknown()}, true},
		{"other host", lockOwner{PID: dead, RunID: "remote", Hostname: "elsewhere.invalid"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			work := filepath.Join(t.TempDir(), "work")
			writeLockOwner(t, work, tt.owner)

			l, err := AcquireLock(work, "next")
			if tt.locked {
				if !errors.Is(err, ErrLocked) {
					t.Errorf("AcquireLock() error = %v; want ErrLocked", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("AcquireLock() error = %v", err)
			}
			defer l.Release()
			owner, ok := readLockOwner(work + ".lock")
			if !ok || owner.RunID != "next" || owner.PID != os.Getpid() {
				t.Errorf("owner = %+v; want run next with pid %d", owner, os.Getpid())
			}
		})
	}
}
