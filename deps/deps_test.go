package deps

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"

	"github.com/stevecastle/stereo180/downloads"
)

// withRegistry swaps in an empty registry for the duration of a test.
func withRegistry(t *testing.T) {
	t.Helper()
	mu.Lock()
	orig := registry
	registry = make(map[string]*Dependency)
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		registry = orig
		mu.Unlock()
	})
}

func mockDependency(id string, exists bool, checkErr error) *Dependency {
	return &Dependency{
		ID:        id,
		Name:      id + " Name",
		TargetDir: "/test/" + id,
		Check: func(ctx context.Context) (bool, string, error) {
			return exists, "1.0.0", checkErr
		},
	}
}

// TestBuiltinsRegistered verifies ffmpeg and midas register themselves
func TestBuiltinsRegistered(t *testing.T) {
	for _, id := range []string{"ffmpeg", "midas"} {
		dep, ok := Get(id)
		if !ok {
			t.Errorf("dependency %q not registered", id)
			continue
		}
		if dep.Check == nil {
			t.Errorf("dependency %q has nil Check", id)
		}
	}
	if dep, _ := Get("ffmpeg"); dep != nil {
		if runtime.GOOS == "windows" && dep.Fetch == nil {
			t.Error("ffmpeg should be fetchable on windows")
		}
		if runtime.GOOS != "windows" && !dep.ManualOnly {
			t.Error("ffmpeg should be ManualOnly")
		}
	}
	if dep, _ := Get("midas"); dep != nil && dep.Fetch == nil {
		t.Error("midas should be fetchable")
	}
}

// TestEnsureAvailable covers installed, missing, unknown and failing checks
func TestEnsureAvailable(t *testing.T) {
	withRegistry(t)
	Register(mockDependency("ok", true, nil))
	Register(mockDependency("missing", false, nil))
	Register(mockDependency("broken", false, errors.New("stat failed")))

	tests := []struct {
		id      string
		wantErr string
	}{
		{"ok", ""},
		{"missing", "not installed"},
		{"broken", "failed to check"},
		{"nope", "unknown dependency"},
	}

	for _, tt := range tests {
		err := EnsureAvailable(context.Background(), tt.id)
		if tt.wantErr == "" {
			if err != nil {
				t.Errorf("EnsureAvailable(%q) = %v; want nil", tt.id, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
			t.Errorf("EnsureAvailable(%q) = %v; want error containing %q", tt.id, err, tt.wantErr)
		}
	}
}

// TestCheckAllOrdered verifies statuses come back sorted by ID
func TestCheckAllOrdered(t *testing.T) {
	withRegistry(t)
	Register(mockDependency("b", true, nil))
	Register(mockDependency("a", false, nil))

	statuses := CheckAll(context.Background())
	if len(statuses) != 2 || statuses[0].ID != "a" || statuses[1].ID != "b" {
		t.Fatalf("CheckAll() = %+v; want a then b", statuses)
	}
	if statuses[0].Installed || !statuses[1].Installed {
		t.Errorf("Installed flags = %v,%v; want false,true", statuses[0].Installed, statuses[1].Installed)
	}
}

// TestFetchMissingSkipsInstalled verifies only missing fetchable deps are fetched
func TestFetchMissingSkipsInstalled(t *testing.T) {
	withRegistry(t)
	var fetched []string
	for _, d := range []*Dependency{
		mockDependency("installed", true, nil),
		mockDependency("missing", false, nil),
	} {
		id := d.ID
		d.Fetch = func(ctx context.Context, _ downloads.ProgressCallback) error {
			fetched = append(fetched, id)
			return nil
		}
		Register(d)
	}
	manual := mockDependency("manual", false, nil)
	manual.ManualOnly = true
	Register(manual)

	if err := FetchMissing(context.Background(), nil); err != nil {
		t.Fatalf("FetchMissing() error = %v", err)
	}
	if len(fetched) != 1 || fetched[0] != "missing" {
		t.Errorf("fetched = %v; want [missing]", fetched)
	}
}

// TestParseFFmpegVersion checks version extraction
func TestParseFFmpegVersion(t *testing.T) {
	tests := []struct {
		output string
		want   string
	}{
		{"ffmpeg version 6.1.1-3ubuntu5 Copyright (c) 2000-2023", "6.1.1-3ubuntu5"},
		{"ffmpeg version N-122344-g649a4e98f4-20260103 Copyright", "N-122344-g649a4e98f4-20260103"},
		{"something else", "unknown"},
	}
	for _, tt := range tests {
		if got := parseFFmpegVersion(tt.output); got != tt.want {
			t.Errorf("parseFFmpegVersion(%q) = %q; want %q", tt.output, got, tt.want)
		}
	}
}

// TestIsRuntimeLib checks archive entry matching across platforms
func TestIsRuntimeLib(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"onnxruntime-linux-x64-1.22.0/lib/libonnxruntime.so.1.22.0", true},
		{"onnxruntime-linux-x64-1.22.0/lib/libonnxruntime_providers_shared.so", false},
		{"onnxruntime-osx-arm64-1.22.0/lib/libonnxruntime.1.22.0.dylib", true},
		{"onnxruntime-win-x64-1.22.0/lib/onnxruntime.dll", true},
		{"onnxruntime-win-x64-1.22.0/lib/onnxruntime_providers_shared.dll", false},
		{"onnxruntime-linux-x64-1.22.0/include/onnxruntime_c_api.h", false},
	}
	for _, tt := range tests {
		if got := isRuntimeLib(tt.name); got != tt.want {
			t.Errorf("isRuntimeLib(%q) = %v; want %v", tt.name, got, tt.want)
		}
	}
}

// TestIsBinEntry checks the ffmpeg build archive layout
func TestIsBinEntry(t *testing.T) {
	tests := []struct {
		name string
		tool string
		want bool
	}{
		{"ffmpeg-7.1-essentials_build/bin/ffmpeg.exe", "ffmpeg.exe", true},
		{"ffmpeg-7.1-essentials_build\\bin\\ffprobe.exe", "ffprobe.exe", true},
		{"ffmpeg-7.1-essentials_build/bin/ffplay.exe", "ffmpeg.exe", false},
		{"ffmpeg-7.1-essentials_build/doc/ffmpeg.exe.html", "ffmpeg.exe", false},
	}
	for _, tt := range tests {
		if got := isBinEntry(tt.name, tt.tool); got != tt.want {
			t.Errorf("isBinEntry(%q, %q) = %v; want %v", tt.name, tt.tool, got, tt.want)
		}
	}
}
