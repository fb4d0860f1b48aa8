package texam

import (
	"testing"

	"github.com/poiesis-tes/poiesis/internal/tes"
)

func TestComputeVolumeMountsDisjointInputsAndOutputs(t *testing.T) {
	mounts := ComputeVolumeMounts(nil,
		[]tes.Input{{Path: "/data/in.txt", Type: "FILE"}},
		[]tes.Output{{Path: "/out/result.txt", Type: "FILE"}},
	)
	if len(mounts) != 2 {
		t.Fatalf("expected 2 mounts, got %d: %+v", len(mounts), mounts)
	}
	seen := map[string]bool{}
	for _, m := range mounts {
		seen[m.MountPath] = true
		if m.SubPath != m.MountPath[1:] {
			t.Errorf("SubPath %q should be MountPath %q with leading slash stripped", m.SubPath, m.MountPath)
		}
	}
	if !seen["/data"] || !seen["/out"] {
		t.Errorf("expected mounts covering /data and /out, got %+v", mounts)
	}
}

func TestComputeVolumeMountsInputCoveredByOutputDir(t *testing.T) {
	mounts := ComputeVolumeMounts(nil,
		[]tes.Input{{Path: "/work/sub/in.txt", Type: "FILE"}},
		[]tes.Output{{Path: "/work", Type: "DIRECTORY"}},
	)
	if len(mounts) != 1 {
		t.Fatalf("expected the input to be covered by the shallower output dir, got %+v", mounts)
	}
	if mounts[0].MountPath != "/work" {
		t.Errorf("MountPath = %q, want /work", mounts[0].MountPath)
	}
}

func TestComputeVolumeMountsDeclaredVolumeCoversEverything(t *testing.T) {
	mounts := ComputeVolumeMounts([]string{"/"},
		[]tes.Input{{Path: "/data/in.txt", Type: "FILE"}},
		[]tes.Output{{Path: "/out/result.txt", Type: "FILE"}},
	)
	if len(mounts) != 1 || mounts[0].MountPath != "/" {
		t.Fatalf("expected a single root mount, got %+v", mounts)
	}
	if mounts[0].SubPath != "" {
		t.Errorf("SubPath for root mount = %q, want empty", mounts[0].SubPath)
	}
}

func TestComputeVolumeMountsOutputDirectoryTypeKeepsFullPath(t *testing.T) {
	mounts := ComputeVolumeMounts(nil, nil,
		[]tes.Output{{Path: "/out/nested", Type: "DIRECTORY"}},
	)
	if len(mounts) != 1 || mounts[0].MountPath != "/out/nested" {
		t.Fatalf("expected the directory output path itself to be mounted, got %+v", mounts)
	}
}
