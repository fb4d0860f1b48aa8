package texam

import (
	"path"
	"sort"
	"strings"

	corev1 "k8s.io/api/core/v1"

	"github.com/poiesis-tes/poiesis/internal/tes"
)

// ComputeVolumeMounts computes the minimal covering set of mount points so
// that every declared input path, every output parent path, and every task
// `volumes` entry is visible at its semantic absolute path inside the
// executor container (spec.md §4.7). Order: declared volumes first, then
// output-parent directories (keeping the shallowest when one contains
// another), then inputs not already covered. Each mount projects the
// shared PVC via subPath = path with its leading "/" stripped, matching
// where Tif staged it under the staging root.
func ComputeVolumeMounts(volumes []string, inputs []tes.Input, outputs []tes.Output) []corev1.VolumeMount {
	var roots []string

	for _, v := range volumes {
		roots = appendCovering(roots, v)
	}

	outputDirs := make([]string, 0, len(outputs))
	for _, o := range outputs {
		if o.Type == "DIRECTORY" {
			outputDirs = append(outputDirs, o.Path)
		} else {
			outputDirs = append(outputDirs, path.Dir(o.Path))
		}
	}
	sort.Slice(outputDirs, func(i, j int) bool { return len(outputDirs[i]) < len(outputDirs[j]) })
	for _, d := range outputDirs {
		roots = appendCovering(roots, d)
	}

	for _, in := range inputs {
		p := in.Path
		if in.Type != "DIRECTORY" {
			p = path.Dir(p)
		}
		if !coveredBy(roots, p) {
			roots = appendCovering(roots, p)
		}
	}

	mounts := make([]corev1.VolumeMount, 0, len(roots))
	for _, r := range roots {
		mounts = append(mounts, corev1.VolumeMount{
			Name:      "staging",
			MountPath: r,
			SubPath:   strings.TrimPrefix(r, "/"),
		})
	}
	return mounts
}

// appendCovering adds p to roots unless an existing root already covers it
// (p is p itself or a descendant); if p covers one or more existing roots,
// those are dropped in favor of the shallower p.
func appendCovering(roots []string, p string) []string {
	if coveredBy(roots, p) {
		return roots
	}
	next := make([]string, 0, len(roots)+1)
	for _, r := range roots {
		if isDescendant(r, p) {
			continue // p is shallower; drop r
		}
		next = append(next, r)
	}
	next = append(next, p)
	return next
}

func coveredBy(roots []string, p string) bool {
	for _, r := range roots {
		if r == p || isDescendant(p, r) {
			return true
		}
	}
	return false
}

// isDescendant reports whether p is equal to or nested under root.
func isDescendant(p, root string) bool {
	if p == root {
		return true
	}
	return strings.HasPrefix(p, strings.TrimSuffix(root, "/")+"/")
}
