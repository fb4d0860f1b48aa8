// Package filer implements the scheme-dispatched file/directory transfer
// strategies (C4) plus the shared staging-path and glob computations used
// by Tif/Tof.
package filer

import (
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// globMetaChars matches any of the wildcard metacharacters spec.md
// recognizes for glob detection and key sanitization.
var globMetaChars = regexp.MustCompile(`[*?\[{]`)

// HasGlobMeta reports whether p contains any glob metacharacter.
func HasGlobMeta(p string) bool {
	return globMetaChars.MatchString(p)
}

// ContainerPath computes where a semantic task path materializes under a
// staging root: join(stagingRoot, semanticPath.strip('/')) (spec.md §4.4).
// Callers create parent directories before writing.
func ContainerPath(stagingRoot, semanticPath string) string {
	trimmed := strings.TrimPrefix(semanticPath, "/")
	return filepath.Join(stagingRoot, filepath.FromSlash(trimmed))
}

// SanitizeKey strips any glob metacharacter suffix from an S3-style key,
// returning the longest literal prefix ending at the last "/" before the
// first match (spec.md §8 round-trip: "res/SRR*.fna" -> "res/").
func SanitizeKey(key string) string {
	loc := globMetaChars.FindStringIndex(key)
	if loc == nil {
		return key
	}
	prefix := key[:loc[0]]
	if idx := strings.LastIndex(prefix, "/"); idx >= 0 {
		return prefix[:idx+1]
	}
	return ""
}

// InferBasePath derives the directory a glob output is rooted under when
// path_prefix is absent: the portion of path preceding the first glob
// metacharacter, trimmed to its containing directory (spec.md §4.4, §8).
func InferBasePath(p string) string {
	loc := globMetaChars.FindStringIndex(p)
	if loc == nil {
		return path.Dir(p)
	}
	prefix := p[:loc[0]]
	if strings.HasSuffix(prefix, "/") {
		return prefix
	}
	if idx := strings.LastIndex(prefix, "/"); idx >= 0 {
		return prefix[:idx+1]
	}
	return "."
}
