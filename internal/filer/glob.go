package filer

import (
	"path/filepath"
	"strings"

	"github.com/poiesis-tes/poiesis/internal/logging"
)

// ResolveGlob implements the upload-only glob handling of spec.md §4.4: if
// output.path contains a glob metacharacter or path_prefix is set, resolve
// matches against the staged container path, strip the staging root then
// path_prefix to compute each match's relative upload key. If no matches
// are found, fall back to uploading the directory at path_prefix (or its
// inferred value).
func ResolveGlob(stagingRoot, semanticPath, pathPrefix string, log *logging.Logger) ([]GlobItem, error) {
	containerGlob := ContainerPath(stagingRoot, semanticPath)
	matches, err := filepath.Glob(containerGlob)
	if err != nil {
		return nil, err
	}

	prefix := pathPrefix
	if prefix == "" {
		prefix = InferBasePath(semanticPath)
	}
	prefixContainerPath := ContainerPath(stagingRoot, prefix)

	if len(matches) == 0 {
		if log != nil {
			log.Warnf("glob %s matched nothing; falling back to directory upload of %s", semanticPath, prefix)
		}
		return []GlobItem{{ContainerPath: prefixContainerPath, RelativeKey: "", IsDirectory: true}}, nil
	}

	items := make([]GlobItem, 0, len(matches))
	for _, m := range matches {
		rel := strings.TrimPrefix(m, prefixContainerPath)
		rel = strings.TrimPrefix(rel, string(filepath.Separator))
		isDir := false
		if info, statErr := statSafe(m); statErr == nil && info.IsDir() {
			isDir = true
		}
		items = append(items, GlobItem{ContainerPath: m, RelativeKey: filepath.ToSlash(rel), IsDirectory: isDir})
	}
	return items, nil
}
