// Package securitycontext loads and validates the infrastructure and
// executor PodSecurityContext/ContainerSecurityContext JSON documents
// mounted from a ConfigMap, restoring a feature the spec.md distillation
// only gestures at ("validated against a schema") — grounded on
// original_source/poiesis/core/constants.py's
// get_infrastructure_pod_security_context / get_executor_pod_security_context.
package securitycontext

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	corev1 "k8s.io/api/core/v1"

	"github.com/poiesis-tes/poiesis/internal/poiesiserr"
)

// Document is the on-disk shape of the mounted security-context JSON: a
// pod-level context plus an optional per-container context, toggled
// independently for infrastructure pods vs. executor pods (spec.md §4.10).
type Document struct {
	Pod       *corev1.PodSecurityContext       `json:"pod,omitempty"`
	Container *corev1.SecurityContext          `json:"container,omitempty"`
}

// required-field validation is deliberately small: a JSON Schema library is
// not wired here because the only structural requirements are valid JSON
// decoding into the known Document shape and at least one of the pod or
// container contexts being present — see DESIGN.md.
func validate(doc *Document) error {
	if doc.Pod == nil && doc.Container == nil {
		return poiesiserr.New(poiesiserr.ConfigError, "security context document has neither pod nor container context")
	}
	return nil
}

// Load reads and validates the JSON document at <mountPath>/<configMapName>.json.
func Load(mountPath, configMapName string) (*Document, error) {
	path := filepath.Join(mountPath, configMapName+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, poiesiserr.Wrap(poiesiserr.ConfigError, fmt.Sprintf("read security context %s", path), err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, poiesiserr.Wrap(poiesiserr.ConfigError, "decode security context json", err)
	}
	if err := validate(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Toggle resolves which Document (if any) applies given the enabled flag;
// nil+nil means "apply no security context".
func Toggle(enabled bool, doc *Document) (*corev1.PodSecurityContext, *corev1.SecurityContext) {
	if !enabled || doc == nil {
		return nil, nil
	}
	return doc.Pod, doc.Container
}
