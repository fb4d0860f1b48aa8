package task

import (
	"fmt"

	hcversion "github.com/hashicorp/go-version"

	"github.com/poiesis-tes/poiesis/internal/poiesiserr"
)

// SupportedTESVersion is the GA4GH TES version this engine implements.
const SupportedTESVersion = "1.1.0"

// ValidateTESVersion rejects a submitted task whose tes_version is newer
// than SupportedTESVersion; an empty version is treated as the engine's
// own version (clients that omit it get the default behavior).
func ValidateTESVersion(requested string) error {
	if requested == "" {
		return nil
	}
	want, err := hcversion.NewVersion(requested)
	if err != nil {
		return poiesiserr.Wrap(poiesiserr.BadRequest, "invalid tes_version", err)
	}
	supported, err := hcversion.NewVersion(SupportedTESVersion)
	if err != nil {
		return poiesiserr.Wrap(poiesiserr.PlatformError, "invalid built-in tes version constant", err)
	}
	if want.GreaterThan(supported) {
		return poiesiserr.New(poiesiserr.BadRequest,
			fmt.Sprintf("tes_version %s is newer than supported version %s", requested, SupportedTESVersion))
	}
	return nil
}
