package rtcshare

import (
	"fmt"

	"github.com/bft-labs/rtcshare/pkg/chunked"
	"github.com/bft-labs/rtcshare/pkg/log"
	"github.com/bft-labs/rtcshare/pkg/peer"
	"github.com/bft-labs/rtcshare/pkg/recordstream"
	"github.com/bft-labs/rtcshare/pkg/relay"
	"github.com/bft-labs/rtcshare/pkg/throttle"
	"github.com/bft-labs/rtcshare/pkg/wire"
)

// Version information for the rtcshare module.
const (
	Version              = "1.0.0"
	MinCompatibleVersion = "1.0.0"
)

type moduleVersion struct {
	version    string
	minVersion string
}

func modules() map[string]moduleVersion {
	return map[string]moduleVersion{
		"wire":         {wire.Version, wire.MinCompatibleVersion},
		"throttle":     {throttle.Version, throttle.MinCompatibleVersion},
		"relay":        {relay.Version, relay.MinCompatibleVersion},
		"peer":         {peer.Version, peer.MinCompatibleVersion},
		"chunked":      {chunked.Version, chunked.MinCompatibleVersion},
		"recordstream": {recordstream.Version, recordstream.MinCompatibleVersion},
		"log":          {log.Version, log.MinCompatibleVersion},
	}
}

// ModuleVersions returns the version of each sub-module.
func ModuleVersions() map[string]string {
	out := map[string]string{"rtcshare": Version}
	for name, m := range modules() {
		out[name] = m.version
	}
	return out
}

// CompatibilityMatrix returns the minimum compatible version of each
// sub-module.
func CompatibilityMatrix() map[string]string {
	out := map[string]string{"rtcshare": MinCompatibleVersion}
	for name, m := range modules() {
		out[name] = m.minVersion
	}
	return out
}

func validateModuleVersions() error {
	for name, m := range modules() {
		if !isVersionCompatible(m.version, m.minVersion) {
			return fmt.Errorf("module %s version %s is below minimum compatible version %s",
				name, m.version, m.minVersion)
		}
	}
	return nil
}

// isVersionCompatible reports whether version >= minVersion, both in
// "major.minor.patch" form.
func isVersionCompatible(version, minVersion string) bool {
	var vMajor, vMinor, vPatch int
	var mMajor, mMinor, mPatch int

	_, _ = fmt.Sscanf(version, "%d.%d.%d", &vMajor, &vMinor, &vPatch)
	_, _ = fmt.Sscanf(minVersion, "%d.%d.%d", &mMajor, &mMinor, &mPatch)

	if vMajor != mMajor {
		return vMajor > mMajor
	}
	if vMinor != mMinor {
		return vMinor > mMinor
	}
	return vPatch >= mPatch
}
