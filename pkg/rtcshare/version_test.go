package rtcshare

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsVersionCompatible(t *testing.T) {
	tests := []struct {
		version, min string
		want         bool
	}{
		{"1.0.0", "1.0.0", true},
		{"1.1.0", "1.0.0", true},
		{"1.0.1", "1.0.2", false},
		{"2.0.0", "1.9.9", true},
		{"0.9.0", "1.0.0", false},
	}
	for _, tt := range tests {
		t.Run(tt.version+">="+tt.min, func(t *testing.T) {
			assert.Equal(t, tt.want, isVersionCompatible(tt.version, tt.min))
		})
	}
}

func TestModuleVersionsValid(t *testing.T) {
	assert.NoError(t, validateModuleVersions())
	assert.Equal(t, Version, ModuleVersions()["rtcshare"])
	assert.Contains(t, CompatibilityMatrix(), "throttle")
}
