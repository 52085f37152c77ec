package version

import (
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	orig := Version
	Version = "v1.2.3"
	t.Cleanup(func() { Version = orig })

	info := Get()

	assert.Equal(t, "votepulse", info.Service)
	assert.Equal(t, "v1.2.3", info.Version)
	assert.NotEmpty(t, info.Commit)
	assert.NotEmpty(t, info.BuildTime)
	assert.Equal(t, runtime.Version(), info.GoVersion)
}

func TestFillFromBuildSettings(t *testing.T) {
	settings := []debug.BuildSetting{
		{Key: "vcs.revision", Value: "abc123"},
		{Key: "vcs.time", Value: "2026-01-01T00:00:00Z"},
		{Key: "vcs.modified", Value: "true"},
	}

	var info Info
	fillFromBuildSettings(&info, settings)
	assert.Equal(t, "abc123", info.Commit)
	assert.Equal(t, "2026-01-01T00:00:00Z", info.BuildTime)
	assert.True(t, info.Modified)

	// ldflags win over the VCS stamp.
	info = Info{Commit: "fromldflags"}
	fillFromBuildSettings(&info, settings)
	assert.Equal(t, "fromldflags", info.Commit)
}
