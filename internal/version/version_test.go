package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetCurrentVersion(t *testing.T) {
	assert.Equal(t, DevVersion, GetCurrentVersion("dev"))
	assert.Equal(t, DevVersion, GetCurrentVersion("demo"))
	assert.Equal(t, Version, GetCurrentVersion("prod"))
}

func TestStringFull(t *testing.T) {
	origCommit, origBuild := GitCommit, BuildTime
	t.Cleanup(func() {
		GitCommit, BuildTime = origCommit, origBuild
	})

	GitCommit, BuildTime = "unknown", "unknown"
	assert.Equal(t, "Version="+Version, StringFull())

	GitCommit = "0123456789abcdef"
	BuildTime = "2026-01-02T03:04:05Z"
	full := StringFull()
	assert.Contains(t, full, "Version="+Version)
	assert.Contains(t, full, "Commit=01234567", "commit hash is shortened")
	assert.Contains(t, full, "BuildTime=2026-01-02T03:04:05Z")
}
