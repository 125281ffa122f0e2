package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStampedValuesWin(t *testing.T) {
	old := version
	t.Cleanup(func() { version = old })

	version = "v1.2.3"
	assert.Equal(t, "v1.2.3", Version())
}

func TestFallbacks(t *testing.T) {
	assert.Equal(t, "fallback", pick("", "no.such.key", "fallback"))
	assert.Equal(t, "stamped", pick("stamped", "vcs.revision", "fallback"))
	assert.NotEmpty(t, Commit())
	assert.Len(t, Fields(), 4)
}
