package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArchiveKey(t *testing.T) {
	assert.Equal(t, "tournaments/spring-cup-3f2a9c1e.json", ArchiveKey("Spring Cup", "3f2a9c1e-aaaa-bbbb"))
	assert.Equal(t, "tournaments/final-round-abcd.json", ArchiveKey("  Final   Round ", "abcd"))
	assert.Equal(t, "tournaments/xyz.json", ArchiveKey("!!!", "xyz"))
}
