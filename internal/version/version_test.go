package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	old := GitCommit
	defer func() { GitCommit = old }()

	GitCommit = "abc1234"
	assert.Equal(t, "abc1234", Commit())
	assert.Contains(t, String(), "trefm "+Version)
	assert.Contains(t, String(), "commit abc1234")
}
