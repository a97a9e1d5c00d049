package common

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndexFold(t *testing.T) {
	assert.Equal(t, 0, IndexFold("Need To go", "need to "))
	assert.Equal(t, 4, IndexFold("so, REMIND me", "remind"))
	assert.Equal(t, -1, IndexFold("nothing here", "remind"))
	assert.Equal(t, 0, IndexFold("anything", ""))
}

// The returned offset must be usable on the searched string even when it
// contains characters whose lowercase form has a different byte length.
func TestIndexFoldMultibyte(t *testing.T) {
	prefix := strings.Repeat("Ⱥ", 10)
	s := prefix + "My Name Is Dana"

	idx := IndexFold(s, "my name is ")
	assert.Equal(t, len(prefix), idx)
	assert.Equal(t, "Dana", s[idx+len("my name is "):])
}
