package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUniqueStrings(t *testing.T) {
	got := UniqueStrings([]string{"rA", "rB"}, []string{"", "rA", "rC"}, nil)
	assert.Equal(t, []string{"rA", "rB", "rC"}, got)
	assert.Empty(t, UniqueStrings())
}

func TestShortAddress(t *testing.T) {
	assert.Equal(t, "rMxCKb…8m5De", ShortAddress("rMxCKbEDwqr76QuheSUMdEGf4B9xJ8m5De"))
	assert.Equal(t, "rISSUER1", ShortAddress("rISSUER1"))
	assert.Equal(t, "rISSUER1,rMxCKb…8m5De", JoinAddresses([]string{"rISSUER1", "rMxCKbEDwqr76QuheSUMdEGf4B9xJ8m5De"}))
}
