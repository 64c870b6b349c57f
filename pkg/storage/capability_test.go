package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProbe_MemToMem(t *testing.T) {
	src := NewMemStorage()
	dst := NewMemStorage()
	caps := Probe(src, dst)

	assert.True(t, caps.SourceIterates)
	assert.False(t, caps.SourceHasBlobs)
	assert.False(t, caps.DestRestores)
	assert.False(t, caps.DestRestoresBlobs)
	assert.False(t, caps.DestHasBlobs)
}

func TestProbe_BadgerToBadger(t *testing.T) {
	src := openTestBadger(t)
	dst := openTestBadger(t)
	caps := Probe(src, dst)

	assert.True(t, caps.SourceIterates)
	assert.True(t, caps.SourceHasBlobs)
	assert.True(t, caps.DestRestores)
	assert.True(t, caps.DestRestoresBlobs)
	assert.True(t, caps.DestHasBlobs)
}

func TestProbe_BadgerSourceToMemDestination(t *testing.T) {
	src := openTestBadger(t)
	dst := NewMemStorage()
	caps := Probe(src, dst)

	assert.True(t, caps.SourceHasBlobs)
	assert.False(t, caps.DestRestores)
	assert.False(t, caps.DestHasBlobs)
}
