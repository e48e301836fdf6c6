package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestTriggerNamesNeverRepeat(t *testing.T) {
	gen := NewTriggerGenerator("example.com", rand.New(rand.NewSource(1)))

	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		name := gen.Next()
		_, dup := seen[name]
		require.False(t, dup, "duplicate name %s", name)
		seen[name] = struct{}{}
	}
}

func TestTriggerNameShape(t *testing.T) {
	gen := NewTriggerGenerator("example.com", rand.New(rand.NewSource(2)))

	for i := 0; i < 100; i++ {
		name := gen.Next()
		require.True(t, strings.HasSuffix(name, ".example.com"), name)

		label := strings.TrimSuffix(name, ".example.com")
		require.Len(t, label, triggerLabelLen, name)
		for _, c := range label {
			assert.Contains(t, alphanum, string(c))
		}
		assert.True(t, validHostname(name), name)
	}
}

func TestTriggerSequenceIsSeedDeterministic(t *testing.T) {
	a := NewTriggerGenerator("example.com", rand.New(rand.NewSource(7)))
	b := NewTriggerGenerator("example.com", rand.New(rand.NewSource(7)))

	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Next(), b.Next())
	}
}
