package main

import (
	"github.com/alphadose/haxmap"
	"golang.org/x/exp/rand"
)

const (
	alphanum = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// Seven random alphanumerics give 62^7 combinations, more than
	// enough to make an accidental cache hit implausible.
	triggerLabelLen = 7
)

// TriggerGenerator produces an endless sequence of guaranteed-fresh
// subdomains of the target domain. Every name it hands out forces the
// victim resolver into a cache miss and therefore into an upstream query
// that a forged answer can race.
//
// Names never repeat within a run: re-querying a name from an earlier
// cycle would hit whatever the resolver cached when that cycle lost the
// race. The issued set lives in a haxmap so concurrent callers are safe.
type TriggerGenerator struct {
	domain string
	rng    *rand.Rand
	issued *haxmap.Map[string, struct{}]
}

// NewTriggerGenerator builds a generator for subdomains of domain. The
// random source is passed in rather than taken from global state so
// tests can seed it and assert exact sequences.
func NewTriggerGenerator(domain string, rng *rand.Rand) *TriggerGenerator {
	return &TriggerGenerator{
		domain: domain,
		rng:    rng,
		issued: haxmap.New[string, struct{}](),
	}
}

// Next returns a fresh "<random>.<domain>" name, retrying on the
// (vanishingly rare) collision with an earlier label.
func (g *TriggerGenerator) Next() string {
	for {
		name := randAlphanumString(g.rng, triggerLabelLen) + "." + g.domain
		if _, collided := g.issued.GetOrSet(name, struct{}{}); !collided {
			return name
		}
	}
}

func randAlphanumString(rng *rand.Rand, length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = alphanum[rng.Intn(len(alphanum))]
	}
	return string(b)
}
