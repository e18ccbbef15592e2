package endpoint

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
)

const (
	// DefaultPort is the visualizer's UDP port.
	DefaultPort = 12345

	// MDNSService is the service type the visualizer may advertise.
	MDNSService = "_wavetap-viz._udp"

	helperCommandTimeout = 5 * time.Second
	mdnsBrowseTimeout    = 2 * time.Second
	probeDialTimeout     = 100 * time.Millisecond
)

// Endpoint is the destination address for every outgoing datagram.
// Resolved once at startup, immutable afterward.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Resolver determines the visualizer's address without user interaction.
//
// The policy chain, first success wins:
//  1. a fixed configured host, used unvalidated
//  2. the helper command (`wsl hostname -I`), first valid IPv4 of its output
//  3. an mDNS browse for an advertised visualizer
//  4. a probe over a small set of private-range candidates
//  5. loopback
//
// Resolution never fails: at worst it terminates at loopback. Given fixed
// inputs the result is deterministic, so resolving twice in the same
// environment yields the same endpoint.
type Resolver struct {
	logger    *slog.Logger
	fixedHost string
	port      int

	// Behavior hooks, replaced in tests.
	runCommand func(ctx context.Context, name string, args ...string) (string, error)
	browse     func(ctx context.Context) (string, bool)
	probeSend  func(addr string) bool
}

func NewResolver(fixedHost string, port int, logger *slog.Logger) *Resolver {
	if port <= 0 {
		port = DefaultPort
	}
	r := &Resolver{
		logger:    logger,
		fixedHost: fixedHost,
		port:      port,
	}
	r.runCommand = runCommand
	r.browse = r.browseMDNS
	r.probeSend = r.probeSendUDP
	return r
}

// Resolve walks the policy chain and always produces an endpoint.
func (r *Resolver) Resolve(ctx context.Context) Endpoint {
	if r.fixedHost != "" {
		r.logger.Info("using fixed endpoint host", "host", r.fixedHost)
		return Endpoint{Host: r.fixedHost, Port: r.port}
	}

	if host, ok := r.resolveFromHelper(ctx); ok {
		r.logger.Info("resolved endpoint from helper command", "host", host)
		return Endpoint{Host: host, Port: r.port}
	}

	if host, ok := r.browse(ctx); ok {
		r.logger.Info("resolved endpoint from mdns browse", "host", host)
		return Endpoint{Host: host, Port: r.port}
	}

	if host, ok := r.probeCandidates(); ok {
		// A routable candidate is a weak signal: the send not erroring only
		// proves the local stack accepted the datagram, not that anything is
		// listening there.
		r.logger.Warn("resolved endpoint by private-range probe, unverified", "host", host)
		return Endpoint{Host: host, Port: r.port}
	}

	r.logger.Info("endpoint resolution fell back to loopback")
	return Endpoint{Host: "127.0.0.1", Port: r.port}
}

// resolveFromHelper asks the host environment for a peer address by running
// `wsl hostname -I` and taking the first syntactically valid IPv4 field. An
// invalid or missing result is rejected, not retried.
func (r *Resolver) resolveFromHelper(ctx context.Context) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, helperCommandTimeout)
	defer cancel()

	out, err := r.runCommand(ctx, "wsl", "hostname", "-I")
	if err != nil {
		r.logger.Debug("helper command failed", "err", err)
		return "", false
	}

	for _, field := range strings.Fields(out) {
		if ValidIPv4(field) {
			return field, true
		}
	}
	r.logger.Debug("helper command output held no valid IPv4 address", "output", out)
	return "", false
}

func (r *Resolver) browseMDNS(ctx context.Context) (string, bool) {
	entries := make(chan *mdns.ServiceEntry, 8)
	found := make(chan string, 1)

	go func() {
		for entry := range entries {
			if entry.AddrV4 != nil {
				select {
				case found <- entry.AddrV4.String():
				default:
				}
			}
		}
	}()

	err := mdns.Query(&mdns.QueryParam{
		Service:     MDNSService,
		Domain:      "local",
		Timeout:     mdnsBrowseTimeout,
		Entries:     entries,
		DisableIPv6: true,
	})
	close(entries)
	if err != nil {
		r.logger.Debug("mdns browse failed", "err", err)
		return "", false
	}

	select {
	case host := <-found:
		return host, true
	default:
		return "", false
	}
}

// probeCandidates walks a fixed set of private-range hosts and keeps the first
// one a zero-payload UDP send reaches without a local error.
func (r *Resolver) probeCandidates() (string, bool) {
	for _, base := range []string{"172.28", "172.29", "172.30"} {
		for i := 48; i < 80; i++ {
			host := fmt.Sprintf("%s.%d.71", base, i)
			if r.probeSend(net.JoinHostPort(host, strconv.Itoa(r.port))) {
				return host, true
			}
		}
	}
	return "", false
}

func (r *Resolver) probeSendUDP(addr string) bool {
	conn, err := net.DialTimeout("udp", addr, probeDialTimeout)
	if err != nil {
		return false
	}
	defer conn.Close()

	_, err = conn.Write(nil)
	return err == nil
}

// ValidIPv4 reports whether s is four dot-separated decimal octets, each
// representable in 8 bits.
func ValidIPv4(s string) bool {
	octets := strings.Split(s, ".")
	if len(octets) != 4 {
		return false
	}
	for _, octet := range octets {
		if len(octet) == 0 || len(octet) > 3 {
			return false
		}
		for _, c := range octet {
			if c < '0' || c > '9' {
				return false
			}
		}
		v, err := strconv.Atoi(octet)
		if err != nil || v > 255 {
			return false
		}
	}
	return true
}

func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}
