// Package generator draws random addresses from CIDR ranges. Bits covered by
// the prefix are kept from the base address, every host bit is random.
package generator

import (
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/zlobste/ipgen/addrspace"
)

const (
	// FallbackV4 is returned by V4 when no usable range was given.
	FallbackV4 = "0.0.0.0"
	// FallbackV6 is returned by V6 when no usable range was given.
	FallbackV6 = "2001:db8::1"
	// BatchSize is the number of addresses produced per Batch call.
	BatchSize = 5
)

// Sentinel errors
var (
	ErrEmptyRangeList = errors.New("generator: empty range list")
	ErrFamilyMismatch = errors.New("generator: address family mismatch")
)

// Generator produces random addresses. It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
	log *log.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithRand sets the random source, mainly so tests can seed it.
func WithRand(r *rand.Rand) Option {
	return func(g *Generator) { g.rnd = r }
}

// WithLogger sets the logger used to report rejected ranges.
func WithLogger(l *log.Logger) Option {
	return func(g *Generator) { g.log = l }
}

// New returns a Generator seeded from the runtime's random source.
func New(opts ...Option) *Generator {
	g := &Generator{}
	for _, opt := range opts {
		opt(g)
	}
	if g.rnd == nil {
		g.rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if g.log == nil {
		g.log = log.New(io.Discard)
	}
	return g
}

// V4 returns a random IPv4 address from one of ranges, picked uniformly per
// call. Problems are logged and yield FallbackV4.
func (g *Generator) V4(ranges ...string) string {
	addr, err := g.GenerateV4(ranges)
	if err != nil {
		g.log.Error("cannot generate ipv4 address", "ranges", ranges, "err", err)
		return FallbackV4
	}
	return addr
}

// V6 returns a random IPv6 address from one of ranges, picked uniformly per
// call. Problems are logged and yield FallbackV6.
func (g *Generator) V6(ranges ...string) string {
	addr, err := g.GenerateV6(ranges)
	if err != nil {
		g.log.Error("cannot generate ipv6 address", "ranges", ranges, "err", err)
		return FallbackV6
	}
	return addr
}

// GenerateV4 is V4 without the fallback.
func (g *Generator) GenerateV4(ranges []string) (string, error) {
	a, err := g.generate(addrspace.V4, ranges)
	if err != nil {
		return "", err
	}
	return a.String(), nil
}

// GenerateV6 is V6 without the fallback.
func (g *Generator) GenerateV6(ranges []string) (string, error) {
	a, err := g.generate(addrspace.V6, ranges)
	if err != nil {
		return "", err
	}
	return a.String(), nil
}

// Batch returns BatchSize addresses of the given family in generation order.
// Each address re-rolls the range choice.
func (g *Generator) Batch(fam addrspace.Family, ranges []string) []string {
	out := make([]string, BatchSize)
	for i := range out {
		if fam == addrspace.V6 {
			out[i] = g.V6(ranges...)
		} else {
			out[i] = g.V4(ranges...)
		}
	}
	return out
}

func (g *Generator) generate(fam addrspace.Family, ranges []string) (addrspace.Addr, error) {
	if len(ranges) == 0 {
		return addrspace.Addr{}, fmt.Errorf("%w: %s", ErrEmptyRangeList, fam)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	cidr := ranges[g.rnd.IntN(len(ranges))]
	sp, err := addrspace.Parse(cidr)
	if err != nil {
		return addrspace.Addr{}, err
	}
	if sp.Family() != fam {
		return addrspace.Addr{}, fmt.Errorf("%w: %s range %q", ErrFamilyMismatch, sp.Family(), cidr)
	}
	return g.randomize(sp), nil
}

// randomize replaces the host segments of the base address. Whole host
// segments are drawn uniformly; a segment split by the prefix keeps its high
// (network) bits and gets random low bits. Must be called with mu held.
func (g *Generator) randomize(sp addrspace.Space) addrspace.Addr {
	fam := sp.Family()
	n := fam.Segments()
	w := fam.SegmentBits()
	segs := sp.Base().Segments()

	full := sp.HostBits() / w
	partial := sp.HostBits() % w

	for i := n - full; i < n; i++ {
		segs[i] = uint16(g.rnd.IntN(int(fam.SegmentMax()) + 1))
	}
	if partial > 0 {
		idx := n - full - 1
		maxValue := uint16(1<<partial - 1)
		segs[idx] = segs[idx]&(fam.SegmentMax()-maxValue) | uint16(g.rnd.IntN(int(maxValue)+1))
	}

	// Only the last octet is checked, whatever the prefix. This keeps
	// x.x.x.0 and x.x.x.255 out of the results but does not track the real
	// network and broadcast addresses of unaligned prefixes.
	if fam == addrspace.V4 && (segs[3] == 0 || segs[3] == 255) {
		segs[3] = uint16(1 + g.rnd.IntN(254))
	}

	a, _ := addrspace.NewAddr(segs)
	return a
}
