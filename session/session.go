// Package session ties the catalog, the generator, the rate limiter and the
// lookup together. A Session is built once at startup and passed to whatever
// presents results; it owns the selected location.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/zlobste/ipgen/addrspace"
	"github.com/zlobste/ipgen/catalog"
	"github.com/zlobste/ipgen/generator"
	"github.com/zlobste/ipgen/lookup"
	"github.com/zlobste/ipgen/ratelimit"
)

// Sentinel errors
var (
	ErrRateLimited = errors.New("session: rate limited")
	ErrNoSelection = errors.New("session: no location selected")
)

// Session holds per-user state. It is safe for concurrent use.
type Session struct {
	mu       sync.Mutex
	selected *catalog.Location
	rnd      *rand.Rand

	catalog *catalog.Catalog
	limiter *ratelimit.Limiter
	gen     *generator.Generator
	lookup  lookup.Lookup
	log     *log.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithLimiter replaces the default limiter.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(s *Session) { s.limiter = l }
}

// WithGenerator replaces the default generator.
func WithGenerator(g *generator.Generator) Option {
	return func(s *Session) { s.gen = g }
}

// WithLookup sets the country lookup used for IPv4 results. Without one
// every IPv4 address is reported as lookup.Unknown.
func WithLookup(l lookup.Lookup) Option {
	return func(s *Session) { s.lookup = l }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithRand sets the source used by SelectRandom.
func WithRand(r *rand.Rand) Option {
	return func(s *Session) { s.rnd = r }
}

// New creates a Session over cat.
func New(cat *catalog.Catalog, opts ...Option) *Session {
	s := &Session{catalog: cat}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = log.New(io.Discard)
	}
	if s.limiter == nil {
		s.limiter = ratelimit.New()
	}
	if s.gen == nil {
		s.gen = generator.New(generator.WithLogger(s.log))
	}
	if s.rnd == nil {
		s.rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return s
}

// Close stops the limiter's pending timers.
func (s *Session) Close() {
	s.limiter.Stop()
}

// Catalog returns the catalog the session selects from.
func (s *Session) Catalog() *catalog.Catalog { return s.catalog }

// Limiter returns the session's rate limiter.
func (s *Session) Limiter() *ratelimit.Limiter { return s.limiter }

// Select makes the location with the given id current.
func (s *Session) Select(id string) (catalog.Location, error) {
	loc, err := s.catalog.Find(id)
	if err != nil {
		return catalog.Location{}, err
	}
	s.setSelected(loc)
	return loc, nil
}

// SelectRandom makes a uniformly chosen location current.
func (s *Session) SelectRandom() (catalog.Location, error) {
	s.mu.Lock()
	loc, ok := s.catalog.Random(s.rnd)
	s.mu.Unlock()
	if !ok {
		return catalog.Location{}, fmt.Errorf("%w: catalog is empty", ErrNoSelection)
	}
	s.setSelected(loc)
	return loc, nil
}

func (s *Session) setSelected(loc catalog.Location) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selected = &loc
	s.log.Debug("location selected", "id", loc.ID, "name", loc.Name)
}

// Selected returns the current location.
func (s *Session) Selected() (catalog.Location, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected == nil {
		return catalog.Location{}, false
	}
	return *s.selected, true
}

// Result is one generated batch. The address list never changes after
// Generate returns; countries arrive separately through Enrichment.
type Result struct {
	Family     addrspace.Family
	Location   catalog.Location
	Enrichment *Enrichment

	addresses []string
}

// Addresses returns a copy of the generated addresses in generation order.
func (r *Result) Addresses() []string {
	return append([]string(nil), r.addresses...)
}

// Enrichment is resolved with one country per address once all lookups have
// finished.
type Enrichment struct {
	done      chan struct{}
	countries []string
}

func resolved(countries []string) *Enrichment {
	e := &Enrichment{done: make(chan struct{}), countries: countries}
	close(e.done)
	return e
}

// Done is closed when the countries are available.
func (e *Enrichment) Done() <-chan struct{} { return e.done }

// Wait blocks until the countries are available or ctx ends.
func (e *Enrichment) Wait(ctx context.Context) ([]string, error) {
	select {
	case <-e.done:
		return append([]string(nil), e.countries...), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Generate produces a batch for the selected location. It consults the
// limiter first (key ipv4 or ipv6) and fails with ErrRateLimited when the
// click is denied, then with ErrNoSelection when nothing is selected.
//
// IPv4 countries come from the lookup, run concurrently under ctx. IPv6
// countries are the selected location's country.
func (s *Session) Generate(ctx context.Context, fam addrspace.Family) (*Result, error) {
	key := ratelimit.KeyIPv4
	if fam == addrspace.V6 {
		key = ratelimit.KeyIPv6
	}
	if s.limiter.CheckAndRecord(key) {
		return nil, fmt.Errorf("%w: %s", ErrRateLimited, key)
	}

	loc, ok := s.Selected()
	if !ok {
		return nil, ErrNoSelection
	}

	ranges := loc.V4Ranges()
	if fam == addrspace.V6 {
		ranges = loc.V6Ranges()
	}
	if len(ranges) == 0 {
		s.log.Error("no ranges for location", "family", fam, "location", loc.ID)
	}

	addrs := s.gen.Batch(fam, ranges)
	for _, a := range addrs {
		s.log.Debug("generated address", "family", fam, "location", loc.Name, "addr", a)
	}

	res := &Result{
		Family:    fam,
		Location:  loc,
		addresses: addrs,
	}
	if fam == addrspace.V6 {
		countries := make([]string, len(addrs))
		for i := range countries {
			countries[i] = loc.Country()
		}
		res.Enrichment = resolved(countries)
	} else {
		res.Enrichment = s.lookupAll(ctx, res.Addresses())
	}
	return res, nil
}

func (s *Session) lookupAll(ctx context.Context, addrs []string) *Enrichment {
	e := &Enrichment{
		done:      make(chan struct{}),
		countries: make([]string, len(addrs)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(generator.BatchSize)
	for i, addr := range addrs {
		i, addr := i, addr
		g.Go(func() error {
			e.countries[i] = lookup.CountryOrUnknown(gctx, s.lookup, addr)
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(e.done)
	}()

	return e
}

// Copy records a copy action on addr. It returns the address to hand to the
// clipboard, or ErrRateLimited.
func (s *Session) Copy(addr string) (string, error) {
	if s.limiter.CheckAndRecord(ratelimit.KeyCopy) {
		return "", fmt.Errorf("%w: %s", ErrRateLimited, ratelimit.KeyCopy)
	}
	return addr, nil
}
