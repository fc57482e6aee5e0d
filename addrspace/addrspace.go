// Package addrspace parses IPv4 and IPv6 CIDR ranges into fixed-width
// segment arrays and answers size and membership questions about them.
package addrspace

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// Sentinel errors
var (
	ErrMalformedCIDR    = errors.New("addrspace: malformed cidr")
	ErrMalformedAddress = errors.New("addrspace: malformed address")
)

// Family identifies an address family.
type Family int

const (
	V4 Family = 4
	V6 Family = 6
)

// Bits returns the address width in bits.
func (f Family) Bits() int {
	if f == V6 {
		return 128
	}
	return 32
}

// Segments returns how many segments an address of this family has.
func (f Family) Segments() int {
	if f == V6 {
		return 8
	}
	return 4
}

// SegmentBits returns the width of a single segment (octet or hextet).
func (f Family) SegmentBits() int {
	if f == V6 {
		return 16
	}
	return 8
}

// SegmentMax is the largest value a segment can hold.
func (f Family) SegmentMax() uint16 {
	if f == V6 {
		return 0xffff
	}
	return 0xff
}

func (f Family) String() string {
	if f == V6 {
		return "ipv6"
	}
	return "ipv4"
}

// Addr is an address held as segments: 4 octets for IPv4 or 8 hextets for
// IPv6. Unused trailing slots of an IPv4 address are always zero.
type Addr struct {
	family Family
	segs   [8]uint16
}

// NewAddr builds an address from segments. The slice length selects the
// family (4 or 8); values wider than a segment are rejected.
func NewAddr(segs []uint16) (Addr, error) {
	var fam Family
	switch len(segs) {
	case 4:
		fam = V4
	case 8:
		fam = V6
	default:
		return Addr{}, fmt.Errorf("%w: %d segments", ErrMalformedAddress, len(segs))
	}
	a := Addr{family: fam}
	for i, v := range segs {
		if v > fam.SegmentMax() {
			return Addr{}, fmt.Errorf("%w: segment %d out of range", ErrMalformedAddress, i)
		}
		a.segs[i] = v
	}
	return a, nil
}

// ParseAddr parses a bare address without a prefix length.
func ParseAddr(s string) (Addr, error) {
	s = strings.TrimSpace(s)
	fam := familyOf(s)
	segs, err := parseBase(fam, s)
	if err != nil {
		return Addr{}, err
	}
	return Addr{family: fam, segs: segs}, nil
}

// Family returns the address family.
func (a Addr) Family() Family { return a.family }

// Segments returns a copy of the address segments.
func (a Addr) Segments() []uint16 {
	out := make([]uint16, a.family.Segments())
	copy(out, a.segs[:])
	return out
}

// String renders IPv4 as dotted decimal and IPv6 as eight lowercase,
// unpadded hex segments. Runs of zero segments are never compressed.
func (a Addr) String() string {
	n := a.family.Segments()
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		if a.family == V6 {
			parts[i] = strconv.FormatUint(uint64(a.segs[i]), 16)
		} else {
			parts[i] = strconv.Itoa(int(a.segs[i]))
		}
	}
	if a.family == V6 {
		return strings.Join(parts, ":")
	}
	return strings.Join(parts, ".")
}

// Expanded returns the fully expanded 8 * 16-bit hex block representation
// for IPv6 and the dotted form for IPv4.
func (a Addr) Expanded() string {
	if a.family != V6 {
		return a.String()
	}
	parts := make([]string, 8)
	for i := 0; i < 8; i++ {
		parts[i] = fmt.Sprintf("%04x", a.segs[i])
	}
	return strings.Join(parts, ":")
}

// Space is a parsed CIDR range. The base address is kept exactly as written;
// bits below the prefix are not cleared.
type Space struct {
	base Addr
	plen int
}

// Parse converts "address/prefix" into a Space. The family is IPv6 when the
// address contains a colon and IPv4 otherwise.
func Parse(s string) (Space, error) {
	s = strings.TrimSpace(s)
	addr, prefix, ok := strings.Cut(s, "/")
	if !ok {
		return Space{}, fmt.Errorf("%w: missing '/' in %q", ErrMalformedCIDR, s)
	}
	fam := familyOf(addr)
	plen, err := strconv.Atoi(prefix)
	if err != nil || plen < 0 || plen > fam.Bits() {
		return Space{}, fmt.Errorf("%w: bad prefix length in %q", ErrMalformedCIDR, s)
	}
	segs, err := parseBase(fam, addr)
	if err != nil {
		return Space{}, err
	}
	return Space{base: Addr{family: fam, segs: segs}, plen: plen}, nil
}

// MustParse is like Parse but panics on error. Intended for literals.
func MustParse(s string) Space {
	sp, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return sp
}

func familyOf(addr string) Family {
	if strings.Contains(addr, ":") {
		return V6
	}
	return V4
}

func parseBase(fam Family, s string) ([8]uint16, error) {
	if fam == V6 {
		return parseV6(s)
	}
	return parseV4(s)
}

func parseV4(s string) ([8]uint16, error) {
	var segs [8]uint16
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return segs, fmt.Errorf("%w: %q needs 4 octets", ErrMalformedAddress, s)
	}
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 || v > 255 {
			return segs, fmt.Errorf("%w: octet %q in %q", ErrMalformedAddress, p, s)
		}
		segs[i] = uint16(v)
	}
	return segs, nil
}

// parseV6 expands "::" into the missing zero segments. An address with fewer
// than eight segments and no "::" is padded with zeros on the right, and an
// empty segment counts as zero.
func parseV6(s string) ([8]uint16, error) {
	var segs [8]uint16
	var parts []string
	switch strings.Count(s, "::") {
	case 0:
		parts = strings.Split(s, ":")
	case 1:
		l, r, _ := strings.Cut(s, "::")
		var left, right []string
		if l != "" {
			left = strings.Split(l, ":")
		}
		if r != "" {
			right = strings.Split(r, ":")
		}
		missing := 8 - len(left) - len(right)
		if missing < 0 {
			return segs, fmt.Errorf("%w: too many segments in %q", ErrMalformedAddress, s)
		}
		parts = append(parts, left...)
		for i := 0; i < missing; i++ {
			parts = append(parts, "0")
		}
		parts = append(parts, right...)
	default:
		return segs, fmt.Errorf("%w: multiple '::' in %q", ErrMalformedAddress, s)
	}
	if len(parts) > 8 {
		return segs, fmt.Errorf("%w: too many segments in %q", ErrMalformedAddress, s)
	}
	for i, p := range parts {
		if p == "" {
			continue
		}
		v, err := strconv.ParseUint(p, 16, 16)
		if err != nil {
			return segs, fmt.Errorf("%w: segment %q in %q", ErrMalformedAddress, p, s)
		}
		segs[i] = uint16(v)
	}
	return segs, nil
}

// Family returns the address family of the range.
func (s Space) Family() Family { return s.base.family }

// PrefixLength returns the prefix length.
func (s Space) PrefixLength() int { return s.plen }

// HostBits returns the number of bits below the prefix.
func (s Space) HostBits() int { return s.base.family.Bits() - s.plen }

// Base returns the base address as written in the CIDR.
func (s Space) Base() Addr { return s.base }

// String renders the range as "base/prefix".
func (s Space) String() string { return fmt.Sprintf("%s/%d", s.base, s.plen) }

// Size returns the number of addresses covered by the prefix.
func (s Space) Size() *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), uint(s.HostBits()))
}

// UsableCount returns the number of assignable addresses. For IPv4 the
// network and broadcast addresses are excluded whenever the block holds more
// than two addresses. IPv6 has no broadcast convention and returns Size.
func (s Space) UsableCount() *big.Int {
	n := s.Size()
	if s.Family() == V4 && n.Cmp(big.NewInt(2)) > 0 {
		n.Sub(n, big.NewInt(2))
	}
	return n
}

// SegmentMask returns the network bits of segment i under the prefix.
func (s Space) SegmentMask(i int) uint16 {
	w := s.Family().SegmentBits()
	nb := s.plen - i*w
	if nb <= 0 {
		return 0
	}
	if nb >= w {
		return s.Family().SegmentMax()
	}
	return s.Family().SegmentMax() &^ uint16(1<<(w-nb)-1)
}

// Contains reports whether a shares the first prefix-length bits of the base.
func (s Space) Contains(a Addr) bool {
	if a.family != s.Family() {
		return false
	}
	for i := 0; i < s.Family().Segments(); i++ {
		m := s.SegmentMask(i)
		if a.segs[i]&m != s.base.segs[i]&m {
			return false
		}
	}
	return true
}

// First returns the lowest address of the range (the masked base).
func (s Space) First() Addr {
	a := s.base
	for i := 0; i < s.Family().Segments(); i++ {
		a.segs[i] &= s.SegmentMask(i)
	}
	return a
}

// Last returns the highest address of the range.
func (s Space) Last() Addr {
	a := s.base
	for i := 0; i < s.Family().Segments(); i++ {
		m := s.SegmentMask(i)
		a.segs[i] = a.segs[i]&m | s.Family().SegmentMax()&^m
	}
	return a
}
