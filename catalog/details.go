package catalog

import (
	"math/big"
	"strings"

	"github.com/zlobste/ipgen/addrspace"
)

var (
	defaultUsableV4 = big.NewInt(65534)
	defaultUsableV6 = new(big.Int).Lsh(big.NewInt(1), 80)
)

// RangeDetails summarizes the address capacity of a location.
type RangeDetails struct {
	V4Ranges []string `json:"ipv4_ranges" yaml:"ipv4_ranges"`
	V6Ranges []string `json:"ipv6_ranges" yaml:"ipv6_ranges"`
	UsableV4 *big.Int `json:"usable_ipv4" yaml:"-"`
	UsableV6 *big.Int `json:"usable_ipv6" yaml:"-"`
}

// Details sums the usable counts over all ranges of loc. Ranges that do not
// parse are skipped. A family whose sum is zero reports a /16 worth of IPv4
// (65534) or a /48 worth of IPv6 (2^80).
func Details(loc Location) RangeDetails {
	d := RangeDetails{
		V4Ranges: loc.V4Ranges(),
		V6Ranges: loc.V6Ranges(),
		UsableV4: sumUsable(addrspace.V4, loc.V4Ranges()),
		UsableV6: sumUsable(addrspace.V6, loc.V6Ranges()),
	}
	if d.UsableV4.Sign() == 0 {
		d.UsableV4.Set(defaultUsableV4)
	}
	if d.UsableV6.Sign() == 0 {
		d.UsableV6.Set(defaultUsableV6)
	}
	return d
}

func sumUsable(fam addrspace.Family, ranges []string) *big.Int {
	total := new(big.Int)
	for _, r := range ranges {
		sp, err := addrspace.Parse(r)
		if err != nil || sp.Family() != fam {
			continue
		}
		total.Add(total, sp.UsableCount())
	}
	return total
}

var largeUnits = []struct {
	exp    int
	suffix string
}{
	{24, "Y"},
	{21, "Z"},
	{18, "E"},
	{15, "P"},
	{12, "T"},
}

// FormatLarge abbreviates counts of 10^12 and above with one decimal and a
// T/P/E/Z/Y suffix; smaller counts get thousands separators.
func FormatLarge(n *big.Int) string {
	if n == nil {
		return "0"
	}
	for _, u := range largeUnits {
		unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(u.exp)), nil)
		if n.Cmp(unit) >= 0 {
			q := new(big.Float).Quo(new(big.Float).SetInt(n), new(big.Float).SetInt(unit))
			return q.Text('f', 1) + u.suffix
		}
	}
	return groupThousands(n.String())
}

func groupThousands(s string) string {
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
