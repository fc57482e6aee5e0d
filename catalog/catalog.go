// Package catalog holds the location records the generator draws from and
// loads them from a file or URL, falling back to a built-in set.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

// ErrUnknownLocation is returned by Find for an id not in the catalog.
var ErrUnknownLocation = errors.New("catalog: unknown location")

const defaultFetchTimeout = 10 * time.Second

// Ranges lists the CIDR ranges of a location per family.
type Ranges struct {
	IPv4 []string `json:"ipv4" yaml:"ipv4"`
	IPv6 []string `json:"ipv6" yaml:"ipv6"`
}

// Location is one selectable entry. Older catalogs carry a single range per
// family in CIDR and CIDRv6 instead of Ranges.
type Location struct {
	ID     string  `json:"id" yaml:"id"`
	Name   string  `json:"name" yaml:"name"`
	Flag   string  `json:"flag" yaml:"flag"`
	IsCity *bool   `json:"isCity,omitempty" yaml:"isCity,omitempty"`
	Ranges *Ranges `json:"ranges,omitempty" yaml:"ranges,omitempty"`
	CIDR   string  `json:"cidr,omitempty" yaml:"cidr,omitempty"`
	CIDRv6 string  `json:"cidrv6,omitempty" yaml:"cidrv6,omitempty"`
}

// V4Ranges returns ranges.ipv4 when present (even if empty), else the
// legacy cidr field, else nil.
func (l Location) V4Ranges() []string {
	if l.Ranges != nil && l.Ranges.IPv4 != nil {
		return l.Ranges.IPv4
	}
	if l.CIDR != "" {
		return []string{l.CIDR}
	}
	return nil
}

// V6Ranges is V4Ranges for IPv6 and the legacy cidrv6 field.
func (l Location) V6Ranges() []string {
	if l.Ranges != nil && l.Ranges.IPv6 != nil {
		return l.Ranges.IPv6
	}
	if l.CIDRv6 != "" {
		return []string{l.CIDRv6}
	}
	return nil
}

// Country is the part of the name before " (", e.g. "UK" for "UK (London)".
func (l Location) Country() string {
	if l.Name == "" {
		return "Unknown"
	}
	country, _, _ := strings.Cut(l.Name, " (")
	return country
}

// DisplayName drops the " non-city" suffix of entries flagged isCity=false.
func (l Location) DisplayName() string {
	if l.IsCity != nil && !*l.IsCity {
		return strings.Replace(l.Name, " non-city", "", 1) + " (non-city)"
	}
	return l.Name
}

// Fallback returns the built-in locations used when no catalog can be read.
func Fallback() []Location {
	return []Location{
		{ID: "de-frankfurt", Name: "Germany (Frankfurt)", Flag: "de", CIDR: "10.0.0.0/16", CIDRv6: "2001:db8:1::/48"},
		{ID: "ae-dubai", Name: "UAE (Dubai)", Flag: "ae", CIDR: "10.1.0.0/16", CIDRv6: "2001:db8:2::/48"},
		{ID: "gb-london", Name: "UK (London)", Flag: "gb", CIDR: "10.2.0.0/16", CIDRv6: "2001:db8:3::/48"},
	}
}

// Catalog is an ordered, read-only list of locations.
type Catalog struct {
	locations []Location
}

// New wraps locs. The slice is copied.
func New(locs []Location) *Catalog {
	return &Catalog{locations: append([]Location(nil), locs...)}
}

// All returns the locations in catalog order.
func (c *Catalog) All() []Location {
	return append([]Location(nil), c.locations...)
}

// Len returns the number of locations.
func (c *Catalog) Len() int { return len(c.locations) }

// Find returns the location with the given id.
func (c *Catalog) Find(id string) (Location, error) {
	for _, l := range c.locations {
		if l.ID == id {
			return l, nil
		}
	}
	return Location{}, fmt.Errorf("%w: %q", ErrUnknownLocation, id)
}

// Random picks a location uniformly. It reports false for an empty catalog.
func (c *Catalog) Random(r *rand.Rand) (Location, bool) {
	if len(c.locations) == 0 {
		return Location{}, false
	}
	return c.locations[r.IntN(len(c.locations))], true
}

// Load reads the catalog from source and falls back to the built-in set when
// source is empty, unreadable, malformed or lists no locations.
func Load(ctx context.Context, source string, logger *log.Logger) *Catalog {
	if source == "" {
		logger.Debug("no catalog source, using built-in locations")
		return New(Fallback())
	}
	locs, err := Fetch(ctx, source)
	if err == nil && len(locs) == 0 {
		err = errors.New("catalog is empty")
	}
	if err != nil {
		logger.Error("cannot load locations, using built-in set", "source", source, "err", err)
		return New(Fallback())
	}
	logger.Debug("locations loaded", "source", source, "count", len(locs))
	return New(locs)
}

// Fetch reads locations from an http(s) URL or a file. Files ending in .yaml
// or .yml are decoded as YAML, everything else as JSON.
func Fetch(ctx context.Context, source string) ([]Location, error) {
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		data, err = fetchURL(ctx, source)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, err
	}
	return Decode(data, filepath.Ext(source))
}

// Decode parses a location list; ext selects YAML for ".yaml" and ".yml".
func Decode(data []byte, ext string) ([]Location, error) {
	var locs []Location
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &locs); err != nil {
			return nil, fmt.Errorf("decode yaml catalog: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &locs); err != nil {
			return nil, fmt.Errorf("decode json catalog: %w", err)
		}
	}
	return locs, nil
}

func fetchURL(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch catalog: unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
