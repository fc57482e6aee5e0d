package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zlobste/ipgen/addrspace"
	"github.com/zlobste/ipgen/catalog"
	"github.com/zlobste/ipgen/session"
)

// ---- Outputs ----

type locationRow struct {
	ID   string   `json:"id" yaml:"id"`
	Name string   `json:"name" yaml:"name"`
	Flag string   `json:"flag" yaml:"flag"`
	IPv4 []string `json:"ipv4" yaml:"ipv4"`
	IPv6 []string `json:"ipv6" yaml:"ipv6"`
}

type locationList []locationRow

func newLocationList(locs []catalog.Location) locationList {
	out := make(locationList, len(locs))
	for i, l := range locs {
		out[i] = locationRow{
			ID:   l.ID,
			Name: l.DisplayName(),
			Flag: l.Flag,
			IPv4: l.V4Ranges(),
			IPv6: l.V6Ranges(),
		}
	}
	return out
}

func (l locationList) renderHuman(w io.Writer) {
	for _, r := range l {
		fmt.Fprintf(w, "%-20s [%s] %s\n", r.ID, r.Flag, r.Name)
	}
}

type rangeInfo struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	IPv4     []string `json:"ipv4" yaml:"ipv4"`
	IPv6     []string `json:"ipv6" yaml:"ipv6"`
	UsableV4 string   `json:"usable_ipv4" yaml:"usable_ipv4"`
	UsableV6 string   `json:"usable_ipv6" yaml:"usable_ipv6"`
}

func (r rangeInfo) renderHuman(w io.Writer) {
	fmt.Fprintf(w, "Location:  %s\n", r.Name)
	fmt.Fprintf(w, "CIDR:      %s\n", cidrSummary(r.IPv4))
	fmt.Fprintf(w, "Available: IPv4: %s / IPv6: %s\n", r.UsableV4, r.UsableV6)
}

// cidrSummary shows at most two ranges.
func cidrSummary(ranges []string) string {
	if len(ranges) == 0 {
		return "-"
	}
	if len(ranges) > 2 {
		return strings.Join(ranges[:2], ", ") + "..."
	}
	return strings.Join(ranges, ", ")
}

type addressRow struct {
	Address string `json:"address" yaml:"address"`
	Country string `json:"country" yaml:"country"`
}

type batchOutput struct {
	Location  string       `json:"location" yaml:"location"`
	Family    string       `json:"family" yaml:"family"`
	Addresses []addressRow `json:"addresses" yaml:"addresses"`
}

func (b batchOutput) renderHuman(w io.Writer) {
	fmt.Fprintf(w, "%s addresses for %s:\n", strings.ToUpper(b.Family[:2])+b.Family[2:], b.Location)
	for _, a := range b.Addresses {
		fmt.Fprintf(w, "  %-40s %s\n", a.Address, a.Country)
	}
}

func newBatchOutput(ctx context.Context, res *session.Result) (batchOutput, error) {
	countries, err := res.Enrichment.Wait(ctx)
	if err != nil {
		return batchOutput{}, err
	}
	out := batchOutput{
		Location: res.Location.DisplayName(),
		Family:   res.Family.String(),
	}
	for i, a := range res.Addresses() {
		out.Addresses = append(out.Addresses, addressRow{Address: a, Country: countries[i]})
	}
	return out, nil
}

func parseFamily(s string) (addrspace.Family, error) {
	switch strings.ToLower(s) {
	case "v4", "ipv4", "4":
		return addrspace.V4, nil
	case "v6", "ipv6", "6":
		return addrspace.V6, nil
	}
	return 0, fmt.Errorf("unknown address family %q (want v4 or v6)", s)
}

// ---- Commands ----

var locationsCmd = &cobra.Command{
	Use:   "locations",
	Short: "List the available locations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd, false, nil)
		if err != nil {
			return err
		}
		defer s.Close()
		return render(newLocationList(s.Catalog().All()))
	},
}

var infoCmd = &cobra.Command{
	Use:   "info <location-id>",
	Short: "Show the ranges and address counts of a location",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession(cmd, false, nil)
		if err != nil {
			return err
		}
		defer s.Close()
		loc, err := s.Catalog().Find(args[0])
		if err != nil {
			return err
		}
		d := catalog.Details(loc)
		return render(rangeInfo{
			ID:       loc.ID,
			Name:     loc.DisplayName(),
			IPv4:     d.V4Ranges,
			IPv6:     d.V6Ranges,
			UsableV4: catalog.FormatLarge(d.UsableV4),
			UsableV6: catalog.FormatLarge(d.UsableV6),
		})
	},
}

var cidrCmd = &cobra.Command{
	Use:   "cidr <CIDR>",
	Short: "Show information about a CIDR range",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sp, err := addrspace.Parse(args[0])
		if err != nil {
			return err
		}
		out := map[string]any{
			"family":        sp.Family().String(),
			"base":          sp.Base().Expanded(),
			"prefix_length": sp.PrefixLength(),
			"host_bits":     sp.HostBits(),
			"first":         sp.First().String(),
			"last":          sp.Last().String(),
			"usable_count":  sp.UsableCount().String(),
		}
		return render(out)
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate <v4|v6>",
	Short: "Generate a batch of addresses for a location",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fam, err := parseFamily(args[0])
		if err != nil {
			return err
		}
		locID, _ := cmd.Flags().GetString("location")
		noLookup, _ := cmd.Flags().GetBool("no-lookup")

		s, err := newSession(cmd, !noLookup, nil)
		if err != nil {
			return err
		}
		defer s.Close()

		if locID != "" {
			_, err = s.Select(locID)
		} else {
			_, err = s.SelectRandom()
		}
		if err != nil {
			return err
		}

		res, err := s.Generate(cmd.Context(), fam)
		if err != nil {
			return err
		}
		out, err := newBatchOutput(cmd.Context(), res)
		if err != nil {
			return err
		}
		return render(out)
	},
}

func init() {
	generateCmd.Flags().StringP("location", "l", "", "location id (default: a random location)")
	generateCmd.Flags().Bool("no-lookup", false, "skip the remote country lookup for IPv4")
}
