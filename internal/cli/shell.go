package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/zlobste/ipgen/addrspace"
	"github.com/zlobste/ipgen/catalog"
	"github.com/zlobste/ipgen/ratelimit"
	"github.com/zlobste/ipgen/session"
)

const shellHelp = `Commands:
  list            show the available locations
  select <id>     select a location
  random          select a random location
  info            show the selected location's ranges
  v4 | v6         generate five addresses
  copy <n>        copy address n of the last batch
  help            show this help
  quit | exit     leave the shell`

// syncWriter serializes writes from the prompt loop and the limiter's timer
// goroutine.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive generator with location selection and copy",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		noLookup, _ := cmd.Flags().GetBool("no-lookup")
		out := &syncWriter{w: cmd.OutOrStdout()}

		s, err := newSession(cmd, !noLookup, func(ev ratelimit.Event) {
			switch ev.Kind {
			case ratelimit.Blocked:
				fmt.Fprintf(out, "Slow down! Too many clicks detected. Please wait %d seconds.\n", int(ev.RetryAfter.Seconds()))
			case ratelimit.Cleared:
				fmt.Fprintf(out, "You can continue (%s).\n", ev.Key)
			}
		})
		if err != nil {
			return err
		}
		defer s.Close()

		sh := &shell{cmd: cmd, out: out, s: s}
		if loc, err := s.SelectRandom(); err == nil {
			fmt.Fprintf(out, "Selected %s\n", loc.DisplayName())
		}
		return sh.run(cmd.InOrStdin())
	},
}

func init() {
	shellCmd.Flags().Bool("no-lookup", false, "skip the remote country lookup for IPv4")
}

type shell struct {
	cmd  *cobra.Command
	out  io.Writer
	s    *session.Session
	last []string
}

func (sh *shell) run(in io.Reader) error {
	sc := bufio.NewScanner(in)
	fmt.Fprint(sh.out, "> ")
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) > 0 {
			if done := sh.exec(fields[0], fields[1:]); done {
				return nil
			}
		}
		fmt.Fprint(sh.out, "> ")
	}
	return sc.Err()
}

// exec runs one shell command and reports whether the shell should exit.
func (sh *shell) exec(name string, args []string) bool {
	switch strings.ToLower(name) {
	case "quit", "exit":
		return true
	case "help":
		fmt.Fprintln(sh.out, shellHelp)
	case "list":
		newLocationList(sh.s.Catalog().All()).renderHuman(sh.out)
	case "select":
		if len(args) != 1 {
			fmt.Fprintln(sh.out, "usage: select <id>")
			return false
		}
		loc, err := sh.s.Select(args[0])
		if err != nil {
			fmt.Fprintln(sh.out, err)
			return false
		}
		fmt.Fprintf(sh.out, "Selected %s\n", loc.DisplayName())
	case "random":
		loc, err := sh.s.SelectRandom()
		if err != nil {
			fmt.Fprintln(sh.out, err)
			return false
		}
		fmt.Fprintf(sh.out, "Selected %s\n", loc.DisplayName())
	case "info":
		loc, ok := sh.s.Selected()
		if !ok {
			fmt.Fprintln(sh.out, "Please select a location first")
			return false
		}
		d := catalog.Details(loc)
		rangeInfo{
			ID:       loc.ID,
			Name:     loc.DisplayName(),
			IPv4:     d.V4Ranges,
			IPv6:     d.V6Ranges,
			UsableV4: catalog.FormatLarge(d.UsableV4),
			UsableV6: catalog.FormatLarge(d.UsableV6),
		}.renderHuman(sh.out)
	case "v4", "ipv4":
		sh.generate(addrspace.V4)
	case "v6", "ipv6":
		sh.generate(addrspace.V6)
	case "copy":
		sh.copy(args)
	default:
		fmt.Fprintf(sh.out, "unknown command %q, try help\n", name)
	}
	return false
}

func (sh *shell) generate(fam addrspace.Family) {
	ctx := sh.cmd.Context()
	res, err := sh.s.Generate(ctx, fam)
	switch {
	case errors.Is(err, session.ErrRateLimited):
		// The limiter notifier has already told the user.
		return
	case errors.Is(err, session.ErrNoSelection):
		fmt.Fprintln(sh.out, "Please select a location first")
		return
	case err != nil:
		fmt.Fprintln(sh.out, err)
		return
	}

	sh.last = res.Addresses()
	out, err := newBatchOutput(ctx, res)
	if err != nil {
		fmt.Fprintln(sh.out, err)
		return
	}
	for i, a := range out.Addresses {
		fmt.Fprintf(sh.out, "%d. %-40s %s\n", i+1, a.Address, a.Country)
	}
}

func (sh *shell) copy(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(sh.out, "usage: copy <n>")
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(sh.last) {
		fmt.Fprintf(sh.out, "no address %q in the last batch\n", args[0])
		return
	}
	addr, err := sh.s.Copy(sh.last[n-1])
	if err != nil {
		return
	}
	fmt.Fprintf(sh.out, "Copied %s\n", addr)
}
