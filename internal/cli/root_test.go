package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// run executes the root command with args and returns what it printed to
// stdout. Flag variables are package globals, so they are reset first.
func run(t *testing.T, stdin string, args ...string) string {
	t.Helper()

	format = outHuman
	configPath, catalogFlag, logLevel = "", "", ""
	_ = generateCmd.Flags().Set("location", "")
	_ = generateCmd.Flags().Set("no-lookup", "false")
	_ = shellCmd.Flags().Set("no-lookup", "false")

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("%v: %v (stderr: %s)", args, err, errOut)
	}
	return out.String()
}

func TestLocationsCommand(t *testing.T) {
	out := run(t, "", "locations")
	for _, id := range []string{"de-frankfurt", "ae-dubai", "gb-london"} {
		if !strings.Contains(out, id) {
			t.Fatalf("missing %s in %q", id, out)
		}
	}
}

func TestLocationsJSON(t *testing.T) {
	out := run(t, "", "locations", "-o", "json")
	var rows []locationRow
	if err := json.Unmarshal([]byte(out), &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 || rows[0].ID != "de-frankfurt" {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestInfoCommand(t *testing.T) {
	out := run(t, "", "info", "de-frankfurt")
	if !strings.Contains(out, "10.0.0.0/16") {
		t.Fatalf("expected cidr in %q", out)
	}
	if !strings.Contains(out, "65,534") {
		t.Fatalf("expected usable count in %q", out)
	}
}

func TestInfoUnknownLocation(t *testing.T) {
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"info", "xx-nowhere"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error for unknown location")
	}
}

func TestCIDRCommand(t *testing.T) {
	out := run(t, "", "cidr", "10.0.0.0/30", "-o", "yaml")
	var got map[string]any
	if err := yaml.Unmarshal([]byte(out), &got); err != nil {
		t.Fatal(err)
	}
	if got["usable_count"] != "2" || got["last"] != "10.0.0.3" {
		t.Fatalf("unexpected cidr info %v", got)
	}
}

func TestGenerateCommand(t *testing.T) {
	out := run(t, "", "generate", "v4", "--location", "de-frankfurt", "--no-lookup", "-o", "json")
	var got batchOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatal(err)
	}
	if got.Family != "ipv4" || len(got.Addresses) != 5 {
		t.Fatalf("unexpected batch %+v", got)
	}
	for _, a := range got.Addresses {
		if !strings.HasPrefix(a.Address, "10.0.") || a.Country != "Unknown" {
			t.Fatalf("unexpected row %+v", a)
		}
	}
}

func TestGenerateV6Human(t *testing.T) {
	out := run(t, "", "generate", "v6", "-l", "ae-dubai")
	if !strings.Contains(out, "2001:db8:2:") {
		t.Fatalf("expected dubai prefix in %q", out)
	}
	if !strings.Contains(out, "UAE") {
		t.Fatalf("expected country in %q", out)
	}
}

func TestGenerateBadFamily(t *testing.T) {
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"generate", "v5"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("expected error for unknown family")
	}
}

func TestShell(t *testing.T) {
	in := "select gb-london\nv4\ncopy 1\ncopy 9\nbogus\nquit\n"
	out := run(t, in, "shell", "--no-lookup")
	for _, want := range []string{"Selected UK (London)", "1. 10.2.", "Copied 10.2.", "no address", "unknown command"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in %q", want, out)
		}
	}
}

func TestShellRateLimit(t *testing.T) {
	in := strings.Repeat("v6\n", 6) + "exit\n"
	out := run(t, in, "shell")
	if !strings.Contains(out, "Slow down! Too many clicks detected. Please wait 10 seconds.") {
		t.Fatalf("expected rate limit warning in %q", out)
	}
	if n := strings.Count(out, "5. "); n != 4 {
		t.Fatalf("expected 4 batches, got %d", n)
	}
}
