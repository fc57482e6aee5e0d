package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zlobste/ipgen/catalog"
	"github.com/zlobste/ipgen/internal/config"
	"github.com/zlobste/ipgen/lookup"
	"github.com/zlobste/ipgen/ratelimit"
	"github.com/zlobste/ipgen/session"
)

type outputFormat string

const (
	outHuman outputFormat = "human"
	outJSON  outputFormat = "json"
	outYAML  outputFormat = "yaml"
)

var rootCmd = &cobra.Command{
	Use:   "ipgen",
	Short: "Random DNS address generator for configured locations",
	Long: "ipgen draws random IPv4 and IPv6 addresses from the CIDR ranges of a\n" +
		"selected location and shows a country for each of them.",
	SilenceUsage: true,
}

var (
	format      outputFormat
	configPath  string
	catalogFlag string
	logLevel    string
)

// Execute runs the root command tree.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP((*string)(&format), "output", "o", string(outHuman), "output format: human|json|yaml")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&catalogFlag, "catalog", "", "locations file or URL (default: built-in locations)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug|info|warn|error")
	rootCmd.AddCommand(locationsCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(cidrCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(shellCmd)
}

// humanRenderer is implemented by outputs with a custom text layout.
type humanRenderer interface {
	renderHuman(w io.Writer)
}

func render(v any) error {
	w := rootCmd.OutOrStdout()
	switch format {
	case outHuman:
		if h, ok := v.(humanRenderer); ok {
			h.renderHuman(w)
			return nil
		}
		fmt.Fprintln(w, v)
	case outJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return errors.New("unknown output format")
	}
	return nil
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if catalogFlag != "" {
		cfg.Catalog = catalogFlag
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	return cfg, nil
}

func newLogger(w io.Writer, level string) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{Prefix: "ipgen"})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		logger.Warn("unknown log level, using info", "level", level)
		lvl = log.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// newSession wires config, catalog, limiter and lookup into a Session.
// notify may be nil.
func newSession(cmd *cobra.Command, withLookup bool, notify ratelimit.Notifier) (*session.Session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
	cat := catalog.Load(cmd.Context(), cfg.Catalog, logger)

	limiter := ratelimit.New(
		ratelimit.WithConfig(cfg.RateLimit),
		ratelimit.WithNotifier(func(ev ratelimit.Event) {
			logger.Warn("rate limit "+ev.Kind.String(), "action", ev.Key, "retry_after", ev.RetryAfter)
			if notify != nil {
				notify(ev)
			}
		}),
	)

	opts := []session.Option{
		session.WithLogger(logger),
		session.WithLimiter(limiter),
	}
	if withLookup && !cfg.Lookup.Disabled {
		client := lookup.NewHTTPClient(cfg.Lookup.URL, cfg.Lookup.RateLimit, cfg.Lookup.Timeout)
		opts = append(opts, session.WithLookup(lookup.NewCached(client, cfg.Lookup.CacheSize)))
	}
	return session.New(cat, opts...), nil
}
