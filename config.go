/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	apiURL         string
	bind           string
	categoryPool   int
	fetchTimeout   time.Duration
	maxAttempts    int
	port           int
	prefix         string
	profile        bool
	sessionTimeout time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.categoryPool < NumCategories {
		return fmt.Errorf("invalid category pool (must be at least %d): %d", NumCategories, c.categoryPool)
	}
	if c.maxAttempts < NumCategories {
		return fmt.Errorf("invalid max attempts (must be at least %d): %d", NumCategories, c.maxAttempts)
	}
	if c.fetchTimeout <= 0 {
		return fmt.Errorf("invalid fetch timeout (must be positive): %s", c.fetchTimeout)
	}

	u, err := url.Parse(c.apiURL)
	if err != nil {
		return fmt.Errorf("invalid api url: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid api url (must be an absolute http or https url): %q", c.apiURL)
	}

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("JEOPARDY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "jeopardy",
		Short:         "A self-hosted trivia board, backed by a jService-compatible API.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVar(&cfg.apiURL, "api-url", "http://jservice.io/api", "base url of the trivia api (env: JEOPARDY_API_URL)")
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: JEOPARDY_BIND)")
	fs.IntVar(&cfg.categoryPool, "category-pool", 100, "number of categories to choose each board from (env: JEOPARDY_CATEGORY_POOL)")
	fs.DurationVar(&cfg.fetchTimeout, "fetch-timeout", 10*time.Second, "timeout for each trivia api request (env: JEOPARDY_FETCH_TIMEOUT)")
	fs.IntVar(&cfg.maxAttempts, "max-attempts", 20, "category fetches allowed per board before giving up (env: JEOPARDY_MAX_ATTEMPTS)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: JEOPARDY_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: JEOPARDY_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: JEOPARDY_PROFILE)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle boards are discarded (env: JEOPARDY_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: JEOPARDY_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: JEOPARDY_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: JEOPARDY_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: JEOPARDY_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("jeopardy v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
