/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Seednode/spyfall/games/spyfall"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind           string
	port           int
	prefix         string
	profile        bool
	playerTimeout  time.Duration
	sessionTimeout time.Duration
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool

	codeLength   int
	hostPolicy   string
	locations    string
	roundMinutes int
	roundGrace   time.Duration
	roundSweep   time.Duration

	store         string
	redisAddr     string
	redisPassword string
	redisDB       int

	broker            string
	natsURL           string
	natsSubjectPrefix string
	natsMaxReconnects int
	subscriberBuffer  int

	wsRate  float64
	wsBurst int

	log zerolog.Logger
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.codeLength < spyfall.MinCodeLength || c.codeLength > spyfall.MaxCodeLength {
		return fmt.Errorf("invalid code length (must be between %d-%d inclusive): %d",
			spyfall.MinCodeLength, spyfall.MaxCodeLength, c.codeLength)
	}
	if _, err := spyfall.ParseHostPolicy(c.hostPolicy); err != nil {
		return err
	}
	if c.roundMinutes < 1 {
		return fmt.Errorf("invalid round length (must be at least 1 minute): %d", c.roundMinutes)
	}
	if c.roundGrace < 0 || c.roundSweep < 0 || c.sessionTimeout < 0 || c.playerTimeout < 0 {
		return errors.New("durations must not be negative")
	}

	kind, err := spyfall.ParseStoreKind(c.store)
	if err != nil {
		return err
	}
	if kind == "redis" && c.redisAddr == "" {
		return errors.New("--redis-addr is required with --store redis")
	}

	switch strings.ToLower(c.broker) {
	case "memory":
	case "nats":
		if c.natsURL == "" {
			return errors.New("--nats-url is required with --broker nats")
		}
	default:
		return fmt.Errorf("unknown broker %q (must be memory or nats)", c.broker)
	}

	if c.subscriberBuffer < 1 {
		return fmt.Errorf("invalid subscriber buffer (must be positive): %d", c.subscriberBuffer)
	}
	if c.wsRate <= 0 || c.wsBurst < 1 {
		return errors.New("--ws-rate and --ws-burst must be positive")
	}

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func (c *Config) roundDuration() time.Duration {
	return time.Duration(c.roundMinutes) * time.Minute
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("SPYFALL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "spyfall",
		Short:         "A social deduction party game: find the spy before time runs out.",
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

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: SPYFALL_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: SPYFALL_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: SPYFALL_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: SPYFALL_PROFILE)")
	fs.DurationVar(&cfg.playerTimeout, "player-timeout", 2*time.Minute, "time before players with no open socket are removed, 0 to disable (env: SPYFALL_PLAYER_TIMEOUT)")
	fs.DurationVar(&cfg.sessionTimeout, "session-timeout", 60*time.Minute, "time before idle rooms are closed, 0 to disable (env: SPYFALL_SESSION_TIMEOUT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: SPYFALL_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: SPYFALL_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: SPYFALL_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: SPYFALL_VERSION)")

	fs.IntVar(&cfg.codeLength, "code-length", spyfall.DefaultCodeLength, "length of generated room codes, 4-6 (env: SPYFALL_CODE_LENGTH)")
	fs.StringVar(&cfg.hostPolicy, "host-policy", string(spyfall.PromoteFirst), "who becomes host when the host leaves: first or random (env: SPYFALL_HOST_POLICY)")
	fs.StringVar(&cfg.locations, "locations", "", "path to a yaml file of location packs, replacing the built-in ones (env: SPYFALL_LOCATIONS)")
	fs.IntVar(&cfg.roundMinutes, "round-minutes", 8, "default round length in minutes (env: SPYFALL_ROUND_MINUTES)")
	fs.DurationVar(&cfg.roundGrace, "round-grace", 15*time.Second, "time past the deadline before the server ends a round itself (env: SPYFALL_ROUND_GRACE)")
	fs.DurationVar(&cfg.roundSweep, "round-sweep", 5*time.Second, "how often to look for expired rounds, 0 to disable (env: SPYFALL_ROUND_SWEEP)")

	fs.StringVar(&cfg.store, "store", "memory", "where rooms are kept: memory or redis (env: SPYFALL_STORE)")
	fs.StringVar(&cfg.redisAddr, "redis-addr", "127.0.0.1:6379", "redis address (env: SPYFALL_REDIS_ADDR)")
	fs.StringVar(&cfg.redisPassword, "redis-password", "", "redis password (env: SPYFALL_REDIS_PASSWORD)")
	fs.IntVar(&cfg.redisDB, "redis-db", 0, "redis database (env: SPYFALL_REDIS_DB)")

	fs.StringVar(&cfg.broker, "broker", "memory", "how room events are fanned out: memory or nats (env: SPYFALL_BROKER)")
	fs.StringVar(&cfg.natsURL, "nats-url", "nats://127.0.0.1:4222", "nats server url (env: SPYFALL_NATS_URL)")
	fs.StringVar(&cfg.natsSubjectPrefix, "nats-subject-prefix", spyfall.DefaultSubjectPrefix, "prefix for room subjects (env: SPYFALL_NATS_SUBJECT_PREFIX)")
	fs.IntVar(&cfg.natsMaxReconnects, "nats-max-reconnects", -1, "reconnect attempts before giving up on nats, 0 or -1 for unlimited (env: SPYFALL_NATS_MAX_RECONNECTS)")
	fs.IntVar(&cfg.subscriberBuffer, "subscriber-buffer", spyfall.DefaultSubscriberBuffer, "events queued per subscriber before it is dropped (env: SPYFALL_SUBSCRIBER_BUFFER)")

	fs.Float64Var(&cfg.wsRate, "ws-rate", 5, "websocket actions allowed per second, per connection (env: SPYFALL_WS_RATE)")
	fs.IntVar(&cfg.wsBurst, "ws-burst", 10, "websocket action burst size (env: SPYFALL_WS_BURST)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("spyfall v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
