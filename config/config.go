// Package config loads the settings of the evreplay command.
//
// Settings come from, in increasing order of precedence: built-in defaults,
// an optional .env file, EVREPLAY_* environment variables and command-line
// flags.
package config

import (
	"flag"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"github.com/rwool/evreplay/log"
	"github.com/rwool/evreplay/replay"
	"github.com/rwool/evreplay/replay/frame"
	"github.com/rwool/evreplay/replay/scenario"
)

// DotEnvFile is the optional file of environment defaults.
const DotEnvFile = ".env"

// Config contains the settings for one replay.
type Config struct {
	// File is the line-separated JSON event log.
	File string `env:"FILE" envDefault:"events.json"`
	// Host is the local address to bind.
	Host string `env:"HOST" envDefault:"127.0.0.1"`
	// Port is the local TCP port to bind.
	Port int `env:"PORT" envDefault:"4242"`
	// Output receives the captured payloads.
	Output string `env:"OUTPUT" envDefault:"out.json"`
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `env:"LOG_LEVEL" envDefault:"warn"`

	ReadTimeout    time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
	ReadBufferSize int           `env:"READ_BUFFER_SIZE" envDefault:"1024"`
	Speed          float64       `env:"SPEED" envDefault:"1"`
	Drain          time.Duration `env:"DRAIN" envDefault:"0s"`
	// NegativeDelay is one of clamp, keep or reject.
	NegativeDelay string `env:"NEGATIVE_DELAY" envDefault:"clamp"`
}

// envOptions scopes every variable to the EVREPLAY_ prefix.
var envOptions = env.Options{Prefix: "EVREPLAY_"}

// Parse loads the configuration and applies the flags in args.
//
// A missing .env file is not an error.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	return parse(fs, args, DotEnvFile)
}

func parse(fs *flag.FlagSet, args []string, dotEnv string) (*Config, error) {
	if fs == nil {
		return nil, errors.New("flag set is required")
	}

	// Variables already present in the environment win over the file.
	if err := godotenv.Load(dotEnv); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "unable to load %s", dotEnv)
	}

	c := &Config{}
	if err := env.ParseWithOptions(c, envOptions); err != nil {
		return nil, errors.Wrap(err, "unable to parse environment")
	}

	c.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// RegisterFlags adds a flag for every setting, defaulting to the current
// value.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.File, "f", c.File, "file containing JSON formatted events, line separated")
	fs.StringVar(&c.Host, "host", c.Host, "local address to listen on")
	fs.IntVar(&c.Port, "p", c.Port, "TCP port to listen on")
	fs.StringVar(&c.Output, "o", c.Output, "file to write received frame payloads to")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "minimum log level: debug, info, warn or error")
	fs.DurationVar(&c.ReadTimeout, "read-timeout", c.ReadTimeout, "bound on each receive attempt")
	fs.IntVar(&c.ReadBufferSize, "read-buffer", c.ReadBufferSize, "receive buffer size in bytes")
	fs.Float64Var(&c.Speed, "speed", c.Speed, "replay speed multiplier")
	fs.DurationVar(&c.Drain, "drain", c.Drain, "keep receiving after the last event until the peer is quiet this long")
	fs.StringVar(&c.NegativeDelay, "negative-delay", c.NegativeDelay, "out of order timestamps: clamp, keep or reject")
}

// Validate checks the settings for values that cannot be used.
func (c *Config) Validate() error {
	if c.File == "" {
		return errors.New("no event file given")
	}
	if c.Port < 0 || c.Port > 65535 {
		return errors.Errorf("port %d out of range", c.Port)
	}
	if c.ReadTimeout <= 0 {
		return errors.Errorf("read timeout must be positive, got %s", c.ReadTimeout)
	}
	if c.ReadBufferSize < frame.Overhead {
		return errors.Errorf("read buffer must hold at least one frame header, got %d bytes", c.ReadBufferSize)
	}
	if c.Speed <= 0 {
		return errors.Errorf("speed must be positive, got %v", c.Speed)
	}
	if c.Drain < 0 {
		return errors.Errorf("drain must not be negative, got %s", c.Drain)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := scenario.ParsePolicy(c.NegativeDelay); err != nil {
		return err
	}
	return nil
}

// Addr returns the address to bind.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Level returns the parsed log level.
func (c *Config) Level() log.Level {
	l, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		panic(err)
	}
	return l
}

// Builder returns the scenario builder for the settings.
func (c *Config) Builder() *scenario.Builder {
	p, err := scenario.ParsePolicy(c.NegativeDelay)
	if err != nil {
		panic(err)
	}
	return &scenario.Builder{NegativeDelay: p}
}

// Engine returns the replay engine settings.
func (c *Config) Engine() *replay.Config {
	return &replay.Config{
		ReadTimeout:    c.ReadTimeout,
		ReadBufferSize: c.ReadBufferSize,
		Speed:          c.Speed,
		Drain:          c.Drain,
	}
}
