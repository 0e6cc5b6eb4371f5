package config

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rwool/evreplay/log"
	"github.com/rwool/evreplay/replay/scenario"
	"github.com/rwool/evreplay/test/helpers/goroutinechecker"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("evreplay", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func noDotEnv(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestParseDefaults(t *testing.T) {
	defer goroutinechecker.New(t)()

	c, err := parse(newFlagSet(), nil, noDotEnv(t))
	require.NoError(t, err)

	assert.Equal(t, &Config{
		File:           "events.json",
		Host:           "127.0.0.1",
		Port:           4242,
		Output:         "out.json",
		LogLevel:       "warn",
		ReadTimeout:    10 * time.Second,
		ReadBufferSize: 1024,
		Speed:          1,
		Drain:          0,
		NegativeDelay:  "clamp",
	}, c)
	assert.Equal(t, "127.0.0.1:4242", c.Addr())
	assert.Equal(t, log.Warn, c.Level())
	assert.Equal(t, scenario.PolicyClamp, c.Builder().NegativeDelay)
}

func TestParseFlags(t *testing.T) {
	defer goroutinechecker.New(t)()

	c, err := parse(newFlagSet(), []string{
		"-f", "in.json",
		"-p", "9000",
		"-o", "capture.bin",
		"-log-level", "debug",
		"-read-timeout", "250ms",
		"-read-buffer", "64",
		"-speed", "2.5",
		"-drain", "1s",
		"-negative-delay", "reject",
	}, noDotEnv(t))
	require.NoError(t, err)

	assert.Equal(t, "in.json", c.File)
	assert.Equal(t, 9000, c.Port)
	assert.Equal(t, "capture.bin", c.Output)
	assert.Equal(t, log.Debug, c.Level())
	assert.Equal(t, scenario.PolicyReject, c.Builder().NegativeDelay)

	e := c.Engine()
	assert.Equal(t, 250*time.Millisecond, e.ReadTimeout)
	assert.Equal(t, 64, e.ReadBufferSize)
	assert.Equal(t, 2.5, e.Speed)
	assert.Equal(t, time.Second, e.Drain)
}

func TestParseEnvironment(t *testing.T) {
	defer goroutinechecker.New(t)()

	t.Setenv("EVREPLAY_PORT", "5000")
	t.Setenv("EVREPLAY_SPEED", "4")
	t.Setenv("EVREPLAY_NEGATIVE_DELAY", "keep")

	c, err := parse(newFlagSet(), nil, noDotEnv(t))
	require.NoError(t, err)
	assert.Equal(t, 5000, c.Port)
	assert.Equal(t, 4.0, c.Speed)
	assert.Equal(t, scenario.PolicyKeep, c.Builder().NegativeDelay)
}

func TestParseFlagsOverrideEnvironment(t *testing.T) {
	defer goroutinechecker.New(t)()

	t.Setenv("EVREPLAY_PORT", "5000")
	t.Setenv("EVREPLAY_OUTPUT", "env.bin")

	c, err := parse(newFlagSet(), []string{"-p", "6000"}, noDotEnv(t))
	require.NoError(t, err)
	assert.Equal(t, 6000, c.Port)
	assert.Equal(t, "env.bin", c.Output)
}

func TestParseDotEnv(t *testing.T) {
	defer goroutinechecker.New(t)()

	// The file sets variables in the process environment.
	t.Cleanup(func() {
		_ = os.Unsetenv("EVREPLAY_FILE")
		_ = os.Unsetenv("EVREPLAY_HOST")
	})
	t.Setenv("EVREPLAY_HOST", "0.0.0.0")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("EVREPLAY_FILE=dotenv.json\nEVREPLAY_HOST=10.0.0.1\n"), 0o600))

	c, err := parse(newFlagSet(), nil, path)
	require.NoError(t, err)
	assert.Equal(t, "dotenv.json", c.File)
	assert.Equal(t, "0.0.0.0", c.Host, "environment must win over .env")
}

func TestParseBadEnvironment(t *testing.T) {
	defer goroutinechecker.New(t)()

	t.Setenv("EVREPLAY_READ_TIMEOUT", "soon")

	_, err := parse(newFlagSet(), nil, noDotEnv(t))
	assert.Error(t, err)
}

func TestParseBadFlag(t *testing.T) {
	defer goroutinechecker.New(t)()

	_, err := parse(newFlagSet(), []string{"-nope"}, noDotEnv(t))
	assert.Error(t, err)
}

func TestParseNilFlagSet(t *testing.T) {
	defer goroutinechecker.New(t)()

	_, err := Parse(nil, nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	defer goroutinechecker.New(t)()

	valid := func() *Config {
		return &Config{
			File:           "events.json",
			Host:           "127.0.0.1",
			Port:           4242,
			Output:         "out.json",
			LogLevel:       "warn",
			ReadTimeout:    time.Second,
			ReadBufferSize: 1024,
			Speed:          1,
			NegativeDelay:  "clamp",
		}
	}
	require.NoError(t, valid().Validate())

	tcs := []struct {
		Name   string
		Mutate func(*Config)
	}{
		{Name: "No File", Mutate: func(c *Config) { c.File = "" }},
		{Name: "Negative Port", Mutate: func(c *Config) { c.Port = -1 }},
		{Name: "Port Too Large", Mutate: func(c *Config) { c.Port = 65536 }},
		{Name: "Zero Read Timeout", Mutate: func(c *Config) { c.ReadTimeout = 0 }},
		{Name: "Tiny Buffer", Mutate: func(c *Config) { c.ReadBufferSize = 2 }},
		{Name: "Zero Speed", Mutate: func(c *Config) { c.Speed = 0 }},
		{Name: "Negative Speed", Mutate: func(c *Config) { c.Speed = -2 }},
		{Name: "Negative Drain", Mutate: func(c *Config) { c.Drain = -time.Second }},
		{Name: "Unknown Level", Mutate: func(c *Config) { c.LogLevel = "loud" }},
		{Name: "Unknown Policy", Mutate: func(c *Config) { c.NegativeDelay = "sort" }},
	}
	for _, tc := range tcs {
		t.Run(tc.Name, func(t2 *testing.T) {
			c := valid()
			tc.Mutate(c)
			assert.Error(t2, c.Validate())
		})
	}
}
