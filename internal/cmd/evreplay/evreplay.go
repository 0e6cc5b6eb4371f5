// Package evreplay runs one replay from a loaded configuration.
package evreplay

import (
	"context"
	"os"

	"github.com/pkg/errors"

	"github.com/rwool/evreplay/config"
	"github.com/rwool/evreplay/log"
	"github.com/rwool/evreplay/replay"
)

// Run loads the scenario named by cfg, replays it to the first peer and
// writes the captured payloads to cfg.Output.
//
// A partial capture is still written when the replay fails after a peer
// connected.
func Run(ctx context.Context, cfg *config.Config, logger log.Logger) error {
	if cfg == nil {
		panic("nil config")
	}
	if logger == nil {
		panic("nil logger")
	}

	events, err := cfg.Builder().Load(cfg.File)
	if err != nil {
		return errors.Wrapf(err, "unable to load scenario %s", cfg.File)
	}
	logger.Infof("Loaded %d events from %s", len(events), cfg.File)

	res, runErr := replay.New(logger, cfg.Engine()).Run(ctx, cfg.Addr(), events)
	if res == nil {
		return runErr
	}
	logger.Infof("Sent %d events, captured %d frames with %d warnings",
		res.Sent, len(res.Captures), len(res.Warnings))

	if err := writeCaptures(cfg.Output, res); err != nil {
		if runErr != nil {
			logger.Errorf("Unable to save partial capture: %v", err)
			return runErr
		}
		return err
	}
	return runErr
}

func writeCaptures(path string, res *replay.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "unable to create output file")
	}
	if _, err := res.WriteTo(f); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "unable to write captures")
	}
	return errors.Wrap(f.Close(), "unable to close output file")
}
