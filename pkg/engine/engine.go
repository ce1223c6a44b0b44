// Package engine drives one run of the classification engine: it owns
// the Config and the mutable per-run state (the classifier and cache
// builder), and implements the two-pass protocol as an explicit loop over
// a Learn/Emit pass enum, where Learn is skipped unless the classifier
// needs it. Each iteration opens, processes, and closes the capture
// source from scratch.
package engine

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/netreplay/tcpprep/internal/apperr"
	"github.com/netreplay/tcpprep/internal/config"
	"github.com/netreplay/tcpprep/internal/logging"
	"github.com/netreplay/tcpprep/pkg/cache"
	"github.com/netreplay/tcpprep/pkg/classify"
	"github.com/netreplay/tcpprep/pkg/decision"
	"github.com/netreplay/tcpprep/pkg/gate"
	"github.com/netreplay/tcpprep/pkg/packet"
)

// Source is the capture source contract: an ordered sequence of frames,
// with the BPF predicate (if any) compiled once per Open and evaluated
// per frame. Implemented by internal/pcapsrc.
type Source interface {
	// Next returns the next record and whether the configured BPF
	// predicate matched it (always true if none is configured). ok is
	// false once the capture is exhausted.
	Next() (rec packet.Record, bpfMatch bool, ok bool, err error)
	// Close releases the source. Called once per pass; a fresh pass
	// reopens the source from the beginning.
	Close() error
}

// SourceFactory opens a fresh Source positioned at the start of the
// capture, for one pass.
type SourceFactory func(ctx context.Context) (Source, error)

// Stats summarizes one run, for cmd/tcpprep --stats.
type Stats struct {
	PacketsTotal     int `json:"packets_total"`
	PacketsSent      int `json:"packets_sent"`
	PacketsDropped   int `json:"packets_dropped"`
	PacketsPrimary   int `json:"packets_primary"`
	PacketsSecondary int `json:"packets_secondary"`
	LearnerAddresses int `json:"learner_addresses,omitempty"`
}

// leafCounter is implemented by pkg/classify.Classifier's auto variant via
// LeafCount, surfaced optionally for stats reporting.
type leafCounter interface {
	LeafCount() int
}

// Engine drives one run: pass 1 (if the classifier needs it), Finalize,
// then pass 2, against a freshly-opened Source each time.
type Engine struct {
	cfg        *config.Config
	classifier classify.Classifier
	newSource  SourceFactory
}

// New returns an Engine for one run.
func New(cfg *config.Config, classifier classify.Classifier, newSource SourceFactory) *Engine {
	return &Engine{cfg: cfg, classifier: classifier, newSource: newSource}
}

type pass int

const (
	passLearn pass = iota
	passEmit
)

// Run executes the full two-pass protocol (or the single pass, for
// non-AUTO modes) and returns a fully populated cache.Writer ready for
// Finalize, plus run statistics.
func (e *Engine) Run(ctx context.Context) (*cache.Writer, Stats, error) {
	logger := logging.WithContext(ctx)
	var stats Stats

	if e.classifier.NeedsLearningPass() {
		ctx := logging.NewContext(ctx, "pass", "learn")
		logging.WithContext(ctx).Info("starting learning pass")
		if err := e.runPass(ctx, passLearn, nil, &stats); err != nil {
			return nil, stats, err
		}
		if err := e.classifier.Finalize(); err != nil {
			return nil, stats, fmt.Errorf("%w: %v", apperr.ErrConfig, err)
		}
		if lc, ok := e.classifier.(leafCounter); ok {
			stats.LearnerAddresses = lc.LeafCount()
		}
		logging.WithContext(ctx).Info("learning pass complete", "addresses_observed", stats.LearnerAddresses)
	}

	writer := cache.NewWriter(e.cfg.Comment)
	emitCtx := logging.NewContext(ctx, "pass", "emit")
	logging.WithContext(emitCtx).Info("starting emit pass")
	if err := e.runPass(emitCtx, passEmit, writer, &stats); err != nil {
		return nil, stats, err
	}

	if stats.PacketsTotal == 0 {
		return nil, stats, fmt.Errorf("%w: zero packets processed (filter too restrictive, or empty capture)", apperr.ErrCapture)
	}

	logger.Info("run complete",
		"packets_total", stats.PacketsTotal,
		"packets_sent", stats.PacketsSent,
		"packets_dropped", stats.PacketsDropped,
	)
	return writer, stats, nil
}

func (e *Engine) runPass(ctx context.Context, p pass, writer *cache.Writer, stats *Stats) error {
	src, err := e.newSource(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrCapture, err)
	}
	defer src.Close()

	var ordinal uint64
	for {
		rec, bpfMatch, ok, err := src.Next()
		if err != nil {
			return fmt.Errorf("%w: %v", apperr.ErrCapture, err)
		}
		if !ok {
			break
		}
		ordinal++
		rec.Ordinal = ordinal

		passed := e.cfg.Filter.Passes(gateInput(rec, bpfMatch))

		if p == passLearn {
			if passed {
				if err := e.classifier.Observe(rec); err != nil {
					return err
				}
			}
			continue
		}

		stats.PacketsTotal++
		if !passed {
			writer.Append(decision.Skipped)
			stats.PacketsDropped++
			continue
		}

		d := e.classifier.Classify(rec)
		writer.Append(d)
		if d.Send {
			stats.PacketsSent++
			if d.Side == decision.Secondary {
				stats.PacketsSecondary++
			} else {
				stats.PacketsPrimary++
			}
		} else {
			stats.PacketsDropped++
		}
	}
	return nil
}

func gateInput(rec packet.Record, bpfMatch bool) gate.Input {
	in := gate.Input{Ordinal: rec.Ordinal, BPFMatch: bpfMatch}
	if rec.IsIPv4() {
		in.HasIPv4 = true
		in.Src = rec.IPv4.Src
		in.Dst = rec.IPv4.Dst
	} else {
		in.Src, in.Dst = netip.Addr{}, netip.Addr{}
	}
	return in
}
