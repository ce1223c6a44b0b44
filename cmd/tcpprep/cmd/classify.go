package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"

	"github.com/netreplay/tcpprep/internal/apperr"
	"github.com/netreplay/tcpprep/internal/config"
	"github.com/netreplay/tcpprep/internal/logging"
	"github.com/netreplay/tcpprep/internal/pcapsrc"
	"github.com/netreplay/tcpprep/pkg/autoclass"
	"github.com/netreplay/tcpprep/pkg/cache"
	"github.com/netreplay/tcpprep/pkg/classify"
	"github.com/netreplay/tcpprep/pkg/engine"
	"github.com/netreplay/tcpprep/pkg/gate"
	"github.com/netreplay/tcpprep/pkg/ports"
)

func runPrintComment(cfg *config.Config) error {
	comment, err := cache.PrintComment(cfg.PrintCommentFile)
	if err != nil {
		return err
	}
	fmt.Println(comment)

	if err := cache.VerifyChecksum(cfg.PrintCommentFile); err != nil {
		if errors.Is(err, cache.ErrChecksum) {
			fmt.Fprintln(os.Stderr, "tcpprep: warning: cache payload checksum mismatch")
			return nil
		}
		return err
	}
	return nil
}

func runClassify(ctx context.Context, cfg *config.Config) error {
	logger := logging.WithContext(ctx)

	table, err := buildPortTable(cfg.ServicesFile)
	if err != nil {
		return err
	}

	classifier, err := buildClassifier(cfg, table)
	if err != nil {
		return err
	}

	bpfExpr := bpfExprOf(cfg.Filter)
	newSource := func(ctx context.Context) (engine.Source, error) {
		return pcapsrc.Open(ctx, cfg.InputFile, bpfExpr)
	}

	eng := engine.New(cfg, classifier, newSource)
	writer, stats, err := eng.Run(ctx)
	if err != nil {
		return err
	}

	if err := writer.Finalize(cfg.OutputFile); err != nil {
		return err
	}
	logger.Info("cache written", "path", cfg.OutputFile, "packets", writer.Len())

	if cfg.StatsFile != "" {
		if err := writeStats(cfg.StatsFile, stats); err != nil {
			return fmt.Errorf("%w: %v", apperr.ErrWrite, err)
		}
	}
	return nil
}

func buildPortTable(servicesFile string) (*ports.Table, error) {
	table := ports.New()
	if servicesFile == "" {
		return table, nil
	}
	if err := table.LoadFromServicesFile(servicesFile); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrParse, err)
	}
	return table, nil
}

func buildClassifier(cfg *config.Config, table *ports.Table) (classify.Classifier, error) {
	switch cfg.Mode {
	case classify.CIDR:
		return classify.NewCIDR(cfg.CIDRSet, cfg.NonIPSide), nil
	case classify.Port:
		return classify.NewPort(table, cfg.NonIPSide), nil
	case classify.Regex:
		c, err := classify.NewRegex(cfg.RegexPattern, cfg.NonIPSide)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrParse, err)
		}
		return c, nil
	default:
		ac, err := autoclass.New(cfg.AutoSubMode, cfg.Ratio, cfg.MinMask, cfg.MaxMask)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", apperr.ErrConfig, err)
		}
		return classify.NewAuto(ac, table, cfg.NonIPSide), nil
	}
}

func bpfExprOf(f *gate.Filter) string {
	if f == nil {
		return ""
	}
	if bpf, ok := f.Spec.(gate.BPFSpec); ok {
		return bpf.Expr
	}
	return ""
}

func writeStats(path string, stats engine.Stats) error {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
