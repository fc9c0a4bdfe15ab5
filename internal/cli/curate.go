package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/repocull/repocull/pkg/buildinfo"
	"github.com/repocull/repocull/pkg/cull"
	pkgerrors "github.com/repocull/repocull/pkg/errors"
	"github.com/repocull/repocull/pkg/fetch"
	"github.com/repocull/repocull/pkg/observability"
	"github.com/repocull/repocull/pkg/policy"
	"github.com/repocull/repocull/pkg/repodata"
)

// report is the machine-readable run summary written next to the
// curated index. The explain command browses it.
type report struct {
	RunID         string            `json:"run_id"`
	GeneratedAt   time.Time         `json:"generated_at"`
	ChannelAlias  string            `json:"channel_alias"`
	Subdirs       []string          `json:"subdirs"`
	TotalRecords  int               `json:"total_records"`
	RemovedTotal  int               `json:"removed_total"`
	ClosurePasses int               `json:"closure_passes"`
	Stages        []cull.StageStats `json:"stages"`
	Removals      []cull.Removal    `json:"removals"`
	Diagnostics   []cull.Diagnostic `json:"diagnostics,omitempty"`
	Malformed     []string          `json:"malformed_records,omitempty"`
}

// curateOptions collects every curate flag.
type curateOptions struct {
	configPath   string
	channelAlias string
	archs        []string
	output       string
	matchspecs   string
	anchors      []string
	banFeatures  []string
	keepDev      bool
	keepRC       bool
	maxPasses    int
	workers      int
	noCache      bool
	explain      bool
}

// curateCommand creates the curate command, the main entry point of the
// tool.
func (c *CLI) curateCommand() *cobra.Command {
	var opts curateOptions

	cmd := &cobra.Command{
		Use:   "curate [channel-dir]",
		Short: "Filter a channel index down to a curated, consistent subset",
		Long: `Curate loads repodata for noarch and the configured platform subdirs,
removes records that violate the curation policy, prunes records
incompatible with the anchor packages, and repeatedly drops records
whose dependencies can no longer be satisfied until the index is
consistent.

Repodata is fetched from the channel alias unless a local channel
directory is given, in which case <channel-dir>/<subdir>/repodata.json
is read instead. The curated index is written one subdir at a time
under the output directory, together with a report.json describing
every removal.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			applyFlags(cmd, cfg, &opts)

			localDir := ""
			if len(args) == 1 {
				localDir = args[0]
			}
			ctx := withLogger(cmd.Context(), c.Logger)
			return c.runCurate(ctx, cfg, &opts, localDir)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "path to repocull.toml (default ./repocull.toml if present)")
	cmd.Flags().StringVar(&opts.channelAlias, "channel-alias", policy.DefaultChannelAlias, "channel URL used for fetching and for rendered base URLs")
	cmd.Flags().StringSliceVar(&opts.archs, "arch", []string{"linux-64"}, "platform subdirs curated alongside noarch")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "out", "output directory for the curated index")
	cmd.Flags().StringVar(&opts.matchspecs, "matchspecs", "", "YAML allow list of package name to match specs")
	cmd.Flags().StringSliceVarP(&opts.anchors, "anchor", "A", []string{"python"}, "anchor package names for compatibility pruning")
	cmd.Flags().StringSliceVarP(&opts.banFeatures, "ban-feature", "F", []string{"pypy"}, "features whose records are removed")
	cmd.Flags().BoolVar(&opts.keepDev, "keep-dev", false, "keep dev pre-releases")
	cmd.Flags().BoolVar(&opts.keepRC, "keep-rc", false, "keep rc pre-releases")
	cmd.Flags().IntVar(&opts.maxPasses, "max-passes", policy.DefaultMaxClosurePasses, "closure pass budget before the run aborts")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "worker pool size (0 = all CPUs)")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "disable repodata caching")
	cmd.Flags().BoolVarP(&opts.explain, "explain", "e", false, "print every removal with its reason after the run")

	return cmd
}

// applyFlags overrides config values with explicitly set flags.
func applyFlags(cmd *cobra.Command, cfg *Config, opts *curateOptions) {
	if cmd.Flags().Changed("channel-alias") {
		cfg.ChannelAlias = opts.channelAlias
	}
	if cmd.Flags().Changed("arch") {
		cfg.Archs = opts.archs
	}
	if cmd.Flags().Changed("output") {
		cfg.Output = opts.output
	}
	if cmd.Flags().Changed("matchspecs") {
		cfg.Matchspecs = opts.matchspecs
	}
	if cmd.Flags().Changed("anchor") {
		cfg.Anchors = opts.anchors
	}
	if cmd.Flags().Changed("ban-feature") {
		cfg.BanFeatures = opts.banFeatures
	}
	if cmd.Flags().Changed("keep-dev") {
		cfg.KeepDev = opts.keepDev
	}
	if cmd.Flags().Changed("keep-rc") {
		cfg.KeepRC = opts.keepRC
	}
	if cmd.Flags().Changed("max-passes") {
		cfg.MaxPasses = opts.maxPasses
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = opts.workers
	}
}

// buildPolicy turns the merged configuration into an engine policy.
func buildPolicy(cfg *Config) (*policy.Policy, error) {
	pol := policy.New()
	pol.ChannelAlias = cfg.ChannelAlias
	pol.Anchors = cfg.Anchors
	pol.MaxClosurePasses = cfg.MaxPasses
	pol.Workers = cfg.Workers
	pol.BanFeatures(cfg.BanFeatures...)

	var keep []string
	if cfg.KeepDev {
		keep = append(keep, "dev")
	}
	if cfg.KeepRC {
		keep = append(keep, "rc")
	}
	pol.BanPrerelease(keep...)

	if cfg.Matchspecs != "" {
		if err := pol.LoadAllowFile(cfg.Matchspecs); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.ErrCodeInvalidPolicy, err, "loading allow list %s", cfg.Matchspecs)
		}
	}
	return pol, nil
}

func (c *CLI) runCurate(ctx context.Context, cfg *Config, opts *curateOptions, localDir string) error {
	if err := pkgerrors.ValidateChannelAlias(cfg.ChannelAlias); err != nil {
		return err
	}

	subdirs := []string{"noarch"}
	for _, arch := range cfg.Archs {
		if err := pkgerrors.ValidateSubdir(arch); err != nil {
			return err
		}
		if arch != "noarch" {
			subdirs = append(subdirs, arch)
		}
	}

	pol, err := buildPolicy(cfg)
	if err != nil {
		return err
	}

	prog := newProgress(loggerFromContext(ctx))

	var client fetch.Client
	if localDir == "" {
		store := c.newCache(cfg, opts.noCache)
		defer store.Close()
		client = fetch.NewCircuitBreakerClient(fetch.NewFetcher(
			fetch.WithUserAgent(appName+"/"+buildinfo.Version),
			fetch.WithCache(store, nil, defaultRepodataTTL),
		))
	}

	var malformed []string
	docs := make([]*repodata.Document, 0, len(subdirs))
	for _, subdir := range subdirs {
		observability.Pipeline().OnLoadStart(ctx, subdir)
		start := time.Now()
		doc, diags, err := c.loadSubdir(ctx, cfg, client, localDir, subdir)
		if err != nil {
			observability.Pipeline().OnLoadComplete(ctx, subdir, 0, time.Since(start), err)
			return err
		}
		observability.Pipeline().OnLoadComplete(ctx, subdir, doc.Len(), time.Since(start), nil)
		for _, diag := range diags {
			c.Logger.Debug("dropped malformed record", "subdir", subdir, "filename", diag.Filename, "error", diag.Err)
			malformed = append(malformed, diag.Subdir+"/"+diag.Filename)
		}
		if len(diags) > 0 {
			printWarning("Dropped %d malformed records in %s", len(diags), subdir)
		}
		c.Logger.Debug("loaded repodata", "subdir", subdir, "records", doc.Len())
		docs = append(docs, doc)
	}

	idx := repodata.NewIndex(docs...)
	prog.done(fmt.Sprintf("Loaded %d records across %d subdirs", idx.Len(), len(docs)))

	runner := cull.NewRunner(pol, c.Logger)
	res, err := runner.Execute(ctx, idx)
	if err != nil {
		switch {
		case errors.Is(err, cull.ErrNonConvergence):
			return pkgerrors.Wrap(pkgerrors.ErrCodeNonConvergence, err, "curation did not converge")
		case isOracleError(err):
			return pkgerrors.Wrap(pkgerrors.ErrCodeOracle, err, "compatibility oracle failed")
		default:
			return err
		}
	}

	removedBySubdir := make(map[string]int)
	for _, r := range res.Removals {
		removedBySubdir[r.Key.Subdir]++
	}

	var outputs []string
	for _, doc := range docs {
		observability.Pipeline().OnRenderStart(ctx, doc.Subdir)
		start := time.Now()
		path, err := repodata.WriteFile(cfg.Output, doc, cfg.ChannelAlias, res.Set.Keep)
		kept := doc.Len() - removedBySubdir[doc.Subdir]
		observability.Pipeline().OnRenderComplete(ctx, doc.Subdir, kept, time.Since(start), err)
		if err != nil {
			return fmt.Errorf("write %s: %w", doc.Subdir, err)
		}
		outputs = append(outputs, path)
	}

	rep, reportPath, err := writeReport(cfg, subdirs, res, malformed)
	if err != nil {
		return err
	}
	outputs = append(outputs, reportPath)

	printSuccess("Curated %d records", res.TotalRecords)
	printStats(res.TotalRecords-res.RemovedTotal, res.RemovedTotal, res.ClosurePasses)
	counts := res.Set.CountByReason()
	reasons := make([]string, 0, len(counts))
	for reason := range counts {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		printDetail("%-18s %d", reason, counts[cull.Reason(reason)])
	}
	for _, path := range outputs {
		printFile(path)
	}

	if opts.explain {
		printNewline()
		printReport(rep, rep.Removals)
	} else {
		printNextStep("Inspect removals", fmt.Sprintf("repocull explain %s", reportPath))
	}
	return nil
}

// loadSubdir produces one subdir's document either from a local channel
// tree or from the network.
func (c *CLI) loadSubdir(ctx context.Context, cfg *Config, client fetch.Client, localDir, subdir string) (*repodata.Document, []*repodata.MalformedRecordError, error) {
	if localDir != "" {
		path := filepath.Join(localDir, subdir, "repodata.json")
		doc, diags, err := repodata.LoadFile(subdir, path, cfg.Workers)
		if err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.ErrCodeInvalidRepodata, err, "loading %s", path)
		}
		return doc, diags, nil
	}

	spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Fetching %s/repodata.json...", subdir))
	spinner.Start()
	data, err := client.Repodata(ctx, cfg.ChannelAlias, subdir)
	if err != nil {
		spinner.StopWithError(fmt.Sprintf("Fetching %s failed", subdir))
		if errors.Is(err, fetch.ErrNotFound) {
			return nil, nil, pkgerrors.Wrap(pkgerrors.ErrCodeChannelNotFound, err, "no repodata for %s at %s", subdir, cfg.ChannelAlias)
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.ErrCodeNetwork, err, "fetching %s", subdir)
	}
	spinner.Stop()

	doc, diags, err := repodata.Load(subdir, data, cfg.Workers)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.ErrCodeInvalidRepodata, err, "parsing %s", subdir)
	}
	return doc, diags, nil
}

func writeReport(cfg *Config, subdirs []string, res *cull.Result, malformed []string) (*report, string, error) {
	rep := &report{
		RunID:         res.RunID,
		GeneratedAt:   time.Now().UTC(),
		ChannelAlias:  cfg.ChannelAlias,
		Subdirs:       subdirs,
		TotalRecords:  res.TotalRecords,
		RemovedTotal:  res.RemovedTotal,
		ClosurePasses: res.ClosurePasses,
		Stages:        res.Stages,
		Removals:      res.Removals,
		Diagnostics:   res.Diagnostics,
		Malformed:     malformed,
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return nil, "", err
	}
	if err := os.MkdirAll(cfg.Output, 0o755); err != nil {
		return nil, "", err
	}
	path := filepath.Join(cfg.Output, "report.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, "", err
	}
	return rep, path, nil
}

func isOracleError(err error) bool {
	var oe *cull.OracleError
	return errors.As(err, &oe)
}
