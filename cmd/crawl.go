package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/openclaw/chromecrawl/internal/antiblock"
	"github.com/openclaw/chromecrawl/internal/cdp"
	clocksystem "github.com/openclaw/chromecrawl/internal/clock/system"
	"github.com/openclaw/chromecrawl/internal/extract"
	"github.com/openclaw/chromecrawl/internal/fetcher"
	"github.com/openclaw/chromecrawl/internal/ledger"
	"github.com/openclaw/chromecrawl/internal/orchestrator"
	"github.com/openclaw/chromecrawl/internal/progress"
	"github.com/openclaw/chromecrawl/internal/progress/sinks"
)

// flagKeys maps CLI flag names to their viper keys. A flag only overrides
// config when the user actually set it.
var flagKeys = map[string]string{
	"endpoint":     "crawl.endpoint",
	"port":         "crawl.port",
	"output":       "crawl.output_dir",
	"limit":        "crawl.limit",
	"skip-images":  "crawl.skip_images",
	"force":        "crawl.force",
	"metrics-addr": "metrics.addr",
}

func applyFlagOverrides(cmd *cobra.Command, v *viper.Viper) {
	flags := cmd.Flags()
	for name, key := range flagKeys {
		if flags.Changed(name) {
			val, _ := flags.GetString(name)
			switch name {
			case "limit":
				n, _ := flags.GetInt(name)
				v.Set(key, n)
			case "skip-images", "force":
				b, _ := flags.GetBool(name)
				v.Set(key, b)
			default:
				v.Set(key, val)
			}
		}
	}
	if flags.Changed("delay") {
		raw, _ := flags.GetString("delay")
		if min, max, err := parseDelayRange(raw); err == nil {
			v.Set("crawl.delay_min", min.String())
			v.Set("crawl.delay_max", max.String())
		}
	}
}

// addCrawlFlags registers the flags shared by crawl and retry.
func addCrawlFlags(cmd *cobra.Command) {
	cmd.Flags().String("endpoint", "", "debugger HTTP endpoint, e.g. http://127.0.0.1:9222")
	cmd.Flags().String("port", "", "debugging port on localhost (ignored when --endpoint is set)")
	cmd.Flags().StringP("output", "o", "", "output directory holding articles and the manifest (required unless set in config)")
	cmd.Flags().String("delay", "", "inter-job delay range in seconds, MIN-MAX (e.g. 2-5)")
	cmd.Flags().Int("limit", 0, "cap on jobs executed this session, 0 = no cap")
	cmd.Flags().Bool("skip-images", false, "record image counts without downloading")
	cmd.Flags().Bool("force", false, "re-crawl finished and failed records")
	cmd.Flags().String("metrics-addr", "", "expose Prometheus metrics on this address")
}

// parseDelayRange parses "2-5" (seconds) or "2s-5s" into a min/max pair.
func parseDelayRange(raw string) (time.Duration, time.Duration, error) {
	parts := strings.SplitN(raw, "-", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("delay %q: want MIN-MAX", raw)
	}
	parse := func(s string) (time.Duration, error) {
		s = strings.TrimSpace(s)
		if d, err := time.ParseDuration(s); err == nil {
			return d, nil
		}
		var secs float64
		if _, err := fmt.Sscanf(s, "%g", &secs); err != nil {
			return 0, fmt.Errorf("delay bound %q", s)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}
	min, err := parse(parts[0])
	if err != nil {
		return 0, 0, err
	}
	max, err := parse(parts[1])
	if err != nil {
		return 0, 0, err
	}
	if max < min {
		return 0, 0, fmt.Errorf("delay %q: max below min", raw)
	}
	return min, max, nil
}

func newCrawlCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [url|url-file]",
		Short: "Crawl a batch of article URLs through the browser",
		Long: `Seeds the manifest from a URL or a file of URLs (one per line, # comments
allowed) and works through every pending record. Without an argument the
command resumes the manifest found in the output directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := ""
			if len(args) == 1 {
				source = args[0]
			}
			return runCrawl(cmd.Context(), c, source, false)
		},
	}
	addCrawlFlags(cmd)
	return cmd
}

func runCrawl(ctx context.Context, c *cli, source string, resetFailed bool) error {
	cfg := c.cfg
	logger := c.logger

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://127.0.0.1:" + cdp.ResolvePort(cfg.Port)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	info, err := cdp.Probe(ctx, client, endpoint)
	if err != nil {
		return fmt.Errorf("no debuggable browser at %s (start Chrome with --remote-debugging-port): %w", endpoint, err)
	}
	logger.Info("connected to browser",
		zap.String("endpoint", endpoint),
		zap.String("browser", info.Browser),
		zap.String("protocol", info.ProtocolVersion),
	)

	ldg, err := ledger.Load(filepath.Join(cfg.OutputDir, ledger.FileName))
	if err != nil {
		return err
	}
	if source != "" {
		urls, err := ledger.ParseSource(source, logger)
		if err != nil {
			return err
		}
		if added := ldg.Seed(urls); added > 0 {
			logger.Info("seeded new records", zap.Int("added", added))
		}
	}
	if resetFailed {
		logger.Info("re-enqueued failed records", zap.Int("reset", ldg.ResetFailed()))
	}
	if cfg.Force {
		logger.Info("force: re-enqueued terminal records", zap.Int("reset", ldg.ForceReset()))
	}
	if err := ldg.Save(); err != nil {
		return err
	}
	pending := len(ldg.Pending())
	if pending == 0 {
		logger.Info("nothing to do", zap.String("manifest", ldg.Path()))
		return nil
	}

	budget := pending
	if cfg.Limit > 0 && cfg.Limit < budget {
		budget = cfg.Limit
	}
	sinkList := []progress.Sink{
		sinks.NewLogSink(logger),
		sinks.NewBarSink(budget),
	}
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		promSink, err := sinks.NewPrometheusSink(reg)
		if err != nil {
			return fmt.Errorf("init metrics: %w", err)
		}
		sinkList = append(sinkList, promSink)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			logger.Info("serving metrics", zap.String("addr", cfg.MetricsAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}
	hub := progress.NewHub(progress.Config{Logger: logger}, sinkList...)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hub.Close(shutdownCtx); err != nil {
			logger.Warn("progress hub close", zap.Error(err))
		}
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
	}()

	session := fetcher.NewSession(fetcher.SessionConfig{
		Endpoint:      endpoint,
		PreferredTabs: cfg.PreferredTabs,
		Fetch: fetcher.Config{
			LoadTimeout:     cfg.LoadTimeout,
			SettleDelay:     cfg.SettleDelay,
			MinContentBytes: cfg.MinContentBytes,
		},
	}, logger)
	defer session.Close()

	orch := orchestrator.New(
		orchestrator.Config{
			OutputDir:     cfg.OutputDir,
			DelayMin:      cfg.DelayMin,
			DelayMax:      cfg.DelayMax,
			Limit:         cfg.Limit,
			FetchCeiling:  cfg.FetchCeiling,
			CooldownEvery: cfg.CooldownEvery,
			CooldownFor:   cfg.CooldownFor,
			BlockCooldown: cfg.BlockCooldown,
		},
		ldg,
		session,
		antiblock.New(cfg.BlockMarkers, cfg.BlockSelectors),
		extract.NewHTMLExtractor(client, cfg.SkipImages, logger),
		clocksystem.New(),
		nil,
		hub,
		logger,
	)

	sum, err := orch.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("session summary",
		zap.Stringer("session", sum.Session),
		zap.Int("ok", sum.OK),
		zap.Int("failed", sum.Failed),
		zap.Duration("elapsed", sum.Elapsed),
	)
	return nil
}
