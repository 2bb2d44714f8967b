package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"banbench/internal/actions"
	"banbench/internal/app/version"
	"banbench/internal/artifacts"
	"banbench/internal/config"
	"banbench/internal/detector"
	"banbench/internal/domain"
	"banbench/internal/history"
	"banbench/internal/jobs/runtime"
	"banbench/internal/metrics"
	"banbench/internal/replay"
	"banbench/internal/sink"
	"banbench/internal/support"
	"banbench/internal/truth"
)

// Run drives one complete benchmark run: replay the source log into the
// detector's log interface, collect the detector's reactions, score them
// against ground truth and append the result to the cross-run history.
func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}
	log.SetLevel(log.DebugLevel)

	logFileFlag := flag.String("log-file", "", "Path to the captured source log to replay")
	truthFlag := flag.String("truth", "", "Path to the ground-truth dataset (overrides settings)")
	runIDFlag := flag.String("run-id", "", "Identifier for this run (default: generated)")
	notesFlag := flag.String("notes", "", "Optional annotation stored with the run")
	speedFlag := flag.Float64("speed-factor", 0, "Speed multiplier relative to real time (overrides settings)")
	sleepCapFlag := flag.Float64("sleep-cap", -1, "Maximum sleep per log delta in seconds (overrides settings)")
	statusIntervalFlag := flag.Int("status-interval", 0, "Detector status query cadence in records (overrides settings)")
	maxLinesFlag := flag.Int("max-lines", -1, "Optional line limit for smoke tests (overrides settings)")
	filterIPFlag := flag.String("filter-ip", "", "Restrict replay to lines containing this IP")
	faketimeFlag := flag.String("faketime-epoch", "", "Virtual clock epoch the detector runs under, recorded with the run")
	dryRunFlag := flag.Bool("dry-run", false, "Print planned emissions to stdout instead of the sink command")
	flag.Parse()

	if err := config.ReadSettings(); err != nil {
		return err
	}
	cfg := config.GetConfig()
	applyOverrides(&cfg, overrides{
		truthPath:      *truthFlag,
		speedFactor:    *speedFlag,
		sleepCap:       *sleepCapFlag,
		statusInterval: *statusIntervalFlag,
		maxLines:       *maxLinesFlag,
		filterIP:       *filterIPFlag,
		faketimeEpoch:  *faketimeFlag,
	})
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if *logFileFlag == "" {
		return &domain.ConfigurationError{Reason: "a source log file is required (-log-file)"}
	}

	runID := *runIDFlag
	if runID == "" {
		runID = "run-" + time.Now().UTC().Format("20060102-150405") + "-" + uuid.NewString()[:8]
	}

	info := version.Get()
	log.Info("banbench starting", "run_id", runID, "version", info.BuildVersion, "built_at", info.BuiltAt)

	loc, err := config.TruthLocation(cfg)
	if err != nil {
		return err
	}

	truthStore, err := truth.Load(cfg.Truth.Path, loc)
	if err != nil {
		return err
	}
	if truthStore.Len() == 0 {
		return &domain.ConfigurationError{Reason: "ground-truth store is empty, metrics are undefined without labels"}
	}

	if err := support.OpenGeoDB(cfg.GeoIP.CountryDBPath); err != nil {
		log.Warn("GeoLite database unavailable, country enrichment disabled", "error", err)
	}
	defer support.CloseGeoDB()

	historyStore, err := history.Open(cfg.Output.HistoryDSN, cfg.Output.HistoryPath)
	if err != nil {
		return err
	}
	defer historyStore.Close()

	runDir, err := artifacts.Create(cfg.Output.Dir, runID)
	if err != nil {
		return err
	}
	defer runDir.Close()

	statusClient := &detector.Fail2banClient{Command: cfg.Detector.ClientCommand}
	captureStatus := func(ctx context.Context, label string) error {
		snapshot, err := statusClient.Status(ctx, cfg.Detector.Jail)
		if err != nil {
			return err
		}
		return runDir.WriteSnapshot(label, snapshot)
	}
	if err := captureStatus(context.Background(), "status_before"); err != nil {
		log.Warn("could not capture initial detector status", "error", err)
	}

	var emitTarget sink.Sink
	if *dryRunFlag {
		emitTarget = &sink.WriterSink{W: os.Stdout}
	} else {
		emitTarget, err = sink.NewCommandSink(cfg.Sink.Command, cfg.Sink.Priority, cfg.Sink.Tag)
		if err != nil {
			return err
		}
	}

	reader, err := replay.Open(*logFileFlag, replay.ReaderOptions{
		StartYear: cfg.Replay.StartYear,
		FilterIP:  cfg.Replay.FilterIP,
		Location:  loc,
	})
	if err != nil {
		return err
	}
	defer reader.Close()

	progress, tailed, replayErr := runReplay(cfg, reader, emitTarget, captureStatus, runDir, runID, loc)
	if closeErr := emitTarget.Close(); closeErr != nil {
		log.Warn("sink shutdown reported an error", "error", closeErr)
	}

	cancelled := errors.Is(replayErr, context.Canceled)
	if replayErr != nil && !cancelled {
		return replayErr
	}
	if cancelled {
		log.Warn("run interrupted, continuing with partial results", "emitted", progress.Emitted)
	}

	trace := tailed
	if trace == nil {
		parsed, err := actions.ParseFile(cfg.Detector.ActionsLog, cfg.Detector.Jail, loc)
		if err != nil {
			return err
		}
		trace = &parsed
	}

	if err := runDir.CopyDetectorLog(cfg.Detector.DetectorLog); err != nil {
		log.Warn("could not copy detector log", "error", err)
	}

	result, report, err := metrics.Compute(metrics.Inputs{
		Truth:         truthStore,
		Events:        trace.Events,
		FirstSeen:     progress.FirstSeen,
		RunID:         runID,
		Notes:         *notesFlag,
		LinesIngested: progress.Emitted,
		LinesSkipped:  progress.Skipped,
	})
	if err != nil {
		return err
	}

	appendCtx, cancelAppend := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelAppend()
	if err := historyStore.Append(appendCtx, &result); err != nil {
		return fmt.Errorf("append run to history: %w", err)
	}
	allRuns, err := historyStore.ReadAll(appendCtx)
	if err != nil {
		return fmt.Errorf("read run history: %w", err)
	}
	repeatability := metrics.Analyze(allRuns, nil, 0)

	document := resultDocument{
		Run:           result,
		Report:        report,
		Repeatability: repeatability,
		Interrupted:   cancelled,
		Warnings: warningSummary{
			SkippedLogLines:        progress.Skipped,
			NonMonotonicTimestamps: progress.NonMonotonic,
			SkippedActionRecords:   trace.Skipped,
			LabelConflicts:         truthStore.Conflicts(),
			Anomalies:              report.Anomalies,
		},
		Source: sourceInfo{
			LogFile:       *logFileFlag,
			Truth:         cfg.Truth.Path,
			ActionsLog:    cfg.Detector.ActionsLog,
			DetectorLog:   cfg.Detector.DetectorLog,
			FaketimeEpoch: cfg.Detector.FaketimeEpoch,
		},
		Build: info,
	}
	if err := runDir.WriteMetrics(document); err != nil {
		return err
	}

	log.Info("run complete", "run_id", runID, "artifacts", runDir.Path(),
		"tpr", result.TPR, "fpr", result.FPR, "accuracy", result.Accuracy,
		"runs_in_history", len(allRuns))
	return nil
}

// runReplay executes the paced emission loop together with its optional
// companions: the live action-log tailer and the redis heartbeat. The replay
// itself stays single-threaded; the companions only observe.
func runReplay(cfg config.Config, reader *replay.Reader, emitTarget sink.Sink,
	captureStatus replay.StatusFunc, runDir *artifacts.RunDir, runID string,
	loc *time.Location) (replay.Progress, *actions.Result, error) {

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	auxCtx, cancelAux := context.WithCancel(context.Background())
	defer cancelAux()

	var heartbeat *runtime.Heartbeat
	if cfg.Heartbeat.Enabled {
		client, err := support.GetRedisClient()
		if err != nil {
			log.Warn("redis unavailable, replay heartbeat disabled", "error", err)
		} else {
			heartbeat = runtime.NewHeartbeat(client, runID)
			defer support.CloseRedisClient()
			if active, err := runtime.CountActiveRuns(runCtx, client); err == nil && active > 0 {
				log.Warn("other replays are publishing heartbeats", "active", active)
			}
		}
	}

	scheduler := &replay.Scheduler{
		Sink:           emitTarget,
		Status:         captureStatus,
		SpeedFactor:    cfg.Replay.SpeedFactor,
		SleepCap:       config.SleepCap(cfg),
		StatusInterval: cfg.Replay.StatusInterval,
		MaxLines:       cfg.Replay.MaxLines,
		OnProgress: func(p replay.Progress) {
			runDir.AppendProgress(progressEntry{
				Emitted: p.Emitted,
				Skipped: p.Skipped,
				LastTS:  p.LastTS,
				Elapsed: p.Elapsed.Seconds(),
			})
			if heartbeat != nil {
				heartbeat.Update(runtime.HeartbeatState{
					Emitted: p.Emitted,
					Skipped: p.Skipped,
					LastTS:  p.LastTS,
				})
			}
		},
	}

	var (
		group    errgroup.Group
		progress replay.Progress
		tailed   *actions.Result
		runErr   error
	)

	group.Go(func() error {
		defer cancelAux()
		progress, runErr = scheduler.Run(runCtx, reader)
		return nil
	})

	if cfg.Detector.TailActions {
		tailer := &actions.Tailer{
			Path:        cfg.Detector.ActionsLog,
			DefaultJail: cfg.Detector.Jail,
			Location:    loc,
		}
		group.Go(func() error {
			result := tailer.Run(auxCtx)
			tailed = &result
			return nil
		})
	}

	if heartbeat != nil {
		group.Go(func() error {
			heartbeat.Run(auxCtx, 0, 0)
			return nil
		})
	}

	_ = group.Wait()
	return progress, tailed, runErr
}

type overrides struct {
	truthPath      string
	speedFactor    float64
	sleepCap       float64
	statusInterval int
	maxLines       int
	filterIP       string
	faketimeEpoch  string
}

// applyOverrides layers CLI flags over the settings file without persisting
// them back; a flag only wins when it was actually set.
func applyOverrides(cfg *config.Config, o overrides) {
	if o.truthPath != "" {
		cfg.Truth.Path = o.truthPath
	}
	if o.speedFactor != 0 {
		cfg.Replay.SpeedFactor = o.speedFactor
	}
	if o.sleepCap >= 0 {
		cfg.Replay.SleepCapSeconds = o.sleepCap
	}
	if o.statusInterval != 0 {
		cfg.Replay.StatusInterval = o.statusInterval
	}
	if o.maxLines >= 0 {
		cfg.Replay.MaxLines = o.maxLines
	}
	if o.filterIP != "" {
		cfg.Replay.FilterIP = o.filterIP
	}
	if o.faketimeEpoch != "" {
		cfg.Detector.FaketimeEpoch = o.faketimeEpoch
	}
}

type progressEntry struct {
	Emitted int       `json:"emitted"`
	Skipped int       `json:"skipped"`
	LastTS  time.Time `json:"last_ts"`
	Elapsed float64   `json:"elapsed_seconds"`
}

type warningSummary struct {
	SkippedLogLines        int      `json:"skipped_log_lines"`
	NonMonotonicTimestamps int      `json:"non_monotonic_timestamps"`
	SkippedActionRecords   int      `json:"skipped_action_records"`
	LabelConflicts         int      `json:"label_conflicts"`
	Anomalies              []string `json:"anomalies,omitempty"`
}

type sourceInfo struct {
	LogFile       string `json:"log_file"`
	Truth         string `json:"truth"`
	ActionsLog    string `json:"actions_log"`
	DetectorLog   string `json:"detector_log,omitempty"`
	FaketimeEpoch string `json:"faketime_epoch,omitempty"`
}

type resultDocument struct {
	Run           domain.RunMetrics        `json:"run"`
	Report        metrics.Report           `json:"report"`
	Repeatability map[string]domain.Metric `json:"repeatability"`
	Interrupted   bool                     `json:"interrupted"`
	Warnings      warningSummary           `json:"warnings"`
	Source        sourceInfo               `json:"source"`
	Build         version.Info             `json:"build"`
}
