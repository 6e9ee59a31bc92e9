// triaged is the email-DLP triage daemon: it scores gateway export records,
// learns from analyst decisions and serves triage analytics over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	"github.com/stratowall/mailtriage/pkg/config"
	"github.com/stratowall/mailtriage/pkg/keywords"
	"github.com/stratowall/mailtriage/pkg/store"
	"github.com/stratowall/mailtriage/pkg/triage"
)

// Version is the release version of triaged.
const Version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		addr := ""
		if len(os.Args) > 2 {
			addr = ":" + os.Args[2]
		}
		runServer(addr)
	case "score":
		if len(os.Args) < 3 {
			fmt.Println("Usage: triaged score <session-id>")
			os.Exit(1)
		}
		runScore(os.Args[2])
	case "learn":
		if len(os.Args) < 3 {
			fmt.Println("Usage: triaged learn <session-id>")
			os.Exit(1)
		}
		runLearn(os.Args[2])
	case "analytics":
		sessionID := ""
		if len(os.Args) > 2 {
			sessionID = os.Args[2]
		}
		runAnalytics(sessionID)
	case "version":
		fmt.Printf("triaged v%s\n", Version)
		fmt.Println("Email DLP triage core")
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("triaged v%s - email DLP triage core\n\n", Version)
	fmt.Println("Usage:")
	fmt.Println("  triaged serve [port]          Start the HTTP gateway (default: 3000)")
	fmt.Println("  triaged score <session-id>    Score a session's records")
	fmt.Println("  triaged learn <session-id>    Run a learning pass over analyst decisions")
	fmt.Println("  triaged analytics [session]   Print learning analytics")
	fmt.Println("  triaged version               Show version")
	fmt.Println("")
	fmt.Println("Environment Variables:")
	fmt.Println("  MAILTRIAGE_DATABASE_URL  Postgres DSN for records and analytics")
	fmt.Println("  MAILTRIAGE_REDIS_ADDR    Redis address for the analytics cache")
	fmt.Println("  MAILTRIAGE_MODELS_DIR    Directory for persisted model artifacts")
	fmt.Println("  MAILTRIAGE_OLLAMA_URL    Embedding backend for the semantic signal")
}

// app bundles the wired components for one process.
type app struct {
	cfg          *config.Config
	log          *zap.Logger
	engine       *triage.Engine
	orchestrator *triage.Orchestrator
	records      *store.RecordStore
	feedback     *store.FeedbackStore
	analytics    *store.AnalyticsStore
	cache        *store.AnalyticsCache
	db           *store.DB
}

func buildApp(ctx context.Context) (*app, error) {
	cfg := config.NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	registry := keywords.DefaultRegistry()
	if cfg.KeywordsFile != "" {
		registry, err = keywords.LoadFile(cfg.KeywordsFile)
		if err != nil {
			log.Warn("keyword file unusable, using built-in defaults",
				zap.String("file", cfg.KeywordsFile), zap.Error(err))
			registry = keywords.DefaultRegistry()
		}
	}

	a := &app{
		cfg:    cfg,
		log:    log,
		engine: triage.NewEngine(cfg, registry, log),
	}

	if cfg.EnableSemantic {
		sd, serr := triage.NewSemanticDetector(cfg, log)
		if serr != nil {
			log.Warn("semantic layer unavailable", zap.Error(serr))
		} else {
			a.engine.SetSemantic(sd)
			go func() {
				loadCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				defer cancel()
				if lerr := sd.LoadPhrases(loadCtx, nil); lerr != nil {
					log.Warn("semantic phrases not loaded, signal disabled", zap.Error(lerr))
				}
			}()
		}
	}

	models, err := store.NewModelStore(cfg.ModelsDir, log)
	if err != nil {
		return nil, err
	}

	if cfg.DatabaseURL != "" {
		a.db, err = store.Connect(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, err
		}
		a.records = store.NewRecordStore(a.db, cfg.CommitBatchSize)
		a.feedback = store.NewFeedbackStore(a.db)
		a.analytics = store.NewAnalyticsStore(a.db)
	} else {
		log.Warn("no database configured, record and feedback stores disabled")
	}

	if cfg.RedisAddr != "" {
		a.cache = store.NewAnalyticsCache(cfg.RedisAddr, cfg.AnalyticsCacheTTL, log)
	}

	var feedbackSrc triage.FeedbackSource
	if a.feedback != nil {
		feedbackSrc = a.feedback
	}
	var sink triage.LearningSink
	if a.analytics != nil {
		sink = a.analytics
	}
	a.orchestrator = triage.NewOrchestrator(a.engine, cfg, feedbackSrc, models, sink, log)

	if err := a.orchestrator.Restore(ctx); err != nil {
		log.Warn("model restore failed, starting cold", zap.Error(err))
	}
	return a, nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
	_ = a.log.Sync()
}

// scoreSession loads, scores and writes back one session.
func (a *app) scoreSession(ctx context.Context, sessionID string) (*triage.ScoreReport, []*triage.EmailRecord, error) {
	if a.records == nil {
		return nil, nil, fmt.Errorf("scoring requires MAILTRIAGE_DATABASE_URL")
	}
	records, err := a.records.SessionRecords(ctx, sessionID, a.cfg.MaxBatchRecords)
	if err != nil {
		return nil, nil, err
	}
	report, err := a.engine.ScoreBatch(ctx, sessionID, records)
	if err != nil {
		return nil, nil, err
	}
	if err := a.records.WriteScores(ctx, records); err != nil {
		return nil, nil, err
	}

	// Fresh analyst decisions trigger an opportunistic learning pass.
	if a.feedback != nil {
		if _, lerr := a.orchestrator.MaybeLearn(ctx, sessionID); lerr != nil {
			a.log.Warn("opportunistic learning failed", zap.Error(lerr))
		}
	}
	return report, records, nil
}

func (a *app) fastAnalytics(ctx context.Context, sessionID string) (*triage.FastAnalytics, error) {
	if a.cache != nil {
		if fa, ok := a.cache.Get(ctx, sessionID); ok {
			return fa, nil
		}
	}
	if a.feedback == nil {
		return nil, fmt.Errorf("analytics requires MAILTRIAGE_DATABASE_URL")
	}
	escalated, cleared, err := a.feedback.FeedbackTotals(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	fa := triage.BuildFastAnalytics(escalated, cleared)
	if a.cache != nil {
		if cerr := a.cache.Set(ctx, sessionID, fa); cerr != nil {
			a.log.Warn("analytics cache write failed", zap.Error(cerr))
		}
	}
	return fa, nil
}

func runServer(addr string) {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}
	defer a.close()

	if addr == "" {
		addr = a.cfg.ListenAddr
	}

	srv := fiber.New(fiber.Config{
		AppName: "mailtriage",
	})

	srv.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "version": Version})
	})

	srv.Post("/v1/score", func(c fiber.Ctx) error {
		var req struct {
			SessionID string `json:"session_id"`
		}
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request"})
		}
		if req.SessionID == "" {
			return c.Status(400).JSON(fiber.Map{"error": "session_id field is required"})
		}

		report, records, err := a.scoreSession(c.Context(), req.SessionID)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{
			"report":   report,
			"insights": triage.BuildInsights(records),
		})
	})

	srv.Post("/v1/sessions/:id/learn", func(c fiber.Ctx) error {
		if a.feedback == nil {
			return c.Status(503).JSON(fiber.Map{"error": "no database configured"})
		}
		sessionID := c.Params("id")
		report, err := a.orchestrator.LearnFromFeedback(c.Context(), sessionID)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		if report.Learned && a.cache != nil {
			a.cache.Invalidate(c.Context(), sessionID)
		}
		return c.JSON(report)
	})

	srv.Get("/v1/sessions/:id/insights", func(c fiber.Ctx) error {
		if a.records == nil {
			return c.Status(503).JSON(fiber.Map{"error": "no database configured"})
		}
		records, err := a.records.SessionRecords(c.Context(), c.Params("id"), a.cfg.MaxBatchRecords)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(triage.BuildInsights(records))
	})

	srv.Get("/v1/analytics", func(c fiber.Ctx) error {
		sessionID := c.Query("session_id")
		if c.Query("fast") == "1" {
			if sessionID == "" {
				return c.Status(400).JSON(fiber.Map{"error": "session_id query parameter is required"})
			}
			fa, err := a.fastAnalytics(c.Context(), sessionID)
			if err != nil {
				return c.Status(500).JSON(fiber.Map{"error": err.Error()})
			}
			return c.JSON(fa)
		}

		if a.analytics == nil {
			return c.Status(503).JSON(fiber.Map{"error": "no database configured"})
		}
		lookback := 30
		if v := c.Query("lookback_days"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				lookback = n
			}
		}
		rows, err := a.analytics.TrendRows(c.Context(), lookback)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(triage.BuildTrend(rows, lookback))
	})

	srv.Get("/v1/metrics", func(c fiber.Ctx) error {
		return c.JSON(a.engine.Metrics().Snapshot())
	})

	a.log.Info("gateway listening", zap.String("addr", addr))
	if err := srv.Listen(addr); err != nil {
		a.log.Fatal("server stopped", zap.Error(err))
	}
}

func runScore(sessionID string) {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}
	defer a.close()

	report, records, err := a.scoreSession(ctx, sessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scoring failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Scored %d records in %s (run %s)\n", len(report.Results), report.Elapsed, report.RunID)
	for level, n := range report.Levels {
		fmt.Printf("  %-8s %d\n", level, n)
	}
	ins := triage.BuildInsights(records)
	for _, rec := range ins.Recommendations {
		fmt.Println("  - " + rec)
	}
}

func runLearn(sessionID string) {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}
	defer a.close()

	if a.feedback == nil {
		fmt.Fprintln(os.Stderr, "learning requires MAILTRIAGE_DATABASE_URL")
		os.Exit(1)
	}

	report, err := a.orchestrator.LearnFromFeedback(ctx, sessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "learning failed: %v\n", err)
		os.Exit(1)
	}
	if !report.Learned {
		fmt.Printf("Not learned: %s (%d decisions, %d required)\n",
			report.Reason, report.FeedbackCount, a.cfg.MinFeedback)
		return
	}
	if a.cache != nil {
		a.cache.Invalidate(ctx, sessionID)
	}
	fmt.Printf("Learning run %s: %d decisions (%d escalated, %d cleared)\n",
		report.RunID, report.FeedbackCount, report.Escalated, report.Cleared)
	fmt.Printf("Adaptive weight: %.2f -> %.2f (evaluated: %v)\n",
		report.WeightBefore, report.WeightAfter, report.WeightEvaluated)
}

func runAnalytics(sessionID string) {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}
	defer a.close()

	if sessionID != "" {
		fa, err := a.fastAnalytics(ctx, sessionID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "analytics failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Session %s: %d decisions, escalation rate %.0f%%\n",
			sessionID, fa.FeedbackCount, fa.EscalationRate*100)
		fmt.Printf("Model maturity: %s (derived weight %.2f)\n", fa.Maturity, fa.DerivedWeight)
		for _, rec := range fa.Recommendations {
			fmt.Println("  - " + rec)
		}
		return
	}

	if a.analytics == nil {
		fmt.Fprintln(os.Stderr, "analytics requires MAILTRIAGE_DATABASE_URL")
		os.Exit(1)
	}
	rows, err := a.analytics.TrendRows(ctx, 30)
	if err != nil {
		fmt.Fprintf(os.Stderr, "analytics failed: %v\n", err)
		os.Exit(1)
	}
	trend := triage.BuildTrend(rows, 30)
	fmt.Printf("Learning runs (last %d days): %d, total feedback %d, maturity %s\n",
		trend.LookbackDays, len(trend.Points), trend.TotalFeedback, trend.Maturity)
	for _, p := range trend.Points {
		fmt.Printf("  %s  weight %.2f  feedback %d\n", p.Day, p.AdaptiveWeight, p.FeedbackCount)
	}
}
