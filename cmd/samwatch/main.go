package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ceradon/samwatch/internal/config"
	"github.com/ceradon/samwatch/internal/db"
	"github.com/ceradon/samwatch/internal/digest"
	"github.com/ceradon/samwatch/internal/ingest"
	"github.com/ceradon/samwatch/internal/logger"
	"github.com/ceradon/samwatch/internal/notify"
	"github.com/ceradon/samwatch/internal/samapi"
)

func main() {
	log, err := logger.New(os.Getenv("SAMWATCH_LOG_MODE"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	defer log.Sync()
	log = log.With(zap.String("run_id", uuid.NewString()))

	root := &cobra.Command{
		Use:           "samwatch",
		Short:         "Watch SAM.gov for relevant contracting opportunities",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCmd(log), backfillCmd(log), exportCmd(), explainCmd())

	if err := root.Execute(); err != nil {
		log.Error("run failed", zap.Error(err))
		os.Exit(1)
	}
}

func runCmd(log *zap.Logger) *cobra.Command {
	var (
		configPath      string
		once            bool
		daemon          bool
		intervalMinutes int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch, score, store, and email the digest",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if once && daemon {
				return fmt.Errorf("--once and --daemon are mutually exclusive")
			}
			if daemon {
				return runDaemon(ctx, log, configPath, intervalMinutes)
			}
			return runOnce(ctx, log, configPath, true)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to config YAML")
	cmd.Flags().BoolVar(&once, "once", false, "Run once and exit (default)")
	cmd.Flags().BoolVar(&daemon, "daemon", false, "Run on a fixed interval until signalled")
	cmd.Flags().IntVar(&intervalMinutes, "interval-minutes", 1440, "Loop interval in minutes")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func backfillCmd(log *zap.Logger) *cobra.Command {
	var (
		configPath string
		days       int
	)
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Ingest a wider posted-date window without mailing a digest",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			store, err := db.Open(dbPath())
			if err != nil {
				return err
			}
			defer store.Close()

			counts, err := ingestWindow(ctx, log, cfg, store, days)
			if err != nil {
				return err
			}
			log.Info("backfill completed",
				zap.Int("processed", counts.Processed),
				zap.Int("saved", counts.Saved),
				zap.Int("skipped", counts.Skipped),
			)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Path to config YAML")
	cmd.Flags().IntVar(&days, "days", 60, "Days to backfill")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func exportCmd() *cobra.Command {
	var (
		sinceDays int
		format    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump stored opportunities within a day window",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := db.Open(dbPath())
			if err != nil {
				return err
			}
			defer store.Close()

			rows, err := store.FetchSince(cmd.Context(), sinceDays)
			if err != nil {
				return err
			}
			switch format {
			case "csv":
				return digest.WriteCSV(cmd.OutOrStdout(), rows)
			case "table":
				digest.WriteTable(cmd.OutOrStdout(), rows)
				return nil
			default:
				return fmt.Errorf("unsupported export format %q", format)
			}
		},
	}
	cmd.Flags().IntVar(&sinceDays, "since-days", 30, "Window in days")
	cmd.Flags().StringVar(&format, "format", "csv", "Output format: csv or table")
	return cmd
}

func explainCmd() *cobra.Command {
	var noticeID string
	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Show why a stored notice scored what it scored",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := db.Open(dbPath())
			if err != nil {
				return err
			}
			defer store.Close()

			stored, err := store.GetByNoticeID(cmd.Context(), noticeID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if stored == nil {
				fmt.Fprintf(out, "Notice %s not found\n", noticeID)
				return nil
			}
			fmt.Fprintf(out, "Title: %s\n", stored.Title)
			fmt.Fprintf(out, "Score: %d\n", stored.Score)
			fmt.Fprintln(out, "Reasons:")
			for _, reason := range stored.Reasons {
				fmt.Fprintf(out, "- %s\n", reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&noticeID, "notice-id", "", "Notice ID to explain")
	_ = cmd.MarkFlagRequired("notice-id")
	return cmd
}

// runOnce performs one complete pass: ingest the configured window, select
// the digest rows, and mail the rendered body when mail is configured.
func runOnce(ctx context.Context, log *zap.Logger, configPath string, mail bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	store, err := db.Open(dbPath())
	if err != nil {
		return err
	}
	defer store.Close()

	counts, err := ingestWindow(ctx, log, cfg, store, cfg.Filters.PostedFromDays)
	if err != nil {
		return err
	}

	rows, err := store.FetchForDigest(ctx, cfg.Scoring.IncludeInDigestScore, cfg.Digest.MaxItems)
	if err != nil {
		return err
	}

	if mail {
		smtpCfg, err := smtpFromEnv()
		if err != nil {
			return err
		}
		log.Info("sending email digest", zap.Int("digest_items", len(rows)))
		if err := notify.Send(smtpCfg, digest.Subject(len(rows)), digest.Render(rows)); err != nil {
			return err
		}
	}

	log.Info("run completed",
		zap.Int("processed", counts.Processed),
		zap.Int("saved", counts.Saved),
		zap.Int("skipped", counts.Skipped),
		zap.Int("digest_items", len(rows)),
	)
	return nil
}

// runDaemon repeats whole runs on a fixed interval. Ticks are skipped while
// a run is still in flight so the store only ever sees one writer.
func runDaemon(ctx context.Context, log *zap.Logger, configPath string, intervalMinutes int) error {
	if err := runOnce(ctx, log, configPath, true); err != nil {
		return err
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := c.AddFunc(fmt.Sprintf("@every %dm", intervalMinutes), func() {
		if err := runOnce(ctx, log, configPath, true); err != nil {
			log.Error("scheduled run failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling runs: %w", err)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func ingestWindow(ctx context.Context, log *zap.Logger, cfg *config.Config, store *db.Store, days int) (ingest.Counts, error) {
	client, err := clientFromEnv()
	if err != nil {
		return ingest.Counts{}, err
	}

	pipeline := &ingest.Pipeline{Config: cfg, Store: store, Log: log}
	return pipeline.Run(ctx, client.Search(ctx, queryParams(days)))
}

// queryParams builds the posted-date window the API expects (MM/DD/YYYY).
func queryParams(days int) url.Values {
	now := time.Now().UTC()
	return url.Values{
		"postedFrom": {now.AddDate(0, 0, -days).Format("01/02/2006")},
		"postedTo":   {now.Format("01/02/2006")},
	}
}

func clientFromEnv() (*samapi.Client, error) {
	apiKey, err := requireEnv("SAM_API_KEY")
	if err != nil {
		return nil, err
	}
	return samapi.NewClient(samapi.ClientConfig{
		APIKey:        apiKey,
		APIKeyInQuery: strings.EqualFold(os.Getenv("SAM_API_KEY_IN_QUERY"), "true"),
	}), nil
}

func smtpFromEnv() (notify.SMTPConfig, error) {
	pass, err := requireEnv("SMTP_PASS")
	if err != nil {
		return notify.SMTPConfig{}, err
	}
	port := 587
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			port = p
		}
	}
	user := envOr("SMTP_USER", "")
	return notify.SMTPConfig{
		Host:     envOr("SMTP_HOST", "smtp.gmail.com"),
		Port:     port,
		Username: user,
		Password: pass,
		From:     envOr("EMAIL_FROM", user),
		To:       envOr("EMAIL_TO", user),
	}, nil
}

func dbPath() string {
	return filepath.Join(envOr("SAMWATCH_DATA_DIR", "/var/lib/samwatch"), "samwatch.sqlite")
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}

func requireEnv(name string) (string, error) {
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("missing required environment variable %s", name)
	}
	return v, nil
}
