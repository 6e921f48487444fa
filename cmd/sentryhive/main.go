package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/oriongate/sentryhive/internal/adapters/console"
	"github.com/oriongate/sentryhive/internal/app"
	"github.com/oriongate/sentryhive/internal/ports"
)

var (
	cfgFile      string
	consoleMode  bool
	jsonLogs     bool
	selftestWait time.Duration

	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "sentryhive",
	Short: "Multi-protocol honeypot with centralized attack reporting",
	Long: `SentryHive emulates HTTP, HTTPS, SSH, FTP, SMTP, POP3, IMAP, and MySQL
endpoints, detects attacker behavior against each, classifies it into a
canonical attack taxonomy, throttles repeat reports per source address,
and ships admitted reports to a central collection API.

Detection surface:
  - Protocol-specific session heuristics: port scans, brute force,
    credential stuffing, SQLi/XSS/path-traversal probes
  - Cross-protocol behavioral signals: rapid reconnection, rate limiting

Operation:
  - Single long-running process, configured entirely by environment
    variables (see SPEC_FULL.md for the full table)
  - SIGINT/SIGTERM trigger a graceful shutdown`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the honeypot (default command)",
	RunE:  runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sentryhive %s\n", Version)
		fmt.Printf("commit:  %s\n", Commit)
		fmt.Printf("built:   %s\n", BuildTime)
	},
}

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Start the honeypot and fire synthetic attacker traffic at it",
	Long: `selftest starts every enabled listener, waits for them to bind, then
dials each one with a short attacker-shaped script (path traversal,
credential stuffing, recon commands) to validate that observations flow
through classification, throttling, and reporting end to end.`,
	RunE: runSelftest,
}

func init() {
	rootCmd.RunE = runServe
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./configs/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "emit structured JSON logs instead of the console writer")
	rootCmd.PersistentFlags().BoolVar(&consoleMode, "console", false, "start an interactive terminal view of the live report feed")

	selftestCmd.Flags().DurationVar(&selftestWait, "wait", 500*time.Millisecond, "time to wait for listeners to bind before probing")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(selftestCmd)
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if jsonLogs {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "15:04:05",
		})
	}
}

// newSupervisor builds the supervisor, passing consoleApp as a
// ports.AttackObserver only when non-nil: a nil *console.App boxed
// directly into the interface would be a non-nil interface holding a
// nil pointer, which the pipeline would then try to call OnRecord on.
func newSupervisor(cfg app.Config, consoleApp *console.App) (*app.Supervisor, error) {
	var observer ports.AttackObserver
	if consoleApp != nil {
		observer = consoleApp
	}
	return app.NewSupervisor(cfg, observer)
}

func runServe(cmd *cobra.Command, args []string) error {
	setupLogging()

	cfg, err := app.Resolve(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to resolve configuration: %w", err)
	}

	app.Version = Version

	var consoleApp *console.App
	if consoleMode {
		consoleApp = console.NewApp(cfg.HoneypotID)
	}

	sup, err := newSupervisor(cfg, consoleApp)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("failed to start supervisor: %w", err)
	}

	if consoleApp == nil {
		log.Info().Str("honeypot_id", cfg.HoneypotID).Msg("sentryhive running in headless mode")
		sup.WaitForSignal()
		return nil
	}

	go pumpConsoleGauges(ctx, sup, consoleApp)

	var tuiErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("console panic recovered")
				tuiErr = fmt.Errorf("console panic: %v", r)
			}
		}()
		tuiErr = consoleApp.Run()
	}()

	sup.Stop()
	return tuiErr
}

func runSelftest(cmd *cobra.Command, args []string) error {
	setupLogging()

	cfg, err := app.Resolve(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to resolve configuration: %w", err)
	}
	cfg.OfflineMode = true
	app.Version = Version

	sup, err := newSupervisor(cfg, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("failed to start supervisor: %w", err)
	}
	defer sup.Stop()

	time.Sleep(selftestWait)

	tester := app.NewSelfTest(cfg)
	passed, failed := tester.Run(ctx)

	log.Info().Int("passed", passed).Int("failed", failed).Msg("selftest complete")
	if failed > 0 {
		return fmt.Errorf("%d selftest probe(s) failed", failed)
	}
	return nil
}

func pumpConsoleGauges(ctx context.Context, sup *app.Supervisor, c *console.App) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	var prevCount int
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count := sup.RingBuffer().Count()
			rate := float64(count - prevCount)
			prevCount = count

			stats := sup.ThrottleStats()
			c.SendGauges(console.Gauges{
				ObservationsPerSecond: rate,
				TotalObservations:     int64(count),
				TotalReports:          int64(count),
				TotalSuppressed:       int64(stats.TrackedAddresses),
				SpoolDepth:            sup.SpoolDepth(),
				HeartbeatFailures:     sup.HeartbeatFailures(),
			})
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
