package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/snevemoney/nextbest/internal/config"
	"github.com/snevemoney/nextbest/internal/database"
	"github.com/snevemoney/nextbest/internal/engine"
	"github.com/snevemoney/nextbest/internal/execute"
	"github.com/snevemoney/nextbest/internal/memory"
	"github.com/snevemoney/nextbest/internal/reconcile"
	"github.com/snevemoney/nextbest/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "nextbest",
	Short:   "Next-best-action engine for a solo consulting pipeline",
	Long:    "nextbest evaluates pipeline rules into a ranked action queue, executes actions, and learns per-operator weights from the outcomes.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(actionsCmd)
	rootCmd.AddCommand(weightsCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("nextbest", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/nextbest/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to set the actor, server port, and outbox tuning.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database and system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("Pipeline:")
		fmt.Printf("  Leads: %d\n", stats.Leads)
		fmt.Printf("  Deals: %d\n", stats.Deals)
		fmt.Println("\nAction queue:")
		fmt.Printf("  Total actions: %d\n", stats.TotalActions)
		fmt.Printf("  Queued: %d\n", stats.QueuedActions)
		fmt.Printf("  Executions: %d\n", stats.Executions)
		fmt.Println("\nMemory:")
		fmt.Printf("  Events: %d\n", stats.MemoryEvents)
		fmt.Printf("  Learned weights: %d\n", stats.LearnedWeights)
		fmt.Printf("  Outbox queued: %d\n", stats.OutboxQueued)
		fmt.Printf("  Outbox dead: %d\n", stats.OutboxDead)
		return nil
	},
}

// --- run command ---

var runCmd = &cobra.Command{
	Use:   "run [entityType]",
	Short: "Evaluate rules and reconcile the action queue",
	Long:  "Evaluates the rules covering an entity type (lead, deal, growth, command_center, ...) and folds the candidates into the queue. Defaults to growth.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entityType := "growth"
		if len(args) > 0 {
			entityType = args[0]
		}
		scope, err := engine.ScopeForEntity(entityType)
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		snap, err := db.BuildSnapshot(time.Now().UTC())
		if err != nil {
			return fmt.Errorf("building snapshot: %w", err)
		}

		actor := cfg.Actor.UserID
		candidates := engine.NewEvaluator(db.WeightsFor(actor)).Produce(snap, scope)
		summary, err := reconcile.New(db).Upsert(scope, candidates)
		if err != nil {
			return fmt.Errorf("reconciling: %w", err)
		}

		fmt.Printf("Scope %s: %d candidate(s)\n", scope, len(candidates))
		fmt.Printf("  Created: %d\n", summary.Created)
		fmt.Printf("  Updated: %d\n", summary.Updated)
		return nil
	},
}

// --- actions command ---

var (
	actionsScope  string
	actionsStatus string
)

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "Inspect and resolve the action queue",
}

var actionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List actions, best first",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		actions, err := db.ListActions(actionsScope, actionsStatus)
		if err != nil {
			return err
		}
		if len(actions) == 0 {
			fmt.Println("No actions. Run 'nextbest run' to evaluate the rules.")
			return nil
		}

		for _, a := range actions {
			fmt.Printf("  [%d] (%s, %.1f) %s\n", a.ID, a.Priority, a.Score, a.Title)
			fmt.Printf("        rule=%s status=%s\n", a.CreatedByRule, a.Status)
		}
		return nil
	},
}

var executeAttribution string

var actionsExecuteCmd = &cobra.Command{
	Use:   "execute [id] [actionKey]",
	Short: "Execute a queued action",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid action ID: %s", args[0])
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		runner := execute.NewRunner(db, memory.NewOutbox(db))
		result, err := runner.Run(execute.Request{
			NextActionID: id,
			ActionKey:    args[1],
			ActorUserID:  cfg.Actor.UserID,
			Attribution:  executeAttribution,
		})
		if err != nil {
			return err
		}

		if result.OK {
			fmt.Printf("Done: %s\n", result.Summary)
		} else {
			fmt.Printf("Failed: %s\n", result.Summary)
		}
		return nil
	},
}

var actionsDismissCmd = &cobra.Command{
	Use:   "dismiss [id]",
	Short: "Dismiss a queued action",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resolveAction(args[0], "dismiss", 0)
	},
}

var snoozeDays int

var actionsSnoozeCmd = &cobra.Command{
	Use:   "snooze [id]",
	Short: "Snooze a queued action for a few days",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return resolveAction(args[0], "snooze", snoozeDays)
	},
}

func resolveAction(rawID, verb string, days int) error {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid action ID: %s", rawID)
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	action, err := db.GetAction(id)
	if err != nil {
		return err
	}
	if action == nil {
		return fmt.Errorf("action %d not found", id)
	}

	outbox := memory.NewOutbox(db)
	ev := memory.ResolutionEvent{ActorUserID: cfg.Actor.UserID, RuleKey: action.CreatedByRule}

	switch verb {
	case "dismiss":
		ok, err := db.DismissAction(id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("action %d is not queued (status %s)", id, action.Status)
		}
		if err := outbox.EnqueueDismiss(ev); err != nil {
			log.Printf("enqueueing dismiss feedback: %v", err)
		}
		fmt.Printf("Dismissed [%d]: %s\n", id, action.Title)
	case "snooze":
		if days <= 0 {
			days = 1
		}
		until := database.FormatTime(time.Now().Add(time.Duration(days) * 24 * time.Hour))
		ok, err := db.SnoozeAction(id, until)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("action %d is not queued (status %s)", id, action.Status)
		}
		if err := outbox.EnqueueSnooze(ev); err != nil {
			log.Printf("enqueueing snooze feedback: %v", err)
		}
		fmt.Printf("Snoozed [%d] until %s: %s\n", id, until, action.Title)
	}
	return nil
}

func init() {
	actionsListCmd.Flags().StringVar(&actionsScope, "scope", "", "Filter by scope (founder_growth, command_center)")
	actionsListCmd.Flags().StringVar(&actionsStatus, "status", "", "Filter by status (queued, snoozed, dismissed, executed)")
	actionsExecuteCmd.Flags().StringVar(&executeAttribution, "attribution", "", "Outcome grade: improved, neutral, or worsened")
	actionsSnoozeCmd.Flags().IntVar(&snoozeDays, "days", 1, "Snooze window in days")

	actionsCmd.AddCommand(actionsListCmd)
	actionsCmd.AddCommand(actionsExecuteCmd)
	actionsCmd.AddCommand(actionsDismissCmd)
	actionsCmd.AddCommand(actionsSnoozeCmd)
}

// --- weights command ---

var weightsActor string

var weightsCmd = &cobra.Command{
	Use:   "weights",
	Short: "Show learned weights, strongest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		actor := weightsActor
		if actor == "" {
			actor = cfg.Actor.UserID
		}
		weights, err := db.ListWeights(actor)
		if err != nil {
			return err
		}
		if len(weights) == 0 {
			fmt.Printf("No learned weights for %s yet.\n", actor)
			return nil
		}

		fmt.Printf("Learned weights for %s:\n\n", actor)
		for _, w := range weights {
			fmt.Printf("  %+6.2f  %-6s %s (%d/%d successful)\n",
				w.Weight, w.Kind, w.Key, w.Stats.SuccessCount, w.Stats.Total)
		}
		return nil
	},
}

func init() {
	weightsCmd.Flags().StringVar(&weightsActor, "actor", "", "Actor to show weights for (defaults to the configured actor)")
}

// --- review command ---

var reviewActor string

var reviewCmd = &cobra.Command{
	Use:   "review [file.md]",
	Short: "Ingest a weekly review and apply rule feedback",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading review: %w", err)
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		actor := reviewActor
		if actor == "" {
			actor = cfg.Actor.UserID
		}
		n := memory.NewIngestor(db, nil).IngestFounderWeekReview(actor, source)
		fmt.Printf("Applied %d rule mention(s) from %s\n", n, args[0])
		return nil
	},
}

func init() {
	reviewCmd.Flags().StringVar(&reviewActor, "actor", "", "Actor the review belongs to (defaults to the configured actor)")
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local API server and outbox worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		worker := memory.NewWorker(db, memory.NewIngestor(db, nil),
			cfg.OutboxPollInterval(), cfg.Outbox.MaxAttempts)
		go worker.Run(ctx)

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, cfg.Actor.UserID, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (defaults to config)")
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "nextbest.db")
	return database.Open(dbPath)
}
