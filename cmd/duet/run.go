package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/duet/internal/config"
	"github.com/ShayCichocki/duet/internal/duo"
	"github.com/ShayCichocki/duet/internal/state"
	"github.com/ShayCichocki/duet/internal/tui"
	"github.com/ShayCichocki/duet/pkg/models"
)

var (
	runMaxIterations   int
	runSingle          bool
	runHeadless        bool
	runWorkDir         string
	runContinueOnError bool
	runNoFallback      bool
	runManagerTier     string
	runWorkerTier      string
	runAllowedTools    []string
)

var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Run a task with dual-agent orchestration",
	Long: `Run a task using a manager/worker agent pair.

The manager plans and reviews; the worker implements. Control
alternates between them via explicit handoffs. Repeated tasks halt
the session through loop detection, failures are classified and
recovered (retry, agent switch, or abort), and when the pair cannot
make progress the session falls back to a single reliable agent.

Tier selection maps to models in configuration:
  - reliable:  cheapest, used by the single-agent fallback
  - standard:  implementation work (worker default)
  - advanced:  planning and review (manager default)

Use --single to skip the dual-agent loop entirely and run one agent.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

func init() {
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "Iteration budget (0 uses config)")
	runCmd.Flags().BoolVar(&runSingle, "single", false, "Run a single agent, no manager/worker pair")
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "Run without TUI (headless mode)")
	runCmd.Flags().StringVar(&runWorkDir, "workdir", "", "Working directory for the agents (default: current)")
	runCmd.Flags().BoolVar(&runContinueOnError, "continue-on-error", false, "Keep iterating after failed invocations")
	runCmd.Flags().BoolVar(&runNoFallback, "no-fallback", false, "Abort instead of falling back to a single agent")
	runCmd.Flags().StringVar(&runManagerTier, "manager-tier", "", "Manager tier: reliable, standard, or advanced")
	runCmd.Flags().StringVar(&runWorkerTier, "worker-tier", "", "Worker tier: reliable, standard, or advanced")
	runCmd.Flags().StringSliceVar(&runAllowedTools, "allowed-tools", nil, "Tools the agents may use (default: full set)")
}

func runTask(cmd *cobra.Command, args []string) error {
	task := strings.Join(args, " ")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	workDir := runWorkDir
	if workDir == "" {
		workDir, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
	}

	executor, err := buildExecutor(cfg)
	if err != nil {
		return err
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	db, err := state.OpenProject(workDir)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	logger := duo.NewDebugLoggerForDir(workDir)
	defer logger.Close()

	opts := orchestratorOptions(cfg, workDir)
	opts = append(opts, duo.WithStore(db), duo.WithLogger(logger))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	if runHeadless {
		orch := duo.New(registry, executor, opts...)
		report, err := runSession(ctx, orch, task)
		if report != nil {
			fmt.Print(report.Summary())
		}
		return err
	}

	return runWithTUI(ctx, cancel, registry, executor, opts, task, maxIterations(cfg))
}

// buildRegistry applies tier overrides from flags and config.
func buildRegistry(cfg *config.Config) (*duo.Registry, error) {
	managerTier := cfg.Orchestration.ManagerTier
	if runManagerTier != "" {
		managerTier = runManagerTier
	}
	workerTier := cfg.Orchestration.WorkerTier
	if runWorkerTier != "" {
		workerTier = runWorkerTier
	}

	return duo.NewRegistry(duo.RegistryOptions{
		ManagerTier: models.Tier(managerTier),
		WorkerTier:  models.Tier(workerTier),
		CallTimeout: cfg.Orchestration.CallTimeout,
	})
}

func maxIterations(cfg *config.Config) int {
	if runMaxIterations > 0 {
		return runMaxIterations
	}
	return cfg.Orchestration.MaxIterations
}

// orchestratorOptions folds config and flags into duo options.
func orchestratorOptions(cfg *config.Config, workDir string) []duo.Option {
	opts := []duo.Option{
		duo.WithMaxIterations(maxIterations(cfg)),
		duo.WithWorkDir(workDir),
		duo.WithMaxRetries(cfg.Orchestration.MaxRetries),
		duo.WithEscalationThreshold(cfg.Orchestration.EscalationThreshold),
		duo.WithLoopThreshold(cfg.Orchestration.LoopThreshold),
		duo.WithFallback(cfg.Orchestration.FallbackEnabled && !runNoFallback),
		duo.WithContinueOnError(cfg.Orchestration.ContinueOnError || runContinueOnError),
	}

	tools := cfg.Orchestration.AllowedTools
	if len(runAllowedTools) > 0 {
		tools = runAllowedTools
	}
	if len(tools) > 0 {
		opts = append(opts, duo.WithAllowedTools(tools))
	}

	for _, tier := range []models.Tier{models.TierReliable, models.TierStandard, models.TierAdvanced} {
		if model := cfg.Models.ForTier(tier); model != "" {
			opts = append(opts, duo.WithModel(tier, model))
		}
	}

	return opts
}

// runSession dispatches to the dual or single loop.
func runSession(ctx context.Context, orch *duo.Orchestrator, task string) (*duo.SessionReport, error) {
	if runSingle {
		return orch.RunSingleAgent(ctx, task)
	}
	return orch.Run(ctx, task)
}

type sessionResult struct {
	report *duo.SessionReport
	err    error
}

// runWithTUI drives the session behind the bubbletea program.
func runWithTUI(ctx context.Context, cancel context.CancelFunc, registry *duo.Registry, executor duo.Executor, opts []duo.Option, task string, budget int) error {
	emitter := duo.NewEventEmitter(128)
	opts = append(opts, duo.WithEmitter(emitter))
	orch := duo.New(registry, executor, opts...)

	program, _ := tui.NewSessionProgram(task, budget)
	go tui.Forward(program, emitter.Events())

	resultCh := make(chan sessionResult, 1)
	go func() {
		report, err := runSession(ctx, orch, task)
		emitter.Close()
		done := tui.SessionDoneMsg{Err: err}
		if report != nil {
			done.Outcome = string(report.Outcome)
			done.Result = report.Result
		}
		program.Send(done)
		resultCh <- sessionResult{report: report, err: err}
	}()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("run TUI: %w", err)
	}

	// Quitting the TUI cancels a still-running session.
	cancel()
	res := <-resultCh

	if res.report != nil {
		printReport(res.report)
	}
	return res.err
}

// printReport writes a colored summary after the TUI exits.
func printReport(r *duo.SessionReport) {
	outcome := color.GreenString(string(r.Outcome))
	if r.Outcome != duo.OutcomeCompleted {
		outcome = color.YellowString(string(r.Outcome))
	}
	fmt.Printf("Session %s finished: %s\n", r.SessionID, outcome)
	fmt.Printf("  iterations: %d, handoffs: %d, cost: $%.4f\n", r.Iterations, r.Handoffs, r.Cost)
	if r.Result != "" {
		fmt.Printf("  result: %s\n", r.Result)
	}
}
