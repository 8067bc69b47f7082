package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ShayCichocki/duet/internal/config"
	"github.com/ShayCichocki/duet/internal/duo"
	"github.com/ShayCichocki/duet/internal/state"
	"github.com/ShayCichocki/duet/internal/tui"
)

// runInteractive launches the TUI with a task input. The session starts
// when the user submits a task.
func runInteractive() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	program, app := tui.NewInteractiveProgram(cfg.Orchestration.MaxIterations)

	resultCh := make(chan sessionResult, 1)
	app.SetTaskSubmitHandler(func(task string) {
		emitter := duo.NewEventEmitter(128)
		opts := orchestratorOptions(cfg, workDir)
		opts = append(opts, duo.WithStore(db), duo.WithLogger(logger), duo.WithEmitter(emitter))
		orch := duo.New(registry, executor, opts...)

		go tui.Forward(program, emitter.Events())
		go func() {
			report, err := orch.Run(ctx, task)
			emitter.Close()
			done := tui.SessionDoneMsg{Err: err}
			if report != nil {
				done.Outcome = string(report.Outcome)
				done.Result = report.Result
			}
			program.Send(done)
			resultCh <- sessionResult{report: report, err: err}
		}()
	})

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("run TUI: %w", err)
	}

	cancel()
	select {
	case res := <-resultCh:
		if res.report != nil {
			printReport(res.report)
		}
		return res.err
	default:
		return nil
	}
}
