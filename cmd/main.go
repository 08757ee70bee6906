package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"contentscore/internal/config"
	"contentscore/internal/core/schedule"
	"contentscore/internal/platform/tasks"
	"contentscore/internal/server"
	"contentscore/internal/worker"
)

var rootCmd = &cobra.Command{
	Use:          "contentscore",
	Short:        "Discover, score and report on web content within a spend ceiling",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd(), runCmd(), scoreCmd(), discoverCmd(), analyzeCmd())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	var noScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, task worker and scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), config.Load(), !noScheduler)
		},
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "do not start scheduled tasks")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, withScheduler bool) error {
	a, err := newApp(cfg, true)
	if err != nil {
		return err
	}
	defer a.Close()
	a.log.LogInfof("starting at %s (env=%s)", cfg.HTTPAddr, cfg.AppEnv)

	asynqServer := asynq.NewServer(a.redis.AsynqRedisOpt(), asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{"default": 1},
	})
	mux := worker.NewMux()
	mux.HandleFunc(tasks.TaskTypeBatchRun, a.batch.HandleTask)
	go func() {
		if err := asynqServer.Start(mux.Mux()); err != nil {
			a.log.LogErrorf("worker stopped: %v", err)
		}
	}()

	var sched *schedule.Scheduler
	if withScheduler {
		if file, err := schedule.Load(cfg.ScheduleFile); err != nil {
			a.log.LogWarnf("Scheduler disabled: %v", err)
		} else {
			sched = schedule.New(a.batch, a.feeds)
			if sched.Register(ctx, file.Tasks) > 0 {
				sched.Start()
			}
		}
	}

	app := fiber.New(fiber.Config{
		AppName: "ContentScore",
		JSONEncoder: func(v interface{}) ([]byte, error) {
			var buf bytes.Buffer
			encoder := json.NewEncoder(&buf)
			encoder.SetEscapeHTML(false)
			if err := encoder.Encode(v); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
	})
	app.Static("/reports", cfg.OutputDir)

	healthHandler := server.RegisterRoutes(app, server.Dependencies{Job: a.jobs, Batch: a.batch, Redis: a.redis})
	healthHandler.SetReady()

	go func() {
		<-ctx.Done()
		a.log.LogInfo("Shutting down...")
		if sched != nil {
			sched.Stop()
		}
		asynqServer.Shutdown()
		_ = app.ShutdownWithTimeout(5 * time.Second)
	}()

	if err := app.Listen(cfg.HTTPAddr); err != nil {
		return fmt.Errorf("server listen: %w", err)
	}
	return nil
}
