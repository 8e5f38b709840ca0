package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"jozvesaz/internal/app"
	"jozvesaz/internal/monitor"
	"jozvesaz/internal/worker"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background transcription worker",
	Long:  `Starts the queue worker process that drives tasks through the PENDING/PROCESSING/terminal lifecycle.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get application context: %w", err)
		}
		defer appInstance.Close()

		if err := runWorker(appInstance); err != nil {
			log.Printf("FATAL: Worker exited with error: %v", err)
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

// runWorker initializes and runs the asynq worker server.
func runWorker(appInstance *app.App) error {
	cfg := appInstance.Config

	redisOpts := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	srv := asynq.NewServer(
		redisOpts,
		asynq.Config{
			Concurrency: cfg.Worker.Concurrency,
			Queues:      map[string]int{cfg.Queue.Name: 1},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log.Printf("ERROR: task failed: type=%s payload=%s err=%v",
					task.Type(), string(task.Payload()), err)
			}),
		},
	)

	mux := asynq.NewServeMux()
	worker.RegisterHandlers(mux, worker.TranscriptionDeps{
		Tasks:       appInstance.TaskStore,
		Transcriber: appInstance.Transcriber,
		StorageRoot: cfg.Storage.Root,
	})

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	defer stopMonitor()
	if cfg.Monitor.Enabled {
		mon := monitor.New(monitor.Options{
			Interval:     time.Duration(cfg.Monitor.IntervalSeconds * float64(time.Second)),
			RAMWarnRatio: cfg.Monitor.RAMWarnRatio,
			GPUWarnRatio: cfg.Monitor.GPUWarnRatio,
		})
		go mon.Run(monitorCtx)
	}

	log.Printf("Starting worker server (Concurrency: %d, Queue: %s)...", cfg.Worker.Concurrency, cfg.Queue.Name)
	if err := srv.Start(mux); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	log.Println("Shutdown signal received. Initiating graceful shutdown...")
	srv.Stop()
	srv.Shutdown()

	log.Println("Worker shutdown complete.")
	return nil
}
