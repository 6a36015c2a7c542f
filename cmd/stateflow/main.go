package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stateflow/stateflow/internal/cli"
	internal_cron "github.com/stateflow/stateflow/internal/cron"
	internal_http "github.com/stateflow/stateflow/internal/http"
	"github.com/stateflow/stateflow/internal/log"
	internal_storage "github.com/stateflow/stateflow/internal/storage"
	"github.com/stateflow/stateflow/pkg/config"
	"github.com/stateflow/stateflow/pkg/service"
)

var rootCmd = &cobra.Command{Use: "stateflow"}

func main() {
	rootCmd.PersistentFlags().String("db", "", "Database connection string")
	rootCmd.PersistentFlags().String("config", "workflows.yaml", "Workflow definition config file")

	cli.SetupCLI(rootCmd)
	rootCmd.AddCommand(serveCmd(), watchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the stateflow HTTP server",
		Run: func(cmd *cobra.Command, args []string) {
			port, _ := cmd.Flags().GetString("port")
			svc, cleanup := buildService(cmd)
			defer cleanup()
			if err := internal_http.StartServer(port, svc); err != nil {
				log.GetLogger().Errorf("Server failed: %v", err)
				os.Exit(1)
			}
		},
	}
	cmd.Flags().String("port", "8080", "Port to listen on")
	return cmd
}

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the scheduler loop, firing due transitions periodically",
		Run: func(cmd *cobra.Command, args []string) {
			every, _ := cmd.Flags().GetString("every")
			since, _ := cmd.Flags().GetInt64("since")
			svc, cleanup := buildService(cmd)
			defer cleanup()

			runner, err := internal_cron.NewRunner(svc, log.GetLogger(), every)
			if err != nil {
				log.GetLogger().Errorf("Invalid schedule %q: %v", every, err)
				os.Exit(1)
			}
			if since > 0 {
				runner.SetLastRun(since)
			}
			runner.Start()
			log.GetLogger().Infof("Scheduler running (%s); press Ctrl+C to stop", every)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			<-sig
			runner.Stop()
		},
	}
	cmd.Flags().String("every", "@every 1m", "Cron expression for scheduler ticks")
	cmd.Flags().Int64("since", 0, "Unix timestamp to start the first window from")
	return cmd
}

func buildService(cmd *cobra.Command) (*service.WorkflowService, func()) {
	dbConnStr, _ := cmd.Flags().GetString("db")
	configPath, _ := cmd.Flags().GetString("config")
	types, err := config.Load(configPath)
	if err != nil {
		log.GetLogger().Errorf("Failed to load workflow config: %v", err)
		os.Exit(1)
	}
	store, err := internal_storage.NewPostgresStore(dbConnStr)
	if err != nil {
		log.GetLogger().Errorf("Failed to initialize store: %v", err)
		os.Exit(1)
	}
	svc := service.NewWorkflowService(store, service.CapabilityMap{}, types, log.GetLogger())
	svc.RegisterAdapter("entity", service.NewMemoryAdapter(true))
	return svc, func() {
		if err := store.Close(); err != nil {
			log.GetLogger().Errorf("Failed to close store: %v", err)
		}
	}
}
