package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/fleetworks/botflow/internal/config"
	"github.com/fleetworks/botflow/internal/dispatch"
	internal_http "github.com/fleetworks/botflow/internal/http"
	"github.com/fleetworks/botflow/internal/log"
	internal_storage "github.com/fleetworks/botflow/internal/storage"
	"github.com/fleetworks/botflow/pkg/service"
	"github.com/spf13/cobra"
)

func SetupCLI(rootCmd *cobra.Command) {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the botflow HTTP server and background loops",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.Load()
			dbPath := flagOrDefault(cmd, "db", cfg.DBPath)
			port := flagOrDefault(cmd, "port", cfg.Port)
			store := initStore(dbPath)
			defer store.Close()
			dispatcher := buildDispatcher(cfg)

			projectID, _ := cmd.Flags().GetString("project")
			if projectID != "" {
				go runBackgroundLoops(store, dispatcher, projectID, cfg.ScheduleInterval)
			}
			if err := internal_http.StartServer(port, store, dispatcher); err != nil {
				log.GetLogger().Errorf("Server stopped: %v", err)
				os.Exit(1)
			}
		},
	}
	serveCmd.Flags().String("port", "", "port to listen on")
	serveCmd.Flags().String("project", "", "project to run scheduling and escalation loops for")

	scheduleCmd := &cobra.Command{
		Use:   "schedule [project-id]",
		Short: "Assign ready tasks to available bot workers",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := initStore(dbFlag(cmd))
			defer store.Close()
			svc := service.NewSchedulerService(store, log.GetLogger())
			scheduled, err := svc.ScheduleReadyTasks(args[0])
			if err != nil {
				log.GetLogger().Errorf("Failed to schedule tasks: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to schedule tasks: %v\n", err)
				os.Exit(1)
			}
			if len(scheduled) == 0 {
				fmt.Fprintf(os.Stdout, "No assignments created.\n")
				return
			}
			fmt.Fprintf(os.Stdout, "Assignments:\n")
			for _, a := range scheduled {
				fmt.Fprintf(os.Stdout, "- Task: %s, Worker: %s, Assignment: %s\n", a.TaskID, a.WorkerID, a.AssignmentID)
			}
		},
	}

	runWorkflowCmd := &cobra.Command{
		Use:   "run-workflow [definition-id]",
		Short: "Start a workflow run and advance it once",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := initStore(dbFlag(cmd))
			defer store.Close()
			svc := service.NewCoordinatorService(store, log.GetLogger())
			runID, stepsInitialized, err := svc.StartRun(args[0])
			if err != nil {
				log.GetLogger().Errorf("Failed to start run: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to start run: %v\n", err)
				os.Exit(1)
			}
			result, err := svc.AdvanceRun(runID)
			if err != nil {
				log.GetLogger().Errorf("Failed to advance run: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to advance run: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "Started run %s with %d steps, advanced: %v\n", runID, stepsInitialized, result.AdvancedStepIDs)
		},
	}

	advanceCmd := &cobra.Command{
		Use:   "advance [run-id]",
		Short: "Advance a workflow run",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := initStore(dbFlag(cmd))
			defer store.Close()
			svc := service.NewCoordinatorService(store, log.GetLogger())
			result, err := svc.AdvanceRun(args[0])
			if err != nil {
				log.GetLogger().Errorf("Failed to advance run: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to advance run: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "Run %s status: %s, advanced steps: %v\n", args[0], result.RunStatus, result.AdvancedStepIDs)
		},
	}

	completeStepCmd := &cobra.Command{
		Use:   "complete-step [run-id] [step-id]",
		Short: "Report a workflow step as completed",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			store := initStore(dbFlag(cmd))
			defer store.Close()
			svc := service.NewCoordinatorService(store, log.GetLogger())
			result, err := svc.CompleteStep(args[0], args[1], nil)
			if err != nil {
				log.GetLogger().Errorf("Failed to complete step: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to complete step: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "Run %s status: %s, advanced steps: %v\n", args[0], result.RunStatus, result.AdvancedStepIDs)
		},
	}

	checkEscalationsCmd := &cobra.Command{
		Use:   "check-escalations [project-id]",
		Short: "Evaluate escalation rules for a project",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.Load()
			store := initStore(dbFlag(cmd))
			defer store.Close()
			svc := service.NewEscalationService(store, log.GetLogger(), buildDispatcher(cfg))
			result, err := svc.CheckEscalations(args[0])
			if err != nil {
				log.GetLogger().Errorf("Failed to check escalations: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to check escalations: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "Checked %d rules\n", result.RulesChecked)
			for _, r := range result.Results {
				fmt.Fprintf(os.Stdout, "- %s\n", r)
			}
		},
	}

	listTasksCmd := &cobra.Command{
		Use:   "list-tasks [project-id]",
		Short: "List all tasks in a project",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			store := initStore(dbFlag(cmd))
			defer store.Close()
			svc := service.NewTaskService(store, log.GetLogger())
			tasks, err := svc.ListTasks(args[0])
			if err != nil {
				log.GetLogger().Errorf("Failed to list tasks: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to list tasks: %v\n", err)
				os.Exit(1)
			}
			if len(tasks) == 0 {
				fmt.Fprintf(os.Stdout, "No tasks found.\n")
				return
			}
			fmt.Fprintf(os.Stdout, "Tasks:\n")
			for _, t := range tasks {
				fmt.Fprintf(os.Stdout, "- ID: %s, Title: %s, Status: %s, Priority: %s, Created: %s\n",
					t.ID, t.Title, t.Status, t.Priority, t.CreatedAt.Format(time.RFC3339))
			}
		},
	}

	rootCmd.AddCommand(serveCmd, scheduleCmd, runWorkflowCmd, advanceCmd, completeStepCmd, checkEscalationsCmd, listTasksCmd)
}

// runBackgroundLoops periodically schedules ready tasks and checks
// escalations for the given project.
func runBackgroundLoops(store *internal_storage.SQLiteStore, dispatcher service.ChannelDispatcher, projectID string, interval time.Duration) {
	logger := log.GetLogger()
	scheduler := service.NewSchedulerService(store, logger)
	escalations := service.NewEscalationService(store, logger, dispatcher)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Infof("Starting background loops for project %s every %s", projectID, interval)
	for range ticker.C {
		if scheduled, err := scheduler.ScheduleReadyTasks(projectID); err != nil {
			logger.Errorf("Scheduling pass failed: %v", err)
		} else if len(scheduled) > 0 {
			logger.Infof("Scheduled %d assignments", len(scheduled))
		}
		if _, err := escalations.CheckEscalations(projectID); err != nil {
			logger.Errorf("Escalation pass failed: %v", err)
		}
	}
}

func buildDispatcher(cfg config.Config) service.ChannelDispatcher {
	if cfg.SlackToken == "" || cfg.SlackChannel == "" {
		return nil
	}
	return dispatch.NewSlackDispatcher(cfg.SlackToken, cfg.SlackChannel)
}

func dbFlag(cmd *cobra.Command) string {
	return flagOrDefault(cmd, "db", config.Load().DBPath)
}

func flagOrDefault(cmd *cobra.Command, name, fallback string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil || val == "" {
		return fallback
	}
	return val
}

func initStore(dbPath string) *internal_storage.SQLiteStore {
	store, err := internal_storage.InitStore(dbPath)
	if err != nil {
		log.GetLogger().Errorf("Failed to initialize store: %v", err)
		os.Exit(1)
	}
	return store
}
