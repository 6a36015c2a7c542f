package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stateflow/stateflow/internal/log"
	internal_storage "github.com/stateflow/stateflow/internal/storage"
	"github.com/stateflow/stateflow/pkg/config"
	"github.com/stateflow/stateflow/pkg/models"
	"github.com/stateflow/stateflow/pkg/service"
)

func SetupCLI(rootCmd *cobra.Command) {
	transitionCmd := &cobra.Command{
		Use:   "transition",
		Short: "Execute a workflow transition immediately",
		Run: func(cmd *cobra.Command, args []string) {
			svc, cleanup := buildService(cmd)
			defer cleanup()
			t, force := transitionFromFlags(cmd, svc)
			result, err := svc.Execute(service.NewExecutionContext(), t, force)
			if err != nil {
				log.GetLogger().Errorf("Failed to execute transition: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to execute transition: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "Entity %s/%s is now in state '%s'\n", t.EntityType, t.EntityID, result)
		},
	}

	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Schedule a workflow transition for a future due time",
		Run: func(cmd *cobra.Command, args []string) {
			svc, cleanup := buildService(cmd)
			defer cleanup()
			t, force := transitionFromFlags(cmd, svc)
			due, _ := cmd.Flags().GetInt64("due")
			if due <= 0 {
				fmt.Fprintln(os.Stderr, "Error: --due (unix timestamp) is required")
				os.Exit(1)
			}
			t.Timestamp = due
			result, err := svc.Schedule(service.NewExecutionContext(), t, force)
			if err != nil {
				log.GetLogger().Errorf("Failed to schedule transition: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to schedule transition: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "Scheduled transition %s, due at %s; current state remains '%s'\n",
				t.StateLabel(), time.Unix(due, 0).UTC().Format(time.RFC3339), result)
		},
	}
	scheduleCmd.Flags().Int64("due", 0, "Due time as unix timestamp")

	runDueCmd := &cobra.Command{
		Use:   "run-due",
		Short: "Execute all scheduled transitions that have come due",
		Run: func(cmd *cobra.Command, args []string) {
			svc, cleanup := buildService(cmd)
			defer cleanup()
			start, _ := cmd.Flags().GetInt64("start")
			end := time.Now().Unix()
			if err := svc.RunDue(start, end); err != nil {
				log.GetLogger().Errorf("Failed to run due transitions: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to run due transitions: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "Processed due transitions in window (%d, %d]\n", start, end)
		},
	}
	runDueCmd.Flags().Int64("start", 0, "Window start as unix timestamp (exclusive)")

	revertCmd := &cobra.Command{
		Use:   "revert",
		Short: "Revert the most recent executed transition",
		Run: func(cmd *cobra.Command, args []string) {
			svc, cleanup := buildService(cmd)
			defer cleanup()
			wtID, _ := cmd.Flags().GetString("workflow")
			entityType, _ := cmd.Flags().GetString("entity-type")
			entityID, _ := cmd.Flags().GetString("entity-id")
			field, _ := cmd.Flags().GetString("field")
			actor, _ := cmd.Flags().GetString("actor")
			result, err := svc.Revert(service.NewExecutionContext(), wtID, entityType, entityID, field, actor)
			if err != nil {
				log.GetLogger().Errorf("Failed to revert: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to revert: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "Entity %s/%s reverted to state '%s'\n", entityType, entityID, result)
		},
	}

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List the executed transition history of an entity",
		Run: func(cmd *cobra.Command, args []string) {
			svc, cleanup := buildService(cmd)
			defer cleanup()
			entityType, _ := cmd.Flags().GetString("entity-type")
			entityID, _ := cmd.Flags().GetString("entity-id")
			field, _ := cmd.Flags().GetString("field")
			history, err := svc.History(entityType, entityID, field)
			if err != nil {
				log.GetLogger().Errorf("Failed to list history: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to list history: %v\n", err)
				os.Exit(1)
			}
			if len(history) == 0 {
				fmt.Fprintf(os.Stdout, "No transitions found.\n")
				return
			}
			fmt.Fprintf(os.Stdout, "Transitions:\n")
			for _, t := range history {
				fmt.Fprintf(os.Stdout, "- ID: %d, %s -> %s, Actor: %s, At: %s, Forced: %t, Comment: %s\n",
					t.ID, t.FromState, t.ToState, t.ActorID, time.Unix(t.Timestamp, 0).UTC().Format(time.RFC3339), t.Forced, t.Comment)
			}
		},
	}

	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Show the current workflow state of an entity",
		Run: func(cmd *cobra.Command, args []string) {
			svc, cleanup := buildService(cmd)
			defer cleanup()
			wtID, _ := cmd.Flags().GetString("workflow")
			entityType, _ := cmd.Flags().GetString("entity-type")
			entityID, _ := cmd.Flags().GetString("entity-id")
			field, _ := cmd.Flags().GetString("field")
			state, err := svc.CurrentState(wtID, entityType, entityID, field)
			if err != nil {
				log.GetLogger().Errorf("Failed to determine state: %v", err)
				fmt.Fprintf(os.Stderr, "Error: failed to determine state: %v\n", err)
				os.Exit(1)
			}
			fmt.Fprintf(os.Stdout, "Entity %s/%s is in state '%s'\n", entityType, entityID, state)
		},
	}

	for _, c := range []*cobra.Command{transitionCmd, scheduleCmd, runDueCmd, revertCmd, historyCmd, stateCmd} {
		c.Flags().String("workflow", "", "Workflow type id")
		c.Flags().String("entity-type", "entity", "Target entity type")
		c.Flags().String("entity-id", "", "Target entity id")
		c.Flags().String("field", "", "Workflow field name (empty for the generic field)")
		c.Flags().String("actor", "", "Acting user id")
		rootCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{transitionCmd, scheduleCmd} {
		c.Flags().String("to", "", "Target state id")
		c.Flags().String("comment", "", "Transition comment")
		c.Flags().Bool("force", false, "Bypass transition authorization")
		c.Flags().String("grant", "", "Comma-separated capabilities granted to the actor for this invocation")
	}
}

// transitionFromFlags builds a transition against the entity's current
// state as recorded in the history store.
func transitionFromFlags(cmd *cobra.Command, svc *service.WorkflowService) (*models.Transition, bool) {
	wtID, _ := cmd.Flags().GetString("workflow")
	entityType, _ := cmd.Flags().GetString("entity-type")
	entityID, _ := cmd.Flags().GetString("entity-id")
	field, _ := cmd.Flags().GetString("field")
	to, _ := cmd.Flags().GetString("to")
	actor, _ := cmd.Flags().GetString("actor")
	comment, _ := cmd.Flags().GetString("comment")
	force, _ := cmd.Flags().GetBool("force")
	if wtID == "" || entityID == "" || to == "" {
		fmt.Fprintln(os.Stderr, "Error: --workflow, --entity-id and --to are required")
		os.Exit(1)
	}
	from, err := svc.CurrentState(wtID, entityType, entityID, field)
	if err != nil {
		log.GetLogger().Errorf("Failed to determine current state: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to determine current state: %v\n", err)
		os.Exit(1)
	}
	t := models.NewTransition(wtID, from, to, entityType, entityID, field, actor, time.Now().Unix(), false)
	t.Comment = comment
	return t, force
}

// buildService wires a WorkflowService from the persistent flags: the
// postgres store, the workflow definition config and an in-memory entity
// adapter whose state derives entirely from the history store.
func buildService(cmd *cobra.Command) (*service.WorkflowService, func()) {
	dbConnStr, err := cmd.Flags().GetString("db")
	if err != nil {
		log.GetLogger().Errorf("Error retrieving db flag: %v", err)
		os.Exit(1)
	}
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		log.GetLogger().Errorf("Error retrieving config flag: %v", err)
		os.Exit(1)
	}
	types, err := config.Load(configPath)
	if err != nil {
		log.GetLogger().Errorf("Failed to load workflow config: %v", err)
		fmt.Fprintf(os.Stderr, "Error: failed to load workflow config: %v\n", err)
		os.Exit(1)
	}
	store := initStore(dbConnStr)

	caps := service.CapabilityMap{}
	if grant, _ := cmd.Flags().GetString("grant"); grant != "" {
		actor, _ := cmd.Flags().GetString("actor")
		caps[actor] = strings.Split(grant, ",")
	}

	svc := service.NewWorkflowService(store, caps, types, log.GetLogger())
	entityType, _ := cmd.Flags().GetString("entity-type")
	svc.RegisterAdapter(entityType, service.NewMemoryAdapter(true))
	return svc, func() {
		if err := store.Close(); err != nil {
			log.GetLogger().Errorf("Failed to close store: %v", err)
		}
	}
}

func initStore(dbConnStr string) *internal_storage.PostgresStore {
	store, err := internal_storage.NewPostgresStore(dbConnStr)
	if err != nil {
		log.GetLogger().Errorf("Failed to initialize store: %v", err)
		os.Exit(1)
	}
	return store
}
