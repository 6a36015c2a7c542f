package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/stateflow/stateflow/internal/log"
	"github.com/stateflow/stateflow/pkg/models"
	"github.com/stateflow/stateflow/pkg/service"
)

func StartServer(port string, svc *service.WorkflowService) error {
	http.HandleFunc("/health", HealthHandler)
	http.HandleFunc("/transitions", TransitionsHandler(svc))
	http.HandleFunc("/history", HistoryHandler(svc))
	http.HandleFunc("/run-due", RunDueHandler(svc))

	log.GetLogger().Infof("Starting stateflow server on :%s", port)
	return http.ListenAndServe(":"+port, nil)
}

// HealthHandler reports liveness.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "stateflow server is running")
}

// TransitionsHandler executes or schedules a transition for an entity.
func TransitionsHandler(svc *service.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		executeTransitionHTTP(w, r, svc)
	}
}

func executeTransitionHTTP(w http.ResponseWriter, r *http.Request, svc *service.WorkflowService) {
	wtID := r.FormValue("workflow")
	entityType := r.FormValue("entity_type")
	entityID := r.FormValue("entity_id")
	to := r.FormValue("to")
	actor := r.FormValue("actor")
	if wtID == "" || entityType == "" || entityID == "" || to == "" || actor == "" {
		log.GetLogger().Error("Missing required parameter in POST /transitions")
		http.Error(w, "Missing required parameter: workflow, entity_type, entity_id, to and actor are mandatory", http.StatusBadRequest)
		return
	}
	field := r.FormValue("field")

	from, err := svc.CurrentState(wtID, entityType, entityID, field)
	if err != nil {
		log.GetLogger().Errorf("Failed to determine current state: %v", err)
		http.Error(w, fmt.Sprintf("Failed to determine current state: %v", err), http.StatusBadRequest)
		return
	}

	now := time.Now().Unix()
	t := models.NewTransition(wtID, from, to, entityType, entityID, field, actor, now, false)
	t.Comment = r.FormValue("comment")
	force := r.FormValue("force") == "true"

	ec := service.NewExecutionContext()
	var result string
	if r.FormValue("scheduled") == "true" {
		due, err := strconv.ParseInt(r.FormValue("due"), 10, 64)
		if err != nil {
			http.Error(w, "Missing or invalid 'due' parameter for scheduled transition", http.StatusBadRequest)
			return
		}
		t.Timestamp = due
		result, err = svc.Schedule(ec, t, force)
		if err != nil {
			log.GetLogger().Errorf("Failed to schedule transition: %v", err)
			http.Error(w, fmt.Sprintf("Failed to schedule transition: %v", err), http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "Scheduled transition %s for %s/%s, due at %d; current state remains '%s'\n",
			t.StateLabel(), entityType, entityID, due, result)
		return
	}

	result, err = svc.Execute(ec, t, force)
	if err != nil {
		log.GetLogger().Errorf("Failed to execute transition: %v", err)
		http.Error(w, fmt.Sprintf("Failed to execute transition: %v", err), http.StatusInternalServerError)
		return
	}
	fmt.Fprintf(w, "Entity %s/%s is now in state '%s'\n", entityType, entityID, result)
}

// HistoryHandler lists an entity's executed transition history.
func HistoryHandler(svc *service.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		entityType := r.FormValue("entity_type")
		entityID := r.FormValue("entity_id")
		if entityType == "" || entityID == "" {
			http.Error(w, "Missing 'entity_type' or 'entity_id' parameter", http.StatusBadRequest)
			return
		}
		history, err := svc.History(entityType, entityID, r.FormValue("field"))
		if err != nil {
			log.GetLogger().Errorf("Failed to list history: %v", err)
			http.Error(w, fmt.Sprintf("Failed to list history: %v", err), http.StatusInternalServerError)
			return
		}
		if len(history) == 0 {
			fmt.Fprintf(w, "No transitions found.\n")
			return
		}
		for _, t := range history {
			fmt.Fprintf(w, "- ID: %d, %s -> %s, Actor: %s, At: %s, Forced: %t, Comment: %s\n",
				t.ID, t.FromState, t.ToState, t.ActorID, time.Unix(t.Timestamp, 0).UTC().Format(time.RFC3339), t.Forced, t.Comment)
		}
	}
}

// RunDueHandler fires all scheduled transitions due in the given window.
func RunDueHandler(svc *service.WorkflowService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		end := time.Now().Unix()
		var start int64
		if v := r.FormValue("start"); v != "" {
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				http.Error(w, "Invalid 'start' parameter", http.StatusBadRequest)
				return
			}
			start = parsed
		}
		if err := svc.RunDue(start, end); err != nil {
			log.GetLogger().Errorf("Failed to run due transitions: %v", err)
			http.Error(w, fmt.Sprintf("Failed to run due transitions: %v", err), http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, "Processed due transitions in window (%d, %d]\n", start, end)
	}
}
