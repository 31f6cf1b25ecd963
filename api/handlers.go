package api

import (
	"net/http"

	"github.com/spf13/cast"

	"github.com/vinayprograms/orchestrator/errors"
	"github.com/vinayprograms/orchestrator/search"
)

type registerRequest struct {
	Name         string   `json:"name"`
	Capabilities []string `json:"capabilities"`
}

type clientRequest struct {
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

type projectRequest struct {
	ClientID    string `json:"client_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type intakeRequest struct {
	ProjectID   string `json:"project_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type taskRequest struct {
	TaskID   string `json:"task_id"`
	BotID    string `json:"bot_id"`
	WorkerID string `json:"worker_id"`
	Status   string `json:"status"`
	Summary  string `json:"summary"`
	Error    string `json:"error"`
}

// --- Reads ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.svc.Stats(r.Context())
	writeOK(w, map[string]any{
		"tasks":             st.Tasks,
		"counts":            st.Counts,
		"eligible":          st.Eligible,
		"workers":           st.Workers,
		"bots":              st.Bots,
		"snapshot_failures": st.Metrics.SnapshotFailures,
		"metrics":           st.Metrics,
	})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.ListTasks(r.Context()))
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := cast.ToIntE(v)
		if err != nil || n < 0 {
			writeError(w, errors.InvalidInput("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	results, err := s.svc.Search(r.Context(), q.Get("q"), limit, search.Filter{
		Status:    q.Get("status"),
		ProjectID: q.Get("project_id"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]any{"results": results})
}

func (s *Server) handleListBots(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Bots(r.Context()))
}

func (s *Server) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Workers(r.Context()))
}

func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Clients(r.Context()))
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Projects(r.Context()))
}

// --- Identity ---

func (s *Server) handleRegisterBot(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, w, &req); err != nil {
		writeError(w, err)
		return
	}
	b := s.svc.RegisterBot(r.Context(), req.Name, req.Capabilities)
	writeJSON(w, http.StatusOK, map[string]any{"id": b.ID})
}

func (s *Server) handleRegisterWorker(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, w, &req); err != nil {
		writeError(w, err)
		return
	}
	wk := s.svc.RegisterWorker(r.Context(), req.Name, req.Capabilities)
	writeJSON(w, http.StatusOK, map[string]any{
		"id":            wk.ID,
		"lease_seconds": int(s.svc.LeaseDuration().Seconds()),
	})
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decode(r, w, &req); err != nil {
		writeError(w, err)
		return
	}
	wk, err := s.svc.Heartbeat(r.Context(), req.WorkerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]any{"last_heartbeat": wk.LastHeartbeat})
}

func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if err := decode(r, w, &req); err != nil {
		writeError(w, err)
		return
	}
	c := s.svc.CreateClient(r.Context(), req.Name, req.Contact)
	writeJSON(w, http.StatusOK, map[string]any{"id": c.ID})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := decode(r, w, &req); err != nil {
		writeError(w, err)
		return
	}
	p := s.svc.CreateProject(r.Context(), req.ClientID, req.Name, req.Description)
	writeJSON(w, http.StatusOK, map[string]any{"id": p.ID})
}

// --- Tasks ---

func (s *Server) handleIntake(w http.ResponseWriter, r *http.Request) {
	var req intakeRequest
	if err := decode(r, w, &req); err != nil {
		writeError(w, err)
		return
	}
	t, err := s.svc.Intake(r.Context(), req.ProjectID, req.Title, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": t.ID})
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decode(r, w, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.svc.Assign(r.Context(), req.TaskID, req.BotID); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decode(r, w, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.svc.UpdateStatus(r.Context(), req.TaskID, req.Status); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleDeliver(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decode(r, w, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.svc.Deliver(r.Context(), req.TaskID, req.Summary); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decode(r, w, &req); err != nil {
		writeError(w, err)
		return
	}
	if s.limiter != nil && req.WorkerID != "" && !s.limiter.Allow(req.WorkerID) {
		w.Header().Set("Retry-After", "1")
		writeError(w, errors.RateLimited("claim rate exceeded", errors.WithWorkerID(req.WorkerID)))
		return
	}

	t, ok, err := s.svc.Claim(r.Context(), req.WorkerID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeOK(w, map[string]any{"claimed": false})
		return
	}
	writeOK(w, map[string]any{"claimed": true, "task": t})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decode(r, w, &req); err != nil {
		writeError(w, err)
		return
	}
	t, err := s.svc.Complete(r.Context(), req.TaskID, req.WorkerID, req.Summary)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]any{"task": t})
}

func (s *Server) handleFail(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decode(r, w, &req); err != nil {
		writeError(w, err)
		return
	}
	t, err := s.svc.Fail(r.Context(), req.TaskID, req.WorkerID, req.Error)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]any{"task": t})
}

func (s *Server) handleReopen(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if err := decode(r, w, &req); err != nil {
		writeError(w, err)
		return
	}
	t, err := s.svc.Reopen(r.Context(), req.TaskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]any{"task": t})
}
