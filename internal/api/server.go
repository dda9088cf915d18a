package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pubflow/internal/config"
	"pubflow/internal/domain"
	"pubflow/internal/guard"
	"pubflow/internal/scheduler"
	"pubflow/internal/store"
)

// Server is the HTTP command surface over the scheduler: task CRUD, manual
// dispatch, and scheduler control. It replaces a desktop frontend with the
// same narrow operations.
type Server struct {
	sched *scheduler.Scheduler
	store store.Store
	cfg   *config.Manager
	ops   *guard.NamedLocks
}

func NewServer(sched *scheduler.Scheduler, st store.Store, cfg *config.Manager) http.Handler {
	s := &Server{sched: sched, store: st, cfg: cfg, ops: guard.NewNamedLocks()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	r.Get("/health", s.health)

	r.Post("/api/tasks", s.createTask)
	r.Get("/api/tasks", s.listTasks)
	r.Get("/api/tasks/{id}", s.getTask)
	r.Delete("/api/tasks/{id}", s.deleteTask)
	r.Post("/api/tasks/{id}/execute", s.executeNow)
	r.Post("/api/tasks/{id}/retry", s.resetForRetry)

	r.Post("/api/publish-now", s.publishNow)

	r.Post("/api/scheduler/start", s.startScheduler)
	r.Post("/api/scheduler/stop", s.stopScheduler)
	r.Get("/api/scheduler/stats", s.stats)

	r.Get("/api/config", s.getConfig)
	r.Put("/api/config", s.updateConfig)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type createTaskReq struct {
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Images      []string  `json:"images"`
	Topics      []string  `json:"topics"`
	PublishTime time.Time `json:"publish_time"`
	MaxRetries  *int      `json:"max_retries"`
}

type idResp struct {
	ID string `json:"id"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if req.Title == "" {
		http.Error(w, "title is required", 400)
		return
	}
	if req.PublishTime.IsZero() {
		req.PublishTime = time.Now()
	}

	t := domain.NewTask(req.Title, req.Content, req.Images, req.Topics, req.PublishTime)
	if req.MaxRetries != nil && *req.MaxRetries >= 0 {
		t.MaxRetries = *req.MaxRetries
	}
	if !s.sched.AddTask(t) {
		http.Error(w, "failed to add task", 500)
		return
	}
	writeJSON(w, http.StatusCreated, idResp{ID: t.ID})
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.Load(r.Context())
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	writeJSON(w, 200, tasks)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		http.Error(w, "not found", 404)
		return
	}
	writeJSON(w, 200, t)
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.sched.DeleteTask(id) {
		http.Error(w, "not found or in flight", 409)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) executeNow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// One execute-now request per task at a time; a double-click on a
	// frontend button must not race itself.
	release, ok := s.ops.Acquire("execute:"+id, 30*time.Second)
	if !ok {
		http.Error(w, "execute already requested", 409)
		return
	}
	defer release()

	if !s.sched.ExecuteNow(id) {
		http.Error(w, "task not dispatchable", 409)
		return
	}
	writeJSON(w, http.StatusAccepted, idResp{ID: id})
}

func (s *Server) resetForRetry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.sched.ResetForRetry(id) {
		http.Error(w, "task not resettable", 409)
		return
	}
	writeJSON(w, 200, idResp{ID: id})
}

type publishNowReq struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Images  []string `json:"images"`
	Topics  []string `json:"topics"`
}

func (s *Server) publishNow(w http.ResponseWriter, r *http.Request) {
	var req publishNowReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	if req.Title == "" {
		http.Error(w, "title is required", 400)
		return
	}
	id, err := s.sched.PublishNow(req.Title, req.Content, req.Images, req.Topics)
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, http.StatusAccepted, idResp{ID: id})
}

func (s *Server) startScheduler(w http.ResponseWriter, r *http.Request) {
	s.sched.Start()
	writeJSON(w, 200, map[string]any{"running": true})
}

func (s *Server) stopScheduler(w http.ResponseWriter, r *http.Request) {
	s.sched.Stop()
	writeJSON(w, 200, map[string]any{"running": false})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.sched.Statistics()
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	writeJSON(w, 200, map[string]any{
		"running": s.sched.Running(),
		"tasks":   st,
	})
}

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, s.cfg.Get())
}

type updateConfigReq struct {
	CheckIntervalSeconds      *int  `json:"check_interval_seconds"`
	MinPublishIntervalMinutes *int  `json:"min_publish_interval_minutes"`
	PublishTimeoutSeconds     *int  `json:"publish_timeout_seconds"`
	HeadlessMode              *bool `json:"headless_mode"`
	RetentionDays             *int  `json:"retention_days"`
}

func (s *Server) updateConfig(w http.ResponseWriter, r *http.Request) {
	var req updateConfigReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	err := s.cfg.Update(func(c *config.Config) {
		if req.CheckIntervalSeconds != nil {
			c.CheckIntervalSeconds = *req.CheckIntervalSeconds
		}
		if req.MinPublishIntervalMinutes != nil {
			c.MinPublishIntervalMinutes = *req.MinPublishIntervalMinutes
		}
		if req.PublishTimeoutSeconds != nil {
			c.PublishTimeoutSeconds = *req.PublishTimeoutSeconds
		}
		if req.HeadlessMode != nil {
			c.HeadlessMode = *req.HeadlessMode
		}
		if req.RetentionDays != nil {
			c.RetentionDays = *req.RetentionDays
		}
	})
	if err != nil {
		http.Error(w, err.Error(), 400)
		return
	}
	writeJSON(w, 200, s.cfg.Get())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
