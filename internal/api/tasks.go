package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/steveyegge/cutover/internal/orchestration"
	"github.com/steveyegge/cutover/internal/types"
)

func (s *Server) createScopeItem(c *gin.Context) {
	var req scopeItemRequest
	if !s.bind(c, &req) {
		return
	}
	item, err := s.svc.CreateScopeItem(c.Request.Context(), scopeOf(c), orchestration.ScopeItemInput{
		Name:        req.Name,
		Description: req.Description,
		Owner:       req.Owner,
	})
	s.reply(c, http.StatusCreated, item, err)
}

func (s *Server) listScopeItems(c *gin.Context) {
	items, err := s.svc.ListScopeItems(c.Request.Context(), scopeOf(c))
	s.reply(c, http.StatusOK, nonNil(items), err)
}

func (s *Server) updateScopeItem(c *gin.Context) {
	var req updateScopeItemRequest
	if !s.bind(c, &req) {
		return
	}
	item, err := s.svc.UpdateScopeItem(c.Request.Context(), scopeOf(c), c.Param("id"), orchestration.ScopeItemUpdate{
		Name:        req.Name,
		Description: req.Description,
		Owner:       req.Owner,
	})
	s.reply(c, http.StatusOK, item, err)
}

func (s *Server) deleteScopeItem(c *gin.Context) {
	if err := s.svc.DeleteScopeItem(c.Request.Context(), scopeOf(c), c.Param("id")); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) addTask(c *gin.Context) {
	var req createTaskRequest
	if !s.bind(c, &req) {
		return
	}
	task, err := s.svc.AddTask(c.Request.Context(), scopeOf(c), c.Param("plan"), orchestration.TaskInput{
		ScopeItemID:        req.ScopeItemID,
		Key:                req.Key,
		Title:              req.Title,
		Description:        req.Description,
		Owner:              req.Owner,
		PlannedDurationMin: req.PlannedDurationMin,
		Sequence:           req.Sequence,
	})
	s.reply(c, http.StatusCreated, task, err)
}

func (s *Server) listTasks(c *gin.Context) {
	tasks, err := s.svc.ListTasks(c.Request.Context(), scopeOf(c), c.Param("plan"))
	s.reply(c, http.StatusOK, nonNil(tasks), err)
}

func (s *Server) getTask(c *gin.Context) {
	task, err := s.svc.GetTask(c.Request.Context(), scopeOf(c), c.Param("id"))
	s.reply(c, http.StatusOK, task, err)
}

func (s *Server) updateTask(c *gin.Context) {
	var req updateTaskRequest
	if !s.bind(c, &req) {
		return
	}
	task, err := s.svc.UpdateTask(c.Request.Context(), scopeOf(c), c.Param("id"), orchestration.TaskUpdate{
		Title:       req.Title,
		Description: req.Description,
		Owner:       req.Owner,
	})
	s.reply(c, http.StatusOK, task, err)
}

func (s *Server) updateTaskDuration(c *gin.Context) {
	var req durationRequest
	if !s.bind(c, &req) {
		return
	}
	task, err := s.svc.UpdateTaskDuration(c.Request.Context(), scopeOf(c), c.Param("id"), *req.PlannedDurationMin, actorOf(c))
	s.reply(c, http.StatusOK, task, err)
}

func (s *Server) appendTaskNote(c *gin.Context) {
	var req noteRequest
	if !s.bind(c, &req) {
		return
	}
	task, err := s.svc.AppendTaskNote(c.Request.Context(), scopeOf(c), c.Param("id"), req.Note, actorOf(c))
	s.reply(c, http.StatusOK, task, err)
}

func (s *Server) transitionTask(c *gin.Context) {
	var req transitionRequest
	if !s.bind(c, &req) {
		return
	}
	task, err := s.svc.TransitionTask(c.Request.Context(), scopeOf(c), c.Param("id"), types.TaskStatus(req.Status), actorOf(c))
	if err == nil {
		s.metrics.transition("task", string(task.Status))
	}
	s.reply(c, http.StatusOK, task, err)
}

func (s *Server) deleteTask(c *gin.Context) {
	if err := s.svc.DeleteTask(c.Request.Context(), scopeOf(c), c.Param("id"), actorOf(c)); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) addDependency(c *gin.Context) {
	var req dependencyRequest
	if !s.bind(c, &req) {
		return
	}
	dep, err := s.svc.AddDependency(c.Request.Context(), scopeOf(c), req.PredecessorID, req.SuccessorID, req.LagMinutes, actorOf(c))
	s.reply(c, http.StatusCreated, dep, err)
}

// removeDependency takes the edge from ?predecessor_id=&successor_id=.
func (s *Server) removeDependency(c *gin.Context) {
	pred, succ := c.Query("predecessor_id"), c.Query("successor_id")
	if pred == "" || succ == "" {
		s.writeError(c, types.Invalid("predecessor_id", "predecessor_id and successor_id query parameters are required"))
		return
	}
	if err := s.svc.RemoveDependency(c.Request.Context(), scopeOf(c), pred, succ, actorOf(c)); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listDependencies(c *gin.Context) {
	deps, err := s.svc.ListDependencies(c.Request.Context(), scopeOf(c), c.Param("plan"))
	s.reply(c, http.StatusOK, nonNil(deps), err)
}

func (s *Server) createRehearsal(c *gin.Context) {
	var req rehearsalRequest
	if c.Request.ContentLength != 0 && !s.bind(c, &req) {
		return
	}
	r, err := s.svc.CreateRehearsal(c.Request.Context(), scopeOf(c), c.Param("plan"), req.Notes)
	s.reply(c, http.StatusCreated, r, err)
}

func (s *Server) listRehearsals(c *gin.Context) {
	list, err := s.svc.ListRehearsals(c.Request.Context(), scopeOf(c), c.Param("plan"))
	s.reply(c, http.StatusOK, nonNil(list), err)
}

type rehearsalFunc func(ctx context.Context, scope types.Scope, id, actor string) (*types.Rehearsal, error)

func (s *Server) rehearsalAction(fn rehearsalFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		r, err := fn(c.Request.Context(), scopeOf(c), c.Param("id"), actorOf(c))
		if err == nil {
			s.metrics.transition("rehearsal", string(r.Status))
		}
		s.reply(c, http.StatusOK, r, err)
	}
}

func (s *Server) addGoNoGoItem(c *gin.Context) {
	var req goNoGoRequest
	if !s.bind(c, &req) {
		return
	}
	item, err := s.svc.AddGoNoGoItem(c.Request.Context(), scopeOf(c), c.Param("plan"), orchestration.GoNoGoInput{
		Criterion:    req.Criterion,
		SourceDomain: req.SourceDomain,
		Owner:        req.Owner,
	})
	s.reply(c, http.StatusCreated, item, err)
}

func (s *Server) listGoNoGoItems(c *gin.Context) {
	items, err := s.svc.ListGoNoGoItems(c.Request.Context(), scopeOf(c), c.Param("plan"))
	s.reply(c, http.StatusOK, nonNil(items), err)
}

func (s *Server) setVerdict(c *gin.Context) {
	var req verdictRequest
	if !s.bind(c, &req) {
		return
	}
	item, err := s.svc.SetVerdict(c.Request.Context(), scopeOf(c), c.Param("id"), types.Verdict(req.Verdict), req.Evidence, actorOf(c))
	s.reply(c, http.StatusOK, item, err)
}
