package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/steveyegge/cutover/internal/orchestration"
	"github.com/steveyegge/cutover/internal/runbook"
	"github.com/steveyegge/cutover/internal/types"
)

func (s *Server) createPlan(c *gin.Context) {
	var req createPlanRequest
	if !s.bind(c, &req) {
		return
	}
	plan, err := s.svc.CreatePlan(c.Request.Context(), scopeOf(c), orchestration.PlanInput{
		Name:                   req.Name,
		Description:            req.Description,
		PlannedStart:           req.PlannedStart,
		PlannedEnd:             req.PlannedEnd,
		RollbackDeadline:       req.RollbackDeadline,
		HypercareDurationWeeks: req.HypercareDurationWeeks,
		CreatedBy:              actorOf(c),
	})
	s.reply(c, http.StatusCreated, plan, err)
}

func (s *Server) listPlans(c *gin.Context) {
	var filter types.PlanFilter
	if v := c.Query("status"); v != "" {
		st := types.PlanStatus(v)
		filter.Status = &st
	}
	plans, err := s.svc.ListPlans(c.Request.Context(), scopeOf(c), filter)
	s.reply(c, http.StatusOK, nonNil(plans), err)
}

func (s *Server) getPlan(c *gin.Context) {
	plan, err := s.svc.GetPlan(c.Request.Context(), scopeOf(c), c.Param("plan"))
	s.reply(c, http.StatusOK, plan, err)
}

func (s *Server) updatePlan(c *gin.Context) {
	var req updatePlanRequest
	if !s.bind(c, &req) {
		return
	}
	plan, err := s.svc.UpdatePlan(c.Request.Context(), scopeOf(c), c.Param("plan"), orchestration.PlanUpdate{
		Name:                   req.Name,
		Description:            req.Description,
		PlannedStart:           req.PlannedStart,
		PlannedEnd:             req.PlannedEnd,
		RollbackDeadline:       req.RollbackDeadline,
		HypercareDurationWeeks: req.HypercareDurationWeeks,
	})
	s.reply(c, http.StatusOK, plan, err)
}

func (s *Server) transitionPlan(c *gin.Context) {
	var req transitionRequest
	if !s.bind(c, &req) {
		return
	}
	plan, err := s.svc.TransitionPlan(c.Request.Context(), scopeOf(c), c.Param("plan"), types.PlanStatus(req.Status), actorOf(c))
	if err == nil {
		s.metrics.transition("plan", string(plan.Status))
	}
	s.reply(c, http.StatusOK, plan, err)
}

func (s *Server) planReadiness(c *gin.Context) {
	rd, err := s.svc.PlanReadiness(c.Request.Context(), scopeOf(c), c.Param("plan"))
	s.reply(c, http.StatusOK, rd, err)
}

func (s *Server) criticalPath(c *gin.Context) {
	cp, err := s.svc.CriticalPath(c.Request.Context(), scopeOf(c), c.Param("plan"))
	s.reply(c, http.StatusOK, cp, err)
}

// importRunbook accepts a runbook file as the request body. The format
// comes from ?format=, defaulting to the Content-Type.
func (s *Server) importRunbook(c *gin.Context) {
	format := c.Query("format")
	if format == "" {
		switch c.ContentType() {
		case "application/json":
			format = runbook.FormatJSON
		case "application/yaml", "application/x-yaml", "text/yaml":
			format = runbook.FormatYAML
		default:
			format = runbook.FormatTOML
		}
	}
	data, err := c.GetRawData()
	if err != nil {
		s.writeError(c, types.Invalid("body", "%v", err))
		return
	}
	def, err := runbook.Parse(data, format)
	if err != nil {
		if types.KindOf(err) == types.KindInternal {
			err = types.Invalid("runbook", "%v", err)
		}
		s.writeError(c, err)
		return
	}
	res, err := s.svc.ImportRunbook(c.Request.Context(), scopeOf(c), c.Param("plan"), def, actorOf(c))
	s.reply(c, http.StatusCreated, res, err)
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
