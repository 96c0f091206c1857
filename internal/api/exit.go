package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/steveyegge/cutover/internal/orchestration"
	"github.com/steveyegge/cutover/internal/types"
)

func (s *Server) addExitCriterion(c *gin.Context) {
	var req criterionRequest
	if !s.bind(c, &req) {
		return
	}
	cr, err := s.svc.AddExitCriterion(c.Request.Context(), scopeOf(c), c.Param("plan"), orchestration.CriterionInput{
		Name:        req.Name,
		Description: req.Description,
		Type:        types.CriterionType(req.Type),
		Metric:      types.ExitMetric(req.Metric),
		Threshold:   req.Threshold,
		Mandatory:   req.Mandatory,
	})
	s.reply(c, http.StatusCreated, cr, err)
}

func (s *Server) listExitCriteria(c *gin.Context) {
	list, err := s.svc.ListExitCriteria(c.Request.Context(), scopeOf(c), c.Param("plan"))
	s.reply(c, http.StatusOK, nonNil(list), err)
}

func (s *Server) evaluateExitCriteria(c *gin.Context) {
	at, ok := s.queryTime(c, "at")
	if !ok {
		return
	}
	list, err := s.svc.EvaluateExitCriteria(c.Request.Context(), scopeOf(c), c.Param("plan"), at, actorOf(c))
	s.reply(c, http.StatusOK, nonNil(list), err)
}

// setExitCriterionStatus is the manual path; auto criteria are rejected by
// the service.
func (s *Server) setExitCriterionStatus(c *gin.Context) {
	var req criterionStatusRequest
	if !s.bind(c, &req) {
		return
	}
	cr, err := s.svc.SetExitCriterionStatus(c.Request.Context(), scopeOf(c), c.Param("id"),
		types.CriterionStatus(req.Status), req.Evidence, actorOf(c), false)
	s.reply(c, http.StatusOK, cr, err)
}

func (s *Server) recordSignoff(c *gin.Context) {
	var req signoffRequest
	if !s.bind(c, &req) {
		return
	}
	so, err := s.svc.RecordSignoff(c.Request.Context(), scopeOf(c), c.Param("plan"), req.Approver,
		types.SignoffDecision(req.Decision), req.Comment)
	s.reply(c, http.StatusCreated, so, err)
}

func (s *Server) listSignoffs(c *gin.Context) {
	list, err := s.svc.ListSignoffs(c.Request.Context(), scopeOf(c), c.Param("plan"))
	s.reply(c, http.StatusOK, nonNil(list), err)
}

func (s *Server) exitStatus(c *gin.Context) {
	at, ok := s.queryTime(c, "at")
	if !ok {
		return
	}
	st, err := s.svc.ExitStatus(c.Request.Context(), scopeOf(c), c.Param("plan"), at)
	s.reply(c, http.StatusOK, st, err)
}
