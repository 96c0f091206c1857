package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/steveyegge/cutover/internal/orchestration"
	"github.com/steveyegge/cutover/internal/types"
)

func (s *Server) createIncident(c *gin.Context) {
	var req incidentRequest
	if !s.bind(c, &req) {
		return
	}
	sev, err := types.ParseSeverity(req.Severity)
	if err != nil {
		s.writeError(c, err)
		return
	}
	reporter := req.Reporter
	if reporter == "" {
		reporter = actorOf(c)
	}
	inc, err := s.svc.CreateIncident(c.Request.Context(), scopeOf(c), c.Param("plan"), orchestration.IncidentInput{
		Title:       req.Title,
		Description: req.Description,
		Severity:    sev,
		Reporter:    reporter,
		Assignee:    req.Assignee,
		ReportedAt:  req.ReportedAt,
	})
	s.reply(c, http.StatusCreated, inc, err)
}

// listIncidents filters on ?status=, ?severity= and ?open=true.
func (s *Server) listIncidents(c *gin.Context) {
	var filter types.IncidentFilter
	if v := c.Query("status"); v != "" {
		st := types.IncidentStatus(v)
		filter.Status = &st
	}
	if v := c.Query("severity"); v != "" {
		sev, err := types.ParseSeverity(v)
		if err != nil {
			s.writeError(c, err)
			return
		}
		filter.Severity = &sev
	}
	if v := c.Query("open"); v != "" {
		open, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(c, types.Invalid("open", "must be a boolean"))
			return
		}
		filter.OpenOnly = open
	}
	list, err := s.svc.ListIncidents(c.Request.Context(), scopeOf(c), c.Param("plan"), filter)
	s.reply(c, http.StatusOK, nonNil(list), err)
}

func (s *Server) getIncident(c *gin.Context) {
	inc, err := s.svc.GetIncident(c.Request.Context(), scopeOf(c), c.Param("id"))
	s.reply(c, http.StatusOK, inc, err)
}

func (s *Server) transitionIncident(c *gin.Context) {
	var req transitionRequest
	if !s.bind(c, &req) {
		return
	}
	inc, err := s.svc.TransitionIncident(c.Request.Context(), scopeOf(c), c.Param("id"), types.IncidentStatus(req.Status), actorOf(c))
	if err == nil {
		s.metrics.transition("incident", string(inc.Status))
	}
	s.reply(c, http.StatusOK, inc, err)
}

func (s *Server) respondIncident(c *gin.Context) {
	inc, err := s.svc.RespondIncident(c.Request.Context(), scopeOf(c), c.Param("id"), actorOf(c))
	s.reply(c, http.StatusOK, inc, err)
}

func (s *Server) assignIncident(c *gin.Context) {
	var req assignRequest
	if !s.bind(c, &req) {
		return
	}
	inc, err := s.svc.AssignIncident(c.Request.Context(), scopeOf(c), c.Param("id"), req.Assignee)
	s.reply(c, http.StatusOK, inc, err)
}

// incidentSLA projects the incident's deadlines at ?at= (RFC 3339), or now.
func (s *Server) incidentSLA(c *gin.Context) {
	at, ok := s.queryTime(c, "at")
	if !ok {
		return
	}
	st, err := s.svc.IncidentSLA(c.Request.Context(), scopeOf(c), c.Param("id"), at)
	if err == nil {
		s.metrics.observeSLA(st)
	}
	s.reply(c, http.StatusOK, st, err)
}

func (s *Server) addIncidentComment(c *gin.Context) {
	var req commentRequest
	if !s.bind(c, &req) {
		return
	}
	cm, err := s.svc.AddIncidentComment(c.Request.Context(), scopeOf(c), c.Param("id"), actorOf(c), req.Text)
	s.reply(c, http.StatusCreated, cm, err)
}

func (s *Server) listIncidentComments(c *gin.Context) {
	list, err := s.svc.ListIncidentComments(c.Request.Context(), scopeOf(c), c.Param("id"))
	s.reply(c, http.StatusOK, nonNil(list), err)
}

func (s *Server) setSLAOverride(c *gin.Context) {
	sev, err := types.ParseSeverity(c.Param("severity"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	var req slaOverrideRequest
	if !s.bind(c, &req) {
		return
	}
	o, err := s.svc.SetSLAOverride(c.Request.Context(), scopeOf(c), c.Param("plan"), sev, req.ResponseMin, req.ResolutionMin)
	s.reply(c, http.StatusOK, o, err)
}

type slaTargetsResponse struct {
	Overrides []*types.HypercareSLA              `json:"overrides"`
	Effective map[types.Severity]types.SLATarget `json:"effective"`
}

func (s *Server) slaTargets(c *gin.Context) {
	ctx, scope, plan := c.Request.Context(), scopeOf(c), c.Param("plan")
	overrides, err := s.svc.ListSLAOverrides(ctx, scope, plan)
	if err != nil {
		s.writeError(c, err)
		return
	}
	eff, err := s.svc.EffectiveSLATargets(ctx, scope, plan)
	s.reply(c, http.StatusOK, slaTargetsResponse{Overrides: nonNil(overrides), Effective: eff}, err)
}

func (s *Server) setEscalationRule(c *gin.Context) {
	var req ruleRequest
	if !s.bind(c, &req) {
		return
	}
	sev, err := types.ParseSeverity(req.Severity)
	if err != nil {
		s.writeError(c, err)
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	rule, err := s.svc.SetEscalationRule(c.Request.Context(), scopeOf(c), c.Param("plan"), orchestration.RuleInput{
		Severity:        sev,
		LevelOrder:      req.LevelOrder,
		TriggerAfterMin: req.TriggerAfterMin,
		TargetRole:      req.TargetRole,
		Basis:           types.EscalationBasis(req.Basis),
		Active:          active,
	})
	s.reply(c, http.StatusOK, rule, err)
}

// listEscalationRules returns the plan's own rules, or with ?effective=true
// the rules evaluation would actually use.
func (s *Server) listEscalationRules(c *gin.Context) {
	var (
		rules []*types.EscalationRule
		err   error
	)
	if effective, _ := strconv.ParseBool(c.Query("effective")); effective {
		rules, err = s.svc.EffectiveEscalationRules(c.Request.Context(), scopeOf(c), c.Param("plan"))
	} else {
		rules, err = s.svc.ListEscalationRules(c.Request.Context(), scopeOf(c), c.Param("plan"))
	}
	s.reply(c, http.StatusOK, nonNil(rules), err)
}

func (s *Server) evaluateEscalations(c *gin.Context) {
	var req evaluateRequest
	if c.Request.ContentLength != 0 && !s.bind(c, &req) {
		return
	}
	var at time.Time
	if req.At != nil {
		at = *req.At
	}
	events, err := s.svc.EvaluateEscalations(c.Request.Context(), scopeOf(c), c.Param("plan"), at)
	for _, ev := range events {
		s.metrics.escalated(ev)
	}
	s.reply(c, http.StatusOK, nonNil(events), err)
}

func (s *Server) escalate(c *gin.Context) {
	var req escalateRequest
	if c.Request.ContentLength != 0 && !s.bind(c, &req) {
		return
	}
	ev, err := s.svc.Escalate(c.Request.Context(), scopeOf(c), c.Param("id"), req.Level, req.Reason, actorOf(c))
	if err == nil {
		s.metrics.escalated(ev)
	}
	s.reply(c, http.StatusCreated, ev, err)
}

func (s *Server) listEscalationEvents(c *gin.Context) {
	list, err := s.svc.ListEscalationEvents(c.Request.Context(), scopeOf(c), c.Param("id"))
	s.reply(c, http.StatusOK, nonNil(list), err)
}

func (s *Server) acknowledgeEscalation(c *gin.Context) {
	ev, err := s.svc.AcknowledgeEscalation(c.Request.Context(), scopeOf(c), c.Param("id"), actorOf(c))
	s.reply(c, http.StatusOK, ev, err)
}

// queryTime parses an optional RFC 3339 query parameter. The zero time
// means "now" to the service.
func (s *Server) queryTime(c *gin.Context, name string) (time.Time, bool) {
	v := c.Query(name)
	if v == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		s.writeError(c, types.Invalid(name, "must be an RFC 3339 timestamp"))
		return time.Time{}, false
	}
	return t, true
}
