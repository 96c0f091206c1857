// Package api exposes the orchestration service over HTTP.
//
// Every route under /api/v1 is scoped by the X-Tenant-ID and X-Program-ID
// headers. Errors are returned as {"error": ..., "code": ...} where code is
// the error kind; see StatusFor for the status mapping.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/steveyegge/cutover/internal/orchestration"
)

// Options configure a Server.
type Options struct {
	Logger *slog.Logger
	// Registry receives the HTTP series and is served on /metrics. A
	// fresh registry is created when nil.
	Registry *prometheus.Registry
	// ServiceName labels the otelgin spans.
	ServiceName string
}

// Server is the gin adapter in front of an orchestration.Service.
type Server struct {
	svc     *orchestration.Service
	log     *slog.Logger
	reg     *prometheus.Registry
	metrics *Metrics
	engine  *gin.Engine
}

// New builds the router.
func New(svc *orchestration.Service, opts Options) *Server {
	registerValidators()
	s := &Server{svc: svc, log: opts.Logger, reg: opts.Registry}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.reg == nil {
		s.reg = prometheus.NewRegistry()
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "cutover"
	}
	s.metrics = NewMetrics(s.reg)

	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware(opts.ServiceName), s.requestLogger())
	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{Registry: s.reg})))
	r.NoRoute(func(c *gin.Context) {
		c.AbortWithStatusJSON(http.StatusNotFound, errorResponse{Error: "route not found", Code: "not_found"})
	})

	v1 := r.Group("/api/v1", s.requireScope())
	s.routes(v1)
	s.engine = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "backend": s.svc.Store().Backend()})
}

func (s *Server) routes(g *gin.RouterGroup) {
	g.POST("/plans", s.createPlan)
	g.GET("/plans", s.listPlans)
	g.GET("/plans/:plan", s.getPlan)
	g.PATCH("/plans/:plan", s.updatePlan)
	g.POST("/plans/:plan/transitions", s.transitionPlan)
	g.GET("/plans/:plan/readiness", s.planReadiness)
	g.GET("/plans/:plan/critical-path", s.criticalPath)

	g.POST("/scope-items", s.createScopeItem)
	g.GET("/scope-items", s.listScopeItems)
	g.PATCH("/scope-items/:id", s.updateScopeItem)
	g.DELETE("/scope-items/:id", s.deleteScopeItem)

	g.POST("/plans/:plan/tasks", s.addTask)
	g.GET("/plans/:plan/tasks", s.listTasks)
	g.GET("/tasks/:id", s.getTask)
	g.PATCH("/tasks/:id", s.updateTask)
	g.PUT("/tasks/:id/duration", s.updateTaskDuration)
	g.POST("/tasks/:id/notes", s.appendTaskNote)
	g.POST("/tasks/:id/transitions", s.transitionTask)
	g.DELETE("/tasks/:id", s.deleteTask)

	g.POST("/dependencies", s.addDependency)
	g.DELETE("/dependencies", s.removeDependency)
	g.GET("/plans/:plan/dependencies", s.listDependencies)
	g.POST("/plans/:plan/runbook", s.importRunbook)

	g.POST("/plans/:plan/rehearsals", s.createRehearsal)
	g.GET("/plans/:plan/rehearsals", s.listRehearsals)
	g.POST("/rehearsals/:id/start", s.rehearsalAction(s.svc.StartRehearsal))
	g.POST("/rehearsals/:id/complete", s.rehearsalAction(s.svc.CompleteRehearsal))
	g.POST("/rehearsals/:id/cancel", s.rehearsalAction(s.svc.CancelRehearsal))

	g.POST("/plans/:plan/go-no-go", s.addGoNoGoItem)
	g.GET("/plans/:plan/go-no-go", s.listGoNoGoItems)
	g.PUT("/go-no-go/:id/verdict", s.setVerdict)

	g.POST("/plans/:plan/incidents", s.createIncident)
	g.GET("/plans/:plan/incidents", s.listIncidents)
	g.GET("/incidents/:id", s.getIncident)
	g.POST("/incidents/:id/transitions", s.transitionIncident)
	g.POST("/incidents/:id/respond", s.respondIncident)
	g.PUT("/incidents/:id/assignee", s.assignIncident)
	g.GET("/incidents/:id/sla", s.incidentSLA)
	g.POST("/incidents/:id/comments", s.addIncidentComment)
	g.GET("/incidents/:id/comments", s.listIncidentComments)

	g.PUT("/plans/:plan/sla/:severity", s.setSLAOverride)
	g.GET("/plans/:plan/sla", s.slaTargets)

	g.PUT("/plans/:plan/escalation-rules", s.setEscalationRule)
	g.GET("/plans/:plan/escalation-rules", s.listEscalationRules)
	g.POST("/plans/:plan/escalations/evaluate", s.evaluateEscalations)
	g.POST("/incidents/:id/escalations", s.escalate)
	g.GET("/incidents/:id/escalations", s.listEscalationEvents)
	g.POST("/escalations/:id/ack", s.acknowledgeEscalation)

	g.POST("/plans/:plan/exit-criteria", s.addExitCriterion)
	g.GET("/plans/:plan/exit-criteria", s.listExitCriteria)
	g.POST("/plans/:plan/exit-criteria/evaluate", s.evaluateExitCriteria)
	g.PUT("/exit-criteria/:id/status", s.setExitCriterionStatus)
	g.POST("/plans/:plan/signoffs", s.recordSignoff)
	g.GET("/plans/:plan/signoffs", s.listSignoffs)
	g.GET("/plans/:plan/exit-status", s.exitStatus)
}

// bind decodes the JSON body into dst, writing a 400 on failure.
func (s *Server) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		s.writeError(c, bindError(err))
		return false
	}
	return true
}

// reply writes v with status, or the error response when err is set.
func (s *Server) reply(c *gin.Context, status int, v any, err error) {
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(status, v)
}
