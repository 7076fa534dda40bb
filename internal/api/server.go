// Package api exposes the asset register over HTTP with gin.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"keepernest/internal/core"
	"keepernest/internal/export"
	"keepernest/internal/platform/logger"
	"keepernest/pkg/domain"
)

// Register is the service surface the handlers call.
type Register interface {
	CreateAsset(ctx context.Context, actor domain.Actor, in core.NewAsset) (domain.Asset, domain.Result, error)
	GetAsset(ctx context.Context, actor domain.Actor, assetID string) (core.AssetDetail, error)
	ListAssets(ctx context.Context, actor domain.Actor, filter domain.AssetFilter) ([]domain.Asset, error)
	ListAvailableAssets(ctx context.Context, actor domain.Actor) ([]domain.Asset, error)
	ListAssignedAssets(ctx context.Context, actor domain.Actor, employeeID string) ([]domain.Asset, error)
	AssignAsset(ctx context.Context, actor domain.Actor, assetID, employeeID string) (domain.Asset, domain.Result, error)
	UnassignAsset(ctx context.Context, actor domain.Actor, assetID string) (domain.Asset, domain.Result, error)
	EnterMaintenance(ctx context.Context, actor domain.Actor, assetID string) (domain.Asset, domain.Result, error)
	ExitMaintenance(ctx context.Context, actor domain.Actor, assetID string) (domain.Asset, domain.Result, error)
	ReportDamage(ctx context.Context, actor domain.Actor, assetID string) (domain.Asset, domain.Result, error)
	ExpireAsset(ctx context.Context, actor domain.Actor, assetID string) (domain.Asset, domain.Result, error)
	RemoveAsset(ctx context.Context, actor domain.Actor, assetID string) (domain.Result, error)

	CreateEmployee(ctx context.Context, actor domain.Actor, in core.NewEmployee) (domain.Employee, domain.Result, error)
	GetEmployee(ctx context.Context, actor domain.Actor, employeeID string) (domain.Employee, error)
	ListEmployees(ctx context.Context, actor domain.Actor, filter domain.EmployeeFilter) ([]domain.Employee, error)
	DeactivateEmployee(ctx context.Context, actor domain.Actor, employeeID string) (domain.Employee, domain.Result, error)
	RemoveEmployee(ctx context.Context, actor domain.Actor, employeeID string) (domain.Result, error)
	ChangePassword(ctx context.Context, actor domain.Actor, current, next string) error
	UpdateProfile(ctx context.Context, actor domain.Actor, name, gender string) (domain.Employee, domain.Result, error)
	Authenticate(ctx context.Context, email, password string) (core.Session, error)
	ResolveSession(ctx context.Context, token string) (domain.Actor, error)
	Dashboard(ctx context.Context, actor domain.Actor) (core.Dashboard, error)
}

var _ Register = (*core.Service)(nil)

// Exporter writes register exports.
type Exporter interface {
	Export(ctx context.Context, actor domain.Actor, filter domain.AssetFilter) (export.Result, error)
}

// Deps wires the router.
type Deps struct {
	Register Register
	Exporter Exporter
	Log      *logger.Logger
	// Metrics serves /metrics; nil uses the default prometheus gatherer.
	Metrics http.Handler
	Version string
}

type handlers struct {
	reg      Register
	exporter Exporter
	log      *logger.Logger
	version  string
	started  time.Time
}

// NewRouter builds the gin engine with every route and middleware.
func NewRouter(d Deps) *gin.Engine {
	log := d.Log
	if log == nil {
		log = logger.Nop()
	}
	log = log.With("component", "http")
	metrics := d.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	h := &handlers{reg: d.Register, exporter: d.Exporter, log: log, version: d.Version, started: time.Now()}

	r := gin.New()
	r.Use(RequestLogger(log), Recovery(log))

	r.GET("/healthz", h.health)
	r.GET("/metrics", gin.WrapH(metrics))

	v1 := r.Group("/v1")
	v1.POST("/auth/login", h.login)

	session := v1.Group("")
	session.Use(RequireAuth(d.Register))
	session.PUT("/auth/password", h.changePassword)
	session.GET("/me", h.me)
	session.PUT("/me", h.updateProfile)
	session.GET("/me/assets", h.myAssets)
	session.GET("/assets-available", h.availableAssets)
	session.GET("/assets/:assetId", h.getAsset)

	admin := session.Group("")
	admin.Use(RequireAdmin())
	admin.GET("/assets", h.listAssets)
	admin.POST("/assets", h.createAsset)
	admin.DELETE("/assets/:assetId", h.removeAsset)
	admin.POST("/assets/:assetId/assign", h.assignAsset)
	admin.POST("/assets/:assetId/unassign", h.transition((Register).UnassignAsset))
	admin.POST("/assets/:assetId/maintenance", h.transition((Register).EnterMaintenance))
	admin.DELETE("/assets/:assetId/maintenance", h.transition((Register).ExitMaintenance))
	admin.POST("/assets/:assetId/damage", h.transition((Register).ReportDamage))
	admin.POST("/assets/:assetId/expire", h.transition((Register).ExpireAsset))
	admin.GET("/employees", h.listEmployees)
	admin.POST("/employees", h.createEmployee)
	admin.GET("/employees/:employeeId", h.getEmployee)
	admin.DELETE("/employees/:employeeId", h.removeEmployee)
	admin.POST("/employees/:employeeId/deactivate", h.deactivateEmployee)
	admin.GET("/dashboard", h.dashboard)
	admin.POST("/exports/assets", h.exportAssets)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorBody{Error: errorDetail{Code: "route_not_found", Message: "no such route"}})
	})
	return r
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": h.version,
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	})
}
