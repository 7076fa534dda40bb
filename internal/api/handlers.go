package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"keepernest/internal/core"
	"keepernest/pkg/domain"
)

type mutationResponse struct {
	Asset    *domain.Asset    `json:"asset,omitempty"`
	Employee *domain.Employee `json:"employee,omitempty"`
	Warnings []violationBody  `json:"warnings,omitempty"`
}

func mustActor(c *gin.Context) domain.Actor {
	actor, _ := actorFrom(c)
	return actor
}

// --- auth ---

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *handlers) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	session, err := h.reg.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

func (h *handlers) changePassword(c *gin.Context) {
	var req passwordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.reg.ChangePassword(c.Request.Context(), mustActor(c), req.CurrentPassword, req.NewPassword); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) me(c *gin.Context) {
	actor := mustActor(c)
	employee, err := h.reg.GetEmployee(c.Request.Context(), actor, actor.EmployeeID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, employee)
}

type profileRequest struct {
	Name   string `json:"name" binding:"required"`
	Gender string `json:"gender"`
}

func (h *handlers) updateProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	employee, _, err := h.reg.UpdateProfile(c.Request.Context(), mustActor(c), req.Name, req.Gender)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, employee)
}

// --- assets ---

func (h *handlers) myAssets(c *gin.Context) {
	actor := mustActor(c)
	assets, err := h.reg.ListAssignedAssets(c.Request.Context(), actor, actor.EmployeeID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assets": assets})
}

func (h *handlers) availableAssets(c *gin.Context) {
	assets, err := h.reg.ListAvailableAssets(c.Request.Context(), mustActor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assets": assets})
}

func assetFilter(c *gin.Context) (domain.AssetFilter, error) {
	var f domain.AssetFilter
	if raw := c.Query("status"); raw != "" {
		status, ok := domain.ParseAssetStatus(raw)
		if !ok {
			return f, fmt.Errorf("unknown status %q", raw)
		}
		f.Status = status
	}
	if raw := c.Query("type"); raw != "" {
		f.AssetType = domain.AssetType(raw)
		if !f.AssetType.Valid() {
			return f, fmt.Errorf("unknown asset type %q", raw)
		}
	}
	f.AssignedTo = strings.TrimSpace(c.Query("assignedTo"))
	return f, nil
}

func (h *handlers) listAssets(c *gin.Context) {
	filter, err := assetFilter(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	assets, err := h.reg.ListAssets(c.Request.Context(), mustActor(c), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assets": assets})
}

func (h *handlers) getAsset(c *gin.Context) {
	detail, err := h.reg.GetAsset(c.Request.Context(), mustActor(c), c.Param("assetId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

type createAssetRequest struct {
	AssetID      string `json:"assetId" binding:"required"`
	AssetName    string `json:"assetName" binding:"required"`
	AssetType    string `json:"assetType" binding:"required"`
	Description  string `json:"description"`
	PurchaseDate string `json:"purchaseDate" binding:"required"`
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("purchaseDate %q: expected RFC 3339 or YYYY-MM-DD", raw)
	}
	return t, nil
}

func (h *handlers) createAsset(c *gin.Context) {
	var req createAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	purchased, err := parseDate(req.PurchaseDate)
	if err != nil {
		badRequest(c, err)
		return
	}
	asset, res, err := h.reg.CreateAsset(c.Request.Context(), mustActor(c), core.NewAsset{
		AssetID:      req.AssetID,
		AssetName:    req.AssetName,
		AssetType:    domain.AssetType(req.AssetType),
		Description:  req.Description,
		PurchaseDate: purchased,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, mutationResponse{Asset: &asset, Warnings: violations(res)})
}

type assignRequest struct {
	EmployeeID string `json:"employeeId" binding:"required"`
}

func (h *handlers) assignAsset(c *gin.Context) {
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	asset, res, err := h.reg.AssignAsset(c.Request.Context(), mustActor(c), c.Param("assetId"), req.EmployeeID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, mutationResponse{Asset: &asset, Warnings: violations(res)})
}

type transitionFunc func(Register, context.Context, domain.Actor, string) (domain.Asset, domain.Result, error)

// transition serves the parameterless lifecycle operations.
func (h *handlers) transition(fn transitionFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		asset, res, err := fn(h.reg, c.Request.Context(), mustActor(c), c.Param("assetId"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, mutationResponse{Asset: &asset, Warnings: violations(res)})
	}
}

func (h *handlers) removeAsset(c *gin.Context) {
	res, err := h.reg.RemoveAsset(c.Request.Context(), mustActor(c), c.Param("assetId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, mutationResponse{Warnings: violations(res)})
}

// --- employees ---

type createEmployeeRequest struct {
	EmployeeID string `json:"employeeId" binding:"required"`
	Name       string `json:"name" binding:"required"`
	Email      string `json:"email" binding:"required"`
	Gender     string `json:"gender"`
	Role       string `json:"role"`
}

func (h *handlers) createEmployee(c *gin.Context) {
	var req createEmployeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	employee, res, err := h.reg.CreateEmployee(c.Request.Context(), mustActor(c), core.NewEmployee{
		EmployeeID: req.EmployeeID,
		Name:       req.Name,
		Email:      req.Email,
		Gender:     req.Gender,
		Role:       domain.Role(strings.ToLower(strings.TrimSpace(req.Role))),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, mutationResponse{Employee: &employee, Warnings: violations(res)})
}

func (h *handlers) listEmployees(c *gin.Context) {
	filter := domain.EmployeeFilter{
		Role:   domain.Role(c.Query("role")),
		Status: domain.EmployeeStatus(c.Query("status")),
	}
	employees, err := h.reg.ListEmployees(c.Request.Context(), mustActor(c), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"employees": employees})
}

func (h *handlers) getEmployee(c *gin.Context) {
	employee, err := h.reg.GetEmployee(c.Request.Context(), mustActor(c), c.Param("employeeId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, employee)
}

func (h *handlers) deactivateEmployee(c *gin.Context) {
	employee, res, err := h.reg.DeactivateEmployee(c.Request.Context(), mustActor(c), c.Param("employeeId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, mutationResponse{Employee: &employee, Warnings: violations(res)})
}

func (h *handlers) removeEmployee(c *gin.Context) {
	res, err := h.reg.RemoveEmployee(c.Request.Context(), mustActor(c), c.Param("employeeId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, mutationResponse{Warnings: violations(res)})
}

// --- reporting ---

func (h *handlers) dashboard(c *gin.Context) {
	d, err := h.reg.Dashboard(c.Request.Context(), mustActor(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

var errExportDisabled = errors.New("register export is not configured")

func (h *handlers) exportAssets(c *gin.Context) {
	if h.exporter == nil {
		abortWith(c, http.StatusNotImplemented, "not_configured", errExportDisabled.Error())
		return
	}
	filter, err := assetFilter(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.exporter.Export(c.Request.Context(), mustActor(c), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}
