package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"keepernest/pkg/domain"
)

// NewAsset is the caller-supplied part of an asset record.
type NewAsset struct {
	AssetID      string
	AssetName    string
	AssetType    domain.AssetType
	Description  string
	PurchaseDate time.Time
}

// AssetDetail is an asset together with its decoded assignment history.
type AssetDetail struct {
	Asset   domain.Asset          `json:"asset"`
	History []domain.HistoryEntry `json:"history"`
}

// CreateAsset registers a new Available asset whose expiry boundary is the
// end of the current year.
func (s *Service) CreateAsset(ctx context.Context, actor domain.Actor, in NewAsset) (domain.Asset, domain.Result, error) {
	var (
		created domain.Asset
		res     domain.Result
	)
	err := s.run(ctx, "create_asset", actor, func(ctx context.Context) (string, error) {
		if err := actor.RequireAdmin("create asset"); err != nil {
			return in.AssetID, err
		}
		in.AssetID = strings.TrimSpace(in.AssetID)
		in.AssetName = strings.TrimSpace(in.AssetName)
		switch {
		case in.AssetID == "":
			return "", fmt.Errorf("assetId required: %w", domain.ErrValidation)
		case in.AssetName == "":
			return in.AssetID, fmt.Errorf("assetName required: %w", domain.ErrValidation)
		case !in.AssetType.Valid():
			return in.AssetID, fmt.Errorf("assetType %q unsupported: %w", in.AssetType, domain.ErrValidation)
		case in.PurchaseDate.IsZero():
			return in.AssetID, fmt.Errorf("purchaseDate required: %w", domain.ErrValidation)
		}
		now := s.now()
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreateAsset(domain.Asset{
				AssetID:      in.AssetID,
				AssetName:    in.AssetName,
				AssetType:    in.AssetType,
				Description:  in.Description,
				Status:       domain.StatusAvailable,
				AssignedTo:   domain.Unassigned,
				PurchaseDate: in.PurchaseDate.UTC(),
				ExpiredAt:    InitialExpiry(now),
				HistoryQueue: []string{},
			})
			return err
		})
		if err != nil {
			return in.AssetID, storeErr(err)
		}
		s.invalidate(ctx, AssetView(created.AssetID), ViewAssets, ViewAvailableAssets, ViewDashboard)
		return created.AssetID, nil
	})
	return created, res, err
}

// AssignAsset hands an Available asset to an active employee and records
// the assignment at the front of its history.
func (s *Service) AssignAsset(ctx context.Context, actor domain.Actor, assetID, employeeID string) (domain.Asset, domain.Result, error) {
	return s.transition(ctx, actor, transitionRequest{
		op:         "assign_asset",
		assetID:    assetID,
		kind:       OpAssign,
		employeeID: employeeID,
		precheck: func() error {
			employee, ok := s.store.GetEmployee(employeeID)
			if !ok {
				return fmt.Errorf("employee %s: %w", employeeID, domain.ErrNotFound)
			}
			if !employee.Active() {
				return fmt.Errorf("employee %s is inactive: %w", employeeID, domain.ErrValidation)
			}
			return nil
		},
	})
}

// UnassignAsset returns an Assigned asset to the pool.
func (s *Service) UnassignAsset(ctx context.Context, actor domain.Actor, assetID string) (domain.Asset, domain.Result, error) {
	return s.transition(ctx, actor, transitionRequest{op: "unassign_asset", assetID: assetID, kind: OpUnassign})
}

// EnterMaintenance moves an unassigned asset into maintenance.
func (s *Service) EnterMaintenance(ctx context.Context, actor domain.Actor, assetID string) (domain.Asset, domain.Result, error) {
	return s.transition(ctx, actor, transitionRequest{op: "enter_maintenance", assetID: assetID, kind: OpEnterMaintenance})
}

// ExitMaintenance makes an asset in maintenance Available again.
func (s *Service) ExitMaintenance(ctx context.Context, actor domain.Actor, assetID string) (domain.Asset, domain.Result, error) {
	return s.transition(ctx, actor, transitionRequest{op: "exit_maintenance", assetID: assetID, kind: OpExitMaintenance})
}

// ReportDamage marks an unassigned asset as Damaged.
func (s *Service) ReportDamage(ctx context.Context, actor domain.Actor, assetID string) (domain.Asset, domain.Result, error) {
	return s.transition(ctx, actor, transitionRequest{op: "report_damage", assetID: assetID, kind: OpReportDamage})
}

// ExpireAsset applies the annual expiry to an asset whose boundary has passed.
func (s *Service) ExpireAsset(ctx context.Context, actor domain.Actor, assetID string) (domain.Asset, domain.Result, error) {
	return s.transition(ctx, actor, transitionRequest{op: "expire_asset", assetID: assetID, kind: OpExpire})
}

// RemoveAsset deletes an asset that is not currently assigned.
func (s *Service) RemoveAsset(ctx context.Context, actor domain.Actor, assetID string) (domain.Result, error) {
	_, res, err := s.transition(ctx, actor, transitionRequest{op: "remove_asset", assetID: assetID, kind: OpRemove})
	return res, err
}

type transitionRequest struct {
	op         string
	assetID    string
	kind       OperationKind
	employeeID string
	// at overrides the decision time; zero uses the service clock.
	at       time.Time
	precheck func() error
}

// transition runs the read, decide, conditional-write cycle for one asset.
// A lost revision race re-reads the asset and decides again, so the loser of
// two concurrent writes sees the winner's state.
func (s *Service) transition(ctx context.Context, actor domain.Actor, req transitionRequest) (domain.Asset, domain.Result, error) {
	var (
		updated domain.Asset
		res     domain.Result
	)
	err := s.run(ctx, req.op, actor, func(ctx context.Context) (string, error) {
		if err := actor.RequireAdmin(req.op); err != nil {
			return req.assetID, err
		}
		if req.precheck != nil {
			if err := req.precheck(); err != nil {
				return req.assetID, err
			}
		}
		for attempt := 1; ; attempt++ {
			current, ok := s.store.FindAssetByKey(req.assetID)
			if !ok {
				return req.assetID, fmt.Errorf("asset %s: %w", req.assetID, domain.ErrNotFound)
			}
			at := req.at
			if at.IsZero() {
				at = s.now()
			}
			decision, err := Decide(current, Operation{Kind: req.kind, EmployeeID: req.employeeID, HistoryID: s.newID(), Now: at})
			if err != nil {
				return req.assetID, err
			}
			res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
				if decision.Delete {
					return tx.DeleteAsset(current.ID, current.Revision)
				}
				var err error
				updated, err = tx.UpdateAsset(current.ID, current.Revision, decision.Patch.Apply)
				return err
			})
			if errors.Is(err, domain.ErrConcurrentModification) && attempt < s.maxAttempts {
				s.logger.Debug("revision conflict, re-deciding", "op", req.op, "asset", req.assetID, "attempt", attempt)
				continue
			}
			if err != nil {
				return req.assetID, storeErr(err)
			}
			s.invalidate(ctx, decision.StaleViews...)
			return req.assetID, nil
		}
	})
	return updated, res, err
}

// SweepReport summarizes an expiry sweep.
type SweepReport struct {
	Expired []string          `json:"expired"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// SweepExpired expires every asset whose boundary is at or before now.
// Assets that fail are reported and do not stop the sweep.
func (s *Service) SweepExpired(ctx context.Context, actor domain.Actor, now time.Time) (SweepReport, error) {
	report := SweepReport{Expired: []string{}}
	err := s.run(ctx, "sweep_expired", actor, func(ctx context.Context) (string, error) {
		if err := actor.RequireAdmin("sweep expired"); err != nil {
			return "", err
		}
		for _, asset := range s.store.ListAssets(domain.AssetFilter{}) {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			if now.Before(asset.ExpiredAt) {
				continue
			}
			if _, _, err := s.transition(ctx, actor, transitionRequest{op: "expire_asset", assetID: asset.AssetID, kind: OpExpire, at: now}); err != nil {
				if errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrNotFound) {
					continue
				}
				if report.Failed == nil {
					report.Failed = make(map[string]string)
				}
				report.Failed[asset.AssetID] = err.Error()
				continue
			}
			report.Expired = append(report.Expired, asset.AssetID)
		}
		if len(report.Failed) > 0 {
			s.logger.Warn("expiry sweep incomplete", "expired", len(report.Expired), "failed", len(report.Failed))
		} else {
			s.logger.Info("expiry sweep finished", "expired", len(report.Expired))
		}
		return "", nil
	})
	return report, err
}

// GetAsset returns an asset by business key with its decoded history.
func (s *Service) GetAsset(ctx context.Context, actor domain.Actor, assetID string) (AssetDetail, error) {
	var detail AssetDetail
	err := s.run(ctx, "get_asset", actor, func(ctx context.Context) (string, error) {
		if err := actor.RequireSession("get asset"); err != nil {
			return assetID, err
		}
		cached := s.cacheGet(ctx, AssetView(assetID), "", &detail)
		if cached.hit {
			return assetID, s.authorizeAsset(actor, detail.Asset)
		}
		asset, ok := s.store.FindAssetByKey(assetID)
		if !ok {
			return assetID, fmt.Errorf("asset %s: %w", assetID, domain.ErrNotFound)
		}
		detail = AssetDetail{Asset: asset, History: domain.DecodeHistory(asset.HistoryQueue)}
		s.cacheSet(ctx, cached, detail)
		return assetID, s.authorizeAsset(actor, asset)
	})
	if err != nil {
		return AssetDetail{}, err
	}
	return detail, nil
}

// authorizeAsset lets employees read only the assets they hold.
func (s *Service) authorizeAsset(actor domain.Actor, asset domain.Asset) error {
	if actor.IsAdmin() || asset.AssignedTo == actor.EmployeeID {
		return nil
	}
	return fmt.Errorf("asset %s: %w", asset.AssetID, domain.ErrForbidden)
}

// ListAssets returns assets matching filter. Admin only.
func (s *Service) ListAssets(ctx context.Context, actor domain.Actor, filter domain.AssetFilter) ([]domain.Asset, error) {
	return s.listAssets(ctx, "list_assets", actor, ViewAssets, filter, func() error {
		return actor.RequireAdmin("list assets")
	})
}

// ListAvailableAssets returns the Available pool. Any session may call it.
func (s *Service) ListAvailableAssets(ctx context.Context, actor domain.Actor) ([]domain.Asset, error) {
	filter := domain.AssetFilter{Status: domain.StatusAvailable}
	return s.listAssets(ctx, "list_available_assets", actor, ViewAvailableAssets, filter, func() error {
		return actor.RequireSession("list available assets")
	})
}

// ListAssignedAssets returns the assets held by employeeID. Employees may
// only list their own.
func (s *Service) ListAssignedAssets(ctx context.Context, actor domain.Actor, employeeID string) ([]domain.Asset, error) {
	filter := domain.AssetFilter{Status: domain.StatusAssigned, AssignedTo: employeeID}
	return s.listAssets(ctx, "list_assigned_assets", actor, AssignedAssetsView(employeeID), filter, func() error {
		if err := actor.RequireSession("list assigned assets"); err != nil {
			return err
		}
		if !actor.IsAdmin() && actor.EmployeeID != employeeID {
			return fmt.Errorf("assets of %s: %w", employeeID, domain.ErrForbidden)
		}
		return nil
	})
}

func (s *Service) listAssets(ctx context.Context, op string, actor domain.Actor, view string, filter domain.AssetFilter, authorize func() error) ([]domain.Asset, error) {
	var out []domain.Asset
	err := s.run(ctx, op, actor, func(ctx context.Context) (string, error) {
		if err := authorize(); err != nil {
			return "", err
		}
		cached := s.cacheGet(ctx, view, filter.Key(), &out)
		if cached.hit {
			return "", nil
		}
		out = s.store.ListAssets(filter)
		s.cacheSet(ctx, cached, out)
		return "", nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// cacheRead is the outcome of a cache lookup. On a miss it remembers the
// generation observed so a value read from the store afterwards is only
// cached if no write invalidated the view in between.
type cacheRead struct {
	view      string
	qualifier string
	gen       uint64
	hit       bool
	failed    bool
}

// cacheGet must run before the store read whose result is passed to cacheSet.
func (s *Service) cacheGet(ctx context.Context, view, qualifier string, dst any) cacheRead {
	hit, gen, err := s.cache.Get(ctx, view, qualifier, dst)
	if err != nil {
		s.logger.Warn("cache read failed", "view", view, "error", err)
		return cacheRead{view: view, qualifier: qualifier, failed: true}
	}
	return cacheRead{view: view, qualifier: qualifier, gen: gen, hit: hit}
}

func (s *Service) cacheSet(ctx context.Context, read cacheRead, value any) {
	if read.failed {
		return
	}
	if err := s.cache.Set(ctx, read.view, read.qualifier, read.gen, value); err != nil {
		s.logger.Warn("cache write failed", "view", read.view, "error", err)
	}
}
