package core

import (
	"context"
	"fmt"

	"keepernest/pkg/domain"
)

const assetStateRuleName = "asset_state"

// AssetStateRule blocks asset writes that leave a document in an impossible
// state: unknown status or type, an assignedTo sentinel that disagrees with
// status, or a malformed or oversized history queue.
func AssetStateRule() domain.Rule {
	return assetStateRule{
		statuses: toSet(domain.StatusAvailable, domain.StatusAssigned, domain.StatusMaintenance, domain.StatusDamaged),
	}
}

type assetStateRule struct {
	statuses map[domain.AssetStatus]struct{}
}

func (assetStateRule) Name() string { return assetStateRuleName }

func (r assetStateRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityAsset || change.Action == domain.ActionDelete {
			continue
		}
		asset, ok := changedAsset(change.After)
		if !ok {
			continue
		}
		block := func(format string, args ...any) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     assetStateRuleName,
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("asset %s: ", asset.AssetID) + fmt.Sprintf(format, args...),
				Entity:   domain.EntityAsset,
				EntityID: asset.ID,
			})
		}
		if _, valid := r.statuses[asset.Status]; !valid {
			block("invalid status %q", asset.Status)
			continue
		}
		if !asset.AssetType.Valid() {
			block("invalid asset type %q", asset.AssetType)
		}
		if !asset.Consistent() {
			block("status %s inconsistent with assignedTo %q", asset.Status, asset.AssignedTo)
		}
		if len(asset.HistoryQueue) > domain.HistoryCapacity {
			block("history holds %d entries, limit %d", len(asset.HistoryQueue), domain.HistoryCapacity)
		}
		if before, ok := changedAsset(change.Before); ok && len(asset.HistoryQueue) > 0 {
			if !sameHead(before.HistoryQueue, asset.HistoryQueue) {
				if _, valid := domain.DecodeHistoryEntry(asset.HistoryQueue[0]); !valid {
					block("new history entry is malformed")
				}
			}
		}
	}
	return res, nil
}

func sameHead(before, after []string) bool {
	if len(before) == 0 || len(after) == 0 {
		return len(before) == len(after)
	}
	return before[0] == after[0]
}
