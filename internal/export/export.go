// Package export writes the asset register to blob storage as CSV.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"time"

	"keepernest/internal/blob"
	"keepernest/internal/platform/logger"
	"keepernest/pkg/domain"
)

// Prefix is where register exports are written.
const Prefix = "exports/assets/"

var header = []string{
	"assetId", "assetName", "assetType", "status", "assignedTo",
	"purchaseDate", "expiredAt", "lastAssignedTo", "lastAssignDate", "revision",
}

// AssetLister is the read side of the service the exporter needs.
type AssetLister interface {
	ListAssets(ctx context.Context, actor domain.Actor, filter domain.AssetFilter) ([]domain.Asset, error)
}

// Result describes a written export.
type Result struct {
	Key  string    `json:"key"`
	Rows int       `json:"rows"`
	URL  string    `json:"url,omitempty"`
	At   time.Time `json:"createdAt"`
}

// Exporter renders the register and stores it.
type Exporter struct {
	assets AssetLister
	store  blob.Store
	log    *logger.Logger
	now    func() time.Time
	expiry time.Duration
}

// New builds an exporter. A nil log discards.
func New(assets AssetLister, store blob.Store, log *logger.Logger) *Exporter {
	if log == nil {
		log = logger.Nop()
	}
	return &Exporter{
		assets: assets,
		store:  store,
		log:    log.With("component", "export"),
		now:    time.Now,
		expiry: blob.DefaultURLExpiry,
	}
}

// Export lists the assets matching filter as actor and writes them under
// Prefix. The download URL is presigned when the blob driver supports it.
func (e *Exporter) Export(ctx context.Context, actor domain.Actor, filter domain.AssetFilter) (Result, error) {
	assets, err := e.assets.ListAssets(ctx, actor, filter)
	if err != nil {
		return Result{}, err
	}
	raw, err := Render(assets)
	if err != nil {
		return Result{}, err
	}
	at := e.now().UTC()
	key := Prefix + at.Format("20060102T150405.000Z") + ".csv"
	info, err := e.store.Put(ctx, key, bytes.NewReader(raw), blob.PutOptions{
		ContentType: "text/csv",
		Metadata:    map[string]string{"rows": strconv.Itoa(len(assets)), "actor": actor.EmployeeID},
	})
	if err != nil {
		return Result{}, fmt.Errorf("store export: %w", err)
	}
	res := Result{Key: info.Key, Rows: len(assets), URL: info.URL, At: at}
	url, err := e.store.PresignURL(ctx, key, blob.SignedURLOptions{Expiry: e.expiry})
	switch {
	case err == nil:
		res.URL = url
	case errors.Is(err, blob.ErrUnsupported):
	default:
		e.log.Warn("presign failed", "key", key, "error", err)
	}
	e.log.Info("register exported", "key", key, "rows", res.Rows, "actor", actor.EmployeeID)
	return res, nil
}

// Render encodes assets as CSV with a header row, one row per asset. The
// latest assignment comes from the head of the history queue.
func Render(assets []domain.Asset) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, a := range assets {
		var lastEmployee, lastDate string
		if history := domain.DecodeHistory(a.HistoryQueue); len(history) > 0 {
			lastEmployee = history[0].EmployeeID
			lastDate = history[0].AssignDate.UTC().Format(time.RFC3339)
		}
		row := []string{
			a.AssetID,
			a.AssetName,
			string(a.AssetType),
			string(a.Status),
			a.AssignedTo,
			formatDate(a.PurchaseDate),
			formatDate(a.ExpiredAt),
			lastEmployee,
			lastDate,
			strconv.FormatInt(a.Revision, 10),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
