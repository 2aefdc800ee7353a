// Package quarantine binds the quarantine management endpoints.
package quarantine

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/scanguard/internal/api/errs"
	appquarantine "github.com/ahrav/scanguard/internal/app/quarantine"
	domain "github.com/ahrav/scanguard/internal/domain/quarantine"
	"github.com/ahrav/scanguard/pkg/common/logger"
	"github.com/ahrav/scanguard/pkg/web"
)

// Service manages quarantined files.
type Service interface {
	List(ctx context.Context) ([]*domain.Record, error)
	Restore(ctx context.Context, id uuid.UUID) (*domain.Record, error)
	Purge(ctx context.Context, id uuid.UUID) error
	Reconcile(ctx context.Context) (*domain.ReconcileReport, error)
}

// Config contains the dependencies needed by the quarantine handlers.
type Config struct {
	Log     *logger.Logger
	Service Service
}

// Routes binds all the quarantine endpoints.
func Routes(app *web.App, cfg Config) {
	const version = "v1"

	app.HandlerFunc(http.MethodGet, version, "/quarantine", list(cfg))
	app.HandlerFunc(http.MethodPost, version, "/quarantine/reconcile", reconcile(cfg))
	app.HandlerFunc(http.MethodPost, version, "/quarantine/{id}/restore", restore(cfg))
	app.HandlerFunc(http.MethodDelete, version, "/quarantine/{id}", purge(cfg))
}

type record struct {
	ID            string     `json:"id"`
	OriginalPath  string     `json:"original_path"`
	StoragePath   string     `json:"storage_path"`
	FileName      string     `json:"file_name"`
	ThreatLevel   string     `json:"threat_level"`
	ThreatNames   []string   `json:"threat_names"`
	Digest        string     `json:"digest,omitempty"`
	QuarantinedAt time.Time  `json:"quarantined_at"`
	Restored      bool       `json:"restored"`
	RestoredAt    *time.Time `json:"restored_at,omitempty"`
}

func toRecord(r *domain.Record) record {
	return record{
		ID:            r.ID.String(),
		OriginalPath:  r.OriginalPath,
		StoragePath:   r.StoragePath,
		FileName:      r.FileName,
		ThreatLevel:   r.ThreatLevel.String(),
		ThreatNames:   r.ThreatNames,
		Digest:        r.Digest,
		QuarantinedAt: r.QuarantinedAt,
		Restored:      r.Restored,
		RestoredAt:    r.RestoredAt,
	}
}

type listResponse struct {
	Records []record `json:"records"`
	Total   int      `json:"total"`
}

func list(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		recs, err := cfg.Service.List(ctx)
		if err != nil {
			return mapError(err)
		}

		resp := listResponse{Records: make([]record, 0, len(recs)), Total: len(recs)}
		for _, rec := range recs {
			resp.Records = append(resp.Records, toRecord(rec))
		}
		return web.JSON{Value: resp}
	}
}

func restore(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		id, err := uuid.Parse(web.Param(r, "id"))
		if err != nil {
			return errs.Newf(errs.InvalidArgument, "invalid quarantine id: %v", err)
		}

		rec, err := cfg.Service.Restore(ctx, id)
		if err != nil {
			return mapError(err)
		}
		return web.JSON{Value: toRecord(rec)}
	}
}

func purge(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		id, err := uuid.Parse(web.Param(r, "id"))
		if err != nil {
			return errs.Newf(errs.InvalidArgument, "invalid quarantine id: %v", err)
		}

		if err := cfg.Service.Purge(ctx, id); err != nil {
			return mapError(err)
		}
		return nil
	}
}

type issue struct {
	Type     string `json:"type"`
	RecordID string `json:"record_id,omitempty"`
	Path     string `json:"path"`
}

type reconcileResponse struct {
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    time.Time      `json:"completed_at"`
	FilesChecked   int            `json:"files_checked"`
	RecordsChecked int            `json:"records_checked"`
	Summary        map[string]int `json:"summary"`
	Issues         []issue        `json:"issues"`
}

func reconcile(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		report, err := cfg.Service.Reconcile(ctx)
		if err != nil {
			return mapError(err)
		}

		resp := reconcileResponse{
			StartedAt:      report.StartedAt,
			CompletedAt:    report.CompletedAt,
			FilesChecked:   report.FilesChecked,
			RecordsChecked: report.RecordsChecked,
			Summary: map[string]int{
				string(domain.IssueOrphanedFile):  report.Count(domain.IssueOrphanedFile),
				string(domain.IssueMissingFile):   report.Count(domain.IssueMissingFile),
				string(domain.IssueStrayRestored): report.Count(domain.IssueStrayRestored),
			},
			Issues: make([]issue, 0, len(report.Issues)),
		}
		for _, i := range report.Issues {
			out := issue{Type: string(i.Type), Path: i.Path}
			if i.RecordID != nil {
				out.RecordID = i.RecordID.String()
			}
			resp.Issues = append(resp.Issues, out)
		}
		return web.JSON{Value: resp}
	}
}

func mapError(err error) *errs.Error {
	var inconsistent *domain.InconsistentStateError
	switch {
	case errors.As(err, &inconsistent):
		return errs.New(errs.Internal, err).WithReason(inconsistent.Reason())
	case errors.Is(err, domain.ErrNotFound):
		return errs.New(errs.NotFound, err)
	case errors.Is(err, domain.ErrAlreadyRestored), errors.Is(err, domain.ErrDestinationExists):
		return errs.New(errs.Conflict, err)
	case errors.Is(err, domain.ErrFileMissing):
		return errs.New(errs.Gone, err)
	case errors.Is(err, appquarantine.ErrReconcileInProgress):
		return errs.New(errs.Conflict, err)
	default:
		return errs.New(errs.Internal, err)
	}
}
