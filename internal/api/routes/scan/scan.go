// Package scan binds the scan job endpoints.
package scan

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/scanguard/internal/api/errs"
	"github.com/ahrav/scanguard/internal/app/scanning"
	domain "github.com/ahrav/scanguard/internal/domain/scanning"
	"github.com/ahrav/scanguard/pkg/common/logger"
	"github.com/ahrav/scanguard/pkg/web"
)

// Starter launches scan jobs.
type Starter interface {
	Start(ctx context.Context, req scanning.StartRequest) (*scanning.Handle, error)
}

// Reader answers job queries.
type Reader interface {
	Status(ctx context.Context, jobID uuid.UUID) (scanning.JobStatusView, error)
	Results(ctx context.Context, jobID uuid.UUID, skip, limit int) ([]domain.FileResult, error)
	History(ctx context.Context, limit int) ([]domain.JobHistory, error)
}

// RequestMetrics counts scan requests.
type RequestMetrics interface {
	IncScanRequestsTotal(ctx context.Context)
	IncScanRequestErrors(ctx context.Context, reason string)
}

// Config contains the dependencies needed by the scan handlers.
type Config struct {
	Log      *logger.Logger
	Starter  Starter
	Registry Reader
	Metrics  RequestMetrics
}

// Routes binds all the scan endpoints.
func Routes(app *web.App, cfg Config) {
	const version = "v1"

	app.HandlerFunc(http.MethodPost, version, "/scans", start(cfg))
	app.HandlerFunc(http.MethodGet, version, "/scans/history", history(cfg))
	app.HandlerFunc(http.MethodGet, version, "/scans/{id}", status(cfg))
	app.HandlerFunc(http.MethodGet, version, "/scans/{id}/results", results(cfg))
}

type startRequest struct {
	Directory string `json:"directory" validate:"required"`
	Mode      string `json:"mode,omitempty" validate:"omitempty,oneof=quick full custom"`
}

type startResponse struct {
	JobID     string `json:"job_id"`
	Status    string `json:"status"`
	Directory string `json:"directory"`
	Mode      string `json:"mode"`
}

func start(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		if cfg.Metrics != nil {
			cfg.Metrics.IncScanRequestsTotal(ctx)
		}
		fail := func(reason string, e *errs.Error) web.Encoder {
			if cfg.Metrics != nil {
				cfg.Metrics.IncScanRequestErrors(ctx, reason)
			}
			return e
		}

		var req startRequest
		if err := web.Decode(r, &req); err != nil {
			return fail("decode", errs.New(errs.InvalidArgument, err))
		}
		if err := errs.Check(req); err != nil {
			return fail("validation", errs.New(errs.InvalidArgument, err))
		}

		mode, err := domain.ParseScanMode(req.Mode)
		if err != nil {
			return fail("validation", errs.New(errs.InvalidArgument, err))
		}

		h, err := cfg.Starter.Start(ctx, scanning.StartRequest{Directory: req.Directory, Mode: mode})
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrInvalidInput):
			return fail("invalid_directory", errs.New(errs.InvalidArgument, err))
		case errors.Is(err, scanning.ErrShuttingDown):
			return fail("shutting_down", errs.New(errs.Unavailable, err))
		default:
			return fail("internal", errs.New(errs.Internal, err))
		}

		return web.JSON{Status: http.StatusAccepted, Value: startResponse{
			JobID:     h.JobID().String(),
			Status:    domain.JobStatusInProgress.String(),
			Directory: req.Directory,
			Mode:      mode.String(),
		}}
	}
}

type statusResponse struct {
	JobID         string     `json:"job_id"`
	Directory     string     `json:"directory"`
	Mode          string     `json:"mode"`
	Status        string     `json:"status"`
	Progress      string     `json:"progress"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	FilesScanned  int        `json:"files_scanned"`
	FilesInfected int        `json:"files_infected"`
	TotalFiles    int        `json:"total_files"`
	InfectedFiles int        `json:"infected_files"`
	CleanFiles    int        `json:"clean_files"`
	ErrorFiles    int        `json:"error_files"`
}

func status(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		jobID, perr := parseID(r)
		if perr != nil {
			return perr
		}

		v, err := cfg.Registry.Status(ctx, jobID)
		if err != nil {
			return mapError(err)
		}

		return web.JSON{Value: statusResponse{
			JobID:         v.JobID.String(),
			Directory:     v.Directory,
			Mode:          v.Mode.String(),
			Status:        v.Status.String(),
			Progress:      v.Progress,
			StartedAt:     v.StartedAt,
			CompletedAt:   v.CompletedAt,
			FilesScanned:  v.FilesScanned,
			FilesInfected: v.FilesInfected,
			TotalFiles:    v.TotalFiles,
			InfectedFiles: v.Infected,
			CleanFiles:    v.Clean,
			ErrorFiles:    v.Errors,
		}}
	}
}

type fileResult struct {
	Path           string    `json:"path"`
	Name           string    `json:"name"`
	Size           int64     `json:"size"`
	Digest         string    `json:"digest,omitempty"`
	Status         string    `json:"status"`
	ThreatLevel    string    `json:"threat_level"`
	ThreatNames    []string  `json:"threat_names"`
	DetectionCount int       `json:"detection_count"`
	TotalEngines   int       `json:"total_engines"`
	ScannedAt      time.Time `json:"scanned_at"`
	ErrorReason    string    `json:"error_reason,omitempty"`
}

type resultsResponse struct {
	JobID   string       `json:"job_id"`
	Skip    int          `json:"skip"`
	Limit   int          `json:"limit"`
	Results []fileResult `json:"results"`
}

func results(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		jobID, err := parseID(r)
		if err != nil {
			return err
		}
		skip, err := queryInt(r, "skip")
		if err != nil {
			return err
		}
		limit, err := queryInt(r, "limit")
		if err != nil {
			return err
		}

		res, rerr := cfg.Registry.Results(ctx, jobID, skip, limit)
		if rerr != nil {
			return mapError(rerr)
		}

		if limit == 0 {
			limit = scanning.DefaultResultsLimit
		}
		resp := resultsResponse{
			JobID:   jobID.String(),
			Skip:    skip,
			Limit:   min(limit, scanning.MaxResultsLimit),
			Results: make([]fileResult, 0, len(res)),
		}
		for _, fr := range res {
			resp.Results = append(resp.Results, fileResult{
				Path:           fr.Path,
				Name:           fr.Name,
				Size:           fr.Size,
				Digest:         fr.Digest,
				Status:         fr.Status.String(),
				ThreatLevel:    fr.ThreatLevel.String(),
				ThreatNames:    fr.ThreatNames,
				DetectionCount: fr.DetectionCount,
				TotalEngines:   fr.TotalEngines,
				ScannedAt:      fr.ScannedAt,
				ErrorReason:    fr.ErrorReason,
			})
		}
		return web.JSON{Value: resp}
	}
}

type historyEntry struct {
	JobID        string    `json:"job_id"`
	FilesScanned int       `json:"files_scanned"`
	Infected     int       `json:"infected"`
	LastScanned  time.Time `json:"last_scanned"`
}

type historyResponse struct {
	History []historyEntry `json:"history"`
}

func history(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		limit, err := queryInt(r, "limit")
		if err != nil {
			return err
		}

		rows, herr := cfg.Registry.History(ctx, limit)
		if herr != nil {
			return mapError(herr)
		}

		resp := historyResponse{History: make([]historyEntry, 0, len(rows))}
		for _, h := range rows {
			resp.History = append(resp.History, historyEntry{
				JobID:        h.JobID.String(),
				FilesScanned: h.FilesScanned,
				Infected:     h.Infected,
				LastScanned:  h.LastScanned,
			})
		}
		return web.JSON{Value: resp}
	}
}

func parseID(r *http.Request) (uuid.UUID, *errs.Error) {
	id, err := uuid.Parse(web.Param(r, "id"))
	if err != nil {
		return uuid.Nil, errs.Newf(errs.InvalidArgument, "invalid job id: %v", err)
	}
	return id, nil
}

func queryInt(r *http.Request, key string) (int, *errs.Error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errs.Newf(errs.InvalidArgument, "%s must be a non-negative integer", key)
	}
	return n, nil
}

func mapError(err error) *errs.Error {
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		return errs.New(errs.NotFound, err)
	case errors.Is(err, domain.ErrInvalidInput):
		return errs.New(errs.InvalidArgument, err)
	default:
		return errs.New(errs.Internal, fmt.Errorf("scan query: %w", err))
	}
}
