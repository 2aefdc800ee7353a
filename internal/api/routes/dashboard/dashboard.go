// Package dashboard binds the aggregate statistics endpoint.
package dashboard

import (
	"context"
	"net/http"
	"time"

	"github.com/ahrav/scanguard/internal/api/errs"
	"github.com/ahrav/scanguard/internal/app/scanning"
	"github.com/ahrav/scanguard/pkg/common/logger"
	"github.com/ahrav/scanguard/pkg/web"
)

// StatsProvider aggregates dashboard statistics.
type StatsProvider interface {
	Dashboard(ctx context.Context) (scanning.DashboardStats, error)
}

// Config contains the dependencies needed by the dashboard handlers.
type Config struct {
	Log   *logger.Logger
	Stats StatsProvider
}

// Routes binds the dashboard endpoints.
func Routes(app *web.App, cfg Config) {
	const version = "v1"

	app.HandlerFunc(http.MethodGet, version, "/dashboard/stats", stats(cfg))
}

type recentJob struct {
	JobID         string     `json:"job_id"`
	Directory     string     `json:"directory"`
	Mode          string     `json:"mode"`
	Status        string     `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	FilesScanned  int        `json:"files_scanned"`
	FilesInfected int        `json:"files_infected"`
}

type statsResponse struct {
	TotalScans       int         `json:"total_scans"`
	TotalFiles       int         `json:"total_files"`
	TotalInfected    int         `json:"total_infected"`
	QuarantinedFiles int         `json:"quarantined_files"`
	RecentActivity   []recentJob `json:"recent_activity"`
	LastUpdated      time.Time   `json:"last_updated"`
}

func stats(cfg Config) web.HandlerFunc {
	return func(ctx context.Context, r *http.Request) web.Encoder {
		s, err := cfg.Stats.Dashboard(ctx)
		if err != nil {
			return errs.New(errs.Internal, err)
		}

		resp := statsResponse{
			TotalScans:       s.TotalJobs,
			TotalFiles:       s.TotalFiles,
			TotalInfected:    s.TotalInfected,
			QuarantinedFiles: s.QuarantineActive,
			RecentActivity:   make([]recentJob, 0, len(s.RecentJobs)),
			LastUpdated:      s.LastUpdated,
		}
		for _, j := range s.RecentJobs {
			resp.RecentActivity = append(resp.RecentActivity, recentJob{
				JobID:         j.JobID.String(),
				Directory:     j.Directory,
				Mode:          j.Mode.String(),
				Status:        j.Status.String(),
				StartedAt:     j.StartedAt,
				CompletedAt:   j.CompletedAt,
				FilesScanned:  j.FilesScanned,
				FilesInfected: j.FilesInfected,
			})
		}
		return web.JSON{Value: resp}
	}
}
