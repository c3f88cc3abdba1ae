package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/concertview/concertview/internal/api"
	"github.com/concertview/concertview/internal/catalog"
	"github.com/concertview/concertview/internal/config"
	"github.com/concertview/concertview/internal/db"
	"github.com/concertview/concertview/internal/render"
)

const maxErrorColumn = 48

// jobLister is satisfied by the job store and by a running server's API.
type jobLister interface {
	ListJobs(ctx context.Context, limit int) ([]*catalog.Job, error)
}

func newJobsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List recent render jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			list, err := listJobs(cmd.Context(), cfg, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No jobs.")
				return nil
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Job", "Kind", "Status", "Format", "Output", "Created", "Error"},
				jobRows(list, time.Now()),
				nil,
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of jobs to show")
	return cmd
}

// listJobs reads the store directly when no server holds the data dir,
// and asks the running server otherwise.
func listJobs(ctx context.Context, cfg *config.EnvConfig, limit int) ([]*catalog.Job, error) {
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	var src jobLister
	if locked {
		defer lock.Unlock()
		database, err := db.New(cfg.DBPath(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()
		src = catalog.NewRepository(database.Conn())
	} else {
		src = &apiJobLister{
			baseURL: "http://" + net.JoinHostPort(clientHost(cfg.Host()), strconv.Itoa(cfg.Port())),
			client:  &http.Client{Timeout: 10 * time.Second},
		}
	}
	return src.ListJobs(ctx, limit)
}

// clientHost maps a wildcard bind address to one a client can dial.
func clientHost(host string) string {
	switch host {
	case "", "0.0.0.0", "::":
		return "127.0.0.1"
	}
	return host
}

type apiJobLister struct {
	baseURL string
	client  *http.Client
}

func (a *apiJobLister) ListJobs(ctx context.Context, limit int) ([]*catalog.Job, error) {
	u := a.baseURL + "/api/jobs?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e api.ErrorResponse
		json.NewDecoder(resp.Body).Decode(&e)
		return nil, fmt.Errorf("query server: %s: %s", resp.Status, e.Error)
	}

	var body []api.JobResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode jobs: %w", err)
	}

	out := make([]*catalog.Job, len(body))
	for i, j := range body {
		created, _ := time.Parse(time.RFC3339, j.CreatedAt)
		out[i] = &catalog.Job{
			ID:             j.JobID,
			Kind:           j.Kind,
			Status:         j.Status,
			Format:         j.Format,
			OutputFilename: j.OutputFilename,
			Result:         j.Result,
			Error:          j.Error,
			CreatedAt:      created,
		}
	}
	return out, nil
}

func jobRows(list []*catalog.Job, now time.Time) [][]string {
	rows := make([][]string, len(list))
	for i, j := range list {
		created := ""
		if !j.CreatedAt.IsZero() {
			created = humanize.RelTime(j.CreatedAt, now, "ago", "from now")
		}
		rows[i] = []string{
			j.ID,
			j.Kind,
			j.Status,
			j.Format,
			j.OutputFilename,
			created,
			render.Truncate(j.Error, maxErrorColumn),
		}
	}
	return rows
}
