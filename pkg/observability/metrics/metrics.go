package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	jobsQueued     atomic.Int64
	jobsRunning    atomic.Int64
	jobsSucceeded  atomic.Int64
	jobsFailed     atomic.Int64
	jobsStopped    atomic.Int64
	runsActive     atomic.Int64
	dispatchErrors atomic.Int64
	staleRefreshes atomic.Int64
)

func Init() {}

// ObserveJobCounts stores the lifecycle counts from the latest poll cycle.
func ObserveJobCounts(queued, running, succeeded, failed, stopped int) {
	jobsQueued.Store(int64(queued))
	jobsRunning.Store(int64(running))
	jobsSucceeded.Store(int64(succeeded))
	jobsFailed.Store(int64(failed))
	jobsStopped.Store(int64(stopped))
}

func ObserveActiveRuns(count int) {
	runsActive.Store(int64(count))
}

func IncDispatchError() {
	dispatchErrors.Add(1)
}

func IncStaleRefresh() {
	staleRefreshes.Add(1)
}

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP hypertune_jobs_queued Number of jobs awaiting dispatch as of the latest poll cycle.\n")
	fmt.Fprintf(w, "# TYPE hypertune_jobs_queued gauge\n")
	fmt.Fprintf(w, "hypertune_jobs_queued %d\n", jobsQueued.Load())

	fmt.Fprintf(w, "# HELP hypertune_jobs_running Number of jobs running on the remote executor as of the latest poll cycle.\n")
	fmt.Fprintf(w, "# TYPE hypertune_jobs_running gauge\n")
	fmt.Fprintf(w, "hypertune_jobs_running %d\n", jobsRunning.Load())

	fmt.Fprintf(w, "# HELP hypertune_jobs_succeeded Number of jobs reported succeeded as of the latest poll cycle.\n")
	fmt.Fprintf(w, "# TYPE hypertune_jobs_succeeded gauge\n")
	fmt.Fprintf(w, "hypertune_jobs_succeeded %d\n", jobsSucceeded.Load())

	fmt.Fprintf(w, "# HELP hypertune_jobs_failed Number of jobs reported failed as of the latest poll cycle.\n")
	fmt.Fprintf(w, "# TYPE hypertune_jobs_failed gauge\n")
	fmt.Fprintf(w, "hypertune_jobs_failed %d\n", jobsFailed.Load())

	fmt.Fprintf(w, "# HELP hypertune_jobs_stopped Number of jobs reported stopped as of the latest poll cycle.\n")
	fmt.Fprintf(w, "# TYPE hypertune_jobs_stopped gauge\n")
	fmt.Fprintf(w, "hypertune_jobs_stopped %d\n", jobsStopped.Load())

	fmt.Fprintf(w, "# HELP hypertune_runs_active Number of tuning runs tracked by this instance.\n")
	fmt.Fprintf(w, "# TYPE hypertune_runs_active gauge\n")
	fmt.Fprintf(w, "hypertune_runs_active %d\n", runsActive.Load())

	fmt.Fprintf(w, "# HELP hypertune_dispatch_errors_total Number of failed job dispatch attempts.\n")
	fmt.Fprintf(w, "# TYPE hypertune_dispatch_errors_total counter\n")
	fmt.Fprintf(w, "hypertune_dispatch_errors_total %d\n", dispatchErrors.Load())

	fmt.Fprintf(w, "# HELP hypertune_stale_refreshes_total Number of poll cycles where a job status refresh exhausted its retries.\n")
	fmt.Fprintf(w, "# TYPE hypertune_stale_refreshes_total counter\n")
	fmt.Fprintf(w, "hypertune_stale_refreshes_total %d\n", staleRefreshes.Load())
}
