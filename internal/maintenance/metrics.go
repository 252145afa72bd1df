package maintenance

import "github.com/prometheus/client_golang/prometheus"

var (
	retentionRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polochat_snapshot_retention_runs_total",
			Help: "Total number of snapshot retention runs by status.",
		},
		[]string{"status"},
	)
	gcObjectsDeletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "polochat_snapshot_gc_objects_deleted_total",
			Help: "Total number of snapshot objects deleted by retention runs.",
		},
	)
	integrityRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polochat_snapshot_integrity_runs_total",
			Help: "Total number of snapshot integrity check runs by status.",
		},
		[]string{"status"},
	)
	integrityFilesCheckedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "polochat_snapshot_integrity_files_checked_total",
			Help: "Total number of snapshot table files checked by integrity validation.",
		},
	)
	integrityMissingFilesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "polochat_snapshot_integrity_missing_files_total",
			Help: "Total number of missing snapshot files detected by integrity validation.",
		},
	)
	integrityMismatchFilesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "polochat_snapshot_integrity_mismatch_files_total",
			Help: "Total number of snapshot files whose size or row count differs from the manifest.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		retentionRunsTotal,
		gcObjectsDeletedTotal,
		integrityRunsTotal,
		integrityFilesCheckedTotal,
		integrityMissingFilesTotal,
		integrityMismatchFilesTotal,
	)
}
