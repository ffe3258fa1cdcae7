package work

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dowork_tasks_queued_total",
		Help: "Total number of tasks enqueued",
	})
	taskAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dowork_task_attempts_total",
		Help: "Total number of task attempts",
	})
	tasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dowork_tasks_completed_total",
		Help: "Total number of tasks completed successfully",
	})
	tasksFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dowork_tasks_failed_total",
		Help: "Total number of tasks which failed permanently",
	})
	tasksCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dowork_tasks_cancelled_total",
		Help: "Total number of tasks dropped because their queue was closed",
	})
	workerSpawns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dowork_worker_spawns_total",
		Help: "Total number of worker threads spawned",
	})
	workersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dowork_workers_active",
		Help: "Number of worker threads currently driving a queue",
	})
	bootstraps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dowork_bootstraps_total",
		Help: "Total number of executor bootstraps by kind",
	}, []string{"kind"})
)
