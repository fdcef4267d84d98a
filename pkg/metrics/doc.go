// Package metrics provides Prometheus instrumentation for portalguard.
//
// A Registry is built once at process startup and handed to the limiter,
// the hook dispatcher and the scheduler. There is no package-level default:
// tests pass a fresh prometheus.NewRegistry() so metric values never leak
// between cases.
//
// # Available Metrics
//
//   - portalguard_ratelimit_checks_total{policy,outcome}: outcome is one of
//     allowed, denied, blocked, skipped, fail_open, fail_closed
//   - portalguard_ratelimit_fail_open_total{policy,operation,mode}: checks decided
//     without the shared store; alert on this to detect store outages
//   - portalguard_ratelimit_blocks_total{policy}
//   - portalguard_ratelimit_check_duration_seconds{policy}
//   - portalguard_store_operation_duration_seconds{operation,status}
//   - portalguard_store_up
//   - portalguard_hooks_dispatched_total{policy}, portalguard_hooks_dropped_total{policy}
//   - portalguard_scheduler_tasks_executed_total{name}, ..._tasks_failed_total{name},
//     ..._task_duration_seconds{name}
//   - portalguard_workerpool_size{pool_name}, portalguard_workerpool_queued_tasks{pool_name}
//
// Expose them with promhttp:
//
//	reg := prometheus.NewRegistry()
//	m := metrics.NewRegistry(reg)
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
package metrics
