// Package health reports fleet and queue health from liveness signals and
// configuration checks.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/nickborrello/baystate-coordinator/internal/cache"
	"github.com/nickborrello/baystate-coordinator/internal/config"
	"github.com/nickborrello/baystate-coordinator/internal/dispatch/workflow"
	"github.com/nickborrello/baystate-coordinator/internal/store"
)

const (
	StatusOK      = "ok"
	StatusWarning = "warning"
	StatusError   = "error"
)

// CheckResult is one evaluated health check.
type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Checker evaluates every check independently so an operator sees the full
// picture in one call; no failing check short-circuits the rest.
type Checker struct {
	store     store.Store
	cache     cache.Cache
	trigger   workflow.Trigger
	scheduler config.SchedulerConfig
	dispatch  config.DispatchConfig
}

// New creates a Checker. trigger may be nil in pull mode.
func New(s store.Store, c cache.Cache, trigger workflow.Trigger, schedCfg config.SchedulerConfig, dispCfg config.DispatchConfig) *Checker {
	return &Checker{store: s, cache: c, trigger: trigger, scheduler: schedCfg, dispatch: dispCfg}
}

// Check runs all health checks and returns their tagged results.
func (c *Checker) Check(ctx context.Context) []CheckResult {
	results := []CheckResult{
		c.checkDatabase(ctx),
		c.checkCache(ctx),
		c.checkDispatch(ctx),
		c.checkRunners(ctx),
		c.checkCredentials(ctx),
		c.checkQueueDepth(ctx),
	}
	return results
}

// Healthy reports whether no check is in error. Warnings do not fail a
// deployment.
func Healthy(results []CheckResult) bool {
	for _, r := range results {
		if r.Status == StatusError {
			return false
		}
	}
	return true
}

func (c *Checker) checkDatabase(ctx context.Context) CheckResult {
	if err := c.store.Ping(ctx); err != nil {
		return CheckResult{Name: "database", Status: StatusError,
			Message: fmt.Sprintf("database unreachable: %v", err)}
	}
	return CheckResult{Name: "database", Status: StatusOK, Message: "database reachable"}
}

func (c *Checker) checkCache(ctx context.Context) CheckResult {
	if err := c.cache.Ping(ctx); err != nil {
		// Rate limiting fails open, so a cache outage degrades rather than
		// breaks the coordinator.
		return CheckResult{Name: "cache", Status: StatusWarning,
			Message: fmt.Sprintf("redis unreachable: %v", err)}
	}
	return CheckResult{Name: "cache", Status: StatusOK, Message: "redis reachable"}
}

func (c *Checker) checkDispatch(ctx context.Context) CheckResult {
	if c.dispatch.Mode == config.DispatchModePull {
		return CheckResult{Name: "dispatch", Status: StatusOK,
			Message: "pull mode: runners poll for work"}
	}
	if c.dispatch.Token == "" || c.dispatch.Repository == "" {
		return CheckResult{Name: "dispatch", Status: StatusError,
			Message: "push mode requires DISPATCH_TOKEN and DISPATCH_REPOSITORY"}
	}
	if c.trigger != nil {
		if err := c.trigger.Ready(ctx); err != nil {
			return CheckResult{Name: "dispatch", Status: StatusError,
				Message: fmt.Sprintf("workflow trigger not ready: %v", err)}
		}
	}
	return CheckResult{Name: "dispatch", Status: StatusOK,
		Message: fmt.Sprintf("push mode: workflow %s on %s", c.dispatch.WorkflowRef, c.dispatch.Repository)}
}

func (c *Checker) checkRunners(ctx context.Context) CheckResult {
	since := time.Now().UTC().Add(-c.scheduler.RunnerLiveness)
	n, err := c.store.CountLiveRunners(ctx, since)
	if err != nil {
		return CheckResult{Name: "runners", Status: StatusError,
			Message: fmt.Sprintf("count runners: %v", err)}
	}
	if n == 0 {
		return CheckResult{Name: "runners", Status: StatusWarning,
			Message: fmt.Sprintf("no runners seen within %s", c.scheduler.RunnerLiveness)}
	}
	return CheckResult{Name: "runners", Status: StatusOK,
		Message: fmt.Sprintf("%d runners seen within %s", n, c.scheduler.RunnerLiveness)}
}

func (c *Checker) checkCredentials(ctx context.Context) CheckResult {
	n, err := c.store.CountActiveCredentials(ctx)
	if err != nil {
		return CheckResult{Name: "credentials", Status: StatusError,
			Message: fmt.Sprintf("count credentials: %v", err)}
	}
	if n == 0 {
		return CheckResult{Name: "credentials", Status: StatusWarning,
			Message: "no active credentials: no runner can authenticate"}
	}
	return CheckResult{Name: "credentials", Status: StatusOK,
		Message: fmt.Sprintf("%d active credentials", n)}
}

func (c *Checker) checkQueueDepth(ctx context.Context) CheckResult {
	chunks, err := c.store.CountPendingChunks(ctx)
	if err != nil {
		return CheckResult{Name: "queue", Status: StatusError,
			Message: fmt.Sprintf("count pending chunks: %v", err)}
	}
	jobs, err := c.store.CountPendingJobs(ctx)
	if err != nil {
		return CheckResult{Name: "queue", Status: StatusError,
			Message: fmt.Sprintf("count pending jobs: %v", err)}
	}

	depth := chunks + jobs
	if depth > c.scheduler.QueueWarnDepth {
		return CheckResult{Name: "queue", Status: StatusWarning,
			Message: fmt.Sprintf("queue backing up: %d pending (threshold %d)", depth, c.scheduler.QueueWarnDepth)}
	}
	return CheckResult{Name: "queue", Status: StatusOK,
		Message: fmt.Sprintf("%d pending jobs, %d pending chunks", jobs, chunks)}
}
