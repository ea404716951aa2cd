// Package cron schedules and executes CronPolicy checks.
package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"k8s.io/apimachinery/pkg/api/equality"
	"sigs.k8s.io/controller-runtime/pkg/log"

	checkpointv1 "github.com/devsisters/checkpoint/api/v1"
	"github.com/devsisters/checkpoint/internal/script"
)

// Snapshotter collects the resource slots of a policy in spec order.
type Snapshotter interface {
	Snapshot(ctx context.Context, slots []checkpointv1.CronPolicyResource) ([]any, error)
}

// Notifier delivers a policy's rendered output.
type Notifier interface {
	Notify(ctx context.Context, policy *checkpointv1.CronPolicy, output map[string]any) error
}

// Runner fires CronPolicies on their schedules. Firings of the same policy
// never overlap: a firing that finds the previous one still running is
// dropped, not queued.
type Runner struct {
	Snapshots Snapshotter
	Notifier  Notifier

	scheduler *cron.Cron

	mu       sync.Mutex
	ctx      context.Context
	policies map[string]*checkpointv1.CronPolicy
	entries  map[string]cron.EntryID
	inflight map[string]bool
}

// NewRunner builds a runner with an empty schedule. Policies are installed
// with Sync.
func NewRunner(snapshots Snapshotter, notifier Notifier) *Runner {
	return &Runner{
		Snapshots: snapshots,
		Notifier:  notifier,
		scheduler: cron.New(),
		ctx:       context.Background(),
		policies:  map[string]*checkpointv1.CronPolicy{},
		entries:   map[string]cron.EntryID{},
		inflight:  map[string]bool{},
	}
}

// Start runs the scheduler until ctx is cancelled. It implements
// manager.Runnable so the runner can be added to a controller manager.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	r.ctx = ctx
	r.mu.Unlock()

	r.scheduler.Start()
	<-ctx.Done()
	stopCtx := r.scheduler.Stop()
	// let in-flight jobs finish
	<-stopCtx.Done()
	return nil
}

// Sync reconciles the scheduled entries with the given policy set. Entries
// of removed policies are unscheduled, changed policies are rescheduled, and
// unchanged ones are left alone.
func (r *Runner) Sync(policies []checkpointv1.CronPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l := log.FromContext(r.ctx).WithName("cron")

	seen := make(map[string]struct{}, len(policies))
	for i := range policies {
		policy := policies[i]
		seen[policy.Name] = struct{}{}

		if cur, ok := r.policies[policy.Name]; ok {
			if equality.Semantic.DeepEqual(cur.Spec, policy.Spec) {
				continue
			}
			r.scheduler.Remove(r.entries[policy.Name])
			delete(r.entries, policy.Name)
		}

		name := policy.Name
		id, err := r.scheduler.AddFunc(policy.Spec.Schedule, func() { r.fire(name) })
		if err != nil {
			l.Error(err, "failed to schedule cron policy", "cronpolicy", policy.Name, "schedule", policy.Spec.Schedule)
			runs.WithLabelValues(policy.Name, "schedule_error").Inc()
			delete(r.policies, policy.Name)
			continue
		}
		r.entries[policy.Name] = id
		r.policies[policy.Name] = &policy
	}

	for name := range r.policies {
		if _, ok := seen[name]; ok {
			continue
		}
		if id, ok := r.entries[name]; ok {
			r.scheduler.Remove(id)
		}
		delete(r.entries, name)
		delete(r.policies, name)
	}
}

func (r *Runner) fire(name string) {
	r.mu.Lock()
	policy, ok := r.policies[name]
	if !ok {
		r.mu.Unlock()
		return
	}
	ctx := r.ctx
	if policy.Spec.Suspend {
		r.mu.Unlock()
		runs.WithLabelValues(name, "suspended").Inc()
		return
	}
	if r.inflight[name] {
		r.mu.Unlock()
		log.FromContext(ctx).Info("dropping overlapping cron policy firing", "cronpolicy", name)
		runs.WithLabelValues(name, "overlap_dropped").Inc()
		return
	}
	r.inflight[name] = true
	policy = policy.DeepCopy()
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.inflight, name)
		r.mu.Unlock()
	}()

	if err := r.RunOnce(ctx, policy); err != nil {
		log.FromContext(ctx).Error(err, "cron policy run failed", "cronpolicy", name)
		runs.WithLabelValues(name, "error").Inc()
		return
	}
	runs.WithLabelValues(name, "ok").Inc()
}

// RunOnce executes one firing of a policy: snapshot the resource slots,
// evaluate the script, and notify when the script stored non-empty output.
func (r *Runner) RunOnce(ctx context.Context, policy *checkpointv1.CronPolicy) error {
	timeout := script.DefaultCronTimeout
	if policy.Spec.TimeoutSeconds != nil {
		timeout = time.Duration(*policy.Spec.TimeoutSeconds) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resources, err := r.Snapshots.Snapshot(ctx, policy.Spec.Resources)
	if err != nil {
		return fmt.Errorf("failed to snapshot resources: %w", err)
	}

	res, err := script.Run(ctx, policy.Name, policy.Spec.Code, script.Invocation{
		Resources: resources,
		Timeout:   timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to evaluate policy code: %w", err)
	}

	// Empty or absent output suppresses notification.
	if len(res.Output) == 0 {
		return nil
	}

	if err := r.Notifier.Notify(ctx, policy, res.Output); err != nil {
		return fmt.Errorf("failed to notify: %w", err)
	}
	notifications.WithLabelValues(policy.Name).Inc()
	return nil
}
