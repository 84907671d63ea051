package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"quickdeploy/api/artifact"
	"quickdeploy/api/build"
	"quickdeploy/api/hub"
	"quickdeploy/api/lease"
	"quickdeploy/api/logging"
	"quickdeploy/api/metrics"
	"quickdeploy/api/model"
	"quickdeploy/api/source"
	"quickdeploy/api/storage"
	"quickdeploy/api/store"
	"quickdeploy/api/workspace"
)

var (
	ErrMissingCredential   = errors.New("missing GitHub token")
	ErrBucketNotConfigured = errors.New("S3 bucket not configured")
)

const msgUnexpected = "deployment failed: unexpected error"

// Users is the caller credential store.
type Users interface {
	Credential(ctx context.Context, userID string) (string, error)
	RecordDeployment(ctx context.Context, userID string, at time.Time) error
}

type Publisher interface {
	Publish(evt hub.Event)
}

// Pipeline deploys a repository to the website bucket. Events, Metrics
// and Lock are optional.
type Pipeline struct {
	Users      Users
	Fetcher    *source.Fetcher
	Builder    *build.Runner
	Workspaces *workspace.Manager
	Sync       *storage.Synchronizer
	Lock       lease.Locker
	Events     Publisher
	Metrics    *metrics.Metrics
	Bucket     string
	Region     string
	Logger     *slog.Logger
	Now        func() time.Time
}

// job is the state threaded through the phases of one deployment.
type job struct {
	req       model.DeployRequest
	ref       string
	log       *slog.Logger
	dir       string
	plan      model.BuildPlan
	root      string
	artifacts model.ArtifactSet
	release   func()
	url       string
}

type step struct {
	phase model.Phase
	fn    func(ctx context.Context, j *job) error
}

// Deploy runs one job to completion and always returns a terminal
// result. The job's workspace is removed before Deploy returns, whatever
// happened.
func (p *Pipeline) Deploy(ctx context.Context, callerID, repoRef string) (res model.Result) {
	j := &job{
		req: model.DeployRequest{JobID: uuid.NewString(), CallerID: callerID},
		ref: repoRef,
	}
	j.log = logging.ForJob(p.logger(), j.req.JobID, callerID, repoRef)
	ctx = logging.WithLogger(ctx, j.log)
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			j.log.Error("deployment panicked", "panic", r, "stack", string(debug.Stack()))
			res = model.Failed(msgUnexpected)
		}
		p.cleanup(j)
		p.finish(j, res, time.Since(started))
	}()

	steps := []step{
		{model.PhaseValidating, p.validate},
		{model.PhaseFetching, p.fetch},
		{model.PhaseBuilding, p.build},
		{model.PhaseListing, p.list},
		{model.PhaseClearing, p.clear},
		{model.PhaseUploading, p.upload},
		{model.PhaseFinalizing, p.finalize},
	}
	for _, s := range steps {
		p.enter(j, s.phase)
		start := time.Now()
		err := s.fn(ctx, j)
		if p.Metrics != nil {
			p.Metrics.ObservePhase(string(s.phase), time.Since(start))
		}
		if err != nil {
			j.log.Error("deployment failed", "phase", s.phase, "error", err)
			return model.Failed(err.Error())
		}
	}
	return model.Succeeded(j.url)
}

func (p *Pipeline) validate(ctx context.Context, j *job) error {
	cred, err := p.Users.Credential(ctx, j.req.CallerID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("load credential: %w", err)
	}
	if cred == "" {
		return ErrMissingCredential
	}
	repo, err := source.ParseRepo(j.ref)
	if err != nil {
		return err
	}
	if p.Bucket == "" {
		return ErrBucketNotConfigured
	}
	j.req.Credential = cred
	j.req.Repo = repo
	return nil
}

func (p *Pipeline) fetch(ctx context.Context, j *job) error {
	_, err := p.Fetcher.VerifyAndFetch(ctx, j.req.Repo, j.req.Credential, func() (string, error) {
		dir, err := p.Workspaces.Create()
		if err != nil {
			return "", err
		}
		j.dir = dir
		j.log.Debug("workspace created", "dir", dir)
		return dir, nil
	})
	return err
}

func (p *Pipeline) build(ctx context.Context, j *job) error {
	plan, err := build.Plan(j.dir)
	if err != nil {
		return err
	}
	j.plan = plan
	j.log.Info("build plan",
		"manifest", plan.HasManifest, "build_step", plan.HasBuildStep, "toolchain", plan.Toolchain)

	out := build.NewLineWriter(func(line string) {
		j.log.Debug("build output", "line", line)
		p.publish(j, hub.EventLog, line)
	})
	root, err := p.Builder.Execute(ctx, j.dir, plan, out)
	out.Flush()
	if err != nil {
		return err
	}
	j.root = root
	if rel, err := filepath.Rel(j.dir, root); err == nil {
		j.plan.OutputRoot = filepath.ToSlash(rel)
	}
	j.log.Info("build root", "output_root", j.plan.OutputRoot)
	return nil
}

func (p *Pipeline) list(ctx context.Context, j *job) error {
	set, err := artifact.List(j.root)
	if err != nil {
		return err
	}
	j.artifacts = set
	j.log.Info("artifacts listed", "files", len(set))
	return nil
}

// clear takes the target lease; upload gives it back.
func (p *Pipeline) clear(ctx context.Context, j *job) error {
	release, err := p.locker().Acquire(ctx, p.Bucket)
	if err != nil {
		return fmt.Errorf("lock bucket %s: %w", p.Bucket, err)
	}
	j.release = release

	n, err := p.Sync.Clear(ctx)
	if err != nil {
		return err
	}
	j.log.Info("bucket cleared", "bucket", p.Bucket, "deleted", n)
	return nil
}

func (p *Pipeline) upload(ctx context.Context, j *job) error {
	defer p.unlock(j)
	if err := p.Sync.SyncAll(ctx, j.artifacts); err != nil {
		return err
	}
	j.log.Info("artifacts uploaded", "bucket", p.Bucket, "files", len(j.artifacts))
	return nil
}

func (p *Pipeline) finalize(ctx context.Context, j *job) error {
	if err := p.Users.RecordDeployment(ctx, j.req.CallerID, p.now()); err != nil {
		return fmt.Errorf("update usage record: %w", err)
	}
	j.url = storage.WebsiteURL(p.Bucket, p.Region)
	return nil
}

func (p *Pipeline) cleanup(j *job) {
	p.unlock(j)
	if j.dir == "" {
		return
	}
	if err := p.Workspaces.Remove(j.dir); err != nil {
		j.log.Warn("workspace cleanup failed", "dir", j.dir, "error", err)
	}
}

func (p *Pipeline) unlock(j *job) {
	if j.release != nil {
		j.release()
		j.release = nil
	}
}

func (p *Pipeline) enter(j *job, phase model.Phase) {
	j.log.Info("phase", "phase", phase)
	p.publish(j, hub.EventStep, map[string]string{"phase": string(phase)})
}

func (p *Pipeline) finish(j *job, res model.Result, elapsed time.Duration) {
	phase, evt := model.PhaseDone, hub.EventCompleted
	if !res.Success {
		phase, evt = model.PhaseFailed, hub.EventFailed
	}
	j.log.Info("deployment finished", "phase", phase, "success", res.Success, "duration", elapsed)
	p.publish(j, evt, res)
	if p.Metrics != nil {
		p.Metrics.RecordOutcome(res.Success)
	}
}

func (p *Pipeline) publish(j *job, typ string, payload interface{}) {
	if p.Events == nil {
		return
	}
	p.Events.Publish(hub.Event{
		Type:     typ,
		JobID:    j.req.JobID,
		Repo:     j.ref,
		CallerID: j.req.CallerID,
		Payload:  payload,
	})
}

func (p *Pipeline) locker() lease.Locker {
	if p.Lock != nil {
		return p.Lock
	}
	return lease.None{}
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
