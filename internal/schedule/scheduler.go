package schedule

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type Scheduler interface {
	AddJob(job Job, spec string) error
	Start(ctx context.Context)
	Stop()
}

// CronScheduler runs named jobs on cron specs. A job never overlaps with
// itself: a tick that fires while the previous run is busy is skipped.
type CronScheduler struct {
	cron *cron.Cron
	jobs map[string]*scheduledJob
	ctx  atomic.Pointer[context.Context]
	// manual tracks runs started by RunNow, which cron does not see.
	manual sync.WaitGroup
}

type scheduledJob struct {
	job     Job
	spec    string
	running atomic.Bool
}

func NewCronScheduler() *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &CronScheduler{
		cron: cron.New(cron.WithParser(parser)),
		jobs: make(map[string]*scheduledJob),
	}
}

// AddJob accepts five field cron expressions and descriptors such as
// "@every 2s" or "@hourly". Job names must be unique.
func (c *CronScheduler) AddJob(job Job, spec string) error {
	name := job.Name()
	if _, ok := c.jobs[name]; ok {
		return fmt.Errorf("job %s already scheduled", name)
	}
	sj := &scheduledJob{job: job, spec: spec}
	if _, err := c.cron.AddFunc(spec, func() { c.run(sj) }); err != nil {
		return fmt.Errorf("schedule job %s with spec %q: %w", name, spec, err)
	}
	c.jobs[name] = sj
	logutil.GetLogger(context.Background()).Info("job scheduled", zap.String("job", name), zap.String("spec", spec))
	return nil
}

// Start begins firing jobs. ctx is handed to every run.
func (c *CronScheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.ctx.Store(&ctx)
	c.cron.Start()
}

// Stop waits for running jobs to return, including RunNow triggers.
func (c *CronScheduler) Stop() {
	<-c.cron.Stop().Done()
	c.manual.Wait()
}

// RunNow triggers a job once in the background, outside of its schedule.
// It reports false for an unknown name.
func (c *CronScheduler) RunNow(name string) bool {
	sj, ok := c.jobs[name]
	if !ok {
		return false
	}
	c.manual.Add(1)
	go func() {
		defer c.manual.Done()
		c.run(sj)
	}()
	return true
}

func (c *CronScheduler) context() context.Context {
	if ctx := c.ctx.Load(); ctx != nil {
		return *ctx
	}
	return context.Background()
}

func (c *CronScheduler) run(sj *scheduledJob) {
	ctx := c.context()
	logger := logutil.GetLogger(ctx).With(zap.String("job", sj.job.Name()), zap.String("spec", sj.spec))
	if !sj.running.CompareAndSwap(false, true) {
		logger.Info("job skipped: still running")
		return
	}
	defer sj.running.Store(false)

	start := time.Now()
	logger.Debug("job started")
	if err := sj.job.Run(ctx); err != nil {
		logger.Error("job failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return
	}
	logger.Info("job finished", zap.Duration("duration", time.Since(start)))
}
