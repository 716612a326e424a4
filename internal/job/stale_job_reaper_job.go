package job

import "context"

type staleReaper interface {
	ReapStale(ctx context.Context) (int64, error)
}

type StaleJobReaperJob struct {
	worker staleReaper
}

func NewStaleJobReaperJob(worker staleReaper) *StaleJobReaperJob {
	return &StaleJobReaperJob{worker: worker}
}

func (j *StaleJobReaperJob) Name() string {
	return "stale_job_reaper"
}

func (j *StaleJobReaperJob) Run(ctx context.Context) error {
	if j.worker == nil {
		return nil
	}
	_, err := j.worker.ReapStale(ctx)
	return err
}
