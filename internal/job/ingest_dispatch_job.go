package job

import (
	"context"
)

type jobRunner interface {
	RunOnce(ctx context.Context) (int, error)
}

type IngestDispatchJob struct {
	worker jobRunner
}

func NewIngestDispatchJob(worker jobRunner) *IngestDispatchJob {
	return &IngestDispatchJob{worker: worker}
}

func (j *IngestDispatchJob) Name() string {
	return "ingest_dispatch"
}

// Run drains due jobs batch by batch until none is left or ctx ends.
func (j *IngestDispatchJob) Run(ctx context.Context) error {
	if j.worker == nil {
		return nil
	}
	for ctx.Err() == nil {
		n, err := j.worker.RunOnce(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
	return nil
}
