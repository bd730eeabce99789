package workers

import "context"

// JobID identifies a unit of work for logging and error reporting.
type JobID string

type JobDescriptor struct {
	ID       JobID
	Metadata map[string]any
}

// ExecutionFn is the work a Job performs, taking the job's argument and
// producing its result.
type ExecutionFn[T any, R any] func(ctx context.Context, args T) (R, error)

// Job pairs a unit of work with its descriptor and argument.
type Job[T any, R any] struct {
	Description JobDescriptor
	ExecFn      ExecutionFn[T, R]
	Args        T
}

// Result carries a job's outcome alongside its original position in the
// batch, so a driver fanning work across workers can reassemble output in
// input order regardless of completion order.
type Result[R any] struct {
	Index       int
	Value       R
	Err         error
	Description JobDescriptor
}

func (j Job[T, R]) execute(ctx context.Context, index int) Result[R] {
	value, err := j.ExecFn(ctx, j.Args)
	return Result[R]{Index: index, Value: value, Err: err, Description: j.Description}
}
