package services

import (
	"context"
	"time"

	"rag-chat/internal/models"
)

// callWithDeadline runs fn under timeout. A call still running at the deadline is
// abandoned and reported as a ProviderError for provider/op, even if fn ignores
// its context. A non-positive timeout runs fn directly.
func callWithDeadline[T any](
	ctx context.Context,
	timeout time.Duration,
	provider, op string,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := fn(ctx)
		done <- outcome{value: value, err: err}
	}()

	select {
	case out := <-done:
		return out.value, out.err
	case <-ctx.Done():
		select {
		case out := <-done:
			return out.value, out.err
		default:
		}
		var zero T
		return zero, models.NewProviderError(provider, op, ctx.Err())
	}
}

func callErrWithDeadline(ctx context.Context, timeout time.Duration, provider, op string, fn func(ctx context.Context) error) error {
	_, err := callWithDeadline(ctx, timeout, provider, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DeadlineIndex bounds every call to a vector index by the provider timeout
type DeadlineIndex struct {
	index    VectorIndex
	provider string
	timeout  time.Duration
}

// NewDeadlineIndex wraps index; provider names the store in timeout errors
func NewDeadlineIndex(index VectorIndex, provider string, timeout time.Duration) *DeadlineIndex {
	return &DeadlineIndex{index: index, provider: provider, timeout: timeout}
}

func (d *DeadlineIndex) EnsureIndex(ctx context.Context, indexSpec models.IndexSpec) error {
	return callErrWithDeadline(ctx, d.timeout, d.provider, "create index", func(ctx context.Context) error {
		return d.index.EnsureIndex(ctx, indexSpec)
	})
}

func (d *DeadlineIndex) Upsert(ctx context.Context, namespace string, vectors []models.EmbeddedVector) error {
	return callErrWithDeadline(ctx, d.timeout, d.provider, "upsert", func(ctx context.Context) error {
		return d.index.Upsert(ctx, namespace, vectors)
	})
}

func (d *DeadlineIndex) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]models.ScoredMatch, error) {
	return callWithDeadline(ctx, d.timeout, d.provider, "query", func(ctx context.Context) ([]models.ScoredMatch, error) {
		return d.index.Query(ctx, namespace, vector, topK)
	})
}

func (d *DeadlineIndex) DescribeStats(ctx context.Context, namespace string) (*models.IndexStats, error) {
	return callWithDeadline(ctx, d.timeout, d.provider, "describe stats", func(ctx context.Context) (*models.IndexStats, error) {
		return d.index.DescribeStats(ctx, namespace)
	})
}

func (d *DeadlineIndex) DeleteAll(ctx context.Context, namespace string) error {
	return callErrWithDeadline(ctx, d.timeout, d.provider, "delete all", func(ctx context.Context) error {
		return d.index.DeleteAll(ctx, namespace)
	})
}

// DeadlineDirectory bounds every directory call by the provider timeout
type DeadlineDirectory struct {
	directory Directory
	provider  string
	timeout   time.Duration
}

// NewDeadlineDirectory wraps directory; provider names it in timeout errors
func NewDeadlineDirectory(directory Directory, provider string, timeout time.Duration) *DeadlineDirectory {
	return &DeadlineDirectory{directory: directory, provider: provider, timeout: timeout}
}

func (d *DeadlineDirectory) Import(ctx context.Context, ops []models.ImportOperation) (models.ImportResult, error) {
	return callWithDeadline(ctx, d.timeout, d.provider, "import", func(ctx context.Context) (models.ImportResult, error) {
		return d.directory.Import(ctx, ops)
	})
}

func (d *DeadlineDirectory) CheckPermission(ctx context.Context, check models.PermissionCheck) (bool, error) {
	return callWithDeadline(ctx, d.timeout, d.provider, "check", func(ctx context.Context) (bool, error) {
		return d.directory.CheckPermission(ctx, check)
	})
}
