package engine

import (
	"context"

	"github.com/logflow/pmdash/internal/model"
	"github.com/logflow/pmdash/pkg/aggregate"
	lferrors "github.com/logflow/pmdash/pkg/errors"
)

// Native computes views in process with the aggregate package.
type Native struct{}

// NewNative returns the in-process engine.
func NewNative() *Native {
	return &Native{}
}

// Name implements Engine.
func (*Native) Name() string {
	return NameNative
}

// Aggregate implements Engine.
func (*Native) Aggregate(ctx context.Context, log *model.Log) (*aggregate.Views, error) {
	if err := ctx.Err(); err != nil {
		return nil, lferrors.Wrap(err, lferrors.CodeContextCanceled, "aggregate")
	}
	return aggregate.Compute(log), nil
}

// Close implements Engine.
func (*Native) Close() error {
	return nil
}
