package capability

import (
	"context"

	"github.com/Aidin1998/modelserver/internal/optimizer"
)

// DeploymentOptimizerModel exposes the genetic deployment search. It
// needs no training and is always loaded.
type DeploymentOptimizerModel struct {
	base
}

var _ Predictor[optimizer.Constraints, *optimizer.Result] = (*DeploymentOptimizerModel)(nil)

func NewDeploymentOptimizer() *DeploymentOptimizerModel {
	return &DeploymentOptimizerModel{base: newBase(DeploymentOptimizer, true)}
}

func (m *DeploymentOptimizerModel) Predict(ctx context.Context, c optimizer.Constraints) (*optimizer.Result, error) {
	return optimizer.Optimize(ctx, c)
}

// Fallback runs the same search, replacing invalid constraints with the
// defaults.
func (m *DeploymentOptimizerModel) Fallback(c optimizer.Constraints) *optimizer.Result {
	res, err := optimizer.Optimize(context.Background(), c)
	if err != nil {
		res, _ = optimizer.Optimize(context.Background(), optimizer.Constraints{})
	}
	return res
}

func (m *DeploymentOptimizerModel) Save(dir string) error { return m.saveStateless(dir) }
func (m *DeploymentOptimizerModel) Load(dir string) error { return m.loadStateless(dir) }
