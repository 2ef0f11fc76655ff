package model

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ridge is an L2-regularized least-squares estimator. The intercept is not
// penalized. Fitting solves the regularized normal equations directly, so
// the same rows and lambda always produce the same coefficients.
type ridge struct {
	lambda float64
	coef   *mat.VecDense // intercept first, then one weight per feature
}

func newRidge(lambda float64) *ridge {
	if lambda <= 0 {
		lambda = 1e-6 // keeps the normal equations positive definite
	}
	return &ridge{lambda: lambda}
}

// fit solves (AᵀA + λI)β = Aᵀy where A is rows augmented with a leading
// ones column for the intercept.
func (r *ridge) fit(rows [][]float64, targets []float64) error {
	n := len(rows)
	if n == 0 {
		return fmt.Errorf("%w: empty design matrix", ErrData)
	}
	d := len(rows[0]) + 1

	a := mat.NewDense(n, d, nil)
	y := mat.NewVecDense(n, nil)
	for i, row := range rows {
		if len(row)+1 != d {
			return fmt.Errorf("%w: row %d has %d features, want %d", ErrData, i, len(row), d-1)
		}
		a.Set(i, 0, 1)
		for j, v := range row {
			a.Set(i, j+1, v)
		}
		y.SetVec(i, targets[i])
	}

	var gram mat.Dense
	gram.Mul(a.T(), a)
	for j := 1; j < d; j++ { // skip the intercept
		gram.Set(j, j, gram.At(j, j)+r.lambda)
	}

	var aty mat.VecDense
	aty.MulVec(a.T(), y)

	coef := mat.NewVecDense(d, nil)
	if err := coef.SolveVec(&gram, &aty); err != nil {
		// mat.Condition signals an ill-conditioned system but the
		// solution is still computed and valid; only other errors mean
		// the solve actually failed.
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return fmt.Errorf("solve normal equations: %w", err)
		}
	}
	r.coef = coef
	return nil
}

// predict evaluates the fitted linear form on one feature vector.
func (r *ridge) predict(features []float64) (float64, error) {
	if r.coef == nil {
		return 0, ErrNotFitted
	}
	if len(features)+1 != r.coef.Len() {
		return 0, fmt.Errorf("%w: got %d features, want %d", ErrFeature, len(features), r.coef.Len()-1)
	}
	out := r.coef.AtVec(0)
	for j, v := range features {
		out += r.coef.AtVec(j+1) * v
	}
	return out, nil
}
