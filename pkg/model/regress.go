package model

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Regressor is a model fitted on a design matrix.
type Regressor interface {
	Name() string
	Fit(x *mat.Dense, y []float64) error
	Predict(x *mat.Dense) []float64
}

var errNotFitted = errors.New("model not fitted")

// linearFit is the fitted state shared by the linear models.
type linearFit struct {
	coef      *mat.VecDense
	intercept float64
}

func (l *linearFit) predict(x *mat.Dense) []float64 {
	rows, _ := x.Dims()
	out := make([]float64, rows)
	if l.coef == nil {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	var p mat.VecDense
	p.MulVec(x, l.coef)
	for i := range out {
		out[i] = p.AtVec(i) + l.intercept
	}
	return out
}

// Coefficients returns the fitted coefficients and intercept.
func (l *linearFit) Coefficients() ([]float64, float64) {
	if l.coef == nil {
		return nil, 0
	}
	return mat.Col(nil, 0, l.coef), l.intercept
}

// LinearRegression is ordinary least squares with an intercept. Rank
// deficient designs get the minimum-norm solution.
type LinearRegression struct {
	linearFit
}

func (m *LinearRegression) Name() string { return "Linear Regression" }

func (m *LinearRegression) Fit(x *mat.Dense, y []float64) error {
	xc, yc, xMean, yMean, err := center(x, y)
	if err != nil {
		return err
	}
	coef, err := leastSquares(xc, yc)
	if err != nil {
		return err
	}
	m.coef = coef
	m.intercept = yMean - mat.Dot(xMean, coef)
	return nil
}

func (m *LinearRegression) Predict(x *mat.Dense) []float64 { return m.predict(x) }

// Ridge is least squares with an L2 penalty Alpha on the coefficients. The
// intercept is not penalised.
type Ridge struct {
	Alpha float64
	linearFit
}

func (m *Ridge) Name() string { return "Ridge" }

func (m *Ridge) Fit(x *mat.Dense, y []float64) error {
	if m.Alpha < 0 {
		return fmt.Errorf("ridge alpha must be non-negative (got %g)", m.Alpha)
	}
	xc, yc, xMean, yMean, err := center(x, y)
	if err != nil {
		return err
	}

	var coef *mat.VecDense
	if m.Alpha == 0 {
		coef, err = leastSquares(xc, yc)
	} else {
		coef, err = ridgeSolve(xc, yc, m.Alpha)
	}
	if err != nil {
		return err
	}
	m.coef = coef
	m.intercept = yMean - mat.Dot(xMean, coef)
	return nil
}

func (m *Ridge) Predict(x *mat.Dense) []float64 { return m.predict(x) }

// center subtracts the column means from x and the mean from y.
func center(x *mat.Dense, y []float64) (xc *mat.Dense, yc *mat.VecDense, xMean *mat.VecDense, yMean float64, err error) {
	rows, cols := x.Dims()
	if rows != len(y) {
		return nil, nil, nil, 0, fmt.Errorf("design has %d rows, target has %d", rows, len(y))
	}
	if rows == 0 || cols == 0 {
		return nil, nil, nil, 0, fmt.Errorf("empty design matrix (%dx%d)", rows, cols)
	}

	xMean = mat.NewVecDense(cols, nil)
	for j := 0; j < cols; j++ {
		var s float64
		for i := 0; i < rows; i++ {
			s += x.At(i, j)
		}
		xMean.SetVec(j, s/float64(rows))
	}
	xc = mat.NewDense(rows, cols, nil)
	xc.Apply(func(i, j int, v float64) float64 { return v - xMean.AtVec(j) }, x)

	for _, v := range y {
		yMean += v
	}
	yMean /= float64(rows)
	yc = mat.NewVecDense(rows, nil)
	for i, v := range y {
		yc.SetVec(i, v-yMean)
	}
	return xc, yc, xMean, yMean, nil
}

// leastSquares returns the minimum-norm solution of min |a·w - b|.
func leastSquares(a *mat.Dense, b *mat.VecDense) (*mat.VecDense, error) {
	rows, cols := a.Dims()
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, errors.New("singular value decomposition failed")
	}

	w := mat.NewVecDense(cols, nil)
	rcond := math.Nextafter(1, 2) - 1
	rcond *= float64(max(rows, cols))
	rank := svd.Rank(rcond)
	if rank == 0 {
		// All singular values vanish: a centered design with no variance.
		return w, nil
	}
	svd.SolveVecTo(w, b, rank)
	return w, nil
}

// ridgeSolve solves (aᵀa + alpha·I)·w = aᵀb.
func ridgeSolve(a *mat.Dense, b *mat.VecDense, alpha float64) (*mat.VecDense, error) {
	_, cols := a.Dims()
	gram := mat.NewSymDense(cols, nil)
	gram.SymOuterK(1, a.T())
	for i := 0; i < cols; i++ {
		gram.SetSym(i, i, gram.At(i, i)+alpha)
	}

	var rhs mat.VecDense
	rhs.MulVec(a.T(), b)

	var chol mat.Cholesky
	if !chol.Factorize(gram) {
		return nil, errors.New("ridge system is not positive definite")
	}
	w := mat.NewVecDense(cols, nil)
	if err := chol.SolveVecTo(w, &rhs); err != nil {
		return nil, fmt.Errorf("solve ridge system: %w", err)
	}
	return w, nil
}
