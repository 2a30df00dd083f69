package mesh

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// qef accumulates the hermite data of one cell: the edge crossings and the
// surface normals there.
type qef struct {
	points  []r3.Vector
	normals []r3.Vector
}

func (q *qef) add(p, n r3.Vector) {
	q.points = append(q.points, p)
	q.normals = append(q.normals, n)
}

func (q *qef) reset() {
	q.points = q.points[:0]
	q.normals = q.normals[:0]
}

// massPoint returns the mean of the crossings.
func (q *qef) massPoint() r3.Vector {
	var sum r3.Vector
	for _, p := range q.points {
		sum = sum.Add(p)
	}
	return sum.Mul(1 / float64(len(q.points)))
}

// solve minimizes sum((n_i . (x - p_i))^2) with a truncated pseudo-inverse
// about the mass point. Singular values below tolerance times the largest
// one are dropped, so unconstrained directions stay at the mass point.
// ok is false when no direction is constrained.
func (q *qef) solve(tolerance float64) (x r3.Vector, rank int, ok bool) {
	mp := q.massPoint()

	rows := 0
	for _, n := range q.normals {
		if n.Norm2() > 0 {
			rows++
		}
	}
	if rows == 0 {
		return mp, 0, false
	}

	a := mat.NewDense(rows, 3, nil)
	b := mat.NewVecDense(rows, nil)
	r := 0
	for i, n := range q.normals {
		if n.Norm2() == 0 {
			continue
		}
		a.Set(r, 0, n.X)
		a.Set(r, 1, n.Y)
		a.Set(r, 2, n.Z)
		b.SetVec(r, n.Dot(q.points[i].Sub(mp)))
		r++
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return mp, 0, false
	}
	values := svd.Values(nil)
	if len(values) == 0 || values[0] <= 0 {
		return mp, 0, false
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	// x = V * diag(1/s) * U^T * b, keeping only significant singular values.
	var utb mat.VecDense
	utb.MulVec(u.T(), b)
	cutoff := tolerance * values[0]
	for i, s := range values {
		if s > cutoff {
			utb.SetVec(i, utb.AtVec(i)/s)
			rank++
		} else {
			utb.SetVec(i, 0)
		}
	}
	var sol mat.VecDense
	sol.MulVec(&v, &utb)

	return mp.Add(r3.Vector{X: sol.AtVec(0), Y: sol.AtVec(1), Z: sol.AtVec(2)}), rank, true
}
