package split

import (
	"fmt"
	"math/rand"
)

// Fold is one train/validation partition of sample indices [0, n).
type Fold struct {
	Train []int
	Val   []int
}

// Strategy produces the folds used to fit leave-part-out estimator copies.
type Strategy interface {
	Splits(n int) ([]Fold, error)
}

// KFold splits samples into K consecutive folds, optionally shuffled with a fixed seed.
type KFold struct {
	K       int
	Shuffle bool
	Seed    int64
}

func (k KFold) Splits(n int) ([]Fold, error) {
	if k.K < 2 {
		return nil, fmt.Errorf("k-fold requires at least 2 splits, got %d", k.K)
	}
	if k.K > n {
		return nil, fmt.Errorf("cannot have number of splits n_splits=%d greater than the number of samples %d", k.K, n)
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	if k.Shuffle {
		rng := rand.New(rand.NewSource(k.Seed))
		rng.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	}

	folds := make([]Fold, 0, k.K)
	start := 0
	for f := 0; f < k.K; f++ {
		size := n / k.K
		if f < n%k.K {
			size++
		}
		val := idx[start : start+size]
		train := make([]int, 0, n-size)
		train = append(train, idx[:start]...)
		train = append(train, idx[start+size:]...)
		folds = append(folds, Fold{Train: train, Val: val})
		start += size
	}
	return folds, nil
}

// LeaveOneOut holds out every sample once. Equivalent to KFold with K = n.
type LeaveOneOut struct{}

func (LeaveOneOut) Splits(n int) ([]Fold, error) {
	if n < 2 {
		return nil, fmt.Errorf("leave-one-out requires at least 2 samples, got %d", n)
	}
	folds := make([]Fold, n)
	for i := 0; i < n; i++ {
		train := make([]int, 0, n-1)
		for j := 0; j < n; j++ {
			if j != i {
				train = append(train, j)
			}
		}
		folds[i] = Fold{Train: train, Val: []int{i}}
	}
	return folds, nil
}

// Subsample draws N bootstrap resamples with replacement; the validation set of each
// resample is its out-of-bag samples. A sample drawn into every resample ends up with
// no held-out prediction at all, which the caller must tolerate.
type Subsample struct {
	N    int
	Seed int64
}

func (s Subsample) Splits(n int) ([]Fold, error) {
	if s.N < 1 {
		return nil, fmt.Errorf("subsample requires at least 1 resampling, got %d", s.N)
	}
	folds := make([]Fold, 0, s.N)
	for r := 0; r < s.N; r++ {
		rng := rand.New(rand.NewSource(s.Seed + int64(r)))
		train := make([]int, n)
		drawn := make([]bool, n)
		for i := 0; i < n; i++ {
			j := rng.Intn(n)
			train[i] = j
			drawn[j] = true
		}
		val := make([]int, 0, n/3)
		for j := 0; j < n; j++ {
			if !drawn[j] {
				val = append(val, j)
			}
		}
		folds = append(folds, Fold{Train: train, Val: val})
	}
	return folds, nil
}

// Prefit is the sentinel strategy for an estimator fitted by the caller: no folds are
// produced and the calibration residuals come from the data passed to Fit.
type Prefit struct{}

func (Prefit) Splits(n int) ([]Fold, error) {
	return nil, nil
}
