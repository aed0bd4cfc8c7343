package dataset

import (
	"math"
	"math/rand"

	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

// DefaultTestSize and DefaultSeed are the partitioning defaults.
const (
	DefaultTestSize = 0.2
	DefaultSeed     = 42
)

// TestCount returns ceil(testSize * n), the number of rows that go to the
// test partition.
func TestCount(n int, testSize float64) int {
	// the epsilon keeps 0.2*1000 from rounding up to 201
	return int(math.Ceil(testSize*float64(n) - 1e-9))
}

// TrainTestSplit partitions f with a permutation drawn from seed. The first
// TestCount rows of the permutation form the test set and the rest the
// training set; both keep permutation order. The same frame and seed always
// yield the same partitions.
func TrainTestSplit(f *Frame, testSize float64, seed int64) (train, test *Frame, err error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, errors.NewValidationError("test_size", "must be in (0, 1)", testSize)
	}
	n := f.Len()
	nTest := TestCount(n, testSize)
	if nTest == 0 || nTest >= n {
		return nil, nil, errors.NewValueError("TrainTestSplit",
			"split leaves an empty partition: "+
				"need at least 2 rows for a non-empty train and test set")
	}

	perm := rand.New(rand.NewSource(seed)).Perm(n)
	return f.Take(perm[nTest:]), f.Take(perm[:nTest]), nil
}
