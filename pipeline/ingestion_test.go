package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/mlpipe/dataset"
	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

func TestIngestionSplitsAndCopies(t *testing.T) {
	dir := t.TempDir()
	source := writeStudents(t, dir, 101, 1)
	cfg := testConfig(dir, source)

	rec := &recorder{}
	trainPath, testPath, err := NewIngestion(cfg, WithObserver(rec)).Run(source)
	require.NoError(t, err)
	assert.Equal(t, cfg.Artifacts.Train, trainPath)
	assert.Equal(t, cfg.Artifacts.Test, testPath)

	src, err := os.ReadFile(source)
	require.NoError(t, err)
	raw, err := os.ReadFile(cfg.Artifacts.RawData)
	require.NoError(t, err)
	assert.Equal(t, src, raw)

	original, err := dataset.ReadCSVFile(source)
	require.NoError(t, err)
	train, err := dataset.ReadCSVFile(trainPath)
	require.NoError(t, err)
	test, err := dataset.ReadCSVFile(testPath)
	require.NoError(t, err)

	assert.Equal(t, original.Header, train.Header)
	assert.Equal(t, original.Header, test.Header)
	assert.Equal(t, 21, test.Len())
	assert.Equal(t, 80, train.Len())

	// together the partitions hold every source row exactly once
	counts := map[string]int{}
	for _, row := range original.Rows {
		counts[strings.Join(row, ",")]++
	}
	for _, part := range []*dataset.Frame{train, test} {
		for _, row := range part.Rows {
			counts[strings.Join(row, ",")]--
		}
	}
	for row, c := range counts {
		assert.Zero(t, c, row)
	}

	require.Len(t, rec.events, 1)
	e := rec.events[0]
	assert.Equal(t, StageIngestion, e.Stage)
	assert.NoError(t, e.Err)
	assert.Equal(t, 101, e.Rows)
	assert.Equal(t, 80, e.TrainRows)
	assert.Equal(t, 21, e.TestRows)
}

func TestIngestionIsDeterministic(t *testing.T) {
	base := t.TempDir()
	source := writeStudents(t, base, 200, 1)

	read := func(dir string) (string, string) {
		cfg := testConfig(dir, source)
		trainPath, testPath, err := NewIngestion(cfg).Run(source)
		require.NoError(t, err)
		a, err := os.ReadFile(trainPath)
		require.NoError(t, err)
		b, err := os.ReadFile(testPath)
		require.NoError(t, err)
		return string(a), string(b)
	}

	train1, test1 := read(filepath.Join(base, "one"))
	train2, test2 := read(filepath.Join(base, "two"))
	assert.Equal(t, train1, train2)
	assert.Equal(t, test1, test2)
}

func TestIngestionErrors(t *testing.T) {
	dir := t.TempDir()
	headerOnly := filepath.Join(dir, "header.csv")
	require.NoError(t, os.WriteFile(headerOnly, []byte(strings.Join(dataset.StudentHeader, ",")+"\n"), 0o644))
	oneRow := filepath.Join(dir, "one.csv")
	require.NoError(t, os.WriteFile(oneRow, []byte("a,b\n1,2\n"), 0o644))
	ragged := filepath.Join(dir, "ragged.csv")
	require.NoError(t, os.WriteFile(ragged, []byte("a,b\n1,2\n3\n"), 0o644))

	tests := []struct {
		name   string
		source string
	}{
		{"missing file", filepath.Join(dir, "nope.csv")},
		{"header only", headerOnly},
		{"split leaves empty partition", oneRow},
		{"malformed csv", ragged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			cfg := testConfig(t.TempDir(), tt.source)
			_, _, err := NewIngestion(cfg, WithObserver(rec)).Run(tt.source)

			var ie *errors.IngestionError
			require.True(t, errors.As(err, &ie), "got %v", err)
			assert.Equal(t, errors.StageIngestion, errors.StageOf(err))
			require.Len(t, rec.events, 1)
			assert.Error(t, rec.events[0].Err)

			_, statErr := os.Stat(cfg.Artifacts.Train)
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}
