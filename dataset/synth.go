package dataset

import (
	"math"
	"math/rand"
	"strconv"
)

// Column names of the student performance dataset.
const (
	ColGender        = "gender"
	ColRaceEthnicity = "race_ethnicity"
	ColParentalLevel = "parental_level_of_education"
	ColLunch         = "lunch"
	ColTestPrep      = "test_preparation_course"
	ColReadingScore  = "reading_score"
	ColWritingScore  = "writing_score"
	ColMathScore     = "math_score"
)

// StudentHeader is the column order of the student performance CSV.
var StudentHeader = []string{
	ColGender, ColRaceEthnicity, ColParentalLevel, ColLunch, ColTestPrep,
	ColReadingScore, ColWritingScore, ColMathScore,
}

var (
	genders   = []string{"female", "male"}
	groups    = []string{"group A", "group B", "group C", "group D", "group E"}
	education = []string{
		"some high school", "high school", "some college",
		"associate's degree", "bachelor's degree", "master's degree",
	}
	lunches   = []string{"standard", "free/reduced"}
	testPreps = []string{"none", "completed"}
)

// SynthOptions controls GenerateStudents.
type SynthOptions struct {
	// Rows is the number of students.
	Rows int
	// Seed drives every random draw.
	Seed int64
	// Noise is the standard deviation of the noise added to math_score.
	Noise float64
	// MissingRate is the probability that any feature cell is left empty.
	MissingRate float64
}

// GenerateStudents builds a synthetic student performance frame in which
// math_score is a linear function of the reading and writing scores plus a
// few categorical offsets and Gaussian noise.
func GenerateStudents(opts SynthOptions) *Frame {
	rng := rand.New(rand.NewSource(opts.Seed))
	rows := make([][]string, opts.Rows)

	for i := range rows {
		gender := pick(rng, genders)
		group := pick(rng, groups)
		parent := pick(rng, education)
		lunch := pick(rng, lunches)
		prep := pick(rng, testPreps)

		reading := clamp(69+14*rng.NormFloat64(), 10, 100)
		writing := clamp(0.9*reading+6+4*rng.NormFloat64(), 10, 100)

		score := 0.55*reading + 0.35*writing - 4
		if gender == "male" {
			score += 6
		}
		if lunch == "standard" {
			score += 3
		}
		if prep == "completed" {
			score += 1.5
		}
		score += opts.Noise * rng.NormFloat64()

		row := []string{
			gender, group, parent, lunch, prep,
			formatScore(reading), formatScore(writing), formatScore(score),
		}
		if opts.MissingRate > 0 {
			for j := 0; j < len(row)-1; j++ {
				if rng.Float64() < opts.MissingRate {
					row[j] = ""
				}
			}
		}
		rows[i] = row
	}

	return &Frame{Header: append([]string(nil), StudentHeader...), Rows: rows}
}

func pick(rng *rand.Rand, values []string) string {
	return values[rng.Intn(len(values))]
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
