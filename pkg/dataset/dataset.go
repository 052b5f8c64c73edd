package dataset

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"conformal/pkg/common"
)

// Dataset holds a dated regression table: one target value and one feature
// row per timestamp. Feature columns keep their header order.
type Dataset struct {
	Dates    []time.Time
	X        common.Matrix
	Y        []float64
	Features []string
}

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02",
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// Load reads a CSV table with a header row. The dateCol column is parsed as
// the timestamp, targetCol as the target, and every other column becomes a
// feature in header order.
func Load(path, dateCol, targetCol string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	dateIdx, targetIdx := -1, -1
	var features []string
	var featIdx []int
	for i, name := range header {
		switch name {
		case dateCol:
			dateIdx = i
		case targetCol:
			targetIdx = i
		default:
			features = append(features, name)
			featIdx = append(featIdx, i)
		}
	}
	if dateIdx < 0 {
		return nil, fmt.Errorf("missing date column %q", dateCol)
	}
	if targetIdx < 0 {
		return nil, fmt.Errorf("missing target column %q", targetCol)
	}

	ds := &Dataset{Features: features}
	line := 1
	for {
		rec, err := r.Read()
		if err != nil {
			break
		}
		line++

		date, err := parseDate(rec[dateIdx])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		y, err := strconv.ParseFloat(rec[targetIdx], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: target: %w", line, err)
		}
		row := make([]float64, len(featIdx))
		for j, idx := range featIdx {
			v, err := strconv.ParseFloat(rec[idx], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: column %s: %w", line, header[idx], err)
			}
			row[j] = v
		}

		ds.Dates = append(ds.Dates, date)
		ds.X = append(ds.X, row)
		ds.Y = append(ds.Y, y)
	}
	if len(ds.X) == 0 {
		return nil, fmt.Errorf("%s: no data rows", path)
	}
	return ds, nil
}

// LoadSpotPrices loads the electricity spot-price layout: a Date column, the
// Spot target, and hour/day-of-week/lag/consumption features.
func LoadSpotPrices(path string) (*Dataset, error) {
	return Load(path, "Date", "Spot")
}

func (d *Dataset) Len() int {
	return len(d.Y)
}

func (d *Dataset) featureIndex(name string) int {
	for i, f := range d.Features {
		if f == name {
			return i
		}
	}
	return -1
}

// FilterFeature keeps the rows where the named feature equals value.
func (d *Dataset) FilterFeature(name string, value float64) (*Dataset, error) {
	idx := d.featureIndex(name)
	if idx < 0 {
		return nil, fmt.Errorf("unknown feature %q", name)
	}
	out := &Dataset{Features: d.Features}
	for i, row := range d.X {
		if row[idx] == value {
			out.Dates = append(out.Dates, d.Dates[i])
			out.X = append(out.X, row)
			out.Y = append(out.Y, d.Y[i])
		}
	}
	return out, nil
}

// FilterHour keeps the rows observed at the given hour of day.
func (d *Dataset) FilterHour(hour int) (*Dataset, error) {
	return d.FilterFeature("hour", float64(hour))
}

// SplitByDate partitions rows into those strictly before the cutoff and
// those at or after it.
func (d *Dataset) SplitByDate(cutoff time.Time) (train, test *Dataset) {
	train = &Dataset{Features: d.Features}
	test = &Dataset{Features: d.Features}
	for i := range d.X {
		dst := test
		if d.Dates[i].Before(cutoff) {
			dst = train
		}
		dst.Dates = append(dst.Dates, d.Dates[i])
		dst.X = append(dst.X, d.X[i])
		dst.Y = append(dst.Y, d.Y[i])
	}
	return train, test
}

// Head returns the first n rows, or the whole dataset when it is shorter.
func (d *Dataset) Head(n int) *Dataset {
	if n > d.Len() {
		n = d.Len()
	}
	return &Dataset{
		Dates:    d.Dates[:n],
		X:        d.X[:n],
		Y:        d.Y[:n],
		Features: d.Features,
	}
}
