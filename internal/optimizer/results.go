package optimizer

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"
)

// ErrNoTrials is returned by ranking queries on an empty result set.
var ErrNoTrials = errors.New("no completed trials")

// Results holds the completed trials of one optimization run together
// with the ranking metric they are scored by. The collection is immutable;
// every query is a pure read.
type Results struct {
	runID     string
	createdAt time.Time
	trials    []Trial
	metric    Metric
	score     scorer
	space     *SearchSpace
}

func newResults(runID string, trials []Trial, metric Metric, score scorer, space *SearchSpace) *Results {
	return &Results{
		runID:     runID,
		createdAt: time.Now().UTC(),
		trials:    trials,
		metric:    metric,
		score:     score,
		space:     space,
	}
}

// RunID returns the unique identifier assigned to the run.
func (r *Results) RunID() string { return r.runID }

// Metric returns the ranking rule the trials are scored by.
func (r *Results) Metric() Metric { return r.metric }

// Trials returns the completed trials in completion order.
func (r *Results) Trials() []Trial { return r.trials }

// Len returns the number of completed trials.
func (r *Results) Len() int { return len(r.trials) }

// Best returns the trial with the highest score under the configured
// metric.
func (r *Results) Best() (Trial, error) {
	if len(r.trials) == 0 {
		return Trial{}, ErrNoTrials
	}
	best := r.trials[0]
	bestScore := r.score(best.Metrics)
	for _, t := range r.trials[1:] {
		if s := r.score(t.Metrics); s > bestScore {
			best = t
			bestScore = s
		}
	}
	return best, nil
}

// Top returns up to n trials ordered by descending score.
func (r *Results) Top(n int) []Trial {
	ranked := make([]Trial, len(r.trials))
	copy(ranked, r.trials)
	sort.SliceStable(ranked, func(i, j int) bool {
		return r.score(ranked[i].Metrics) > r.score(ranked[j].Metrics)
	})
	if n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}

// Heatmap is a two-dimensional pivot of one metric over two search
// dimensions. Cells with no matching trial hold NaN.
type Heatmap struct {
	XName   string      `json:"x_name"`
	YName   string      `json:"y_name"`
	Metric  string      `json:"metric"`
	XValues []float64   `json:"x_values"`
	YValues []float64   `json:"y_values"`
	Values  [][]float64 `json:"values"` // Values[yi][xi]
}

// Heatmap pivots the named metric over two declared dimensions. When
// multiple trials share an (x, y) cell, the cell holds their mean.
func (r *Results) Heatmap(xDim, yDim, metricName string) (*Heatmap, error) {
	dims := r.space.Dimensions()
	xValues, ok := dims[xDim]
	if !ok {
		return nil, fmt.Errorf("dimension %q not declared in search space", xDim)
	}
	yValues, ok := dims[yDim]
	if !ok {
		return nil, fmt.Errorf("dimension %q not declared in search space", yDim)
	}
	sort.Float64s(xValues)
	sort.Float64s(yValues)

	xIndex := indexOf(xValues)
	yIndex := indexOf(yValues)

	sums := make([][]float64, len(yValues))
	counts := make([][]int, len(yValues))
	for yi := range sums {
		sums[yi] = make([]float64, len(xValues))
		counts[yi] = make([]int, len(xValues))
	}
	for _, t := range r.trials {
		x, hasX := t.Params[xDim]
		y, hasY := t.Params[yDim]
		if !hasX || !hasY {
			continue
		}
		v, ok := t.Metrics[metricName]
		if !ok || math.IsNaN(v) {
			continue
		}
		xi, okX := xIndex[x]
		yi, okY := yIndex[y]
		if !okX || !okY {
			continue
		}
		sums[yi][xi] += v
		counts[yi][xi]++
	}

	values := make([][]float64, len(yValues))
	for yi := range values {
		values[yi] = make([]float64, len(xValues))
		for xi := range values[yi] {
			if counts[yi][xi] == 0 {
				values[yi][xi] = math.NaN()
				continue
			}
			values[yi][xi] = sums[yi][xi] / float64(counts[yi][xi])
		}
	}

	return &Heatmap{
		XName:   xDim,
		YName:   yDim,
		Metric:  metricName,
		XValues: xValues,
		YValues: yValues,
		Values:  values,
	}, nil
}

func indexOf(values []float64) map[float64]int {
	index := make(map[float64]int, len(values))
	for i, v := range values {
		index[v] = i
	}
	return index
}

// resultsFile is the on-disk form of a result set.
type resultsFile struct {
	RunID      string               `json:"run_id"`
	CreatedAt  time.Time            `json:"created_at"`
	Metric     Metric               `json:"metric"`
	Dimensions map[string][]float64 `json:"dimensions"`
	Trials     []Trial              `json:"trials"`
}

// Save writes the full result set as one JSON document. A saved file can
// be reloaded with Load.
func (r *Results) Save(path string) error {
	file := resultsFile{
		RunID:      r.runID,
		CreatedAt:  r.createdAt,
		Metric:     r.metric,
		Dimensions: r.space.Dimensions(),
		Trials:     r.trials,
	}
	b, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("failed to write results file: %w", err)
	}
	return nil
}

// Load reads a result set saved by Save. Ranking queries on the loaded
// set behave identically to the original.
func Load(path string) (*Results, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read results file: %w", err)
	}
	var file resultsFile
	if err := json.Unmarshal(b, &file); err != nil {
		return nil, fmt.Errorf("failed to decode results file: %w", err)
	}
	score, err := file.Metric.resolve()
	if err != nil {
		return nil, err
	}
	space := NewSearchSpace()
	names := make([]string, 0, len(file.Dimensions))
	for name := range file.Dimensions {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := space.AddDimension(name, file.Dimensions[name]); err != nil {
			return nil, err
		}
	}
	return &Results{
		runID:     file.RunID,
		createdAt: file.CreatedAt,
		trials:    file.Trials,
		metric:    file.Metric,
		score:     score,
		space:     space,
	}, nil
}

// LoadStream reconstructs a result set from a JSONL trial stream, e.g.
// after a timed-out or crashed run. The search space is rebuilt from the
// distinct values observed per parameter, so heatmaps over any streamed
// parameter still work.
func LoadStream(path string, metric Metric) (*Results, error) {
	trials, err := readStream(path)
	if err != nil {
		return nil, err
	}
	if metric.IsZero() {
		metric = MetricName("sharpe_ratio")
	}
	score, err := metric.resolve()
	if err != nil {
		return nil, err
	}

	observed := make(map[string]map[float64]bool)
	for _, t := range trials {
		for name, v := range t.Params {
			if observed[name] == nil {
				observed[name] = make(map[float64]bool)
			}
			observed[name][v] = true
		}
	}
	space := NewSearchSpace()
	names := make([]string, 0, len(observed))
	for name := range observed {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		values := make([]float64, 0, len(observed[name]))
		for v := range observed[name] {
			values = append(values, v)
		}
		sort.Float64s(values)
		if err := space.AddDimension(name, values); err != nil {
			return nil, err
		}
	}

	return &Results{
		createdAt: time.Now().UTC(),
		trials:    trials,
		metric:    metric,
		score:     score,
		space:     space,
	}, nil
}

// ExportCSV writes a flat trial table: one row per trial, one column per
// parameter and metric. The export is one-way.
func (r *Results) ExportCSV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	paramCols := collectKeys(r.trials, func(t Trial) map[string]float64 { return t.Params })
	metricCols := collectKeys(r.trials, func(t Trial) map[string]float64 { return t.Metrics })
	oosCols := collectKeys(r.trials, func(t Trial) map[string]float64 { return t.OOSMetrics })

	header := make([]string, 0, len(paramCols)+len(metricCols)+len(oosCols))
	header = append(header, paramCols...)
	header = append(header, metricCols...)
	for _, c := range oosCols {
		header = append(header, "oos_"+c)
	}

	w := csv.NewWriter(f)
	defer w.Flush()
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, t := range r.trials {
		row := make([]string, 0, len(header))
		for _, c := range paramCols {
			row = append(row, csvCell(t.Params, c))
		}
		for _, c := range metricCols {
			row = append(row, csvCell(t.Metrics, c))
		}
		for _, c := range oosCols {
			row = append(row, csvCell(t.OOSMetrics, c))
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write trial row: %w", err)
		}
	}
	return nil
}

func collectKeys(trials []Trial, pick func(Trial) map[string]float64) []string {
	seen := make(map[string]bool)
	for _, t := range trials {
		for k := range pick(t) {
			seen[k] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func csvCell(m map[string]float64, key string) string {
	v, ok := m[key]
	if !ok || math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
