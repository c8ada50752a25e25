package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"archsearch/internal/model"
)

const (
	experimentFile    = "experiment.json"
	summariesFile     = "summaries.json"
	bestFile          = "best_blueprint.json"
	seriesFile        = "summary_series.csv"
	generationsSubdir = "generations"
)

var seriesHeader = []string{"step", "evaluated", "failed", "best", "mean", "std_dev", "best_id"}

// ExperimentArtifacts is everything persisted for one experiment label.
type ExperimentArtifacts struct {
	Experiment  model.ExperimentRecord
	Summaries   []model.GenerationSummary
	Generations map[int][]model.ScoredBlueprint
	Best        *model.ScoredBlueprint
}

// WriteExperimentArtifacts lays the artifacts out under outDir/<label> and
// returns that directory together with the files written, relative to it.
func WriteExperimentArtifacts(outDir string, artifacts ExperimentArtifacts) (string, []string, error) {
	label := artifacts.Experiment.Label
	if label == "" {
		return "", nil, fmt.Errorf("experiment label is required")
	}

	dir := filepath.Join(outDir, label)
	if err := os.MkdirAll(filepath.Join(dir, generationsSubdir), 0o755); err != nil {
		return "", nil, err
	}

	written := make([]string, 0, 4+len(artifacts.Generations))
	write := func(name string, value any) error {
		if err := writeJSON(filepath.Join(dir, name), value); err != nil {
			return err
		}
		written = append(written, name)
		return nil
	}

	if err := write(experimentFile, artifacts.Experiment); err != nil {
		return "", nil, err
	}
	if err := write(summariesFile, artifacts.Summaries); err != nil {
		return "", nil, err
	}
	if err := WriteSummarySeries(dir, artifacts.Summaries); err != nil {
		return "", nil, err
	}
	written = append(written, seriesFile)
	if artifacts.Best != nil {
		if err := write(bestFile, artifacts.Best); err != nil {
			return "", nil, err
		}
	}

	steps := make([]int, 0, len(artifacts.Generations))
	for step := range artifacts.Generations {
		steps = append(steps, step)
	}
	sort.Ints(steps)
	for _, step := range steps {
		name := filepath.Join(generationsSubdir, fmt.Sprintf("step_%04d.json", step))
		if err := write(name, artifacts.Generations[step]); err != nil {
			return "", nil, err
		}
	}
	return dir, written, nil
}

// WriteSummarySeries writes one CSV row per generation summary.
func WriteSummarySeries(dir string, summaries []model.GenerationSummary) error {
	file, err := os.Create(filepath.Join(dir, seriesFile))
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(seriesHeader); err != nil {
		return err
	}
	for _, s := range summaries {
		if err := writer.Write([]string{
			strconv.Itoa(s.Step),
			strconv.Itoa(s.Evaluated),
			strconv.Itoa(s.Failed),
			strconv.FormatFloat(s.Best, 'f', -1, 64),
			strconv.FormatFloat(s.Mean, 'f', -1, 64),
			strconv.FormatFloat(s.StdDev, 'f', -1, 64),
			s.BestID,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadSummarySeries(dir string) ([]model.GenerationSummary, bool, error) {
	file, err := os.Open(filepath.Join(dir, seriesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []model.GenerationSummary{}, true, nil
		}
		return nil, false, err
	}
	if len(header) != len(seriesHeader) {
		return nil, false, fmt.Errorf("summary series header must have %d columns", len(seriesHeader))
	}

	var out []model.GenerationSummary
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		summary, err := parseSeriesRow(record)
		if err != nil {
			return nil, false, err
		}
		out = append(out, summary)
	}
	return out, true, nil
}

func parseSeriesRow(record []string) (model.GenerationSummary, error) {
	var (
		s   model.GenerationSummary
		err error
	)
	if s.Step, err = strconv.Atoi(record[0]); err != nil {
		return s, err
	}
	if s.Evaluated, err = strconv.Atoi(record[1]); err != nil {
		return s, err
	}
	if s.Failed, err = strconv.Atoi(record[2]); err != nil {
		return s, err
	}
	if s.Best, err = strconv.ParseFloat(record[3], 64); err != nil {
		return s, err
	}
	if s.Mean, err = strconv.ParseFloat(record[4], 64); err != nil {
		return s, err
	}
	if s.StdDev, err = strconv.ParseFloat(record[5], 64); err != nil {
		return s, err
	}
	s.BestID = record[6]
	return s, nil
}

func ReadExperimentRecord(dir string) (model.ExperimentRecord, bool, error) {
	var record model.ExperimentRecord
	ok, err := readJSON(filepath.Join(dir, experimentFile), &record)
	return record, ok, err
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func readJSON(path string, value any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, value); err != nil {
		return false, err
	}
	return true, nil
}
