package stats

import (
	"os"
	"path/filepath"
	"testing"

	"archsearch/internal/model"
)

func TestWriteExperimentArtifacts(t *testing.T) {
	base := t.TempDir()
	best := model.ScoredBlueprint{Blueprint: model.Blueprint{VersionedRecord: model.CurrentVersion(), ID: "b1", Generation: 1}, Score: 0.8}
	artifacts := ExperimentArtifacts{
		Experiment: model.ExperimentRecord{VersionedRecord: model.CurrentVersion(), Label: "reuters", RunID: "run-1", PopulationSize: 2, Generations: 2},
		Summaries: []model.GenerationSummary{
			{Step: 0, Evaluated: 2, Best: 0.5, Mean: 0.4, StdDev: 0.1, BestID: "a1"},
			{Step: 1, Evaluated: 2, Failed: 1, Best: 0.8, Mean: 0.8, BestID: "b1"},
		},
		Generations: map[int][]model.ScoredBlueprint{
			1: {best},
			0: {{Blueprint: model.Blueprint{ID: "a1"}, Score: 0.5}},
		},
		Best: &best,
	}

	dir, files, err := WriteExperimentArtifacts(base, artifacts)
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}
	if dir != filepath.Join(base, "reuters") {
		t.Fatalf("unexpected artifact dir: %s", dir)
	}
	want := []string{
		experimentFile,
		summariesFile,
		seriesFile,
		bestFile,
		filepath.Join(generationsSubdir, "step_0000.json"),
		filepath.Join(generationsSubdir, "step_0001.json"),
	}
	if len(files) != len(want) {
		t.Fatalf("unexpected files: %v", files)
	}
	for i, name := range want {
		if files[i] != name {
			t.Fatalf("file %d: got %s want %s", i, files[i], name)
		}
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("expected artifact %s: %v", name, err)
		}
	}

	record, ok, err := ReadExperimentRecord(dir)
	if err != nil || !ok || record.RunID != "run-1" {
		t.Fatalf("read experiment: %+v ok=%t err=%v", record, ok, err)
	}
	series, ok, err := ReadSummarySeries(dir)
	if err != nil || !ok {
		t.Fatalf("read series: ok=%t err=%v", ok, err)
	}
	if len(series) != 2 || series[1] != artifacts.Summaries[1] {
		t.Fatalf("unexpected series: %+v", series)
	}
}

func TestWriteExperimentArtifactsRequiresLabel(t *testing.T) {
	if _, _, err := WriteExperimentArtifacts(t.TempDir(), ExperimentArtifacts{}); err == nil {
		t.Fatal("expected missing label error")
	}
}

func TestReadSummarySeriesMissing(t *testing.T) {
	series, ok, err := ReadSummarySeries(t.TempDir())
	if err != nil || ok || series != nil {
		t.Fatalf("expected missing series, got %+v ok=%t err=%v", series, ok, err)
	}
}
