package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"archsearch/internal/model"
)

const (
	CurrentSchemaVersion = model.SchemaVersion
	CurrentCodecVersion  = model.CodecVersion
)

var ErrVersionMismatch = errors.New("record version mismatch")

func EncodeExperiment(record model.ExperimentRecord) ([]byte, error) {
	return json.Marshal(record)
}

func DecodeExperiment(data []byte) (model.ExperimentRecord, error) {
	var record model.ExperimentRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return model.ExperimentRecord{}, err
	}
	if err := checkVersion(record.VersionedRecord); err != nil {
		return model.ExperimentRecord{}, fmt.Errorf("experiment %s: %w", record.Label, err)
	}
	return record, nil
}

func EncodeGeneration(scored []model.ScoredBlueprint) ([]byte, error) {
	return json.Marshal(scored)
}

func DecodeGeneration(data []byte) ([]model.ScoredBlueprint, error) {
	var scored []model.ScoredBlueprint
	if err := json.Unmarshal(data, &scored); err != nil {
		return nil, err
	}
	for _, item := range scored {
		if err := checkVersion(item.Blueprint.VersionedRecord); err != nil {
			return nil, fmt.Errorf("blueprint %s: %w", item.Blueprint.ID, err)
		}
	}
	return scored, nil
}

func EncodeSummaries(summaries []model.GenerationSummary) ([]byte, error) {
	return json.Marshal(summaries)
}

func DecodeSummaries(data []byte) ([]model.GenerationSummary, error) {
	var summaries []model.GenerationSummary
	if err := json.Unmarshal(data, &summaries); err != nil {
		return nil, err
	}
	return summaries, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
