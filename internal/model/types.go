package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"archsearch/internal/param"
	"archsearch/internal/registry"
)

const (
	SchemaVersion = 1
	CodecVersion  = 1
)

var ErrInvalidLayout = errors.New("invalid layout")

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

func CurrentVersion() VersionedRecord {
	return VersionedRecord{SchemaVersion: SchemaVersion, CodecVersion: CodecVersion}
}

// Layout is the fixed input/output contract every candidate satisfies.
type Layout struct {
	InputSize        int    `json:"input_size"`
	OutputSize       int    `json:"output_size"`
	OutputActivation string `json:"output_activation"`
}

func NewLayout(activations registry.ActivationResolver, inputSize, outputSize int, outputActivation string) (Layout, error) {
	if inputSize <= 0 {
		return Layout{}, fmt.Errorf("%w: input_size must be > 0, got %d", ErrInvalidLayout, inputSize)
	}
	if outputSize <= 0 {
		return Layout{}, fmt.Errorf("%w: output_size must be > 0, got %d", ErrInvalidLayout, outputSize)
	}
	if _, err := activations.Activation(outputActivation); err != nil {
		return Layout{}, fmt.Errorf("layout output activation: %w", err)
	}
	return Layout{InputSize: inputSize, OutputSize: outputSize, OutputActivation: outputActivation}, nil
}

type Objective struct {
	Name string `json:"name"`
}

type Optimizer struct {
	Name   string             `json:"name"`
	Config map[string]float64 `json:"config,omitempty"`
}

type Metric struct {
	Name string `json:"name"`
}

type DeviceKind string

const (
	DeviceCPU DeviceKind = "cpu"
	DeviceGPU DeviceKind = "gpu"
)

type Device struct {
	Kind  DeviceKind `json:"kind"`
	Index int        `json:"index"`
}

func CPUDevice() Device { return Device{Kind: DeviceCPU} }

func GPUDevice(index int) Device { return Device{Kind: DeviceGPU, Index: index} }

func (d Device) String() string {
	return fmt.Sprintf("/%s:%d", d.Kind, d.Index)
}

type LayerSpec struct {
	Type   string                 `json:"type"`
	Params map[string]param.Value `json:"params,omitempty"`
}

type Block struct {
	Layers []LayerSpec `json:"layers"`
}

type Row struct {
	Blocks []Block `json:"blocks"`
}

// TrainingDescription is the persisted part of a training spec a model
// needs at compile time.
type TrainingDescription struct {
	Objective Objective `json:"objective"`
	Optimizer Optimizer `json:"optimizer"`
	Metric    Metric    `json:"metric"`
	BatchSize int       `json:"batch_size"`
}

// Blueprint describes one candidate architecture produced by a search.
type Blueprint struct {
	VersionedRecord
	ID         string              `json:"id"`
	Label      string              `json:"label"`
	Generation int                 `json:"generation"`
	Layout     Layout              `json:"layout"`
	Rows       []Row               `json:"rows"`
	Training   TrainingDescription `json:"training"`
}

func (b Blueprint) LayerCount() int {
	n := 0
	for _, row := range b.Rows {
		for _, block := range row.Blocks {
			n += len(block.Layers)
		}
	}
	return n
}

// Layers flattens rows and blocks in build order.
func (b Blueprint) Layers() []LayerSpec {
	out := make([]LayerSpec, 0, b.LayerCount())
	for _, row := range b.Rows {
		for _, block := range row.Blocks {
			out = append(out, block.Layers...)
		}
	}
	return out
}

type ScoredBlueprint struct {
	Blueprint Blueprint `json:"blueprint"`
	Score     float64   `json:"score"`
	Epochs    int       `json:"epochs"`
	History   []float64 `json:"history,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func (s ScoredBlueprint) Failed() bool { return s.Error != "" }

type GenerationSummary struct {
	Step      int     `json:"step"`
	Evaluated int     `json:"evaluated"`
	Failed    int     `json:"failed"`
	Best      float64 `json:"best"`
	Mean      float64 `json:"mean"`
	StdDev    float64 `json:"std_dev"`
	BestID    string  `json:"best_id,omitempty"`
}

type EnvironmentRecord struct {
	Kind           string `json:"kind"`
	Workers        int    `json:"workers"`
	Devices        []int  `json:"devices,omitempty"`
	TasksPerDevice int    `json:"tasks_per_device,omitempty"`
}

// ExperimentRecord is the persisted header of a search run.
type ExperimentRecord struct {
	VersionedRecord
	Label          string                `json:"label"`
	RunID          string                `json:"run_id"`
	Layout         Layout                `json:"layout"`
	Training       TrainingDescription   `json:"training"`
	Stopping       json.RawMessage       `json:"stopping,omitempty"`
	Parameters     map[string]param.Spec `json:"parameters"`
	Environment    EnvironmentRecord     `json:"environment"`
	PopulationSize int                   `json:"population_size"`
	Generations    int                   `json:"generations"`
	Seed           int64                 `json:"seed"`
	CreatedAt      time.Time             `json:"created_at"`
}
