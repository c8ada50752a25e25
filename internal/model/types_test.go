package model

import (
	"errors"
	"testing"

	"archsearch/internal/param"
	"archsearch/internal/registry"
)

func TestLayoutKeepsFields(t *testing.T) {
	layout, err := NewLayout(registry.New(), 1000, 46, "softmax")
	if err != nil {
		t.Fatalf("new layout: %v", err)
	}
	if layout.InputSize != 1000 || layout.OutputSize != 46 || layout.OutputActivation != "softmax" {
		t.Fatalf("unexpected layout: %+v", layout)
	}

	copied := layout
	copied.OutputSize = 2
	if layout.OutputSize != 46 {
		t.Fatalf("layout changed through a copy: %+v", layout)
	}
}

func TestLayoutValidation(t *testing.T) {
	reg := registry.New()
	if _, err := NewLayout(reg, 0, 46, "softmax"); !errors.Is(err, ErrInvalidLayout) {
		t.Fatalf("expected ErrInvalidLayout for input size, got: %v", err)
	}
	if _, err := NewLayout(reg, 10, -1, "softmax"); !errors.Is(err, ErrInvalidLayout) {
		t.Fatalf("expected ErrInvalidLayout for output size, got: %v", err)
	}
	if _, err := NewLayout(reg, 10, 2, "custom_activation_1"); !errors.Is(err, registry.ErrUnknownActivation) {
		t.Fatalf("expected ErrUnknownActivation, got: %v", err)
	}
}

func TestBlueprintLayersFlattenInOrder(t *testing.T) {
	bp := Blueprint{Rows: []Row{
		{Blocks: []Block{
			{Layers: []LayerSpec{{Type: "Dense"}, {Type: "Dropout"}}},
			{Layers: []LayerSpec{{Type: "custom_layer_1"}}},
		}},
		{Blocks: []Block{
			{Layers: []LayerSpec{{Type: "BatchNormalization", Params: map[string]param.Value{"epsilon": param.FloatValue(0.01)}}}},
		}},
	}}
	if bp.LayerCount() != 4 {
		t.Fatalf("expected 4 layers, got %d", bp.LayerCount())
	}
	layers := bp.Layers()
	want := []string{"Dense", "Dropout", "custom_layer_1", "BatchNormalization"}
	for i, layer := range layers {
		if layer.Type != want[i] {
			t.Fatalf("layer %d: got %s want %s", i, layer.Type, want[i])
		}
	}
}

func TestDeviceString(t *testing.T) {
	if got := GPUDevice(1).String(); got != "/gpu:1" {
		t.Fatalf("unexpected device string: %s", got)
	}
	if got := CPUDevice().String(); got != "/cpu:0" {
		t.Fatalf("unexpected device string: %s", got)
	}
}
