package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"

	"archsearch/internal/model"
)

const reutersConfig = "testdata/reuters.ini"

func TestRunRequiresCommand(t *testing.T) {
	if err := run(context.Background(), nil); err == nil || !strings.Contains(err.Error(), "usage:") {
		t.Fatalf("expected usage error, got %v", err)
	}
	if err := run(context.Background(), []string{"train"}); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestValidateCommand(t *testing.T) {
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"validate", "--config", reutersConfig})
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	for _, want := range []string{"valid label=reuters_experiment", "layout=1000->46(softmax)", "stopping=accuracy_decrease(min=2, max=10, noprogress=5)", "population=100", "workers=1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output: %s", want, out)
		}
	}

	if err := run(context.Background(), []string{"validate"}); err == nil {
		t.Fatal("expected missing config error")
	}
}

func TestSampleCommand(t *testing.T) {
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"sample", "--config", reutersConfig, "--count", "4", "--seed", "9"})
	})
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 blueprints, got %d: %s", len(lines), out)
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "blueprint id=") || !strings.Contains(line, "output(46,softmax)") || !strings.Contains(line, "compiled[categorical_crossentropy/Adam/categorical_accuracy]") {
			t.Fatalf("unexpected sample line: %s", line)
		}
	}

	out, err = captureStdout(func() error {
		return run(context.Background(), []string{"sample", "--config", reutersConfig, "--count", "2", "--json"})
	})
	if err != nil {
		t.Fatalf("sample json: %v", err)
	}
	var blueprints []model.Blueprint
	if err := json.Unmarshal([]byte(out), &blueprints); err != nil {
		t.Fatalf("decode sample json: %v", err)
	}
	if len(blueprints) != 2 || blueprints[0].Layout.OutputSize != 46 || len(blueprints[0].Rows) != 1 {
		t.Fatalf("unexpected blueprints: %+v", blueprints)
	}
}

func TestComponentsCommand(t *testing.T) {
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"components"})
	})
	if err != nil {
		t.Fatalf("components: %v", err)
	}
	for _, want := range []string{
		"custom_activations=custom_activation_1",
		"layer name=custom_layer_1 custom=true activation=custom_activation_1 output_dim=int(10, 100)",
		"layer name=Dense custom=false",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output: %s", want, out)
		}
	}
}

func TestRunsCommandWithEmptyMemoryStore(t *testing.T) {
	out, err := captureStdout(func() error {
		return run(context.Background(), []string{"runs", "--store", "memory"})
	})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if strings.TrimSpace(out) != "no experiments found" {
		t.Fatalf("unexpected runs output: %s", out)
	}
	if err := run(context.Background(), []string{"runs", "--store", "memory", "--limit", "0"}); err == nil {
		t.Fatal("expected invalid limit error")
	}
	if err := run(context.Background(), []string{"generations", "--store", "memory"}); err == nil {
		t.Fatal("expected missing label error")
	}
	if err := run(context.Background(), []string{"best", "--store", "memory", "--label", "x", "--device", "tpu"}); err == nil {
		t.Fatal("expected unsupported device error")
	}
	if err := run(context.Background(), []string{"export", "--store", "memory"}); err == nil {
		t.Fatal("expected missing export label error")
	}
	if err := run(context.Background(), []string{"export", "--store", "memory", "--label", "missing", "--out", t.TempDir()}); err == nil {
		t.Fatal("expected unknown experiment error")
	}
}

func TestParseDevice(t *testing.T) {
	cases := map[string]model.Device{
		"cpu":   model.CPUDevice(),
		"GPU":   model.GPUDevice(0),
		"gpu:3": model.GPUDevice(3),
	}
	for name, want := range cases {
		got, err := parseDevice(name)
		if err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		if got != want {
			t.Fatalf("parse %s: got %v want %v", name, got, want)
		}
	}
	for _, name := range []string{"cpu:1", "gpu:-1", "gpu:x", "tpu"} {
		if _, err := parseDevice(name); err == nil {
			t.Fatalf("expected error for %s", name)
		}
	}
}

func captureStdout(fn func() error) (string, error) {
	origStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		return "", err
	}

	os.Stdout = w
	runErr := fn()
	_ = w.Close()
	os.Stdout = origStdout

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		_ = r.Close()
		return "", err
	}
	_ = r.Close()
	return buf.String(), runErr
}
