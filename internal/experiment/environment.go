package experiment

import (
	"errors"
	"fmt"

	"archsearch/internal/model"
)

var ErrInvalidEnvironment = errors.New("invalid execution environment")

// Environment declares how many training workers a search may run and
// on which devices.
type Environment struct {
	kind           model.DeviceKind
	jobs           int
	devices        []int
	tasksPerDevice int
}

func CPUEnvironment(nJobs int) (Environment, error) {
	if nJobs < 1 {
		return Environment{}, fmt.Errorf("%w: n_jobs must be >= 1, got %d", ErrInvalidEnvironment, nJobs)
	}
	return Environment{kind: model.DeviceCPU, jobs: nJobs}, nil
}

func GPUEnvironment(devices []int, tasksPerDevice int) (Environment, error) {
	if len(devices) == 0 {
		return Environment{}, fmt.Errorf("%w: at least one gpu device is required", ErrInvalidEnvironment)
	}
	if tasksPerDevice < 1 {
		return Environment{}, fmt.Errorf("%w: tasks_per_device must be >= 1, got %d", ErrInvalidEnvironment, tasksPerDevice)
	}
	seen := make(map[int]struct{}, len(devices))
	for _, d := range devices {
		if d < 0 {
			return Environment{}, fmt.Errorf("%w: negative gpu index %d", ErrInvalidEnvironment, d)
		}
		if _, dup := seen[d]; dup {
			return Environment{}, fmt.Errorf("%w: duplicate gpu index %d", ErrInvalidEnvironment, d)
		}
		seen[d] = struct{}{}
	}
	return Environment{
		kind:           model.DeviceGPU,
		devices:        append([]int(nil), devices...),
		tasksPerDevice: tasksPerDevice,
	}, nil
}

func (e Environment) Kind() model.DeviceKind { return e.kind }

func (e Environment) IsZero() bool { return e.kind == "" }

func (e Environment) Workers() int {
	if e.kind == model.DeviceGPU {
		return len(e.devices) * e.tasksPerDevice
	}
	if e.jobs < 1 {
		return 1
	}
	return e.jobs
}

// DeviceFor maps a worker index to its device. GPU workers are spread
// round robin across devices.
func (e Environment) DeviceFor(worker int) model.Device {
	if e.kind != model.DeviceGPU || len(e.devices) == 0 {
		return model.CPUDevice()
	}
	if worker < 0 {
		worker = -worker
	}
	return model.GPUDevice(e.devices[worker%len(e.devices)])
}

func (e Environment) Record() model.EnvironmentRecord {
	return model.EnvironmentRecord{
		Kind:           string(e.kind),
		Workers:        e.Workers(),
		Devices:        append([]int(nil), e.devices...),
		TasksPerDevice: e.tasksPerDevice,
	}
}
