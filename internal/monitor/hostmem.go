package monitor

import (
	"github.com/shirou/gopsutil/v4/mem"
)

// HostMemoryUsedMB reports current host memory usage in megabytes
func HostMemoryUsedMB() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return float64(vm.Used) / 1024 / 1024, nil
}
