package monitor

import (
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// gpuCommandTimeout is the timeout for nvidia-smi execution
const gpuCommandTimeout = 5 * time.Second

// GPUMemoryUsedMB queries current GPU memory usage via nvidia-smi.
// Multiple GPUs are summed.
func GPUMemoryUsedMB(ctx context.Context) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, gpuCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=memory.used",
		"--format=csv,noheader,nounits")

	output, err := cmd.Output()
	if err != nil {
		return 0, err
	}

	return parseGPUMemory(string(output))
}

// parseGPUMemory parses nvidia-smi CSV output, one memory.used value per line
func parseGPUMemory(output string) (float64, error) {
	lines := strings.Split(strings.TrimSpace(output), "\n")

	var total float64
	var gpuCount int

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		mb, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return 0, errors.New("failed to parse memory value: " + err.Error())
		}

		total += mb
		gpuCount++
	}

	if gpuCount == 0 {
		return 0, errors.New("no GPU data found")
	}

	return total, nil
}
