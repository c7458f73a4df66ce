//go:build !linux && !darwin

package handler

// getDiskStats is not implemented on this platform; the server runs in Linux
// containers.
func getDiskStats(path string) (total, free, used int64, usedPct float64) {
	return 0, 0, 0, 0
}

// getCPUUsage is not implemented on this platform.
func getCPUUsage() float64 {
	return 0
}
