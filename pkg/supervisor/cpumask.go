package supervisor

import "runtime"

// DeriveCPUMask returns a bitmask selecting min(4, NumCPU) low bits,
// per §4.8's CPU-mask auto-derivation when none is configured.
func DeriveCPUMask() uint64 {
	n := runtime.NumCPU()
	if n > 4 {
		n = 4
	}
	if n <= 0 {
		n = 1
	}
	return (uint64(1) << uint(n)) - 1
}
