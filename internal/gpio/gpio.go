// Package gpio provides capture units backed by GPIO edge events.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Default line offsets (BCM numbering).
const (
	PinIR  = 17 // photo-interrupter output
	PinPPS = 18 // GPS PPS
)

// DefaultChip is the GPIO chip lines are requested from.
const DefaultChip = "gpiochip0"
