// Package irq delivers device interrupts to the goroutine running the
// interrupt handler.
//
// A [Line] is level-less: raising it any number of times before the handler
// wakes up results in a single wakeup, which is fine because the handler
// always drains everything that completed.
package irq
