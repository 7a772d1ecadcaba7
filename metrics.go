package e1000

import (
	"github.com/rcrowley/go-metrics"
)

type driverMetrics struct {
	txPackets metrics.Counter
	txBytes   metrics.Counter
	txBusy    metrics.Counter

	rxPackets metrics.Counter
	rxBytes   metrics.Counter
	rxDropped metrics.Counter

	interrupts metrics.Counter
}

func newDriverMetrics(r metrics.Registry) *driverMetrics {
	return &driverMetrics{
		txPackets:  metrics.GetOrRegisterCounter("e1000.tx.packets", r),
		txBytes:    metrics.GetOrRegisterCounter("e1000.tx.bytes", r),
		txBusy:     metrics.GetOrRegisterCounter("e1000.tx.busy", r),
		rxPackets:  metrics.GetOrRegisterCounter("e1000.rx.packets", r),
		rxBytes:    metrics.GetOrRegisterCounter("e1000.rx.bytes", r),
		rxDropped:  metrics.GetOrRegisterCounter("e1000.rx.dropped", r),
		interrupts: metrics.GetOrRegisterCounter("e1000.intr.count", r),
	}
}
