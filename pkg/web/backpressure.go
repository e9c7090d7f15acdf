package web

import "sync/atomic"

// BackpressureController bounds the number of requests in flight.
// Requests beyond capacity are rejected immediately instead of queued.
type BackpressureController struct {
	capacity      int64
	currentLoad   atomic.Int64
	rejectedCount atomic.Int64
}

// NewBackpressureController creates a controller admitting up to capacity
// concurrent requests
func NewBackpressureController(capacity int) *BackpressureController {
	if capacity <= 0 {
		panic("backpressure capacity must be positive")
	}
	return &BackpressureController{capacity: int64(capacity)}
}

// TryAcquire reserves a slot. It returns false, and counts a rejection, when
// the controller is at capacity. Every successful call must be paired with Release.
func (bc *BackpressureController) TryAcquire() bool {
	for {
		current := bc.currentLoad.Load()
		if current >= bc.capacity {
			bc.rejectedCount.Add(1)
			return false
		}
		if bc.currentLoad.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

// Release returns a slot taken by TryAcquire
func (bc *BackpressureController) Release() {
	bc.currentLoad.Add(-1)
}

// GetMetrics returns current backpressure metrics
func (bc *BackpressureController) GetMetrics() BackpressureMetrics {
	currentLoad := bc.currentLoad.Load()
	return BackpressureMetrics{
		Capacity:      bc.capacity,
		CurrentLoad:   currentLoad,
		RejectedCount: bc.rejectedCount.Load(),
		Utilization:   float64(currentLoad) / float64(bc.capacity) * 100,
	}
}

// BackpressureMetrics provides backpressure statistics
type BackpressureMetrics struct {
	Capacity      int64   // Maximum in-flight requests
	CurrentLoad   int64   // Requests currently in flight
	RejectedCount int64   // Total rejected requests
	Utilization   float64 // CurrentLoad as a percentage of Capacity
}
