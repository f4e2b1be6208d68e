// internal/service/booking/interfaces/job_consumer_test.go
package interfaces

import "testing"

func TestNewJobConsumerAdapterDefaultsWorkers(t *testing.T) {
	a := NewJobConsumerAdapter(nil, nil, 0)
	if a.workers != 1 {
		t.Errorf("workers = %d, want 1 when unset", a.workers)
	}
	if a.done == nil {
		t.Error("done channel must be initialized")
	}
}

func TestNewJobConsumerAdapterKeepsWorkerLimit(t *testing.T) {
	if a := NewJobConsumerAdapter(nil, nil, 8); a.workers != 8 {
		t.Errorf("workers = %d, want 8", a.workers)
	}
}
