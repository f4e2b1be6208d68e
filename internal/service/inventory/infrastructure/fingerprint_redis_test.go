package infrastructure

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubRunner struct {
	result interface{}
	err    error
	calls  int
}

func (s *stubRunner) RunScript(ctx context.Context, name string, keys []string, args ...interface{}) (interface{}, error) {
	s.calls++
	return s.result, s.err
}

func TestFingerprint_ChangedAndUnchangedCodes(t *testing.T) {
	runner := &stubRunner{result: int64(1)}
	cache := newFingerprintCacheWithRunner(runner, time.Minute)

	if !cache.CheckAndUpdate(context.Background(), "U", "2026-10-01", "10|8|false") {
		t.Error("script code 1 must map to Changed")
	}

	runner.result = int64(0)
	if cache.CheckAndUpdate(context.Background(), "U", "2026-10-01", "10|8|false") {
		t.Error("script code 0 must map to Unchanged")
	}
}

// P6: 后端不可用时每次调用都必须返回 Changed，绝不能误判为 Unchanged。
func TestFingerprint_BackendOutageFailsOpen(t *testing.T) {
	runner := &stubRunner{err: errors.New("connection refused")}
	cache := newFingerprintCacheWithRunner(runner, time.Minute)

	for i := 0; i < 5; i++ {
		if !cache.CheckAndUpdate(context.Background(), "U", "2026-10-01", "10|8|false") {
			t.Fatalf("call %d: outage must resolve to Changed", i)
		}
	}
	if runner.calls != 5 {
		t.Errorf("expected 5 backend attempts, got %d", runner.calls)
	}
}

func TestFingerprint_UnexpectedResultTypeFailsOpen(t *testing.T) {
	runner := &stubRunner{result: "garbage"}
	cache := newFingerprintCacheWithRunner(runner, time.Minute)

	if !cache.CheckAndUpdate(context.Background(), "U", "2026-10-01", "v") {
		t.Error("unparseable script result must resolve to Changed")
	}
}
