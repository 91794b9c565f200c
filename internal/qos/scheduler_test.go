// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package qos

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

type fakeSession struct{ loggedIn bool }

func (f fakeSession) IsLoggedIn() bool    { return f.loggedIn }
func (f fakeSession) EntityToken() string { return "token" }

type fakeLister struct {
	calls   atomic.Int32
	regions []RegionCandidate
	err     error
	release chan struct{}
}

func (f *fakeLister) ListCandidateRegions(ctx context.Context) ([]RegionCandidate, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	return f.regions, f.err
}

// fakeProber answers from a per-address function and counts calls.
type fakeProber struct {
	mutex   sync.Mutex
	calls   map[string]int
	total   atomic.Int32
	respond func(ctx context.Context, address string) (int, error)
}

func (f *fakeProber) Probe(ctx context.Context, address string, timeoutMs int) (int, error) {
	f.total.Add(1)
	f.mutex.Lock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[address]++
	f.mutex.Unlock()
	return f.respond(ctx, address)
}

func (f *fakeProber) callsTo(address string) int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.calls[address]
}

type fakeWriter struct {
	events chan map[string]interface{}
	err    error
	panics bool
}

func (f *fakeWriter) WriteEvent(ctx context.Context, name, namespace string, payload map[string]interface{}) error {
	if f.panics {
		panic("sink exploded")
	}
	if f.events != nil {
		f.events <- payload
	}
	return f.err
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func regionsN(n int) []RegionCandidate {
	out := make([]RegionCandidate, n)
	for i := range out {
		out[i] = RegionCandidate{Region: fmt.Sprintf("region-%02d", i), Address: fmt.Sprintf("10.0.0.%d:3075", i)}
	}
	return out
}

func constantProber(ms int) *fakeProber {
	return &fakeProber{respond: func(context.Context, string) (int, error) { return ms, nil }}
}

func TestGetResultNotLoggedIn(t *testing.T) {
	lister := &fakeLister{regions: regionsN(2)}
	prober := constantProber(5)
	s := &Scheduler{Log: quietLogger(), Session: fakeSession{loggedIn: false}, Directory: lister, Prober: prober}

	r := s.GetResult(context.Background(), 100, 3, 4)
	require.Equal(t, NotLoggedIn, r.Outcome)
	require.Empty(t, r.Regions)
	require.Equal(t, int32(0), lister.calls.Load())
	require.Equal(t, int32(0), prober.total.Load())

	s.Session = nil
	require.Equal(t, NotLoggedIn, s.GetResult(context.Background(), 100, 3, 4).Outcome)
}

func TestGetResultDirectoryFailures(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		lister := &fakeLister{err: errors.New("directory down")}
		prober := constantProber(5)
		s := &Scheduler{Log: quietLogger(), Session: fakeSession{true}, Directory: lister, Prober: prober}

		r := s.GetResult(context.Background(), 100, 3, 4)
		require.Equal(t, FailedToRetrieveServerList, r.Outcome)
		require.Contains(t, r.ErrorMessage, "directory down")
		require.Equal(t, int32(0), prober.total.Load())
	})
	t.Run("empty", func(t *testing.T) {
		lister := &fakeLister{regions: []RegionCandidate{}}
		prober := constantProber(5)
		s := &Scheduler{Log: quietLogger(), Session: fakeSession{true}, Directory: lister, Prober: prober}

		r := s.GetResult(context.Background(), 100, 3, 4)
		require.Equal(t, FailedToRetrieveServerList, r.Outcome)
		require.Equal(t, int32(0), prober.total.Load())
	})
	t.Run("failures are not cached", func(t *testing.T) {
		lister := &fakeLister{err: errors.New("directory down")}
		s := &Scheduler{Log: quietLogger(), Session: fakeSession{true}, Directory: lister, Prober: constantProber(5)}

		require.Equal(t, FailedToRetrieveServerList, s.GetResult(context.Background(), 100, 1, 1).Outcome)
		lister.err = nil
		lister.regions = regionsN(1)
		require.Equal(t, Success, s.GetResult(context.Background(), 100, 1, 1).Outcome)
		require.Equal(t, int32(2), lister.calls.Load())
	})
	t.Run("no directory", func(t *testing.T) {
		s := &Scheduler{Log: quietLogger(), Session: fakeSession{true}, Prober: constantProber(5)}
		require.Equal(t, FailedToRetrieveServerList, s.GetResult(context.Background(), 100, 1, 1).Outcome)
	})
}

func TestGetResultRanksRegions(t *testing.T) {
	regions := []RegionCandidate{
		{Region: "B", Address: "b.example:3075"},
		{Region: "A", Address: "a.example:3075"},
	}
	prober := &fakeProber{respond: func(ctx context.Context, address string) (int, error) {
		if address == "a.example:3075" {
			return 10, nil
		}
		return UnknownLatency, ErrProbeTimeout
	}}
	s := &Scheduler{Log: quietLogger(), Session: fakeSession{true}, Directory: &fakeLister{regions: regions}, Prober: prober}

	r := s.GetResult(context.Background(), 100, 10, 4)
	require.Equal(t, Success, r.Outcome)
	require.Len(t, r.Regions, 2)

	require.Equal(t, "A", r.Regions[0].Region)
	require.Equal(t, Success, r.Regions[0].Outcome)
	require.Equal(t, 10, r.Regions[0].LatencyMs)
	require.Len(t, r.Regions[0].Samples, 10)

	require.Equal(t, "B", r.Regions[1].Region)
	require.Equal(t, Timeout, r.Regions[1].Outcome)
	require.Equal(t, UnknownLatency, r.Regions[1].LatencyMs)
	require.Empty(t, r.Regions[1].Samples)

	best, ok := r.Best()
	require.True(t, ok)
	require.Equal(t, "A", best.Region)
}

func TestGetResultStopsProbingExhaustedRegions(t *testing.T) {
	regions := []RegionCandidate{{Region: "dead", Address: "dead:3075"}}
	prober := &fakeProber{respond: func(context.Context, string) (int, error) {
		return UnknownLatency, ErrProbeTimeout
	}}
	s := &Scheduler{Log: quietLogger(), Session: fakeSession{true}, Directory: &fakeLister{regions: regions}, Prober: prober}

	// A single worker makes the probe sequence deterministic.
	r := s.GetResult(context.Background(), 100, 10, 1)
	require.Equal(t, DefaultTimeoutThreshold, prober.callsTo("dead:3075"))
	require.Equal(t, Timeout, r.Regions[0].Outcome)
	require.Equal(t, DefaultTimeoutThreshold, r.Regions[0].Timeouts)
}

func TestGetResultProbeCount(t *testing.T) {
	prober := &fakeProber{respond: func(context.Context, string) (int, error) {
		time.Sleep(time.Millisecond)
		return 7, nil
	}}
	s := &Scheduler{Log: quietLogger(), Session: fakeSession{true}, Directory: &fakeLister{regions: regionsN(10)}, Prober: prober}

	r := s.GetResult(context.Background(), 100, 3, 4)
	require.Equal(t, int32(30), prober.total.Load())
	for _, region := range r.Regions {
		require.Len(t, region.Samples, 3)
		require.Equal(t, 7, region.LatencyMs)
	}
	for _, c := range regionsN(10) {
		require.Equal(t, 3, prober.callsTo(c.Address))
	}
}

func TestGetResultAllNoResult(t *testing.T) {
	prober := &fakeProber{respond: func(context.Context, string) (int, error) {
		return UnknownLatency, ErrProbeUnreachable
	}}
	s := &Scheduler{Log: quietLogger(), Session: fakeSession{true}, Directory: &fakeLister{regions: regionsN(3)}, Prober: prober}

	// Two samples per region stay under the timeout threshold of three.
	r := s.GetResult(context.Background(), 100, 2, 2)
	require.Equal(t, NoResult, r.Outcome)
	for _, region := range r.Regions {
		require.Equal(t, NoResult, region.Outcome)
	}
}

func TestGetResultAllTimeout(t *testing.T) {
	prober := &fakeProber{respond: func(context.Context, string) (int, error) {
		return UnknownLatency, ErrProbeTimeout
	}}
	s := &Scheduler{Log: quietLogger(), Session: fakeSession{true}, Directory: &fakeLister{regions: regionsN(2)}, Prober: prober}

	r := s.GetResult(context.Background(), 100, 5, 2)
	require.Equal(t, Success, r.Outcome)
	for _, region := range r.Regions {
		require.Equal(t, Timeout, region.Outcome)
	}
	_, ok := r.Best()
	require.False(t, ok)
}

func TestGetResultCachesRegions(t *testing.T) {
	lister := &fakeLister{regions: regionsN(2)}
	s := &Scheduler{Log: quietLogger(), Session: fakeSession{true}, Directory: lister, Prober: constantProber(1)}

	for i := 0; i < 3; i++ {
		require.Equal(t, Success, s.GetResult(context.Background(), 100, 1, 1).Outcome)
	}
	require.Equal(t, int32(1), lister.calls.Load())
}

func TestGetResultCoalescesDirectoryLookups(t *testing.T) {
	lister := &fakeLister{regions: regionsN(2), release: make(chan struct{})}
	s := &Scheduler{Log: quietLogger(), Session: fakeSession{true}, Directory: lister, Prober: constantProber(1)}

	var wg sync.WaitGroup
	results := make([]Result, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.GetResult(context.Background(), 100, 1, 1)
		}(i)
	}

	// Let every caller queue up behind the first lookup before releasing it.
	require.Eventually(t, func() bool { return lister.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(lister.release)
	wg.Wait()

	require.Equal(t, int32(1), lister.calls.Load())
	for _, r := range results {
		require.Equal(t, Success, r.Outcome)
	}
}

func TestGetResultCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	prober := &fakeProber{}
	prober.respond = func(ctx context.Context, address string) (int, error) {
		if prober.total.Load() >= 3 {
			cancel()
			<-ctx.Done()
			return UnknownLatency, ctx.Err()
		}
		return 5, nil
	}
	s := &Scheduler{Log: quietLogger(), Session: fakeSession{true}, Directory: &fakeLister{regions: regionsN(4)}, Prober: prober}

	r := s.GetResult(ctx, 100, 10, 1)
	require.Equal(t, context.Canceled.Error(), r.ErrorMessage)
	require.Equal(t, int32(3), prober.total.Load())
	require.Equal(t, Success, r.Outcome)
	for _, region := range r.Regions {
		require.Zero(t, region.Timeouts)
	}
}

func TestGetResultReporting(t *testing.T) {
	t.Run("reports payload", func(t *testing.T) {
		writer := &fakeWriter{events: make(chan map[string]interface{}, 1)}
		s := &Scheduler{Log: quietLogger(), Session: fakeSession{true}, Directory: &fakeLister{regions: regionsN(2)}, Prober: constantProber(3), Reporter: writer}

		r := s.GetResult(context.Background(), 100, 2, 2)
		require.Equal(t, Success, r.Outcome)

		select {
		case payload := <-writer.events:
			require.Equal(t, "Success", payload["outcome"])
			require.NotEmpty(t, payload["measurement_id"])
			require.NotEmpty(t, payload["region_set_hash"])
			require.Len(t, payload["regions"], 2)
		case <-time.After(time.Second):
			t.Fatal("no telemetry event written")
		}
	})
	t.Run("disabled by config", func(t *testing.T) {
		cfg := viper.New()
		SetConfigDefaults(cfg)
		cfg.Set("QOS_REPORT_RESULTS", false)
		writer := &fakeWriter{events: make(chan map[string]interface{}, 1)}
		s := &Scheduler{Cfg: cfg, Log: quietLogger(), Session: fakeSession{true}, Directory: &fakeLister{regions: regionsN(1)}, Prober: constantProber(3), Reporter: writer}

		s.GetResult(context.Background(), 100, 1, 1)
		select {
		case <-writer.events:
			t.Fatal("event written while reporting disabled")
		case <-time.After(50 * time.Millisecond):
		}
	})
	t.Run("sink failures are swallowed", func(t *testing.T) {
		for _, writer := range []*fakeWriter{{err: errors.New("collector down")}, {panics: true}} {
			s := &Scheduler{Log: quietLogger(), Session: fakeSession{true}, Directory: &fakeLister{regions: regionsN(1)}, Prober: constantProber(3), Reporter: writer}
			r := s.GetResult(context.Background(), 100, 1, 1)
			require.Equal(t, Success, r.Outcome)
			require.Empty(t, r.ErrorMessage)
			require.Equal(t, 3, r.Regions[0].LatencyMs)
		}
		// Give the background reports time to run so a panic would surface.
		time.Sleep(50 * time.Millisecond)
	})
}

func TestGetDefaultResultUsesConfig(t *testing.T) {
	cfg := viper.New()
	SetConfigDefaults(cfg)
	cfg.Set("QOS_SAMPLES_PER_REGION", 2)
	cfg.Set("QOS_CONCURRENCY", 1)
	prober := constantProber(4)
	s := &Scheduler{Cfg: cfg, Log: quietLogger(), Session: fakeSession{true}, Directory: &fakeLister{regions: regionsN(3)}, Prober: prober}

	r := s.GetDefaultResult(context.Background())
	require.Equal(t, Success, r.Outcome)
	require.Equal(t, int32(6), prober.total.Load())
}

func TestEventPayload(t *testing.T) {
	r := Result{
		Outcome:      Success,
		ErrorMessage: "context canceled",
		Regions: []RegionResult{
			{Region: "A", LatencyMs: 12, Samples: []int{12, 12}, Outcome: Success},
			{Region: "B", LatencyMs: UnknownLatency, Timeouts: 3, Outcome: Timeout},
		},
	}
	payload := EventPayload(r, "id-1", "hash-1")
	require.Equal(t, "id-1", payload["measurement_id"])
	require.Equal(t, "hash-1", payload["region_set_hash"])
	require.Equal(t, "context canceled", payload["error_message"])
	regions := payload["regions"].([]interface{})
	require.Equal(t, map[string]interface{}{
		"region": "B", "latency_ms": UnknownLatency, "timeouts": 3, "samples": 0, "outcome": "Timeout",
	}, regions[1])
}

func TestFingerprintIsOrderIndependent(t *testing.T) {
	a := regionsN(4)
	b := []RegionCandidate{a[3], a[1], a[0], a[2]}
	require.Equal(t, fingerprint(a), fingerprint(b))
	require.NotEqual(t, fingerprint(a), fingerprint(a[:3]))
}
