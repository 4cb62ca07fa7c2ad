package stats

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"thermolog/internal/core"
)

func TestRecorder_Counts(t *testing.T) {
	r := NewRecorder(clock.NewMock())
	r.Report(core.Event{Kind: core.EventReadFailed, Error: "crc check failed"})
	r.Report(core.Event{Kind: core.EventRead, Sample: 21.5})
	r.Report(core.Event{Kind: core.EventEnqueued, Sample: 21.5})
	r.Report(core.Event{Kind: core.EventPersisted, Sample: 21.5})
	r.Close()

	s := r.Compute()
	if s.Reads != 1 || s.ReadFailures != 1 {
		t.Errorf("expected 1 read and 1 failure, got %d/%d", s.Reads, s.ReadFailures)
	}
	if s.FailureRate != 50.0 {
		t.Errorf("expected 50%% failure rate, got %.1f", s.FailureRate)
	}
	if s.Enqueued != 1 || s.Persisted != 1 {
		t.Errorf("expected 1 enqueued/persisted, got %d/%d", s.Enqueued, s.Persisted)
	}
	if s.LastError != "crc check failed" {
		t.Errorf("unexpected last error %q", s.LastError)
	}
	if s.Pending() != 0 {
		t.Errorf("expected nothing pending, got %d", s.Pending())
	}
}

func TestRecorder_Temperature(t *testing.T) {
	r := NewRecorder(clock.NewMock())
	for _, v := range []core.Sample{20, 22, 21} {
		r.Report(core.Event{Kind: core.EventPersisted, Sample: v})
	}

	s := r.Compute()
	if s.Temperature == nil {
		t.Fatal("expected temperature summary")
	}
	if s.Temperature.Min != 20 || s.Temperature.Max != 22 {
		t.Errorf("expected min 20 max 22, got %v/%v", s.Temperature.Min, s.Temperature.Max)
	}
	if s.Temperature.Mean != 21 {
		t.Errorf("expected mean 21, got %v", s.Temperature.Mean)
	}
	if s.Temperature.Last != 21 {
		t.Errorf("expected last 21, got %v", s.Temperature.Last)
	}
}

func TestRecorder_NoPersistedSamples(t *testing.T) {
	r := NewRecorder(clock.NewMock())
	s := r.Compute()
	if s.Temperature != nil {
		t.Error("expected no temperature summary without persisted samples")
	}
	if s.FailureRate != 0 {
		t.Errorf("expected 0 failure rate, got %v", s.FailureRate)
	}
}

func TestRecorder_Duration(t *testing.T) {
	mock := clock.NewMock()
	r := NewRecorder(mock)

	mock.Add(90 * time.Second)
	if d := r.Duration(); d != 90*time.Second {
		t.Errorf("expected running duration 90s, got %v", d)
	}

	r.Close()
	mock.Add(time.Hour)
	if d := r.Duration(); d != 90*time.Second {
		t.Errorf("expected duration frozen at close, got %v", d)
	}
}

func TestRecorder_ThreadSafety(t *testing.T) {
	r := NewRecorder(nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Report(core.Event{Kind: core.EventPersisted, Sample: core.Sample(j)})
			}
		}()
	}
	wg.Wait()
	if got := r.Count(core.EventPersisted); got != 2000 {
		t.Errorf("expected 2000 persisted events, got %d", got)
	}
}

func TestFormatText(t *testing.T) {
	r := NewRecorder(clock.NewMock())
	r.Report(core.Event{Kind: core.EventRead, Sample: 21.5})
	r.Report(core.Event{Kind: core.EventEnqueued, Sample: 21.5})
	r.Report(core.Event{Kind: core.EventPersisted, Sample: 21.5})
	s := r.Compute()
	s.Location = "temperature_log.csv"

	var buf bytes.Buffer
	FormatText(&buf, s)
	out := buf.String()

	for _, want := range []string{"Run Summary", "Persisted:      1 of 1", "21.50°C", "Check temperature_log.csv for logged data."} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Abandoned") {
		t.Error("abandoned line should be omitted when zero")
	}
}

func TestFormatJSON(t *testing.T) {
	r := NewRecorder(clock.NewMock())
	r.Report(core.Event{Kind: core.EventPersisted, Sample: 19.0})
	r.Report(core.Event{Kind: core.EventAbandoned, Sample: 19.5})
	s := r.Compute()
	s.Location = "/var/log/temp.csv"

	var buf bytes.Buffer
	FormatJSON(&buf, s)

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if decoded["persisted"].(float64) != 1 {
		t.Errorf("expected persisted=1, got %v", decoded["persisted"])
	}
	if decoded["abandoned"].(float64) != 1 {
		t.Errorf("expected abandoned=1, got %v", decoded["abandoned"])
	}
	if decoded["location"] != "/var/log/temp.csv" {
		t.Errorf("unexpected location %v", decoded["location"])
	}
	temp, ok := decoded["temperature"].(map[string]any)
	if !ok || temp["max"].(float64) != 19.0 {
		t.Errorf("unexpected temperature block %v", decoded["temperature"])
	}
}
