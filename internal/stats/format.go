package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// FormatText writes the summary in human-readable format.
func FormatText(w io.Writer, s *Summary) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "thermolog - Run Summary")
	fmt.Fprintln(w, "=======================")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Duration:       %v\n", s.Duration.Round(time.Second))
	fmt.Fprintf(w, "Readings:       %d (%d failed, %.1f%%)\n", s.Reads, s.ReadFailures, s.FailureRate)
	if s.Warmup > 0 {
		fmt.Fprintf(w, "Warmup:         %d discarded\n", s.Warmup)
	}
	fmt.Fprintf(w, "Persisted:      %d of %d\n", s.Persisted, s.Enqueued)
	if s.Abandoned > 0 {
		fmt.Fprintf(w, "Abandoned:      %d\n", s.Abandoned)
	}
	if t := s.Temperature; t != nil {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Temperature:")
		fmt.Fprintf(w, "  Min:    %.2f°C\n", t.Min)
		fmt.Fprintf(w, "  Mean:   %.2f°C\n", t.Mean)
		fmt.Fprintf(w, "  Max:    %.2f°C\n", t.Max)
		fmt.Fprintf(w, "  Last:   %.2f°C\n", t.Last)
	}
	if s.Location != "" {
		fmt.Fprintln(w, "")
		fmt.Fprintf(w, "Check %s for logged data.\n", s.Location)
	}
}

// FormatJSON writes the summary in JSON format.
func FormatJSON(w io.Writer, s *Summary) {
	output := struct {
		Duration     string           `json:"duration"`
		Reads        int              `json:"reads"`
		ReadFailures int              `json:"readFailures"`
		FailureRate  float64          `json:"failureRate"`
		Warmup       int              `json:"warmup"`
		Enqueued     int              `json:"enqueued"`
		Persisted    int              `json:"persisted"`
		Abandoned    int              `json:"abandoned"`
		LastError    string           `json:"lastError,omitempty"`
		Temperature  *jsonTemperature `json:"temperature,omitempty"`
		Location     string           `json:"location,omitempty"`
	}{
		Duration:     s.Duration.Round(time.Millisecond).String(),
		Reads:        s.Reads,
		ReadFailures: s.ReadFailures,
		FailureRate:  s.FailureRate,
		Warmup:       s.Warmup,
		Enqueued:     s.Enqueued,
		Persisted:    s.Persisted,
		Abandoned:    s.Abandoned,
		LastError:    s.LastError,
		Location:     s.Location,
	}
	if t := s.Temperature; t != nil {
		output.Temperature = &jsonTemperature{Min: t.Min, Max: t.Max, Mean: t.Mean, Last: t.Last}
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	_ = encoder.Encode(output) // stdout errors are unrecoverable
}

type jsonTemperature struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
	Last float64 `json:"last"`
}
