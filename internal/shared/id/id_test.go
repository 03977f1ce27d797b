package id

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	gen := NewGenerator()

	id1 := gen.Generate()
	id2 := gen.Generate()

	if id1.String() == id2.String() {
		t.Error("Generated IDs should be unique")
	}
	if id2.Compare(id1) <= 0 {
		t.Errorf("IDs from one generator should increase: %s then %s", id1, id2)
	}
}

func TestGenerateString(t *testing.T) {
	id := NewGenerator().GenerateString()

	if len(id) != 26 {
		t.Errorf("ULID should be 26 characters, got %d", len(id))
	}
}

func TestTypedIDGeneration(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		prefix string
	}{
		{"request", NewRequestID().String(), "req_"},
		{"span", NewSpanID().String(), "span_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.HasPrefix(tt.id, tt.prefix) {
				t.Errorf("ID should start with %q, got: %s", tt.prefix, tt.id)
			}
			if !IsValid(strings.TrimPrefix(tt.id, tt.prefix)) {
				t.Errorf("ULID part should be valid: %s", tt.id)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	if !IsValid(NewGenerator().GenerateString()) {
		t.Error("Generated ULID should be valid")
	}

	for _, id := range []string{"", "invalid", "1234567890", "zzzzzzzzzzzzzzzzzzzzzzzzzzz"} {
		if IsValid(id) {
			t.Errorf("ID should be invalid: %s", id)
		}
	}
}

func TestAcceptable(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"req_01HZX3", true},
		{"7f8e-upstream-id", true},
		{"", false},
		{"has space", false},
		{"line\nbreak", false},
		{"café", false},
		{strings.Repeat("a", maxExternalID), true},
		{strings.Repeat("a", maxExternalID+1), false},
	}

	for _, tt := range tests {
		if got := Acceptable(tt.id); got != tt.want {
			t.Errorf("Acceptable(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestTimestamp(t *testing.T) {
	before := time.Now().Add(-time.Millisecond)
	reqID := NewRequestID()
	after := time.Now().Add(time.Millisecond)

	ts, err := Timestamp(reqID.String())
	if err != nil {
		t.Fatalf("Failed to extract timestamp: %v", err)
	}
	if ts.Before(before) || ts.After(after) {
		t.Errorf("Timestamp %v should be between %v and %v", ts, before, after)
	}

	if _, err := Timestamp("req_nope"); err == nil {
		t.Error("Expected error for invalid ULID")
	}
}

func TestDeterministicEntropy(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, 64)
	a := NewGeneratorWithEntropy(bytes.NewReader(seed)).Generate()
	b := NewGeneratorWithEntropy(bytes.NewReader(seed)).Generate()

	if !bytes.Equal(a.Entropy(), b.Entropy()) {
		t.Error("Same entropy source should yield the same entropy bytes")
	}
}

func TestConcurrentGeneration(t *testing.T) {
	gen := NewGenerator()
	const goroutines, perRoutine = 8, 200

	var (
		mu   sync.Mutex
		seen = make(map[string]bool, goroutines*perRoutine)
		wg   sync.WaitGroup
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perRoutine; j++ {
				id := gen.GenerateString()
				mu.Lock()
				if seen[id] {
					t.Errorf("Duplicate ID generated: %s", id)
				}
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != goroutines*perRoutine {
		t.Errorf("Expected %d unique IDs, got %d", goroutines*perRoutine, len(seen))
	}
}

func TestDefaultGenerator(t *testing.T) {
	if Default() != Default() {
		t.Error("Default should return the same generator")
	}
}

func BenchmarkGenerateWithPrefix(b *testing.B) {
	gen := NewGenerator()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = gen.GenerateWithPrefix(RequestPrefix)
	}
}
