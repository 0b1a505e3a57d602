package util

import (
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	b := NewBackoff(time.Second, 5*time.Second)

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := b.Next(); got != w {
			t.Errorf("Next() #%d = %v, want %v", i, got, w)
		}
	}
	if got := b.Attempts(); got != len(want) {
		t.Errorf("Attempts() = %d, want %d", got, len(want))
	}

	b.Reset()
	if got := b.Next(); got != time.Second {
		t.Errorf("Next() after Reset = %v, want 1s", got)
	}
}

func TestBackoffNextAtLeast(t *testing.T) {
	tests := []struct {
		name  string
		floor time.Duration
		want  time.Duration
	}{
		{"no hint", 0, time.Second},
		{"hint below delay", 500 * time.Millisecond, time.Second},
		{"hint above delay", 3 * time.Second, 3 * time.Second},
		{"hint capped", time.Minute, 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBackoff(time.Second, 5*time.Second)
			if got := b.NextAtLeast(tt.floor); got != tt.want {
				t.Errorf("NextAtLeast(%v) = %v, want %v", tt.floor, got, tt.want)
			}
		})
	}
}
