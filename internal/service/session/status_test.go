package session

import (
	"errors"
	"testing"
)

func TestResultOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want StopResult
	}{
		{"success", nil, StopResult{Success: true}},
		{"failure", errors.New("end session record: boom"), StopResult{Success: false, Error: "end session record: boom"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResultOf(tt.err); got != tt.want {
				t.Errorf("ResultOf(%v) = %+v, want %+v", tt.err, got, tt.want)
			}
		})
	}
}
