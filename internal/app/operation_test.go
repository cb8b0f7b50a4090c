package app

import (
	"errors"
	"testing"
	"time"
)

func TestNewOperation(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 30, 0, 0, time.FixedZone("CET", 3600))
	op := NewOperation("Upload", "1234 archive.zip 1.2.3", now)

	if op.ID != "20240115T093000Z" {
		t.Errorf("ID = %q, want %q", op.ID, "20240115T093000Z")
	}
	if op.Name != "Upload" || op.Parameters != "1234 archive.zip 1.2.3" {
		t.Errorf("Name, Parameters = %q, %q", op.Name, op.Parameters)
	}
	if op.Status != "success" {
		t.Errorf("Status = %q, want success", op.Status)
	}
	if got := op.Elapsed(now.Add(90 * time.Second)); got != 90*time.Second {
		t.Errorf("Elapsed() = %v, want 90s", got)
	}
}

func TestOperation_Fail(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil error", nil, "success"},
		{"error", errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation("Upload", "", time.Now())
			op.Fail(tt.err)
			if op.Status != tt.want {
				t.Errorf("Status = %q, want %q", op.Status, tt.want)
			}
		})
	}
}
