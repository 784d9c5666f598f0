package todos

import (
	"errors"
	"testing"

	"github.com/felixgeelhaar/statekit"
)

func TestLifecycle_Next(t *testing.T) {
	tests := []struct {
		from    Status
		event   statekit.EventType
		want    Status
		wantErr bool
	}{
		{StatusActive, LifecycleComplete, StatusCompleted, false},
		{StatusActive, LifecycleDelete, StatusDeleted, false},
		{StatusActive, LifecycleReopen, StatusActive, true},
		{StatusCompleted, LifecycleReopen, StatusActive, false},
		{StatusCompleted, LifecycleDelete, StatusDeleted, false},
		{StatusCompleted, LifecycleComplete, StatusCompleted, true},
		{StatusDeleted, LifecycleReopen, StatusDeleted, true},
		{StatusDeleted, LifecycleDelete, StatusDeleted, true},
	}

	l, err := NewLifecycle()
	if err != nil {
		t.Fatalf("NewLifecycle() error = %v", err)
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.event), func(t *testing.T) {
			got, err := l.Next(tt.from, tt.event)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("Next() error = %v, want ErrInvalidTransition", err)
				}
			} else if err != nil {
				t.Errorf("Next() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Next() = %v, want %v", got, tt.want)
			}
		})
	}
}
