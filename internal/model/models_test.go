package model

import (
	"testing"
	"time"
)

func TestWatchItemDue(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name        string
		lastChecked time.Time
		intervalSec int
		want        bool
	}{
		{"just checked", now, 60, false},
		{"exactly at interval", now.Add(-60 * time.Second), 60, true},
		{"past interval", now.Add(-2 * time.Minute), 60, true},
		{"within interval", now.Add(-30 * time.Second), 60, false},
		{"zero value uses default", now.Add(-299 * time.Second), 0, false},
		{"zero value default elapsed", now.Add(-300 * time.Second), 0, true},
		{"never checked", time.Time{}, 60, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := WatchItem{LastChecked: tt.lastChecked, CheckIntervalSec: tt.intervalSec}
			if got := item.Due(now); got != tt.want {
				t.Errorf("Due() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusLabel(t *testing.T) {
	if StatusLabel(StatusInStock) != "In stock" {
		t.Error("unexpected in-stock label")
	}
	if StatusLabel(StatusOutOfStock) != "Out of stock" {
		t.Error("unexpected out-of-stock label")
	}
	// 未知值按有货处理
	if StatusLabel("weird") != "In stock" {
		t.Error("unexpected fallback label")
	}
}
