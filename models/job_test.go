package models

import (
	"testing"
	"time"
)

func TestCrawlJobPeriod(t *testing.T) {
	tests := []struct {
		frequency string
		want      time.Duration
	}{
		{FreqDaily, 24 * time.Hour},
		{FreqWeekly, 7 * 24 * time.Hour},
		{FreqMonthly, 30 * 24 * time.Hour},
		{"fortnightly", 7 * 24 * time.Hour},
		{"", 7 * 24 * time.Hour},
	}
	for _, tt := range tests {
		j := CrawlJob{Frequency: tt.frequency}
		if got := j.Period(); got != tt.want {
			t.Errorf("Period(%q) = %s, want %s", tt.frequency, got, tt.want)
		}
	}
}

func TestCrawlJobDue(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name    string
		nextRun *time.Time
		want    bool
	}{
		{"never ran", nil, true},
		{"overdue", &past, true},
		{"exactly due", &now, true},
		{"not yet", &future, false},
	}
	for _, tt := range tests {
		j := CrawlJob{NextRun: tt.nextRun}
		if got := j.Due(now); got != tt.want {
			t.Errorf("%s: Due = %v, want %v", tt.name, got, tt.want)
		}
	}
}
