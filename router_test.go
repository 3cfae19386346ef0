package guardowl

import "testing"

func TestRouteQuery(t *testing.T) {
	tests := []struct {
		message string
		want    intent
	}{
		{"What is the support number?", intentSupport},
		{"I need to call support", intentSupport},
		{"How do I contact support", intentSupport},
		{"what's my shift schedule", intentSchedule},
		{"When is my shift today?", intentSchedule},
		{"show me the work schedule", intentSchedule},
		{"What happened at Site S01 last night?", intentReports},
		{"Any geofence breaches last week?", intentReports},
		// Trigger words scattered across a retrieval question must not
		// hijack the query.
		{"Reports where the guard called for backup", intentReports},
		{"", intentReports},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			if got := routeQuery(tt.message); got != tt.want {
				t.Errorf("routeQuery(%q) = %v, want %v", tt.message, got, tt.want)
			}
		})
	}
}
