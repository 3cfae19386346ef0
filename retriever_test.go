package guardowl

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// fakeReportStore is a scripted ReportStore for tests.
type fakeReportStore struct {
	reports  []Report
	scored   []ScoredReport
	getErr   error
	queryErr error

	lastFilter *Filter
	lastLimit  int
	lastText   string
}

func (s *fakeReportStore) Get(ctx context.Context, filter *Filter, limit int) ([]Report, error) {
	s.lastFilter = filter
	s.lastLimit = limit
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.reports, nil
}

func (s *fakeReportStore) Query(ctx context.Context, text string, filter *Filter, k int) ([]ScoredReport, error) {
	s.lastText = text
	s.lastFilter = filter
	s.lastLimit = k
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.scored, nil
}

func stubTranslator(params *QueryParams, err error) TranslateQueryFn {
	return func(ctx context.Context, userQuery string) (*QueryParams, error) {
		if err != nil {
			return nil, err
		}
		return params, nil
	}
}

func sampleReports(n int) []Report {
	reports := make([]Report, 0, n)
	for i := 0; i < n; i++ {
		reports = append(reports, Report{
			ID:       "RPT-00" + string(rune('1'+i)),
			Text:     "Routine patrol completed.",
			Metadata: map[string]any{"siteId": "S04"},
		})
	}
	return reports
}

func TestRetrieverExecute(t *testing.T) {
	t.Run("filter-only query", func(t *testing.T) {
		store := &fakeReportStore{reports: sampleReports(3)}
		r := NewRetriever(store, nil, testLogger())

		envelope := r.Execute(context.Background(), &QueryParams{
			Filter: Eq("siteId", "S04"),
			Limit:  1000,
		})

		if !envelope.Success {
			t.Fatalf("expected success, got %q", envelope.Message)
		}
		if envelope.Count != 3 {
			t.Errorf("Count = %d, want 3", envelope.Count)
		}
		if envelope.Message != "Retrieved 3 reports" {
			t.Errorf("Message = %q", envelope.Message)
		}
		if store.lastLimit != 1000 {
			t.Errorf("limit = %d, want 1000", store.lastLimit)
		}
		for _, result := range envelope.Results {
			if result.Distance != nil {
				t.Error("filter-only results must not carry distances")
			}
		}
	})

	t.Run("semantic query carries distances", func(t *testing.T) {
		store := &fakeReportStore{scored: []ScoredReport{
			{Report: sampleReports(1)[0], Distance: 0.12},
		}}
		r := NewRetriever(store, nil, testLogger())

		envelope := r.Execute(context.Background(), &QueryParams{
			SemanticText: "loitering",
			Limit:        5,
		})

		if !envelope.Success {
			t.Fatalf("expected success, got %q", envelope.Message)
		}
		if store.lastText != "loitering" {
			t.Errorf("text = %q", store.lastText)
		}
		if envelope.Results[0].Distance == nil || *envelope.Results[0].Distance != 0.12 {
			t.Errorf("Distance = %v", envelope.Results[0].Distance)
		}
	})

	t.Run("semantic takes precedence when both set", func(t *testing.T) {
		store := &fakeReportStore{scored: []ScoredReport{
			{Report: sampleReports(1)[0], Distance: 0.3},
		}}
		r := NewRetriever(store, nil, testLogger())

		envelope := r.Execute(context.Background(), &QueryParams{
			SemanticText: "geofence breach",
			Filter:       Eq("siteId", "S04"),
			Limit:        5,
		})

		if !envelope.Success {
			t.Fatalf("expected success, got %q", envelope.Message)
		}
		if store.lastText != "geofence breach" {
			t.Error("semantic path was not taken")
		}
		if store.lastFilter == nil {
			t.Error("filter must pass through as a pre-filter")
		}
	})

	t.Run("neither mode is invalid", func(t *testing.T) {
		store := &fakeReportStore{}
		r := NewRetriever(store, nil, testLogger())

		envelope := r.Execute(context.Background(), &QueryParams{Limit: 5})
		if envelope.Success {
			t.Fatal("expected failure")
		}
		if envelope.Message != "Query must include either semantic search text or metadata filters." {
			t.Errorf("Message = %q", envelope.Message)
		}
	})

	t.Run("nil params is invalid, not a panic", func(t *testing.T) {
		r := NewRetriever(&fakeReportStore{}, nil, testLogger())

		envelope := r.Execute(context.Background(), nil)
		if envelope.Success {
			t.Fatal("expected failure")
		}
		if envelope.Message != msgInvalidQuery {
			t.Errorf("Message = %q", envelope.Message)
		}
	})

	t.Run("zero matches is an unsuccessful envelope", func(t *testing.T) {
		store := &fakeReportStore{}
		r := NewRetriever(store, nil, testLogger())

		envelope := r.Execute(context.Background(), &QueryParams{
			Filter: Eq("siteId", "S99"),
			Limit:  5,
		})

		if envelope.Success {
			t.Fatal("expected failure")
		}
		if envelope.Message != "No reports matching those criteria could be found in the database." {
			t.Errorf("Message = %q", envelope.Message)
		}
		if envelope.Results == nil || len(envelope.Results) != 0 {
			t.Errorf("Results = %v, want empty slice", envelope.Results)
		}
	})

	t.Run("store fault is absorbed", func(t *testing.T) {
		store := &fakeReportStore{getErr: errors.New("connection refused")}
		r := NewRetriever(store, nil, testLogger())

		envelope := r.Execute(context.Background(), &QueryParams{
			Filter: Eq("siteId", "S04"),
			Limit:  5,
		})

		if envelope.Success {
			t.Fatal("expected failure")
		}
		if !strings.HasPrefix(envelope.Message, "Error executing query:") {
			t.Errorf("Message = %q", envelope.Message)
		}
	})

	t.Run("filter syntax fault gets a specific message", func(t *testing.T) {
		store := &fakeReportStore{queryErr: &FilterSyntaxError{Detail: "unsupported operator"}}
		r := NewRetriever(store, nil, testLogger())

		envelope := r.Execute(context.Background(), &QueryParams{
			SemanticText: "anything",
			Limit:        5,
		})

		if envelope.Success {
			t.Fatal("expected failure")
		}
		if envelope.Message != "Invalid filter: unsupported operator" {
			t.Errorf("Message = %q", envelope.Message)
		}
	})
}

func TestRetrieverSearch(t *testing.T) {
	t.Run("translates then executes", func(t *testing.T) {
		store := &fakeReportStore{reports: sampleReports(2)}
		translate := stubTranslator(&QueryParams{Filter: Eq("siteId", "S04"), Limit: 5}, nil)
		r := NewRetriever(store, translate, testLogger())

		envelope := r.Search(context.Background(), "all reports from S04")
		if !envelope.Success || envelope.Count != 2 {
			t.Errorf("envelope = %+v", envelope)
		}
	})

	t.Run("translation failure is absorbed", func(t *testing.T) {
		store := &fakeReportStore{}
		translate := stubTranslator(nil, &TranslationError{Attempts: 3, Err: errors.New("bad json")})
		r := NewRetriever(store, translate, testLogger())

		envelope := r.Search(context.Background(), "gibberish")
		if envelope.Success {
			t.Fatal("expected failure")
		}
		if !strings.HasPrefix(envelope.Message, "Error processing query:") {
			t.Errorf("Message = %q", envelope.Message)
		}
	})

	t.Run("nil translator is a failure envelope", func(t *testing.T) {
		r := NewRetriever(&fakeReportStore{}, nil, testLogger())
		envelope := r.Search(context.Background(), "anything")
		if envelope.Success {
			t.Fatal("expected failure")
		}
	})
}
