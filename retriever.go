package guardowl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ScoredReport is a report paired with its similarity distance.
type ScoredReport struct {
	Report
	Distance float64
}

// ReportStore is the document-store boundary for security reports.
type ReportStore interface {
	// Get runs an exact-match metadata query.
	Get(ctx context.Context, filter *Filter, limit int) ([]Report, error)

	// Query runs a ranked similarity search with an optional pre-filter.
	Query(ctx context.Context, text string, filter *Filter, k int) ([]ScoredReport, error)
}

const (
	msgNoMatches    = "No reports matching those criteria could be found in the database."
	msgInvalidQuery = "Query must include either semantic search text or metadata filters."
)

// Retriever executes structured queries against the report store and
// shapes outcomes into uniform envelopes. Store faults and translation
// failures are absorbed here; the agent loop above always gets a
// textual result, never a raised error.
type Retriever struct {
	store     ReportStore
	translate TranslateQueryFn
	logger    *slog.Logger
}

// NewRetriever creates a retriever. The translate function may be nil
// when only Execute (pre-structured queries) is used.
func NewRetriever(store ReportStore, translate TranslateQueryFn, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{store: store, translate: translate, logger: logger}
}

// Search translates a natural-language query and executes it.
func (r *Retriever) Search(ctx context.Context, userQuery string) ResultEnvelope {
	if r.translate == nil {
		return failureEnvelope("Error processing query: no query translator configured")
	}

	params, err := r.translate(ctx, userQuery)
	if err != nil {
		r.logger.Error("query translation failed",
			slog.String("query", userQuery),
			slog.String("error", err.Error()),
		)
		return failureEnvelope(fmt.Sprintf("Error processing query: %v", err))
	}

	return r.Execute(ctx, params)
}

// Execute runs the structured query. Mode precedence: filter-only when
// semantic text is absent, semantic when present, invalid when neither
// is set. Zero matches is a failure envelope, not an error.
func (r *Retriever) Execute(ctx context.Context, params *QueryParams) ResultEnvelope {
	if params == nil {
		return failureEnvelope(msgInvalidQuery)
	}
	switch {
	case params.SemanticText == "" && params.Filter != nil:
		return r.executeFilter(ctx, params)
	case params.SemanticText != "":
		return r.executeSemantic(ctx, params)
	default:
		return failureEnvelope(msgInvalidQuery)
	}
}

func (r *Retriever) executeFilter(ctx context.Context, params *QueryParams) ResultEnvelope {
	reports, err := r.store.Get(ctx, params.Filter, params.Limit)
	if err != nil {
		return r.storeFailure("filter query", err)
	}
	if len(reports) == 0 {
		return failureEnvelope(msgNoMatches)
	}

	results := make([]ReportResult, 0, len(reports))
	for _, report := range reports {
		results = append(results, ReportResult{
			ID:       report.ID,
			Text:     report.Text,
			Metadata: report.Metadata,
		})
	}

	r.logger.Debug("filter query executed", slog.Int("results", len(results)))
	return successEnvelope(results)
}

func (r *Retriever) executeSemantic(ctx context.Context, params *QueryParams) ResultEnvelope {
	scored, err := r.store.Query(ctx, params.SemanticText, params.Filter, params.Limit)
	if err != nil {
		return r.storeFailure("semantic query", err)
	}
	if len(scored) == 0 {
		return failureEnvelope(msgNoMatches)
	}

	results := make([]ReportResult, 0, len(scored))
	for _, hit := range scored {
		distance := hit.Distance
		results = append(results, ReportResult{
			ID:       hit.ID,
			Text:     hit.Text,
			Metadata: hit.Metadata,
			Distance: &distance,
		})
	}

	r.logger.Debug("semantic query executed",
		slog.String("text", params.SemanticText),
		slog.Int("results", len(results)),
	)
	return successEnvelope(results)
}

func (r *Retriever) storeFailure(op string, err error) ResultEnvelope {
	r.logger.Error("report store query failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)

	var syntaxErr *FilterSyntaxError
	if errors.As(err, &syntaxErr) {
		return failureEnvelope(fmt.Sprintf("Invalid filter: %s", syntaxErr.Detail))
	}
	return failureEnvelope(fmt.Sprintf("Error executing query: %v", err))
}

func successEnvelope(results []ReportResult) ResultEnvelope {
	return ResultEnvelope{
		Success: true,
		Count:   len(results),
		Message: fmt.Sprintf("Retrieved %d reports", len(results)),
		Results: results,
	}
}

func failureEnvelope(message string) ResultEnvelope {
	return ResultEnvelope{
		Success: false,
		Count:   0,
		Message: message,
		Results: []ReportResult{},
	}
}
