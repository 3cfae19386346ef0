// Package weaviate implements the report store on Weaviate.
package weaviate

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	guardowl "github.com/guardowl/guardowl"
)

// Property names on the report class. Weaviate object ids must be UUIDs,
// so the report's own id lives in a regular property.
const (
	propReportID = "reportId"
	propText     = "text"
)

// Store is a Weaviate-backed report store. Vectors are supplied
// externally through the embed function; the class uses no vectorizer
// module.
type Store struct {
	client *weaviate.Client
	class  string
	embed  guardowl.EmbedFn
	logger *slog.Logger
}

// Config holds store settings.
type Config struct {
	// Class is the Weaviate class name for reports.
	Class string

	// Embed produces query and document vectors. Nil disables semantic
	// search and ingestion vectors.
	Embed guardowl.EmbedFn

	Logger *slog.Logger
}

// New creates a Weaviate report store.
func New(client *weaviate.Client, cfg Config) *Store {
	if cfg.Class == "" {
		cfg.Class = "SecurityReport"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Store{
		client: client,
		class:  cfg.Class,
		embed:  cfg.Embed,
		logger: cfg.Logger,
	}
}

// EnsureSchema creates the report class if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	exists, err := s.client.Schema().ClassExistenceChecker().
		WithClassName(s.class).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("checking class %s: %w", s.class, err)
	}
	if exists {
		return nil
	}

	class := &models.Class{
		Class:      s.class,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: propReportID, DataType: []string{"text"}},
			{Name: propText, DataType: []string{"text"}},
			{Name: "siteId", DataType: []string{"text"}},
			{Name: "guardId", DataType: []string{"text"}},
			{Name: "timestamp", DataType: []string{"int"}},
			{Name: "date", DataType: []string{"text"}},
		},
	}
	if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
		return fmt.Errorf("creating class %s: %w", s.class, err)
	}

	s.logger.Info("created report class", slog.String("class", s.class))
	return nil
}

// Count returns the number of stored reports.
func (s *Store) Count(ctx context.Context) (int, error) {
	resp, err := s.client.GraphQL().Aggregate().
		WithClassName(s.class).
		WithFields(graphql.Field{
			Name:   "meta",
			Fields: []graphql.Field{{Name: "count"}},
		}).
		Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("counting reports: %w", err)
	}
	if len(resp.Errors) > 0 {
		return 0, fmt.Errorf("counting reports: %s", resp.Errors[0].Message)
	}

	aggregate, ok := resp.Data["Aggregate"].(map[string]any)
	if !ok {
		return 0, fmt.Errorf("unexpected aggregate response shape")
	}
	entries, ok := aggregate[s.class].([]any)
	if !ok || len(entries) == 0 {
		return 0, nil
	}
	entry, _ := entries[0].(map[string]any)
	meta, _ := entry["meta"].(map[string]any)
	count, _ := meta["count"].(float64)
	return int(count), nil
}

// Ingest writes reports into the class, vectorizing each text when an
// embed function is configured. Object ids derive from the report id so
// re-ingestion is idempotent.
func (s *Store) Ingest(ctx context.Context, reports []guardowl.Report) error {
	for _, report := range reports {
		properties := map[string]any{
			propReportID: report.ID,
			propText:     report.Text,
		}
		for key, value := range report.Metadata {
			properties[key] = value
		}

		creator := s.client.Data().Creator().
			WithClassName(s.class).
			WithID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(report.ID)).String()).
			WithProperties(properties)

		if s.embed != nil {
			vector, err := s.embed(ctx, report.Text)
			if err != nil {
				return fmt.Errorf("embedding report %s: %w", report.ID, err)
			}
			creator = creator.WithVector(vector)
		}

		if _, err := creator.Do(ctx); err != nil {
			return fmt.Errorf("storing report %s: %w", report.ID, err)
		}
	}

	s.logger.Info("ingested reports", slog.Int("count", len(reports)))
	return nil
}

// Get runs an exact-match metadata query.
func (s *Store) Get(ctx context.Context, filter *guardowl.Filter, limit int) ([]guardowl.Report, error) {
	query := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithFields(s.reportFields(false)...).
		WithLimit(limit)

	if filter != nil {
		where, err := compileFilter(filter)
		if err != nil {
			return nil, err
		}
		query = query.WithWhere(where)
	}

	resp, err := query.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("filter query: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("filter query: %s", resp.Errors[0].Message)
	}

	hits, err := s.decodeHits(resp.Data)
	if err != nil {
		return nil, err
	}

	reports := make([]guardowl.Report, 0, len(hits))
	for _, hit := range hits {
		report, _ := decodeReport(hit)
		reports = append(reports, report)
	}
	return reports, nil
}

// Query runs a ranked similarity search with an optional pre-filter.
func (s *Store) Query(ctx context.Context, text string, filter *guardowl.Filter, k int) ([]guardowl.ScoredReport, error) {
	if s.embed == nil {
		return nil, guardowl.ErrNoEmbedder
	}

	vector, err := s.embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	query := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithFields(s.reportFields(true)...).
		WithNearVector(s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)).
		WithLimit(k)

	if filter != nil {
		where, err := compileFilter(filter)
		if err != nil {
			return nil, err
		}
		query = query.WithWhere(where)
	}

	resp, err := query.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("semantic query: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("semantic query: %s", resp.Errors[0].Message)
	}

	hits, err := s.decodeHits(resp.Data)
	if err != nil {
		return nil, err
	}

	scored := make([]guardowl.ScoredReport, 0, len(hits))
	for _, hit := range hits {
		report, distance := decodeReport(hit)
		scored = append(scored, guardowl.ScoredReport{Report: report, Distance: distance})
	}
	return scored, nil
}

func (s *Store) reportFields(withDistance bool) []graphql.Field {
	fields := []graphql.Field{
		{Name: propReportID},
		{Name: propText},
		{Name: "siteId"},
		{Name: "guardId"},
		{Name: "timestamp"},
		{Name: "date"},
	}
	if withDistance {
		fields = append(fields, graphql.Field{
			Name:   "_additional",
			Fields: []graphql.Field{{Name: "distance"}},
		})
	}
	return fields
}

func (s *Store) decodeHits(data map[string]models.JSONObject) ([]map[string]any, error) {
	get, ok := data["Get"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected query response shape")
	}
	raw, ok := get[s.class].([]any)
	if !ok {
		return nil, nil
	}

	hits := make([]map[string]any, 0, len(raw))
	for _, entry := range raw {
		if hit, ok := entry.(map[string]any); ok {
			hits = append(hits, hit)
		}
	}
	return hits, nil
}

func decodeReport(hit map[string]any) (guardowl.Report, float64) {
	var report guardowl.Report
	report.Metadata = make(map[string]any)

	distance := 0.0
	for key, value := range hit {
		switch key {
		case propReportID:
			report.ID, _ = value.(string)
		case propText:
			report.Text, _ = value.(string)
		case "_additional":
			if additional, ok := value.(map[string]any); ok {
				distance, _ = additional["distance"].(float64)
			}
		default:
			if value != nil {
				report.Metadata[key] = value
			}
		}
	}
	return report, distance
}

// compileFilter renders a predicate tree into a Weaviate where clause.
// In compiles to ContainsAny; NotIn has no native operator and compiles
// to a conjunction of NotEqual.
func compileFilter(f *guardowl.Filter) (*filters.WhereBuilder, error) {
	switch f.Op {
	case guardowl.OpEq:
		return compileComparison(f.Field, filters.Equal, f.Value)
	case guardowl.OpNe:
		return compileComparison(f.Field, filters.NotEqual, f.Value)
	case guardowl.OpGt:
		return compileComparison(f.Field, filters.GreaterThan, f.Value)
	case guardowl.OpGte:
		return compileComparison(f.Field, filters.GreaterThanEqual, f.Value)
	case guardowl.OpLt:
		return compileComparison(f.Field, filters.LessThan, f.Value)
	case guardowl.OpLte:
		return compileComparison(f.Field, filters.LessThanEqual, f.Value)

	case guardowl.OpIn:
		return compileContainsAny(f.Field, f.Values)

	case guardowl.OpNin:
		operands := make([]*filters.WhereBuilder, 0, len(f.Values))
		for _, value := range f.Values {
			operand, err := compileComparison(f.Field, filters.NotEqual, value)
			if err != nil {
				return nil, err
			}
			operands = append(operands, operand)
		}
		return filters.Where().
			WithOperator(filters.And).
			WithOperands(operands), nil

	case guardowl.OpAnd, guardowl.OpOr:
		operator := filters.And
		if f.Op == guardowl.OpOr {
			operator = filters.Or
		}
		operands := make([]*filters.WhereBuilder, 0, len(f.Operands))
		for _, child := range f.Operands {
			operand, err := compileFilter(child)
			if err != nil {
				return nil, err
			}
			operands = append(operands, operand)
		}
		return filters.Where().
			WithOperator(operator).
			WithOperands(operands), nil

	default:
		return nil, &guardowl.FilterSyntaxError{Detail: fmt.Sprintf("unsupported operator %q", f.Op)}
	}
}

func compileComparison(field string, operator filters.WhereOperator, value any) (*filters.WhereBuilder, error) {
	where := filters.Where().
		WithPath([]string{field}).
		WithOperator(operator)

	switch v := value.(type) {
	case string:
		return where.WithValueString(v), nil
	case bool:
		return where.WithValueBoolean(v), nil
	case int:
		return where.WithValueInt(int64(v)), nil
	case int64:
		return where.WithValueInt(v), nil
	case float64:
		// JSON numbers arrive as float64; integral values target int
		// properties such as timestamp.
		if v == math.Trunc(v) {
			return where.WithValueInt(int64(v)), nil
		}
		return where.WithValueNumber(v), nil
	default:
		return nil, &guardowl.FilterSyntaxError{Detail: fmt.Sprintf("field %q has unsupported value type %T", field, value)}
	}
}

func compileContainsAny(field string, values []any) (*filters.WhereBuilder, error) {
	where := filters.Where().
		WithPath([]string{field}).
		WithOperator(filters.ContainsAny)

	if len(values) == 0 {
		return nil, &guardowl.FilterSyntaxError{Detail: fmt.Sprintf("field %q has an empty value list", field)}
	}

	switch values[0].(type) {
	case string:
		strs := make([]string, 0, len(values))
		for _, value := range values {
			s, ok := value.(string)
			if !ok {
				return nil, &guardowl.FilterSyntaxError{Detail: fmt.Sprintf("field %q mixes value types", field)}
			}
			strs = append(strs, s)
		}
		return where.WithValueString(strs...), nil
	case float64, int, int64:
		ints := make([]int64, 0, len(values))
		for _, value := range values {
			switch n := value.(type) {
			case float64:
				ints = append(ints, int64(n))
			case int:
				ints = append(ints, int64(n))
			case int64:
				ints = append(ints, n)
			default:
				return nil, &guardowl.FilterSyntaxError{Detail: fmt.Sprintf("field %q mixes value types", field)}
			}
		}
		return where.WithValueInt(ints...), nil
	default:
		return nil, &guardowl.FilterSyntaxError{Detail: fmt.Sprintf("field %q has unsupported value type %T", field, values[0])}
	}
}
