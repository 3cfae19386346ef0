package guardowl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// TranslateQueryFn maps a free-text query to structured retrieval
// parameters. Failures after all retries are *TranslationError.
type TranslateQueryFn func(ctx context.Context, userQuery string) (*QueryParams, error)

// translationAttempts bounds retries when the model output fails schema
// validation.
const translationAttempts = 3

// queryPlan is the literal model-output schema. The filter arrives in
// the store dialect and is parsed into a typed tree immediately; some
// models string-encode the object, which is tolerated as an artifact of
// flat-text output schemas.
type queryPlan struct {
	SemanticText *string         `json:"semanticText"`
	Filter       json.RawMessage `json:"filter"`
	Limit        int             `json:"limit"`
}

// NewQueryTranslator builds a translator from a JSON-mode completion
// function and a clock supplying the fixed reference "today".
func NewQueryTranslator(chatJSON ChatJSONFn, now func() time.Time, logger *slog.Logger) TranslateQueryFn {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, userQuery string) (*QueryParams, error) {
		systemPrompt := translatorSystemPrompt(now())

		params, err := withRetries(ctx, translationAttempts, logger, "query translation",
			func(ctx context.Context) (*QueryParams, error) {
				var plan queryPlan
				if err := chatJSON(ctx, systemPrompt, userQuery, &plan); err != nil {
					return nil, err
				}
				return plan.toParams()
			})
		if err != nil {
			return nil, &TranslationError{Attempts: translationAttempts, Err: err}
		}

		logger.Debug("query translated",
			slog.String("query", userQuery),
			slog.String("semantic_text", params.SemanticText),
			slog.Bool("has_filter", params.Filter != nil),
			slog.Int("limit", params.Limit),
		)

		return params, nil
	}
}

func (p *queryPlan) toParams() (*QueryParams, error) {
	filter, err := p.parseFilter()
	if err != nil {
		return nil, err
	}

	params := &QueryParams{Filter: filter, Limit: p.Limit}
	if p.SemanticText != nil {
		params.SemanticText = *p.SemanticText
	}
	if params.Limit <= 0 {
		params.Limit = DefaultResultLimit
	}
	if params.Limit > MaxResultLimit {
		params.Limit = MaxResultLimit
	}

	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}

func (p *queryPlan) parseFilter() (*Filter, error) {
	raw := p.Filter
	if len(raw) == 0 {
		return nil, nil
	}
	// Unwrap a string-encoded filter object.
	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, &FilterSyntaxError{Detail: err.Error()}
		}
		if encoded == "" {
			return nil, nil
		}
		raw = json.RawMessage(encoded)
	}
	return ParseFilter(raw)
}

// translatorSystemPrompt renders the parsing instructions with the
// reference date and precomputed timestamp anchors so the model never
// has to do calendar arithmetic itself.
func translatorSystemPrompt(ref time.Time) string {
	today := TodayRange(ref)
	yesterday := YesterdayRange(ref)
	lastWeek := LastWeekRange(ref)
	month := MonthRange(ref)
	lastMonth := LastMonthRange(ref)
	year := YearRange(ref)

	return fmt.Sprintf(`You are a query parsing specialist for a security report assistant. Translate the user's natural language query into a JSON object with this exact shape:

{
  "semanticText": string or null,
  "filter": object or null,
  "limit": integer
}

Field extraction rules:
- semanticText: the SEMANTIC concept (what happened) for vector similarity search.
  Examples: "loitering", "white vehicle incident", "geofence exit".
  Set to null ONLY when the query is purely metadata filtering (e.g. "all reports from Site S04").
- filter: EXACT constraints (who, where, when) over report metadata, as a JSON object.
  Supported operators: $eq (default), $ne, $gt, $gte, $lt, $lte, $in, $nin, $and, $or.
  Common fields:
    * siteId: site identifiers (e.g. "S04", "S01")
    * guardId: guard identifiers (e.g. "G03", "G12")
    * timestamp: Unix seconds, used with $gte/$lt for date ranges
  Use the numeric 'timestamp' field for ALL date filtering, never the 'date' string field.
- limit: parse explicit counts ("top 3"). Use %d for "all"/"everything" queries.
  Use 10 for open-ended descriptive queries ("activities", "what did X do"). Otherwise default to %d.

RELATIVE DATE HANDLING:
Today's date is %s. Resolve relative dates to half-open Unix timestamp ranges: $gte start, $lt end. Day boundaries are midnight UTC.

Key timestamps (seconds since epoch):
- today starts at %d and ends before %d ("this morning" and "tonight" both mean today)
- yesterday starts at %d and ends before %d ("last night" means yesterday)
- last week is the 7 days starting at %d and ending before %d
- this month starts at %d and ends before %d
- last month starts at %d and ends before %d
- this year starts at %d and ends before %d

Examples:

Input: "All reports from Site S04"
Output: {"semanticText": null, "filter": {"siteId": "S04"}, "limit": %d}

Input: "What happened at Site S01 last night?"
Output: {"semanticText": "incidents reports activities", "filter": {"$and": [{"siteId": "S01"}, {"timestamp": {"$gte": %d}}, {"timestamp": {"$lt": %d}}]}, "limit": 10}

Input: "Were there any geofence breaches at the west gate last week?"
Output: {"semanticText": "geofence breach west gate", "filter": {"$and": [{"timestamp": {"$gte": %d}}, {"timestamp": {"$lt": %d}}]}, "limit": 10}

Always return valid JSON. At least one of semanticText or filter must be set. ALWAYS convert relative dates like "yesterday", "last week", "last month" to Unix timestamp ranges.`,
		MaxResultLimit, DefaultResultLimit,
		ref.UTC().Format("2006-01-02"),
		today.Start, today.End,
		yesterday.Start, yesterday.End,
		lastWeek.Start, lastWeek.End,
		month.Start, month.End,
		lastMonth.Start, lastMonth.End,
		year.Start, year.End,
		MaxResultLimit,
		yesterday.Start, yesterday.End,
		lastWeek.Start, lastWeek.End,
	)
}
