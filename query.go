package guardowl

const (
	// DefaultResultLimit is used when a query gives no explicit count.
	DefaultResultLimit = 5

	// MaxResultLimit is the sentinel cap used for "all"/"everything"
	// queries.
	MaxResultLimit = 1000
)

// QueryParams is the structured retrieval request every report lookup
// conforms to. It is produced by the query translator and consumed by
// the retriever.
type QueryParams struct {
	// SemanticText is the similarity-search concept ("what happened").
	// Empty means pure metadata filtering.
	SemanticText string

	// Filter is the exact-match predicate over report metadata
	// (who, where, when). Nil means no filtering.
	Filter *Filter

	// Limit caps the number of results. Must be positive.
	Limit int
}

// Validate checks the parameters describe an executable retrieval: a
// positive limit, a well-formed filter, and at least one of semantic
// text or filter present.
func (p *QueryParams) Validate() error {
	if p.SemanticText == "" && p.Filter == nil {
		return ErrEmptyQuery
	}
	if p.Limit <= 0 {
		return ErrInvalidInput
	}
	if p.Filter != nil {
		if err := p.Filter.Validate(); err != nil {
			return err
		}
	}
	return nil
}
