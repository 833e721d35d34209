package filterplan

// RangeClause restricts a numeric column (or the derived days-on-market
// expression) to an optional min/max window.
type RangeClause struct {
	Field string
	Min   *float64
	Max   *float64
}

// SetClause restricts a column to a membership set.
type SetClause struct {
	Field  string
	Values []string
}

// LocationClause is the dual-mode city/zip predicate: when both sets are
// populated the match is "city IN cities OR zip IN zips"; with one set only
// that side applies.
type LocationClause struct {
	Cities   []string
	ZipCodes []string
}

// KeywordClause OR-matches case-insensitive substrings against descriptions.
type KeywordClause struct {
	Terms []string
}

// ThresholdClause runs after the windowed aggregation, against an aggregate
// column such as biggest_price_drop.
type ThresholdClause struct {
	Field string
	Min   float64
}

// Field names the renderer knows how to place. DaysOnMarket is the derived
// current value, not the stored event column.
const (
	FieldPrice            = "price"
	FieldSqFt             = "sq_ft"
	FieldBeds             = "beds"
	FieldBaths            = "baths"
	FieldYearBuilt        = "year_built"
	FieldPricePerSqFt     = "price_per_sq_ft"
	FieldDaysOnMarket     = "current_days_on_market"
	FieldPropertyType     = "property_type"
	FieldBiggestPriceDrop = "biggest_price_drop"
)

// Plan is the ordered predicate set compiled from Criteria. Base clauses and
// keywords filter rows before windowing; PostAggregate filters after.
type Plan struct {
	Ranges        []RangeClause
	Location      *LocationClause
	Sets          []SetClause
	Keywords      *KeywordClause
	PostAggregate *ThresholdClause
}

// Empty reports whether the plan applies no predicate beyond the implicit
// active-listing restriction.
func (p Plan) Empty() bool {
	return len(p.Ranges) == 0 && p.Location == nil && len(p.Sets) == 0 &&
		p.Keywords == nil && p.PostAggregate == nil
}

// Compile validates the criteria and lowers it into a Plan.
//
// Counties and EntireState compile to no clause: entire-state is the absence
// of a location restriction, and county scoping is not represented in the
// listing rows.
func Compile(c Criteria) (Plan, error) {
	if err := c.Validate(); err != nil {
		return Plan{}, err
	}

	var plan Plan
	addRange := func(field string, min, max *float64) {
		if min == nil && max == nil {
			return
		}
		plan.Ranges = append(plan.Ranges, RangeClause{Field: field, Min: min, Max: max})
	}
	addRange(FieldPrice, c.MinPrice, c.MaxPrice)
	addRange(FieldSqFt, intToFloat(c.MinSqFt), intToFloat(c.MaxSqFt))
	addRange(FieldBeds, intToFloat(c.MinBeds), intToFloat(c.MaxBeds))
	addRange(FieldBaths, intToFloat(c.MinBaths), intToFloat(c.MaxBaths))
	addRange(FieldYearBuilt, intToFloat(c.MinYearBuilt), intToFloat(c.MaxYearBuilt))
	addRange(FieldPricePerSqFt, c.MinPricePerSqFt, c.MaxPricePerSqFt)
	addRange(FieldDaysOnMarket, intToFloat(c.MinDaysOnMarket), intToFloat(c.MaxDaysOnMarket))

	if len(c.Cities) > 0 || len(c.ZipCodes) > 0 {
		plan.Location = &LocationClause{Cities: c.Cities, ZipCodes: c.ZipCodes}
	}
	if len(c.PropertyTypes) > 0 {
		plan.Sets = append(plan.Sets, SetClause{Field: FieldPropertyType, Values: c.PropertyTypes})
	}
	if terms := c.KeywordTerms(); len(terms) > 0 {
		plan.Keywords = &KeywordClause{Terms: terms}
	}
	if c.PriceReduction != nil {
		plan.PostAggregate = &ThresholdClause{Field: FieldBiggestPriceDrop, Min: *c.PriceReduction}
	}
	return plan, nil
}
