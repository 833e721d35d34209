package filterplan

import (
	"fmt"
	"strings"
)

// Query is a rendered store query with positional arguments.
type Query struct {
	SQL  string
	Args []any
}

// Expressions the base WHERE clause may reference. The alias for derived
// days-on-market cannot be used inside its own SELECT, so the expression is
// repeated.
var baseFieldExprs = map[string]string{
	FieldPrice:        "price",
	FieldSqFt:         "sq_ft",
	FieldBeds:         "beds",
	FieldBaths:        "baths",
	FieldYearBuilt:    "year_built",
	FieldPricePerSqFt: "price_per_sq_ft",
	FieldDaysOnMarket: "(CURRENT_DATE - date_listed)",
	FieldPropertyType: "lm.property_type",
}

var postAggregateExprs = map[string]string{
	FieldBiggestPriceDrop: "biggest_price_drop",
}

// MatchColumns is the ordered column list of the rendered query's final
// SELECT. The store scans rows in exactly this order.
var MatchColumns = []string{
	"mls_number", "url", "street_address", "city", "state", "zip_code",
	"images", "property_type", "property_style", "description",
	"seller_motivation", "active", "date_listed", "price", "event_date",
	"beds", "baths", "sq_ft", "year_built", "price_per_sq_ft", "status",
	"days_on_market", "current_days_on_market", "rn", "new_price",
	"price_diff", "biggest_price_drop",
}

// Render lowers a Plan into the windowed match query. Pagination applies
// after all filtering, over distinct listings' row groups.
func Render(p Plan, page, pageSize int) Query {
	if page < 1 {
		page = 1
	}
	var (
		args  []any
		conds []string
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	for _, r := range p.Ranges {
		expr := baseFieldExprs[r.Field]
		if r.Min != nil {
			conds = append(conds, fmt.Sprintf("%s >= %s", expr, arg(*r.Min)))
		}
		if r.Max != nil {
			conds = append(conds, fmt.Sprintf("%s <= %s", expr, arg(*r.Max)))
		}
	}
	if loc := p.Location; loc != nil {
		switch {
		case len(loc.Cities) > 0 && len(loc.ZipCodes) > 0:
			conds = append(conds, fmt.Sprintf("(lm.city = ANY(%s) OR lm.zip_code = ANY(%s))",
				arg(loc.Cities), arg(loc.ZipCodes)))
		case len(loc.Cities) > 0:
			conds = append(conds, fmt.Sprintf("lm.city = ANY(%s)", arg(loc.Cities)))
		default:
			conds = append(conds, fmt.Sprintf("lm.zip_code = ANY(%s)", arg(loc.ZipCodes)))
		}
	}
	for _, s := range p.Sets {
		conds = append(conds, fmt.Sprintf("%s = ANY(%s)", baseFieldExprs[s.Field], arg(s.Values)))
	}
	if p.Keywords != nil {
		patterns := make([]string, len(p.Keywords.Terms))
		for i, term := range p.Keywords.Terms {
			patterns[i] = "%" + term + "%"
		}
		conds = append(conds, fmt.Sprintf("lm.description ILIKE ANY(%s)", arg(patterns)))
	}

	baseWhere := "lm.active IS TRUE"
	if len(conds) > 0 {
		baseWhere += "\n        AND " + strings.Join(conds, "\n        AND ")
	}

	postWhere := "active IS TRUE"
	if p.PostAggregate != nil {
		postWhere += fmt.Sprintf(" AND %s >= %s",
			postAggregateExprs[p.PostAggregate.Field], arg(p.PostAggregate.Min))
	}

	lo := arg((page - 1) * pageSize)
	hi := arg(page * pageSize)

	sql := fmt.Sprintf(`WITH base_listings AS (
    SELECT DISTINCT ON (mls_number, price)
        mls_number, url, street_address, lm.city, lm.state, lm.zip_code,
        images, lm.property_type, property_style, description,
        seller_motivation, active, date_listed, price, event_date,
        beds, baths, sq_ft, year_built, price_per_sq_ft, status,
        days_on_market,
        (CURRENT_DATE - date_listed) AS current_days_on_market
    FROM listing_events
    JOIN listing_meta lm USING (mls_number)
    WHERE %s
    ORDER BY mls_number, price, event_date DESC
),
price_lead AS (
    SELECT *,
        ROW_NUMBER() OVER (PARTITION BY mls_number ORDER BY event_date DESC) AS rn,
        LEAD(price) OVER (PARTITION BY mls_number ORDER BY event_date) AS new_price
    FROM base_listings
),
final_fields AS (
    SELECT *,
        (new_price - price) AS price_diff,
        MAX(ABS(new_price - price)) OVER (PARTITION BY mls_number) AS biggest_price_drop
    FROM price_lead
),
filtered AS (
    SELECT * FROM final_fields
    WHERE %s
),
paged AS (
    SELECT *, DENSE_RANK() OVER (ORDER BY mls_number) AS listing_rank
    FROM filtered
)
SELECT %s
FROM paged
WHERE listing_rank > %s AND listing_rank <= %s
ORDER BY mls_number, rn`,
		baseWhere, postWhere, strings.Join(MatchColumns, ", "), lo, hi)

	return Query{SQL: sql, Args: args}
}
