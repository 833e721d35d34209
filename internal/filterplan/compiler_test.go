package filterplan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestCompileEmptyCriteriaMatchesEverything(t *testing.T) {
	t.Parallel()

	plan, err := Compile(Criteria{})
	require.NoError(t, err)
	require.True(t, plan.Empty())

	q := Render(plan, 1, 500)
	// Only the active restriction and the pagination bounds remain.
	require.Len(t, q.Args, 2)
	require.Equal(t, 0, q.Args[0])
	require.Equal(t, 500, q.Args[1])
	require.NotContains(t, q.SQL, ">= $3")
}

func TestCompileRangeAndKeywordClauses(t *testing.T) {
	t.Parallel()

	plan, err := Compile(Criteria{
		MinPrice:        floatPtr(400000),
		MaxPrice:        floatPtr(600000),
		MinDaysOnMarket: intPtr(30),
		Keywords:        " Horse Property , shop,  ",
	})
	require.NoError(t, err)
	require.Len(t, plan.Ranges, 2)
	require.NotNil(t, plan.Keywords)
	require.Equal(t, []string{"horse property", "shop"}, plan.Keywords.Terms)

	q := Render(plan, 1, 500)
	require.Contains(t, q.SQL, "price >= $1")
	require.Contains(t, q.SQL, "price <= $2")
	require.Contains(t, q.SQL, "(CURRENT_DATE - date_listed) >= $3")
	require.Contains(t, q.SQL, "lm.description ILIKE ANY($4)")
	require.Equal(t, []string{"%horse property%", "%shop%"}, q.Args[3])
}

func TestCompileCityOnlyLocation(t *testing.T) {
	t.Parallel()

	plan, err := Compile(Criteria{Cities: []string{"Provo"}})
	require.NoError(t, err)
	require.NotNil(t, plan.Location)

	q := Render(plan, 1, 500)
	require.Contains(t, q.SQL, "lm.city = ANY($1)")
	require.NotContains(t, q.SQL, "zip_code = ANY")
}

func TestCompileCityAndZipIsDisjunction(t *testing.T) {
	t.Parallel()

	plan, err := Compile(Criteria{
		Cities:   []string{"Provo", "Orem"},
		ZipCodes: []string{"84604"},
	})
	require.NoError(t, err)

	q := Render(plan, 1, 500)
	require.Contains(t, q.SQL, "(lm.city = ANY($1) OR lm.zip_code = ANY($2))")
}

func TestCompilePriceReductionIsPostAggregate(t *testing.T) {
	t.Parallel()

	plan, err := Compile(Criteria{PriceReduction: floatPtr(10000)})
	require.NoError(t, err)
	require.Empty(t, plan.Ranges)
	require.NotNil(t, plan.PostAggregate)
	require.Equal(t, FieldBiggestPriceDrop, plan.PostAggregate.Field)

	q := Render(plan, 1, 500)
	// The threshold lands in the post-window WHERE, not the base CTE.
	base := q.SQL[:strings.Index(q.SQL, "price_lead AS")]
	require.NotContains(t, base, "biggest_price_drop")
	require.Contains(t, q.SQL, "active IS TRUE AND biggest_price_drop >= $1")
}

func TestRenderPagesDistinctListingGroups(t *testing.T) {
	t.Parallel()

	plan, err := Compile(Criteria{})
	require.NoError(t, err)

	q := Render(plan, 3, 500)
	require.Contains(t, q.SQL, "DENSE_RANK() OVER (ORDER BY mls_number) AS listing_rank")
	require.Contains(t, q.SQL, "listing_rank > $1 AND listing_rank <= $2")
	require.Equal(t, 1000, q.Args[0])
	require.Equal(t, 1500, q.Args[1])
}

func TestValidateRejectsBadInput(t *testing.T) {
	t.Parallel()

	err := Criteria{MotivationTier: "EXTREME"}.Validate()
	require.Error(t, err)

	err = Criteria{Cadence: "hourly"}.Validate()
	require.Error(t, err)

	err = Criteria{MinPrice: floatPtr(500000), MaxPrice: floatPtr(100)}.Validate()
	require.Error(t, err)

	require.NoError(t, Criteria{MotivationTier: TierModerate, Cadence: CadenceDaily}.Validate())
}
