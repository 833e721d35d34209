package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wasatchdata/listingradar/internal/listing"
)

func completionBody(content string) string {
	payload := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	}
	data, _ := json.Marshal(payload)
	return string(data)
}

func TestClassifyParsesArrayWithCommentary(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		content := "Sure! Here is my analysis:\n" +
			`[{"mls_number": "111", "seller_motivation": true}, {"mls_number": "222", "seller_motivation": false}]` +
			"\nLet me know if you need anything else."
		fmt.Fprint(w, completionBody(content))
	}))
	defer srv.Close()

	client := New(Config{APIKey: "test-key", BaseURL: srv.URL}, zap.NewNop())
	flags, err := client.Classify(context.Background(), []listing.DescriptionPair{
		{MLSNumber: "111", Description: "must sell fast"},
		{MLSNumber: "222", Description: "lovely home"},
	})
	require.NoError(t, err)
	require.Equal(t, map[string]bool{"111": true, "222": false}, flags)
}

func TestClassifyMalformedBatchDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			fmt.Fprint(w, completionBody("I could not produce structured output today."))
			return
		}
		fmt.Fprint(w, completionBody(`[{"mls_number": "33", "seller_motivation": true}]`))
	}))
	defer srv.Close()

	// Batch size 2 splits three pairs into two calls; the first response is
	// unparseable and must only drop its own ids.
	client := New(Config{APIKey: "k", BaseURL: srv.URL, BatchSize: 2}, zap.NewNop())
	flags, err := client.Classify(context.Background(), []listing.DescriptionPair{
		{MLSNumber: "11", Description: "a"},
		{MLSNumber: "22", Description: "b"},
		{MLSNumber: "33", Description: "priced to sell"},
	})
	require.NoError(t, err)
	require.Equal(t, map[string]bool{"33": true}, flags)
	require.EqualValues(t, 2, calls.Load())

	_, missing := flags["11"]
	require.False(t, missing)
}

func TestClassifyServerErrorSkipsBatch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(Config{APIKey: "k", BaseURL: srv.URL}, zap.NewNop())
	flags, err := client.Classify(context.Background(), []listing.DescriptionPair{
		{MLSNumber: "1", Description: "x"},
	})
	require.NoError(t, err)
	require.Empty(t, flags)
}

func TestParseFlagArrayPicksLastArray(t *testing.T) {
	t.Parallel()

	content := `The input was [{"mls_number": "1"}] and my answer is:
[{"mls_number": "1", "seller_motivation": false}]`
	records, err := parseFlagArray(content)
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "1", records[0].MLSNumber)
	require.False(t, records[0].SellerMotivation)

	_, err = parseFlagArray("no structure here")
	require.Error(t, err)
}
