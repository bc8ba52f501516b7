package filter

import (
	"math/rand/v2"
	"slices"
	"testing"

	"avito-helper/models"

	"github.com/stretchr/testify/require"
)

func priced(desc string, price int) models.Listing {
	return models.Listing{Description: desc, Price: &price}
}

func unpriced(desc string) models.Listing {
	return models.Listing{Description: desc}
}

func TestApply_DropsOverCeilingAndRanksSurvivors(t *testing.T) {
	listings := []models.Listing{
		priced("cheap", 40000),
		priced("expensive", 60000),
		unpriced("no price"),
	}

	got := NewFilter(50000, DefaultLimit).Apply(slices.Values(listings))
	require.Len(t, got, 2)

	require.Equal(t, 1, got[0].Rank)
	require.Equal(t, "cheap", got[0].Description)
	require.Equal(t, 40000, *got[0].Price)

	require.Equal(t, 2, got[1].Rank)
	require.Equal(t, "no price", got[1].Description)
	require.Nil(t, got[1].Price)
}

func TestApply_CeilingIsInclusive(t *testing.T) {
	got := NewFilter(100, DefaultLimit).Apply(slices.Values([]models.Listing{priced("exact", 100), priced("over", 101)}))
	require.Len(t, got, 1)
	require.Equal(t, "exact", got[0].Description)
}

func TestApply_UnpricedAlwaysKept(t *testing.T) {
	for _, ceiling := range []int{0, 1, 50000, 1 << 30} {
		got := NewFilter(ceiling, DefaultLimit).Apply(slices.Values([]models.Listing{unpriced("a")}))
		require.Len(t, got, 1, "ceiling %d", ceiling)
	}
}

func TestApply_NoSurvivors(t *testing.T) {
	got := NewFilter(10, DefaultLimit).Apply(slices.Values([]models.Listing{priced("a", 11), priced("b", 500)}))
	require.Empty(t, got)
}

func TestApply_StopsPullingAfterLimit(t *testing.T) {
	pulled := 0
	source := func(yield func(models.Listing) bool) {
		for i := 0; i < 100; i++ {
			pulled++
			if !yield(priced("x", i)) {
				return
			}
		}
	}

	got := NewFilter(1000, DefaultLimit).Apply(source)
	require.Len(t, got, DefaultLimit)
	require.Equal(t, DefaultLimit, pulled)
	for i, l := range got {
		require.Equal(t, i+1, l.Rank)
	}
}

func TestNewFilter_DefaultLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, NewFilter(5, 0).limit)
	require.Equal(t, 3, NewFilter(5, 3).limit)
}

func TestApply_RandomSequences(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for round := 0; round < 200; round++ {
		ceiling := rng.IntN(1000)
		n := rng.IntN(60)

		var listings []models.Listing
		for i := 0; i < n; i++ {
			if rng.IntN(4) == 0 {
				listings = append(listings, unpriced("u"))
			} else {
				listings = append(listings, priced("p", rng.IntN(2000)))
			}
		}

		got := NewFilter(ceiling, DefaultLimit).Apply(slices.Values(listings))
		require.LessOrEqual(t, len(got), DefaultLimit)

		expected := 0
		for _, l := range listings {
			if l.Price == nil || *l.Price <= ceiling {
				expected++
			}
		}
		require.Equal(t, min(expected, DefaultLimit), len(got))

		for i, l := range got {
			require.Equal(t, i+1, l.Rank)
			if l.Price != nil {
				require.LessOrEqual(t, *l.Price, ceiling)
			}
		}
	}
}
