package store

import (
	"context"
	"errors"
	"testing"

	"github.com/dannyrandall/moviecatalog/internal/apperrors"
	"github.com/dannyrandall/moviecatalog/internal/keys"
	"github.com/dannyrandall/moviecatalog/internal/metrics"
	"github.com/dannyrandall/moviecatalog/internal/movies"
	"github.com/dannyrandall/moviecatalog/internal/store/storetest"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCatalog(t *testing.T) (*Catalog, *storetest.Table) {
	t.Helper()
	table := storetest.NewTable()
	return NewCatalog(NewGateway(table, "movies", nil, nil)), table
}

func intPtr(i int) *int { return &i }

func TestCreateMovie(t *testing.T) {
	ctx := context.Background()
	c, table := newCatalog(t)

	created, err := c.CreateMovie(ctx, movies.Movie{ID: 7, Title: "Heat", Year: 1995})
	require.NoError(t, err)
	assert.Equal(t, "m7", created.PK)
	assert.Equal(t, "xxxx", created.SK)

	got, err := c.GetMovie(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = c.CreateMovie(ctx, movies.Movie{ID: 7, Title: "Other"})
	assert.True(t, apperrors.Is(err, apperrors.KindConflict))
	assert.Equal(t, "Movie already exists", apperrors.Message(err))

	got, err = c.GetMovie(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Heat", got.Title, "a rejected create must not overwrite")
	assert.Equal(t, 1, table.Len())
}

func TestGetMovieNotFound(t *testing.T) {
	c, _ := newCatalog(t)

	_, err := c.GetMovie(context.Background(), 404)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
	assert.Equal(t, "Movie not found", apperrors.Message(err))
}

func TestDeleteMovie(t *testing.T) {
	ctx := context.Background()
	c, _ := newCatalog(t)

	_, err := c.CreateMovie(ctx, movies.Movie{ID: 3, Title: "Z"})
	require.NoError(t, err)

	old, err := c.DeleteMovie(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "Z", old.Title)

	_, err = c.GetMovie(ctx, 3)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))

	_, err = c.DeleteMovie(ctx, 3)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound), "second delete reports the row as missing")
}

func TestListMovies(t *testing.T) {
	ctx := context.Background()

	t.Run("only movie rows", func(t *testing.T) {
		c, table := newCatalog(t)
		for _, id := range []int{2, 1} {
			_, err := c.CreateMovie(ctx, movies.Movie{ID: id, Title: "t"})
			require.NoError(t, err)
		}
		require.NoError(t, table.Seed(movies.CastMember{PK: "c1", SK: "9", MovieID: 1, ActorID: 9}))
		require.NoError(t, table.Seed(movies.Award{PK: "m1", SK: "oscar"}))

		got, err := c.ListMovies(ctx)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, 1, got[0].ID)
		assert.Equal(t, 2, got[1].ID)
	})

	t.Run("empty result set", func(t *testing.T) {
		c, _ := newCatalog(t)

		got, err := c.ListMovies(ctx)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})

	t.Run("no result set", func(t *testing.T) {
		c, table := newCatalog(t)
		table.NoScanResult = true

		_, err := c.ListMovies(ctx)
		assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
	})
}

func TestCast(t *testing.T) {
	ctx := context.Background()
	c, table := newCatalog(t)
	for _, cm := range []movies.CastMember{
		{MovieID: 1, ActorID: 20, ActorName: "B", RoleName: "b"},
		{MovieID: 1, ActorID: 10, ActorName: "A", RoleName: "a"},
		{MovieID: 2, ActorID: 10, ActorName: "A", RoleName: "c"},
	} {
		k := cm.Key()
		cm.PK, cm.SK = k.PK, k.SK
		require.NoError(t, table.Seed(cm))
	}

	cast, err := c.ListCast(ctx, 1)
	require.NoError(t, err)
	require.Len(t, cast, 2)
	assert.Equal(t, 10, cast[0].ActorID)
	assert.Equal(t, 20, cast[1].ActorID)

	cast, err = c.ListCast(ctx, 99)
	require.NoError(t, err)
	assert.NotNil(t, cast)
	assert.Empty(t, cast)

	cm, err := c.GetCastMember(ctx, 2, 10)
	require.NoError(t, err)
	assert.Equal(t, "c", cm.RoleName)

	_, err = c.GetCastMember(ctx, 2, 20)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
	assert.Equal(t, "Cast member not found", apperrors.Message(err))
}

func TestListAwards(t *testing.T) {
	ctx := context.Background()
	c, table := newCatalog(t)
	for _, a := range []movies.Award{
		{PK: keys.AwardPartition(1), SK: "oscar", Category: "Best Picture", MovieID: intPtr(1)},
		{PK: keys.AwardPartition(1), SK: "bafta", Category: "Best Film", MovieID: intPtr(1)},
		{PK: keys.AwardPartition(50), SK: "oscar", Category: "Best Actor", ActorID: intPtr(50)},
	} {
		require.NoError(t, table.Seed(a))
	}

	tests := map[string]struct {
		query AwardQuery
		want  []string
	}{
		"movie":            {query: AwardQuery{MovieID: intPtr(1)}, want: []string{"Best Film", "Best Picture"}},
		"actor":            {query: AwardQuery{ActorID: intPtr(50)}, want: []string{"Best Actor"}},
		"movie with body":  {query: AwardQuery{MovieID: intPtr(1), Body: "oscar"}, want: []string{"Best Picture"}},
		"movie then actor": {query: AwardQuery{MovieID: intPtr(1), ActorID: intPtr(50), Body: "oscar"}, want: []string{"Best Picture", "Best Actor"}},
		"no awards":        {query: AwardQuery{ActorID: intPtr(7)}, want: []string{}},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := c.ListAwards(ctx, tc.query)
			require.NoError(t, err)

			categories := []string{}
			for _, a := range got {
				categories = append(categories, a.Category)
			}
			assert.Equal(t, tc.want, categories)
		})
	}

	t.Run("no subject", func(t *testing.T) {
		_, err := c.ListAwards(ctx, AwardQuery{Body: "oscar"})
		assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
		assert.Equal(t, "Invalid Award Id", apperrors.Message(err))
	})
}

func TestGatewayUpstreamErrors(t *testing.T) {
	ctx := context.Background()
	table := storetest.NewTable()
	table.Err = errors.New("throttled")
	m := metrics.New("test")
	gw := NewGateway(table, "movies", nil, m)

	var out map[string]any
	var list []map[string]any
	for name, err := range map[string]error{
		"create": gw.CreateIfAbsent(ctx, keys.Movie(1), map[string]any{"title": "x"}),
		"get":    gw.Get(ctx, keys.Movie(1), &out),
		"query":  gw.Query(ctx, keys.CastRange(1), &list),
		"delete": gw.Delete(ctx, keys.Movie(1), nil),
		"scan":   gw.ScanPrefix(ctx, keys.MoviePrefix, keys.MovieSortKey, &list),
	} {
		assert.Equal(t, apperrors.KindUpstream, apperrors.KindOf(err), name)
		assert.ErrorContains(t, err, "throttled", name)
	}
	n, err := testutil.GatherAndCount(m.Registry(), "test_store_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}
