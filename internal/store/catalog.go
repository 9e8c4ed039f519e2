package store

import (
	"context"

	"github.com/dannyrandall/moviecatalog/internal/apperrors"
	"github.com/dannyrandall/moviecatalog/internal/keys"
	"github.com/dannyrandall/moviecatalog/internal/movies"
)

// Catalog is the typed view of the table used by the API.
type Catalog struct {
	gw *Gateway
}

func NewCatalog(gw *Gateway) *Catalog {
	return &Catalog{gw: gw}
}

// CreateMovie stores m unless a movie with the same id exists. The returned movie carries
// its storage keys.
func (c *Catalog) CreateMovie(ctx context.Context, m movies.Movie) (movies.Movie, error) {
	key := m.Key()
	m.PK, m.SK = key.PK, key.SK

	if err := c.gw.CreateIfAbsent(ctx, key, m); err != nil {
		if apperrors.Is(err, apperrors.KindConflict) {
			return movies.Movie{}, apperrors.Conflict("Movie already exists")
		}
		return movies.Movie{}, err
	}
	return m, nil
}

func (c *Catalog) GetMovie(ctx context.Context, id int) (movies.Movie, error) {
	var m movies.Movie
	if err := c.gw.Get(ctx, keys.Movie(id), &m); err != nil {
		if apperrors.Is(err, apperrors.KindNotFound) {
			return movies.Movie{}, apperrors.NotFound("Movie not found")
		}
		return movies.Movie{}, err
	}
	return m, nil
}

// DeleteMovie removes a movie row and returns its last stored value. Cast and award rows
// for the movie are left in place.
func (c *Catalog) DeleteMovie(ctx context.Context, id int) (movies.Movie, error) {
	var m movies.Movie
	if err := c.gw.Delete(ctx, keys.Movie(id), &m); err != nil {
		if apperrors.Is(err, apperrors.KindNotFound) {
			return movies.Movie{}, apperrors.NotFound("Movie not found")
		}
		return movies.Movie{}, err
	}
	return m, nil
}

// ListMovies scans the table for movie rows.
func (c *Catalog) ListMovies(ctx context.Context) ([]movies.Movie, error) {
	prefix, sk := keys.MovieScan()

	var out []movies.Movie
	if err := c.gw.ScanPrefix(ctx, prefix, sk, &out); err != nil {
		if apperrors.Is(err, apperrors.KindNotFound) {
			return nil, apperrors.NotFound("Invalid movie Id")
		}
		return nil, err
	}
	if out == nil {
		out = []movies.Movie{}
	}
	return out, nil
}

// ListCast returns every cast member of a movie ordered by actor id as stored.
func (c *Catalog) ListCast(ctx context.Context, movieID int) ([]movies.CastMember, error) {
	var out []movies.CastMember
	if err := c.gw.Query(ctx, keys.CastRange(movieID), &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []movies.CastMember{}
	}
	return out, nil
}

func (c *Catalog) GetCastMember(ctx context.Context, movieID, actorID int) (movies.CastMember, error) {
	var cm movies.CastMember
	if err := c.gw.Get(ctx, keys.CastMember(movieID, actorID), &cm); err != nil {
		if apperrors.Is(err, apperrors.KindNotFound) {
			return movies.CastMember{}, apperrors.NotFound("Cast member not found")
		}
		return movies.CastMember{}, err
	}
	return cm, nil
}

// AwardQuery selects awards by subject. At least one of MovieID and ActorID must be set;
// Body narrows the result to one award body.
type AwardQuery struct {
	MovieID *int
	ActorID *int
	Body    string
}

// ListAwards returns the awards of the queried subjects, movie awards first.
func (c *Catalog) ListAwards(ctx context.Context, q AwardQuery) ([]movies.Award, error) {
	if q.MovieID == nil && q.ActorID == nil {
		return nil, apperrors.NotFound("Invalid Award Id")
	}

	out := []movies.Award{}
	for _, subject := range []*int{q.MovieID, q.ActorID} {
		if subject == nil {
			continue
		}
		var awards []movies.Award
		if err := c.gw.Query(ctx, keys.AwardRange(*subject, q.Body), &awards); err != nil {
			return nil, err
		}
		out = append(out, awards...)
	}
	return out, nil
}
