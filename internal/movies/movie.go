package movies

import "github.com/dannyrandall/moviecatalog/internal/keys"

// Movie is a movie row. Fields after Year are only present on seeded rows.
type Movie struct {
	PK string `json:"pk" dynamodbav:"pk"`
	SK string `json:"sk" dynamodbav:"sk"`

	ID          int    `json:"id" dynamodbav:"id"`
	Title       string `json:"title" dynamodbav:"title"`
	Overview    string `json:"overview,omitempty" dynamodbav:"overview,omitempty"`
	ReleaseDate string `json:"release_date,omitempty" dynamodbav:"release_date,omitempty"`
	Year        int    `json:"year,omitempty" dynamodbav:"year,omitempty"`

	Adult            bool    `json:"adult,omitempty" dynamodbav:"adult,omitempty"`
	BackdropPath     string  `json:"backdrop_path,omitempty" dynamodbav:"backdrop_path,omitempty"`
	GenreIDs         []int   `json:"genre_ids,omitempty" dynamodbav:"genre_ids,omitempty"`
	OriginalLanguage string  `json:"original_language,omitempty" dynamodbav:"original_language,omitempty"`
	OriginalTitle    string  `json:"original_title,omitempty" dynamodbav:"original_title,omitempty"`
	Popularity       float64 `json:"popularity,omitempty" dynamodbav:"popularity,omitempty"`
	PosterPath       string  `json:"poster_path,omitempty" dynamodbav:"poster_path,omitempty"`
	Video            bool    `json:"video,omitempty" dynamodbav:"video,omitempty"`
	VoteAverage      float64 `json:"vote_average,omitempty" dynamodbav:"vote_average,omitempty"`
	VoteCount        int     `json:"vote_count,omitempty" dynamodbav:"vote_count,omitempty"`
}

func (m Movie) Key() keys.Key {
	return keys.Movie(m.ID)
}

// CastMember is an actor's role in a movie.
type CastMember struct {
	PK string `json:"pk" dynamodbav:"pk"`
	SK string `json:"sk" dynamodbav:"sk"`

	MovieID         int    `json:"movieId" dynamodbav:"movieId"`
	ActorID         int    `json:"actorId" dynamodbav:"actorId"`
	ActorName       string `json:"actorName" dynamodbav:"actorName"`
	RoleName        string `json:"roleName" dynamodbav:"roleName"`
	RoleDescription string `json:"roleDescription,omitempty" dynamodbav:"roleDescription,omitempty"`
}

func (c CastMember) Key() keys.Key {
	return keys.CastMember(c.MovieID, c.ActorID)
}

// Award is an award given to a movie or an actor. The award body is the row's sort key.
type Award struct {
	PK string `json:"pk" dynamodbav:"pk"`
	SK string `json:"sk" dynamodbav:"sk"`

	AwardID  string `json:"awardId,omitempty" dynamodbav:"awardId,omitempty"`
	Category string `json:"category,omitempty" dynamodbav:"category,omitempty"`
	Year     int    `json:"year,omitempty" dynamodbav:"year,omitempty"`
	MovieID  *int   `json:"movieId,omitempty" dynamodbav:"movieId,omitempty"`
	ActorID  *int   `json:"actorId,omitempty" dynamodbav:"actorId,omitempty"`
}
