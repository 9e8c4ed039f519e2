package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/dannyrandall/moviecatalog/internal/apperrors"
	"github.com/dannyrandall/moviecatalog/internal/auth"
	"github.com/dannyrandall/moviecatalog/internal/movies"
	"github.com/dannyrandall/moviecatalog/internal/store"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type createMovieRequest struct {
	ID          *int   `json:"id" validate:"required"`
	Title       string `json:"title" validate:"required"`
	Overview    string `json:"overview"`
	ReleaseDate string `json:"release_date"`
	Year        int    `json:"year"`
}

func (req createMovieRequest) movie() movies.Movie {
	return movies.Movie{
		ID:          *req.ID,
		Title:       req.Title,
		Overview:    strings.TrimSpace(req.Overview),
		ReleaseDate: strings.TrimSpace(req.ReleaseDate),
		Year:        req.Year,
	}
}

func (a *API) listMovies(w http.ResponseWriter, r *http.Request) {
	list, err := a.catalog.ListMovies(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, list)
}

func (a *API) getMovie(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "movieId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	m, err := a.catalog.GetMovie(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, m)
}

func (a *API) createMovie(w http.ResponseWriter, r *http.Request) {
	log := LoggerFrom(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, apperrors.Validation("Invalid JSON body"))
		return
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		writeError(w, r, apperrors.Validation("Missing body"))
		return
	}

	var req createMovieRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, r, apperrors.Validation("Invalid JSON body"))
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := a.validate.Struct(req); err != nil {
		log.Info("invalid movie", zap.Error(err))
		writeError(w, r, apperrors.Validation("Missing required fields: id, title"))
		return
	}
	if *req.ID <= 0 {
		writeError(w, r, apperrors.Validation("id must be a positive integer"))
		return
	}

	m, err := a.catalog.CreateMovie(r.Context(), req.movie())
	if err != nil {
		writeError(w, r, err)
		return
	}

	log.Info("created movie", zap.Int("id", m.ID))
	w.Header().Set("Location", "/movies/"+strconv.Itoa(m.ID))
	writeData(w, r, http.StatusCreated, m)
}

func (a *API) deleteMovie(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "movieId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if _, err := a.catalog.DeleteMovie(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	LoggerFrom(r.Context()).Info("deleted movie", zap.Int("id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listCast(w http.ResponseWriter, r *http.Request) {
	movieID, err := pathID(r, "movieId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	cast, err := a.catalog.ListCast(r.Context(), movieID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, cast)
}

func (a *API) getCastMember(w http.ResponseWriter, r *http.Request) {
	movieID, err := pathID(r, "movieId")
	if err != nil {
		writeError(w, r, err)
		return
	}
	actorID, err := pathID(r, "actorId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	cm, err := a.catalog.GetCastMember(r.Context(), movieID, actorID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, cm)
}

func (a *API) listAwards(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()

	var q store.AwardQuery
	var err error
	if q.MovieID, err = queryID(qs.Get("movie"), "movie"); err != nil {
		writeError(w, r, err)
		return
	}
	if q.ActorID, err = queryID(qs.Get("actor"), "actor"); err != nil {
		writeError(w, r, err)
		return
	}
	q.Body = strings.TrimSpace(qs.Get("awardBody"))

	awards, err := a.catalog.ListAwards(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, r, http.StatusOK, awards)
}

// protected checks the session cookie itself, whatever the router's auth mode.
func (a *API) protected(w http.ResponseWriter, r *http.Request) {
	d := a.authorizer.DecideRequest(r)
	if !d.Allowed() {
		auth.Reject(w, d)
		return
	}
	if st, ok := r.Context().Value(stateKey{}).(*requestState); ok {
		st.username = d.Username
	}
	writeMessage(w, r, http.StatusOK, "You received a super secret!!")
}

func (a *API) public(w http.ResponseWriter, r *http.Request) {
	writeMessage(w, r, http.StatusOK, "Unauthenticated access allowed")
}

// pathID parses a positive integer path parameter.
func pathID(r *http.Request, name string) (int, error) {
	id, err := parseID(chi.URLParam(r, name))
	if err != nil {
		return 0, apperrors.Validation("Invalid %s", name)
	}
	return id, nil
}

// queryID parses an optional positive integer query parameter. Blank means absent.
func queryID(raw, name string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := parseID(raw)
	if err != nil {
		return nil, apperrors.Validation("Invalid %s", name)
	}
	return &id, nil
}

var errInvalidID = errors.New("invalid id")

func parseID(raw string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, errInvalidID
	}
	return id, nil
}
