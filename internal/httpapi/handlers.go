package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hurttlocker/memeverse/internal/feed"
	"github.com/hurttlocker/memeverse/internal/meme"
)

type feedResponse struct {
	Page   int           `json:"page"`
	Filter feed.Filter   `json:"filter"`
	Sort   feed.SortMode `json:"sort"`
	Query  string        `json:"query,omitempty"`
	Memes  []meme.Record `json:"memes"`
}

type memeResponse struct {
	ID        string       `json:"id"`
	Meme      *meme.Record `json:"meme,omitempty"`
	LikeCount int          `json:"like_count"`
	Comments  []string     `json:"comments"`
}

type likeResponse struct {
	MemeID    string `json:"meme_id"`
	LikeCount int    `json:"like_count"`
}

type commentsResponse struct {
	MemeID   string   `json:"meme_id"`
	Comments []string `json:"comments"`
}

type commentRequest struct {
	Text string `json:"text"`
}

type uploadRequest struct {
	ImageURL string `json:"imageUrl"`
	Caption  string `json:"caption"`
	Username string `json:"username"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok", "version": s.d.Version}
	if s.d.Store != nil {
		stats, err := s.d.Store.Stats(r.Context())
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		resp["keys"] = stats.KeyCount
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := feed.ParseFilter(q.Get("filter"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sortMode, err := feed.ParseSort(q.Get("sort"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	page, err := intParam(q.Get("page"), "page", 1)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	records, err := s.d.Catalog.FetchPage(r.Context(), page)
	s.d.Metrics.Catalog.ObserveFetch(err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.d.Cache.Put(r.Context(), records); err != nil {
		s.writeError(w, r, err)
		return
	}

	cfg := feed.Config{Filter: filter, SortBy: sortMode, SearchQuery: q.Get("q")}
	out, err := s.d.Pipeline.Run(r.Context(), records, cfg)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feedResponse{Page: page, Filter: filter, Sort: sortMode, Query: cfg.SearchQuery, Memes: out})
}

func (s *Server) getMeme(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	resp := memeResponse{ID: id}

	rec, ok, err := s.d.Cache.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if ok {
		resp.Meme = &rec
	}
	if resp.LikeCount, err = s.d.Engagement.GetLikeCount(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	if resp.Comments, err = s.d.Engagement.GetComments(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// likeMeme likes {id}. A JSON meme record in the body is cached alongside
// the like so the leaderboard can resolve it.
func (s *Server) likeMeme(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var rec meme.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, r, meme.Invalid("body", "invalid meme record: "+err.Error()))
		return
	}

	var (
		n   int
		err error
	)
	switch {
	case rec == (meme.Record{}):
		n, err = s.d.Mutations.Like(r.Context(), id)
	case rec.ID != "" && rec.ID != id:
		err = meme.Invalid("id", "body id does not match path")
	default:
		rec.ID = id
		n, err = s.d.Mutations.LikeMeme(r.Context(), rec)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, likeResponse{MemeID: id, LikeCount: n})
}

func (s *Server) listComments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	comments, err := s.d.Engagement.GetComments(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, commentsResponse{MemeID: id, Comments: comments})
}

func (s *Server) addComment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req commentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, meme.Invalid("body", "invalid request body: "+err.Error()))
		return
	}
	comments, err := s.d.Mutations.Comment(r.Context(), id, req.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, commentsResponse{MemeID: id, Comments: comments})
}

func (s *Server) listUploads(w http.ResponseWriter, r *http.Request) {
	uploads, err := s.d.Engagement.ListUploads(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"uploads": uploads})
}

// createUpload accepts a JSON body naming an already hosted image, or a
// multipart form whose "image" file is sent to the image host first.
func (s *Server) createUpload(w http.ResponseWriter, r *http.Request) {
	if isMultipart(r) {
		image, err := readImage(w, r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		u, err := s.d.Mutations.UploadImage(r.Context(), image, r.FormValue("caption"), r.FormValue("username"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, u)
		return
	}

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, meme.Invalid("body", "invalid request body: "+err.Error()))
		return
	}
	u, err := s.d.Mutations.Upload(r.Context(), req.ImageURL, req.Caption, req.Username)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) generateCaption(w http.ResponseWriter, r *http.Request) {
	image, err := readImage(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	text, err := s.d.Mutations.GenerateCaption(r.Context(), image)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"caption": text})
}

func (s *Server) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.d.Engagement.GetProfile(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) putProfile(w http.ResponseWriter, r *http.Request) {
	var p meme.Profile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		s.writeError(w, r, meme.Invalid("body", "invalid request body: "+err.Error()))
		return
	}
	saved, err := s.d.Mutations.EditProfile(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) topMemes(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"), "limit", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, err := s.d.Ranking.TopMemes(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"memes": entries})
}

func (s *Server) topUsers(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"), "limit", 0)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, err := s.d.Ranking.TopUsers(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": entries})
}

func intParam(raw, name string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, meme.Invalid(name, "must be a non-negative integer")
	}
	return n, nil
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// readImage returns the bytes of the "image" form file. A missing file
// yields empty bytes so the engine reports the validation error.
func readImage(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, meme.Invalid("image", "expected a multipart form: "+err.Error())
	}
	f, _, err := r.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, nil
		}
		return nil, meme.Invalid("image", err.Error())
	}
	defer f.Close()
	return io.ReadAll(f)
}
