package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"path"
	"strconv"
	"time"

	"threadboard/internal/cache"
	"threadboard/internal/models"
	"threadboard/internal/render"
	"threadboard/internal/threads"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// CreateThreadRequest represents a request to create a new root thread
type CreateThreadRequest struct {
	Text        string `json:"text" validate:"required"`
	Author      string `json:"author" validate:"required,uuid"`
	CommunityID string `json:"communityId,omitempty" validate:"omitempty,uuid"`
	Path        string `json:"path,omitempty" validate:"omitempty,startswith=/"`
}

// AddCommentRequest represents a reply to an existing thread
type AddCommentRequest struct {
	Text   string `json:"text" validate:"required"`
	UserID string `json:"userId" validate:"required,uuid"`
	Path   string `json:"path,omitempty" validate:"omitempty,startswith=/"`
}

// ThreadResponse is a thread as sent to clients, with its text rendered.
type ThreadResponse struct {
	ID        uuid.UUID         `json:"id"`
	Text      string            `json:"text"`
	HTML      template.HTML     `json:"html"`
	AuthorID  uuid.UUID         `json:"authorId"`
	Author    *models.Author    `json:"author,omitempty"`
	ParentID  *uuid.UUID        `json:"parentId,omitempty"`
	Community *uuid.UUID        `json:"community"`
	CreatedAt time.Time         `json:"createdAt"`
	ChildIDs  []uuid.UUID       `json:"childIds"`
	Children  []*ThreadResponse `json:"children,omitempty"`
}

// PostsResponse is one page of the thread listing.
type PostsResponse struct {
	Posts  []*ThreadResponse `json:"posts"`
	IsNext bool              `json:"isNext"`
}

func newThreadResponse(node *models.ThreadNode) *ThreadResponse {
	resp := &ThreadResponse{
		ID:        node.ID,
		Text:      node.Text,
		HTML:      render.Markdown(node.Text),
		AuthorID:  node.AuthorID,
		Author:    node.Author,
		ParentID:  node.ParentID,
		Community: node.Community,
		CreatedAt: node.CreatedAt,
		ChildIDs:  node.ChildIDs,
	}
	if node.Children != nil {
		resp.Children = make([]*ThreadResponse, 0, len(node.Children))
		for _, child := range node.Children {
			resp.Children = append(resp.Children, newThreadResponse(child))
		}
	}
	return resp
}

// HandleFetchPosts lists root threads. Query: page, size.
func (s *Server) HandleFetchPosts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pageNumber, err := intQuery(r, "page")
		if err != nil {
			http.Error(w, "Invalid page", http.StatusBadRequest)
			return
		}
		pageSize, err := intQuery(r, "size")
		if err != nil {
			http.Error(w, "Invalid size", http.StatusBadRequest)
			return
		}

		s.serveCached(w, r, func(ctx context.Context) (int, interface{}, error) {
			page, err := s.Threads.FetchPosts(ctx, pageNumber, pageSize)
			if err != nil {
				return 0, nil, err
			}

			resp := PostsResponse{
				Posts:  make([]*ThreadResponse, 0, len(page.Posts)),
				IsNext: page.IsNext,
			}
			for _, post := range page.Posts {
				resp.Posts = append(resp.Posts, newThreadResponse(post))
			}
			return http.StatusOK, resp, nil
		})
	}
}

// HandleFetchThread returns a thread with two levels of replies.
func (s *Server) HandleFetchThread() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		threadID, err := uuid.Parse(chi.URLParam(r, "threadID"))
		if err != nil {
			http.Error(w, "Invalid thread ID", http.StatusBadRequest)
			return
		}

		s.serveCached(w, r, func(ctx context.Context) (int, interface{}, error) {
			node, err := s.Threads.FetchThreadByID(ctx, threadID)
			if err != nil {
				return 0, nil, err
			}
			if node == nil {
				return http.StatusNotFound, map[string]string{"error": "Thread not found"}, nil
			}
			return http.StatusOK, newThreadResponse(node), nil
		})
	}
}

// HandleCreateThread creates a root thread.
func (s *Server) HandleCreateThread() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateThreadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		if err := s.Validate.Struct(req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		params := threads.CreateThreadParams{
			Text:   req.Text,
			Author: uuid.MustParse(req.Author),
			Path:   req.Path,
		}
		if req.CommunityID != "" {
			communityID := uuid.MustParse(req.CommunityID)
			params.CommunityID = &communityID
		}
		if params.Path == "" {
			params.Path = "/threads"
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.RequestTimeout)
		defer cancel()

		if err := s.Threads.CreateThread(ctx, params); err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]bool{"success": true})
	}
}

// HandleAddComment adds a reply to the thread in the URL.
func (s *Server) HandleAddComment() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		threadID, err := uuid.Parse(chi.URLParam(r, "threadID"))
		if err != nil {
			http.Error(w, "Invalid thread ID", http.StatusBadRequest)
			return
		}

		var req AddCommentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
		if err := s.Validate.Struct(req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		params := threads.AddCommentParams{
			ThreadID: threadID,
			Text:     req.Text,
			UserID:   uuid.MustParse(req.UserID),
			Path:     req.Path,
		}
		if params.Path == "" {
			params.Path = "/threads/" + threadID.String()
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.RequestTimeout)
		defer cancel()

		if err := s.Threads.AddCommentToThread(ctx, params); err != nil {
			writeError(w, err)
			return
		}
		// Listing pages carry child ids too.
		s.Pages.Revalidate("/threads")

		writeJSON(w, http.StatusCreated, map[string]bool{"success": true})
	}
}

// serveCached answers from the page cache when it can, otherwise builds the
// response with load and caches it if it succeeded.
func (s *Server) serveCached(w http.ResponseWriter, r *http.Request, load func(ctx context.Context) (int, interface{}, error)) {
	key := cacheKey(r)

	page, generation, ok := s.Pages.Get(key)
	if ok {
		w.Header().Set("Content-Type", page.ContentType)
		w.Header().Set("X-Cache", "HIT")
		w.WriteHeader(http.StatusOK)
		w.Write(page.Body)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.RequestTimeout)
	defer cancel()

	status, body, err := load(ctx)
	if err != nil {
		writeError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		log.WithError(err).Error("Error encoding response")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	if status == http.StatusOK {
		s.Pages.Put(key, generation, cache.Page{Body: buf.Bytes(), ContentType: "application/json"})
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "MISS")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

// cacheKey is the cleaned request path plus its raw query, so "/threads/"
// and "/threads" share entries.
func cacheKey(r *http.Request) string {
	key := path.Clean(r.URL.Path)
	if r.URL.RawQuery != "" {
		key += "?" + r.URL.RawQuery
	}
	return key
}

func intQuery(r *http.Request, key string) (int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return 0, nil
	}
	return strconv.Atoi(value)
}
