// Copyright 2021 Daniel Erat.
// All rights reserved.

// Package server implements Musium's HTTP control surface (spec.md
// §4.I, §6): a thin synchronous layer translating HTTP requests into
// calls against the frozen index, the thumbnail cache, and the player.
// The addHandler/writeJSONResponse helpers and the range-serving shape
// are adapted from the teacher's server/http.go and
// server/files.go (see DESIGN.md), with auth stripped (spec.md's "no
// authentication" non-goal) and the GCS/HTTP song-fetch path replaced by
// local os.Open, since track bytes live on local disk rather than Cloud
// Storage.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/derat/musium/internal/covers"
	"github.com/derat/musium/internal/index"
	"github.com/derat/musium/internal/player"
)

// Server holds the dependencies the control surface's handlers read
// from; it's immutable after New and safe for concurrent use (spec.md
// §5: "index reads never block on the player and vice versa").
type Server struct {
	idx         *index.Index
	libraryRoot string
	covers      *covers.Store
	player      *player.Player
	logger      *slog.Logger
}

// New builds a Server and registers its handlers on mux.
func New(mux *http.ServeMux, idx *index.Index, libraryRoot string, coversStore *covers.Store, p *player.Player, logger *slog.Logger) *Server {
	s := &Server{idx: idx, libraryRoot: libraryRoot, covers: coversStore, player: p, logger: logger}
	s.register(mux)
	return s
}

// register wires every endpoint in spec.md §6's HTTP API table onto
// mux, one addHandler call per route, matching the teacher's flat
// handler-registration shape in server/http.go.
func (s *Server) register(mux *http.ServeMux) {
	addHandler(mux, "/albums", http.MethodGet, s.handleAlbums)
	addHandler(mux, "/album/", http.MethodGet, s.handleAlbum)
	addHandler(mux, "/artist/", http.MethodGet, s.handleArtist)
	addHandler(mux, "/track/", http.MethodGet, s.handleTrack)
	addHandler(mux, "/cover/", http.MethodGet, s.handleCover(false))
	addHandler(mux, "/thumb/", http.MethodGet, s.handleCover(true))
	addHandler(mux, "/search", http.MethodGet, s.handleSearch)
	addHandler(mux, "/queue", http.MethodGet, s.handleQueueGet)
	addHandler(mux, "/queue/", http.MethodPut, s.handleQueuePut)
	addHandler(mux, "/volume", http.MethodGet, s.handleVolumeGet)
	addHandler(mux, "/volume/up", http.MethodPost, s.handleVolumeUp)
	addHandler(mux, "/volume/down", http.MethodPost, s.handleVolumeDown)
}

// handlerFunc handles one route after addHandler has already checked
// the HTTP method, matching the teacher's handlerFunc type in
// server/http.go (minus the auth/config arguments Musium doesn't need).
type handlerFunc func(w http.ResponseWriter, r *http.Request)

// addHandler registers fn on mux at path after verifying the request
// uses method, exactly as the teacher's addHandler does for its
// auth-less allowUnauth case (see DESIGN.md).
func addHandler(mux *http.ServeMux, path, method string, fn handlerFunc) {
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			http.Error(w, "invalid method", http.StatusMethodNotAllowed)
			return
		}
		fn(w, r)
	})
}

// writeJSONResponse serializes v to JSON and writes it to w, matching
// the teacher's server/http.go helper of the same name.
func writeJSONResponse(w http.ResponseWriter, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(b)
}

// parseIDSuffix extracts and parses the decimal id following prefix in
// r.URL.Path (spec.md §6: "All ids in JSON are decimal strings"), e.g.
// "/album/" + "123" -> 123. An optional suffix (like ".flac") is
// stripped before parsing.
func parseIDSuffix(r *http.Request, prefix, stripSuffix string) (uint64, bool) {
	rest := strings.TrimPrefix(r.URL.Path, prefix)
	if stripSuffix != "" {
		rest = strings.TrimSuffix(rest, stripSuffix)
	}
	id, err := strconv.ParseUint(rest, 10, 64)
	return id, err == nil
}

// idString renders id as the decimal string used throughout Musium's
// JSON encoding (spec.md §6).
func idString(id uint64) string { return strconv.FormatUint(id, 10) }

func (s *Server) handleAlbums(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, albumHeadersJSON(s.idx.ListAlbums()))
}

func (s *Server) handleAlbum(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDSuffix(r, "/album/", "")
	if !ok {
		http.Error(w, "invalid album id", http.StatusBadRequest)
		return
	}
	view, ok := s.idx.GetAlbum(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSONResponse(w, toAlbumView(view))
}

func (s *Server) handleArtist(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDSuffix(r, "/artist/", "")
	if !ok {
		http.Error(w, "invalid artist id", http.StatusBadRequest)
		return
	}
	view, ok := s.idx.GetArtist(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSONResponse(w, toArtistView(view))
}

// handleTrack serves the track's file bytes as audio/flac (spec.md §4.I,
// §6), using http.ServeContent for range-request/conditional-GET
// handling, the local-file equivalent of the teacher's sendSong (see
// DESIGN.md: Musium's tracks live on local disk, not Cloud Storage, so
// there's no 32 MB App Engine response cap to work around).
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDSuffix(r, "/track/", ".flac")
	if !ok {
		http.Error(w, "invalid track id", http.StatusBadRequest)
		return
	}
	ref, ok := s.idx.GetTrack(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	path := filepath.Join(s.libraryRoot, ref.Path)
	f, err := os.Open(path)
	if err != nil {
		s.logger.Error("opening track file", "track_id", id, "path", path, "err", err)
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "audio/flac")
	http.ServeContent(w, r, filepath.Base(path), fi.ModTime(), f)
}

// handleCover returns a handler for either /cover/:id (thumb=false) or
// /thumb/:id (thumb=true). Both serve from the read-only thumbnail cache
// (spec.md §4.F); a missing file (no cache entry, or the cache itself
// absent) is a 404.
func (s *Server) handleCover(thumb bool) handlerFunc {
	prefix := "/cover/"
	if thumb {
		prefix = "/thumb/"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDSuffix(r, prefix, "")
		if !ok {
			http.Error(w, "invalid album id", http.StatusBadRequest)
			return
		}
		if s.covers == nil {
			http.NotFound(w, r)
			return
		}
		rec, err := s.covers.Get(id)
		if err != nil {
			s.logger.Error("reading cover record", "album_id", id, "err", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if rec == nil {
			http.NotFound(w, r)
			return
		}
		path := rec.FullPath
		if thumb {
			path = rec.ThumbPath
		}
		f, err := os.Open(path)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer f.Close()
		fi, err := f.Stat()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		http.ServeContent(w, r, filepath.Base(path), fi.ModTime(), f)
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	res, err := s.idx.Search(q)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSONResponse(w, toSearchResultJSON(res))
}

func (s *Server) handleQueueGet(w http.ResponseWriter, r *http.Request) {
	_, queue := s.player.Queue()
	writeJSONResponse(w, queueItemsJSON(queue))
}

// handleQueuePut implements `PUT /queue/:track_id` (spec.md §4.I, §6):
// appends track_id to the player queue, returning the new item's
// queue_id and track_id, or 404 if the id is unknown to the index. The
// item's position within the queue is not returned.
func (s *Server) handleQueuePut(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDSuffix(r, "/queue/", "")
	if !ok {
		http.Error(w, "invalid track id", http.StatusBadRequest)
		return
	}
	item, ok := s.player.Enqueue(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSONResponse(w, map[string]string{"queue_id": idString(item.QueueID), "track_id": idString(item.TrackID)})
}

func (s *Server) handleVolumeGet(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, map[string]int{"volume_db": s.player.Volume()})
}

func (s *Server) handleVolumeUp(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, map[string]int{"volume_db": s.player.VolumeUp()})
}

func (s *Server) handleVolumeDown(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, map[string]int{"volume_db": s.player.VolumeDown()})
}
