package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"soundbort/internal/storage"
)

// Server is a small read-only JSON API over the sound store, for dashboards
// and debugging. It never mutates anything; all writes go through the bot.
type Server struct {
	store storage.Store
	log   *zap.SugaredLogger
}

func NewServer(store storage.Store, log *zap.SugaredLogger) *Server {
	return &Server{store: store, log: log}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/api/guilds/{guildID}/sounds", s.listSounds)
	r.Get("/api/guilds/{guildID}/sounds/{name}", s.soundInfo)
	return r
}

// ListenAndServe blocks serving the API on addr.
func (s *Server) ListenAndServe(addr string) error {
	s.log.Infow("web api listening", "addr", addr)
	return http.ListenAndServe(addr, s.Routes())
}

type nameJSON struct {
	Name    string `json:"name"`
	IsAlias bool   `json:"is_alias"`
}

type soundJSON struct {
	Name       string    `json:"name"`
	Aliases    []string  `json:"aliases,omitempty"`
	Uploader   string    `json:"uploader"`
	Source     string    `json:"source"`
	UploadTime time.Time `json:"upload_time"`
	Length     float64   `json:"length"`
	Played     int64     `json:"played"`
	Stopped    int64     `json:"stopped"`
}

func (s *Server) listSounds(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.ListNames(r.Context(), chi.URLParam(r, "guildID"), storage.ListAll)
	if err != nil {
		s.fail(w, err)
		return
	}

	out := make([]nameJSON, 0, len(names))
	for _, n := range names {
		out = append(out, nameJSON{Name: n.Name, IsAlias: n.IsAlias})
	}
	s.respond(w, out)
}

func (s *Server) soundInfo(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")

	name, err := s.store.ResolveName(r.Context(), guildID, chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if name == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	info, err := s.store.SoundInfo(r.Context(), name.SoundID, guildID)
	if err != nil {
		s.fail(w, err)
		return
	}

	s.respond(w, soundJSON{
		Name:       info.Name,
		Aliases:    info.Aliases,
		Uploader:   info.Sound.Uploader,
		Source:     info.Sound.Source,
		UploadTime: info.Sound.UploadTime,
		Length:     info.Sound.Length,
		Played:     info.Sound.Played,
		Stopped:    info.Sound.Stopped,
	})
}

func (s *Server) respond(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warnw("encode response", "err", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	s.log.Errorw("api request failed", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
