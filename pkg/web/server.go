// Package web is the explorer web server: an index page, a one-shot
// PNG frame endpoint, and a websocket session that streams frames from
// a per-connection scheduler as the client pans and zooms.
package web

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/valve"

	"mandelzoom/pkg/config"
	"mandelzoom/pkg/render"
)

// Server serves the explorer UI over a probed backend chain.
type Server struct {
	cfg   *config.Config
	chain *render.Chain
	valve *valve.Valve
}

// NewServer wires a server over the given configuration and chain.
func NewServer(cfg *config.Config, chain *render.Chain) *Server {
	return &Server{
		cfg:   cfg,
		chain: chain,
		valve: valve.New(),
	}
}

// Run configures routes and listens for requests.
func (s *Server) Run() error {
	r := s.routes()

	log.Println("[web] listening and serving on :" + s.cfg.Web.Port)
	if err := http.ListenAndServe(":"+s.cfg.Web.Port, r); err != nil {
		log.Println(err)
	}
	log.Print("[web] shutting down ...")
	s.valve.Shutdown(10 * time.Second)
	log.Println(" done!")
	return nil
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Get("/", s.serveIndex())
	r.Get("/frame", s.serveFrame())
	r.Get("/palettes", s.servePalettes())
	r.Get("/live", s.serveLive())

	return r
}
