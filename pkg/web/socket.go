package web

import (
	"bytes"
	"context"
	"encoding/base64"
	"image/png"
	"log"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"mandelzoom/pkg/scheduler"
	"mandelzoom/pkg/viewport"
)

// viewEvent is one client input event: the serialized center and the
// zoom level it was produced at.
type viewEvent struct {
	Center string  `json:"center"`
	Zoom   float64 `json:"zoom"`
}

// liveFrame is one pushed frame. Image is a base64 PNG.
type liveFrame struct {
	Generation uint64 `json:"generation"`
	Backend    string `json:"backend"`
	Settled    bool   `json:"settled"`
	Image      string `json:"image"`
}

// interactiveIter picks the iteration cap for in-motion renders.
func interactiveIter(maxIter int) int {
	n := maxIter / 4
	if n < 64 {
		n = 64
	}
	return n
}

func (s *Server) sessionConfig() (scheduler.Config, error) {
	kind, err := s.cfg.Render.EscapeKind()
	if err != nil {
		return scheduler.Config{}, err
	}
	juliaC, err := s.cfg.Render.JuliaC()
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		Width:     s.cfg.Render.Width,
		Height:    s.cfg.Render.Height,
		PaletteID: s.cfg.Render.Palette,
		Kind:      kind,
		JuliaC:    juliaC,
		Interactive: scheduler.Quality{
			MaxIter:      interactiveIter(s.cfg.Render.MaxIter),
			SampleBudget: 1,
		},
		Settled: scheduler.Quality{
			MaxIter:      s.cfg.Render.MaxIter,
			SampleBudget: s.cfg.Render.Samples,
		},
	}, nil
}

// serveLive runs one explorer session: viewport events in, frames out.
// Each connection gets its own scheduler so sessions pace independently.
func (s *Server) serveLive() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.valve.Open(); err != nil {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}
		defer s.valve.Close()

		cfg, err := s.sessionConfig()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			log.Println("[web] websocket accept:", err)
			return
		}
		defer c.CloseNow()

		sched := scheduler.New(s.chain, cfg)
		defer sched.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go s.readEvents(ctx, cancel, c, sched)

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.valve.Stop():
				c.Close(websocket.StatusGoingAway, "server shutting down")
				return
			case f := <-sched.Frames():
				buf := &bytes.Buffer{}
				if err := png.Encode(buf, f.Img); err != nil {
					log.Println("[web] encode frame:", err)
					continue
				}
				msg := liveFrame{
					Generation: f.Generation,
					Backend:    f.Backend,
					Settled:    f.Settled,
					Image:      base64.StdEncoding.EncodeToString(buf.Bytes()),
				}
				if err := wsjson.Write(ctx, c, msg); err != nil {
					return
				}
			}
		}
	}
}

// readEvents feeds client viewport events into the scheduler until the
// connection drops.
func (s *Server) readEvents(ctx context.Context, cancel context.CancelFunc, c *websocket.Conn, sched *scheduler.Scheduler) {
	defer cancel()
	for {
		var ev viewEvent
		if err := wsjson.Read(ctx, c, &ev); err != nil {
			return
		}
		center, _, err := viewport.DecodeCenter(ev.Center)
		if err != nil {
			log.Println("[web] bad view event:", err)
			continue
		}
		tier := viewport.TierForZoom(ev.Zoom)
		sched.Update(viewport.Snapshot{
			Center: center.Project(tier.Exp),
			Zoom:   ev.Zoom,
			Tier:   tier,
		})
	}
}
