package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/foolin/goview"

	"mandelzoom/pkg/escape"
	"mandelzoom/pkg/palette"
	"mandelzoom/pkg/render"
	"mandelzoom/pkg/viewport"
)

// maxFrameDim caps the pixel size a query can ask for.
const maxFrameDim = 4096

func (s *Server) serveIndex() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		center := "-0.5,0"
		zoom := 0.0

		if q := r.URL.Query().Get("center"); q != "" {
			if _, _, err := viewport.DecodeCenter(q); err != nil {
				http.Error(w, "bad center: "+err.Error(), http.StatusBadRequest)
				return
			}
			center = q
		}
		if q := r.URL.Query().Get("zoom"); q != "" {
			z, err := strconv.ParseFloat(q, 64)
			if err != nil {
				http.Error(w, "bad zoom: "+err.Error(), http.StatusBadRequest)
				return
			}
			zoom = z
		}

		goview.DefaultConfig.DisableCache = true
		err := goview.Render(w, http.StatusOK, "index.html", goview.M{
			"host":    s.cfg.Web.Host + ":" + s.cfg.Web.Port,
			"center":  center,
			"zoom":    zoom,
			"width":   s.cfg.Render.Width,
			"height":  s.cfg.Render.Height,
			"palette": s.cfg.Render.Palette,
		})
		if err != nil {
			http.Error(w, "render index: "+err.Error(), http.StatusInternalServerError)
		}
	}
}

// frameRequest builds a render request from query parameters, falling
// back to the configured defaults. The center is re-projected into the
// tier the requested zoom calls for, so deep-zoom links keep their
// precision.
func (s *Server) frameRequest(q url.Values) (*render.Request, error) {
	req := &render.Request{
		Width:        s.cfg.Render.Width,
		Height:       s.cfg.Render.Height,
		MaxIter:      s.cfg.Render.MaxIter,
		SampleBudget: s.cfg.Render.Samples,
		PaletteID:    s.cfg.Render.Palette,
	}

	kind, err := s.cfg.Render.EscapeKind()
	if err != nil {
		return nil, err
	}
	req.Kind = kind
	if req.JuliaC, err = s.cfg.Render.JuliaC(); err != nil {
		return nil, err
	}

	centerStr := "-0.5,0"
	if v := q.Get("center"); v != "" {
		centerStr = v
	}
	center, _, err := viewport.DecodeCenter(centerStr)
	if err != nil {
		return nil, err
	}

	zoom := 0.0
	if v := q.Get("zoom"); v != "" {
		if zoom, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("zoom: %w", err)
		}
	}
	tier := viewport.TierForZoom(zoom)
	req.Viewport = viewport.Snapshot{
		Center: center.Project(tier.Exp),
		Zoom:   zoom,
		Tier:   tier,
	}

	for _, p := range []struct {
		key string
		dst *int
	}{
		{"width", &req.Width},
		{"height", &req.Height},
		{"iter", &req.MaxIter},
		{"samples", &req.SampleBudget},
	} {
		if v := q.Get(p.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", p.key, err)
			}
			*p.dst = n
		}
	}
	if req.Width <= 0 || req.Width > maxFrameDim ||
		req.Height <= 0 || req.Height > maxFrameDim {
		return nil, fmt.Errorf("frame size %dx%d out of range", req.Width, req.Height)
	}
	if req.MaxIter <= 0 || req.SampleBudget <= 0 {
		return nil, fmt.Errorf("iter and samples must be positive")
	}

	if v := q.Get("palette"); v != "" {
		req.PaletteID = v
	}
	switch q.Get("kind") {
	case "":
	case "mandelbrot":
		req.Kind = escape.Mandelbrot
	case "julia":
		req.Kind = escape.Julia
	default:
		return nil, fmt.Errorf("unknown kind %q", q.Get("kind"))
	}
	if v := q.Get("julia"); v != "" {
		var re, im float64
		if _, err := fmt.Sscanf(v, "%f,%f", &re, &im); err != nil {
			return nil, fmt.Errorf("julia: %w", err)
		}
		req.JuliaC = complex(re, im)
	}

	return req, nil
}

func (s *Server) serveFrame() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := s.frameRequest(r.URL.Query())
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var res *render.Result
		for {
			res, err = s.chain.Bound().Render(r.Context(), req)
			if err == nil {
				break
			}
			log.Printf("[web] %s render failed: %v", s.chain.Bound().Name(), err)
			if !s.chain.Demote() {
				http.Error(w, "render failed: "+err.Error(), http.StatusInternalServerError)
				return
			}
		}

		w.Header().Set("X-Render-Backend", res.Backend)
		writePNG(w, res.Pix)
	}
}

func (s *Server) servePalettes() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(palette.IDs()); err != nil {
			log.Println("[web] encode palettes:", err)
		}
	}
}

func writePNG(w http.ResponseWriter, img image.Image) {
	buffer := new(bytes.Buffer)
	if err := png.Encode(buffer, img); err != nil {
		http.Error(w, "unable to encode image: "+err.Error(), 500)
		return
	}

	b := buffer.Bytes()

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))

	if _, err := w.Write(b); err != nil {
		log.Println("[web] write image:", err)
	}
}
