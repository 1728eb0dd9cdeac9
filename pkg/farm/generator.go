package farm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/png"
	"log"
	"time"

	"github.com/go-chi/valve"
	"github.com/nsqio/go-nsq"

	"mandelzoom/pkg/config"
	"mandelzoom/pkg/render"
	"mandelzoom/pkg/utils"
)

// stored is the generator-to-store message. PNG rides base64-encoded
// inside the JSON body.
type stored struct {
	Frame Frame  `json:"frame"`
	PNG   []byte `json:"png"`
}

// Generator consumes frame requests, renders them on the session's
// backend chain and publishes the encoded result for storage.
type Generator struct {
	valve    *valve.Valve
	producer *nsq.Producer
	chain    *render.Chain
	cfg      *config.Config
}

// NewGenerator connects the producer and hooks up the consumer.
func NewGenerator(v *valve.Valve, cfg *config.Config, chain *render.Chain) (*Generator, error) {
	p, err := nsq.NewProducer(cfg.Farm.Nsqd, nsq.NewConfig())
	if err != nil {
		log.Println("[generator] could not connect to nsqd: ", err)
		return nil, err
	}
	return &Generator{valve: v, producer: p, chain: chain, cfg: cfg}, nil
}

// Start begins consuming frame requests.
func (g *Generator) Start() {
	maxInFlight := g.cfg.Farm.MaxInFlight
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	go func() {
		err := utils.StartConsumer(g.valve.Context(), g.cfg.Farm.Lookupd,
			renderTopic, renderChan, maxInFlight, g)
		if err != nil {
			log.Fatal(err)
		}
	}()
}

// Shutdown stops the producer.
func (g *Generator) Shutdown() {
	g.producer.Stop()
}

// HandleMessage renders one frame. The message is touched periodically
// so NSQ does not requeue a long render.
func (g *Generator) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		// an empty body is discarded, not requeued
		return nil
	}

	if err := g.valve.Open(); err != nil {
		log.Println("[generator] failed to open valve: ", err)
		return err
	}
	defer g.valve.Close()

	frame := &Frame{}
	if err := json.Unmarshal(m.Body, frame); err != nil {
		log.Println("[generator] error unmarshalling frame: ", err)
		return nil // malformed, don't requeue
	}

	start := time.Now()
	ticker := time.NewTicker(utils.TouchSec * time.Second)
	defer ticker.Stop()

	done := make(chan error, 1)
	var body []byte
	go func() {
		var err error
		body, err = g.renderFrame(frame)
		done <- err
	}()

	for {
		select {
		case err := <-done:
			if err != nil {
				log.Println("[generator] frame failed: ", frame, err)
				if perr := g.producer.Publish(errorTopic, m.Body); perr != nil {
					log.Println("[generator] error publishing to error topic:", perr)
				}
				return err
			}
			if err := g.producer.Publish(storeTopic, body); err != nil {
				log.Println("[generator] failed to publish result: ", err)
				return err
			}
			log.Println("[generator] frame", frame, "completed in", time.Since(start))
			return nil
		case <-ticker.C:
			m.Touch()
		}
	}
}

func (g *Generator) renderFrame(frame *Frame) ([]byte, error) {
	req, err := frame.Request()
	if err != nil {
		return nil, err
	}

	var res *render.Result
	for {
		res, err = g.chain.Bound().Render(g.valve.Context(), req)
		if err == nil {
			break
		}
		log.Printf("[generator] %s render failed: %v", g.chain.Bound().Name(), err)
		if !g.chain.Demote() {
			return nil, err
		}
	}

	buf := &bytes.Buffer{}
	if err := png.Encode(buf, res.Pix); err != nil {
		return nil, err
	}

	body, err := json.Marshal(&stored{Frame: *frame, PNG: buf.Bytes()})
	if err != nil {
		return nil, err
	}
	if len(body) > nsqMaxMsgSize {
		return nil, fmt.Errorf("frame too large: %d bytes", len(body))
	}
	return body, nil
}
