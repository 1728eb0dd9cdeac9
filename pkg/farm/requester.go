package farm

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/go-chi/valve"
	"github.com/nsqio/go-nsq"

	"mandelzoom/pkg/config"
)

// Requester expands jobs into frame messages and publishes them. Frames
// already requested and not yet stored are skipped on re-submission.
type Requester struct {
	producer *nsq.Producer
	valve    *valve.Valve
	job      *Job

	mu     sync.Mutex
	queued map[string]bool
}

// NewRequester connects a producer to nsqd.
func NewRequester(v *valve.Valve, cfg *config.Config, job *Job) (*Requester, error) {
	p, err := nsq.NewProducer(cfg.Farm.Nsqd, nsq.NewConfig())
	if err != nil {
		log.Println("[requester] could not connect to nsqd: ", err)
		return nil, err
	}
	return &Requester{
		producer: p,
		valve:    v,
		job:      job,
		queued:   make(map[string]bool),
	}, nil
}

// Start publishes every frame of the job, then shuts the valve down.
func (r *Requester) Start() {
	go func() {
		defer r.producer.Stop()

		frames, err := r.job.Expand()
		if err != nil {
			log.Fatal(err)
		}
		log.Printf("[requester] job %s: %d frames, zoom %.2f - %.2f",
			r.job.Name, len(frames), r.job.ZoomFrom, r.job.ZoomTo)

		sent, skipped := 0, 0
		for _, f := range frames {
			ok, err := r.Send(f)
			if err != nil {
				log.Fatal(err)
			}
			if !ok {
				skipped++
				continue
			}
			sent++

			select {
			case <-r.valve.Stop():
				log.Println("[requester] stopping early")
				return
			default:
			}
		}
		log.Printf("[requester] job %s done. sent: %d skipped: %d", r.job.Name, sent, skipped)
		r.valve.Shutdown(0)
	}()
}

// Send publishes one frame request, deduplicating by filename.
func (r *Requester) Send(f *Frame) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.queued[f.Filename()] {
		log.Println("[requester] already requested frame:", f, "skipping")
		return false, nil
	}

	msg, err := json.Marshal(f)
	if err != nil {
		log.Println("[requester] failed to marshal frame:", f, "\n\t", err)
		return false, err
	}
	if err := r.producer.Publish(renderTopic, msg); err != nil {
		log.Println("[requester] failed to publish message:", err)
		return false, err
	}
	r.queued[f.Filename()] = true
	return true, nil
}
