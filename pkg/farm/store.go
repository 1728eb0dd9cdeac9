package farm

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path"
	"runtime"
	"time"

	"github.com/briandowns/spinner"
	"github.com/go-chi/valve"
	"github.com/nsqio/go-nsq"

	"mandelzoom/pkg/config"
	"mandelzoom/pkg/utils"
)

// Store writes completed frames to the local frame directory.
type Store struct {
	valve *valve.Valve
	cfg   *config.Config
	spin  *spinner.Spinner
}

// NewStore constructs the store role.
func NewStore(v *valve.Valve, cfg *config.Config) (*Store, error) {
	if err := utils.EnsureDir(cfg.Farm.FramePath); err != nil {
		return nil, err
	}
	return &Store{
		valve: v,
		cfg:   cfg,
		spin:  spinner.New(spinner.CharSets[43], 100*time.Millisecond),
	}, nil
}

// Start begins consuming completed frames.
func (s *Store) Start() {
	maxInFlight := runtime.GOMAXPROCS(0) * 2
	log.Println("[store] starting consumer on", storeTopic)
	go func() {
		err := utils.StartConsumer(s.valve.Context(), s.cfg.Farm.Lookupd,
			storeTopic, storeChan, maxInFlight, s)
		if err != nil {
			log.Fatal(err)
		}
	}()
	s.spin.Start()
	s.spin.Suffix = fmt.Sprintf(" saving frames maxInFlight: %d", maxInFlight)
}

// Close stops the progress spinner.
func (s *Store) Close() error {
	s.spin.Stop()
	return nil
}

// HandleMessage writes one frame to disk.
func (s *Store) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	if err := s.valve.Open(); err != nil {
		log.Println("[store] failed to open valve: ", err)
		return err
	}
	defer s.valve.Close()

	res := &stored{}
	if err := json.Unmarshal(m.Body, res); err != nil {
		log.Println("[store] failed to unmarshal frame: ", err)
		return nil // malformed, don't requeue
	}

	fpath := path.Join(s.cfg.Farm.FramePath, res.Frame.Filename())
	if err := utils.EnsureDir(path.Dir(fpath)); err != nil {
		log.Println("[store] failed to create job folder: ", err)
		return err
	}
	if err := os.WriteFile(fpath, res.PNG, 0o644); err != nil {
		log.Println("[store] failed to save frame: ", err)
		return err
	}

	s.spin.Suffix = " saved " + fpath
	return nil
}
