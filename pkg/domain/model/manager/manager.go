// Package manager keeps the ML backend's model status on disk.
//
// The status record (status.yaml) and the training lock file live beside the
// weights directory, so a restarted modeld recovers the same status it
// crashed with. There is deliberately no in-memory singleton: every probe
// re-reads the record.
package manager

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/opst/pickfab/pkg/archive"
	"github.com/opst/pickfab/pkg/domain/model"
	"gopkg.in/yaml.v3"
)

const (
	statusFile = "status.yaml"
	lockFile   = "training.lock"

	datasetsDir = "datasets"
	weightsDir  = "weights"
)

// a training lock is considered abandoned after this, unless configured.
const DefaultStaleAfter = 2 * time.Hour

// Record is the persisted model status.
type Record struct {
	// class names announced via Setup. Fixed per run.
	Classes []string `yaml:"classes"`

	// completed trainings. 0 = no model trained yet.
	ModelVersion int `yaml:"modelVersion"`

	// label frequencies of the last training set. The fallback
	// prediction when no predictor command is configured.
	Priors map[string]float64 `yaml:"priors,omitempty"`
}

type lockRecord struct {
	Pid       int       `yaml:"pid"`
	StartedAt time.Time `yaml:"startedAt"`
}

type Manager struct {
	root string

	// trainer command; invoked with the dataset directory and the weights
	// directory appended as arguments.
	trainer []string

	// predictor command; invoked with the weights directory appended,
	// the item on stdin, a JSON class->probability map expected on stdout.
	predictor []string

	staleAfter time.Duration
	now        func() time.Time
}

type Option func(*Manager) *Manager

func WithTrainerCommand(cmd []string) Option {
	return func(m *Manager) *Manager {
		m.trainer = cmd
		return m
	}
}

func WithPredictorCommand(cmd []string) Option {
	return func(m *Manager) *Manager {
		m.predictor = cmd
		return m
	}
}

// WithStaleAfter sets how old a training lock may be before a new training
// takes it over.
func WithStaleAfter(d time.Duration) Option {
	return func(m *Manager) *Manager {
		m.staleAfter = d
		return m
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) *Manager {
		m.now = now
		return m
	}
}

// New builds a Manager rooted at root. The directory is created if missing.
func New(root string, options ...Option) (*Manager, error) {
	m := &Manager{
		root:       root,
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
	}
	for _, opt := range options {
		m = opt(m)
	}

	for _, d := range []string{root, filepath.Join(root, datasetsDir), filepath.Join(root, weightsDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Manager) path(name string) string {
	return filepath.Join(m.root, name)
}

func (m *Manager) load() (Record, error) {
	payload, err := os.ReadFile(m.path(statusFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Record{}, nil
		}
		return Record{}, err
	}
	rec := Record{}
	if err := yaml.Unmarshal(payload, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (m *Manager) save(rec Record) error {
	payload, err := yaml.Marshal(rec)
	if err != nil {
		return err
	}

	// write-then-rename, so a crashed save never truncates the record.
	tmp := m.path(statusFile + ".new")
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, m.path(statusFile))
}

// Setup records the class names of the run.
func (m *Manager) Setup(ctx context.Context, classes []string) error {
	rec, err := m.load()
	if err != nil {
		return err
	}
	rec.Classes = classes
	return m.save(rec)
}

// Status reports the model status, derived from the record and the lock
// file on every call. A stale lock is removed here, so a modeld restarted
// over a dead training reports idle again.
func (m *Manager) Status(ctx context.Context) (model.Status, error) {
	rec, err := m.load()
	if err != nil {
		return model.Status{}, err
	}

	training, err := m.holdsFreshLock()
	if err != nil {
		return model.Status{}, err
	}

	state := model.Idle
	if training {
		state = model.InTraining
	}
	return model.Status{State: state, Version: rec.ModelVersion}, nil
}

// Record returns the persisted record as it is.
func (m *Manager) Record(ctx context.Context) (Record, error) {
	return m.load()
}

func (m *Manager) holdsFreshLock() (bool, error) {
	payload, err := os.ReadFile(m.path(lockFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}

	lr := lockRecord{}
	if err := yaml.Unmarshal(payload, &lr); err != nil || m.staleAfter < m.now().Sub(lr.StartedAt) {
		// unreadable or abandoned; take it down.
		if err := os.Remove(m.path(lockFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// acquire the training lock, exclusively.
//
// O_CREATE|O_EXCL makes creation atomic; losing the race (or finding a
// fresh lock) is model.ErrBusy.
func (m *Manager) acquireLock() error {
	for retried := false; ; retried = true {
		f, err := os.OpenFile(m.path(lockFile), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			payload, err := yaml.Marshal(lockRecord{Pid: os.Getpid(), StartedAt: m.now()})
			if err == nil {
				_, err = f.Write(payload)
			}
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				os.Remove(m.path(lockFile))
			}
			return err
		}
		if !errors.Is(err, os.ErrExist) {
			return err
		}

		fresh, err := m.holdsFreshLock()
		if err != nil {
			return err
		}
		if fresh || retried {
			return model.ErrBusy
		}
		// the stale lock is gone; one more attempt.
	}
}

func (m *Manager) releaseLock() error {
	if err := os.Remove(m.path(lockFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Train unpacks the dataset archive and starts a training job.
//
// Returns model.ErrBusy while another training holds the lock. The job
// itself runs detached from the request: completion (version bump + new
// priors) or failure is observed via Status, not via this call.
//
// onDone, if not nil, is called with the job's error when it settles.
// Tests use it; modeld passes a logger.
func (m *Manager) Train(ctx context.Context, dataset io.Reader, onDone func(error)) error {
	if err := m.acquireLock(); err != nil {
		return err
	}

	datasetDir, err := os.MkdirTemp(m.path(datasetsDir), "training-*")
	if err != nil {
		m.releaseLock()
		return err
	}
	if err := archive.ExtractTarGz(ctx, dataset, datasetDir); err != nil {
		os.RemoveAll(datasetDir)
		m.releaseLock()
		return err
	}

	go func() {
		err := m.runTraining(context.WithoutCancel(ctx), datasetDir)
		os.RemoveAll(datasetDir)
		if lerr := m.releaseLock(); err == nil {
			err = lerr
		}
		if onDone != nil {
			onDone(err)
		}
	}()
	return nil
}

func (m *Manager) runTraining(ctx context.Context, datasetDir string) error {
	if 0 < len(m.trainer) {
		args := append(m.trainer[1:], datasetDir, m.path(weightsDir))
		cmd := exec.CommandContext(ctx, m.trainer[0], args...)
		out := new(bytes.Buffer)
		cmd.Stdout = out
		cmd.Stderr = out
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("trainer command: %w: %s", err, out.String())
		}
	}

	priors, err := datasetPriors(datasetDir)
	if err != nil {
		return err
	}

	rec, err := m.load()
	if err != nil {
		return err
	}
	rec.ModelVersion += 1
	rec.Priors = priors
	return m.save(rec)
}

// label frequencies of the dataset: one directory per label, one file per
// item (the archive layout of pkg/archive).
func datasetPriors(datasetDir string) (map[string]float64, error) {
	labels, err := os.ReadDir(datasetDir)
	if err != nil {
		return nil, err
	}

	counts := map[string]int{}
	total := 0
	for _, l := range labels {
		if !l.IsDir() {
			continue
		}
		items, err := os.ReadDir(filepath.Join(datasetDir, l.Name()))
		if err != nil {
			return nil, err
		}
		counts[l.Name()] = len(items)
		total += len(items)
	}
	if total == 0 {
		return map[string]float64{}, nil
	}

	priors := map[string]float64{}
	for label, n := range counts {
		priors[label] = float64(n) / float64(total)
	}
	return priors, nil
}

// Predict returns the class probabilities of an item.
//
// With a predictor command configured, the item is piped to it and its JSON
// output is the prediction. Otherwise the recorded class priors of the last
// training stand in; before any training, the distribution is uniform over
// the classes Setup announced.
func (m *Manager) Predict(ctx context.Context, item io.Reader) (map[string]float64, int, error) {
	rec, err := m.load()
	if err != nil {
		return nil, 0, err
	}

	if 0 < len(m.predictor) {
		probabilities, err := m.runPredictor(ctx, item)
		if err != nil {
			return nil, 0, err
		}
		return probabilities, rec.ModelVersion, nil
	}

	if 0 < len(rec.Priors) {
		probabilities := map[string]float64{}
		for label, p := range rec.Priors {
			probabilities[label] = p
		}
		return probabilities, rec.ModelVersion, nil
	}

	probabilities := map[string]float64{}
	for _, class := range rec.Classes {
		probabilities[class] = 1.0 / float64(len(rec.Classes))
	}
	return probabilities, rec.ModelVersion, nil
}

func (m *Manager) runPredictor(ctx context.Context, item io.Reader) (map[string]float64, error) {
	args := append(m.predictor[1:], m.path(weightsDir))
	cmd := exec.CommandContext(ctx, m.predictor[0], args...)
	cmd.Stdin = item
	stderr := new(bytes.Buffer)
	cmd.Stderr = stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("predictor command: %w: %s", err, stderr.String())
	}

	probabilities := map[string]float64{}
	if err := json.Unmarshal(out, &probabilities); err != nil {
		return nil, fmt.Errorf("predictor command: unparsable output: %w", err)
	}
	return probabilities, nil
}
