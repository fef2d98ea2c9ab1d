package modeld

import "time"

// configuration of the modeld server.
type ModeldConfig struct {
	port  int32
	model *ModelConfig
}

func (c *ModeldConfig) Port() int32 {
	return c.port
}

func (c *ModeldConfig) Model() *ModelConfig {
	return c.model
}

// configuration of the model manager.
type ModelConfig struct {
	root       string
	trainer    []string
	predictor  []string
	staleAfter time.Duration
}

// directory holding the status record, datasets and weights.
func (c *ModelConfig) Root() string {
	return c.root
}

// trainer command. Empty = no external trainer; training only records the
// dataset priors.
func (c *ModelConfig) Trainer() []string {
	return c.trainer
}

// predictor command. Empty = predictions fall back to the recorded priors.
func (c *ModelConfig) Predictor() []string {
	return c.predictor
}

// how old a training lock may be before it is taken over.
func (c *ModelConfig) StaleAfter() time.Duration {
	return c.staleAfter
}
