package modeld

import (
	"fmt"
	"time"
)

type Marshalled[S any] interface {
	trySeal(string) S
}

// seal marshalled object.
//
// this function CAN CAUSE PANIC if misconfiguration is found.
//
// All types named `pkg/configs/modeld.XxxMarshall` are `Marshalled[*Xxx]` .
func TrySeal[S any](conf Marshalled[S]) S {
	return conf.trySeal("(root)")
}

type ModeldConfigMarshall struct {
	Port  int32                `yaml:"port"`
	Model *ModelConfigMarshall `yaml:"model"`
}

var _ Marshalled[*ModeldConfig] = &ModeldConfigMarshall{}

func (m *ModeldConfigMarshall) trySeal(path string) *ModeldConfig {
	return &ModeldConfig{
		port:  m.Port,
		model: nonnil(m.Model, path+".model").trySeal(path + ".model"),
	}
}

type ModelConfigMarshall struct {
	Root       string   `yaml:"root"`
	Trainer    []string `yaml:"trainer,omitempty"`
	Predictor  []string `yaml:"predictor,omitempty"`
	StaleAfter string   `yaml:"staleAfter,omitempty"`
}

func (mm *ModelConfigMarshall) trySeal(path string) *ModelConfig {
	staleAfter := 2 * time.Hour
	if mm.StaleAfter != "" {
		d, err := time.ParseDuration(mm.StaleAfter)
		if err != nil {
			panic(fmt.Errorf("%s.staleAfter can not be parsed: %w", path, err))
		}
		if d <= 0 {
			panic(fmt.Errorf("%s.staleAfter should be positive: %s", path, mm.StaleAfter))
		}
		staleAfter = d
	}

	return &ModelConfig{
		root:       required(mm.Root, path+".root"),
		trainer:    mm.Trainer,
		predictor:  mm.Predictor,
		staleAfter: staleAfter,
	}
}

func nonnil[T any](v *T, path string) *T {
	if v == nil {
		panic(path + " is required")
	}
	return v
}

func required[T comparable](v T, path string) T {
	if v == *new(T) {
		panic(path + " is required")
	}
	return v
}
