package pipeline

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Patch is one targeted edit to an opaque JSON payload. Ops:
//
//	set      — write Value at Path unconditionally
//	default  — write Value at Path only when the path is absent
//	delete   — remove Path
type Patch struct {
	Op    string `yaml:"op"`
	Path  string `yaml:"path"`
	Value any    `yaml:"value,omitempty"`
}

// CompatStage smooths over provider quirks with declarative payload patches:
// request patches on the way in, response patches on the way out. It never
// reshapes protocol structure, only individual fields.
type CompatStage struct {
	request  []Patch
	response []Patch
}

// NewCompatStage builds a compatibility stage from patch lists.
func NewCompatStage(request, response []Patch) *CompatStage {
	return &CompatStage{request: request, response: response}
}

func (s *CompatStage) Name() string { return "compatibility" }

func (s *CompatStage) ProcessIncoming(ctx context.Context, env *Envelope) error {
	return s.apply(env, s.request)
}

func (s *CompatStage) ProcessOutgoing(ctx context.Context, env *Envelope) error {
	return s.apply(env, s.response)
}

func (s *CompatStage) apply(env *Envelope, patches []Patch) error {
	data := env.Data
	var err error
	for _, p := range patches {
		switch p.Op {
		case "set":
			data, err = sjson.SetBytes(data, p.Path, p.Value)
		case "default":
			if gjson.GetBytes(data, p.Path).Exists() {
				continue
			}
			data, err = sjson.SetBytes(data, p.Path, p.Value)
		case "delete":
			data, err = sjson.DeleteBytes(data, p.Path)
		default:
			return fmt.Errorf("unknown patch op %q", p.Op)
		}
		if err != nil {
			return fmt.Errorf("patch %s %s: %w", p.Op, p.Path, err)
		}
	}
	env.Data = data
	return nil
}
