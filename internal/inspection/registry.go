package inspection

import (
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// Factory creates a fresh inspection with its default severity.
type Factory func() Inspection

// Registry holds the built-in inspections.
type Registry struct {
	names     []string
	factories map[string]Factory
}

// Settings configure the inspections built from a Registry.
type Settings struct {
	// Severities overrides severities by inspection name.
	Severities map[string]string
	// Disabled lists inspections that are not built at all.
	Disabled []string
	// Logger receives a debug record for each override that matches no
	// inspection. Nil discards them.
	Logger *slog.Logger
}

// Builtin returns the process-wide registry, built on first use.
var Builtin = sync.OnceValue(func() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.register("FunctionReturnValueNotUsed", func() Inspection { return NewFunctionReturnValueNotUsed() })
	r.register("ProcedureNotUsed", func() Inspection { return NewProcedureNotUsed() })
	return r
})

func (r *Registry) register(name string, f Factory) {
	r.names = append(r.names, name)
	r.factories[strings.ToLower(name)] = f
}

// Names returns the registered inspection names in registration order.
func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}

// Build instantiates every registered inspection not disabled, appends
// extra, and applies the severity overrides to the whole set. Overrides
// naming an inspection that is not in the set are skipped.
func (r *Registry) Build(settings Settings, extra ...Inspection) ([]Inspection, error) {
	logger := settings.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	disabled := make(map[string]bool, len(settings.Disabled))
	for _, name := range settings.Disabled {
		disabled[strings.ToLower(name)] = true
	}

	var out []Inspection
	for _, name := range r.names {
		if !disabled[strings.ToLower(name)] {
			out = append(out, r.factories[strings.ToLower(name)]())
		}
	}
	for _, i := range extra {
		if !disabled[strings.ToLower(i.Name())] {
			out = append(out, i)
		}
	}

	for name, value := range settings.Severities {
		severity, err := ParseSeverity(value)
		if err != nil {
			return nil, err
		}
		idx := slices.IndexFunc(out, func(i Inspection) bool { return strings.EqualFold(i.Name(), name) })
		if idx < 0 {
			logger.Debug("severity override matches no inspection", "inspection", name, "disabled", disabled[strings.ToLower(name)])
			continue
		}
		out[idx].SetSeverity(severity)
	}
	return out, nil
}
