// Package settings implements the render settings store. Every write
// advances a version counter that the render pass polls once per frame.
package settings

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/ospray/hdospray-sub000/version"
)

var (
	ErrUnknownSetting = errors.New("settings: unknown setting")
	ErrTypeMismatch   = errors.New("settings: value type does not match setting type")
)

type Key string

const (
	SamplesPerFrame      Key = "samplesPerFrame"
	SamplesToConvergence Key = "samplesToConvergence"
	AOSamples            Key = "aoSamples"
	AORadius             Key = "aoRadius"
	AOIntensity          Key = "aoIntensity"
	MaxDepth             Key = "maxDepth"
	RRStartDepth         Key = "rrStartDepth"
	MinContribution      Key = "minContribution"
	MaxContribution      Key = "maxContribution"
	PixelFilterType      Key = "pixelFilterType"
	UseDenoiser          Key = "useDenoiser"
	RendererType         Key = "rendererType"

	TonemapEnabled  Key = "tmpEnabled"
	TonemapExposure Key = "tmpExposure"
	TonemapContrast Key = "tmpContrast"
	TonemapShoulder Key = "tmpShoulder"
	TonemapMidIn    Key = "tmpMidIn"
	TonemapMidOut   Key = "tmpMidOut"
	TonemapHdrMax   Key = "tmpHdrMax"

	AmbientLight            Key = "ambientLight"
	StaticDirectionalLights Key = "staticDirectionalLights"
	EyeLight                Key = "eyeLight"
	KeyLight                Key = "keyLight"
	FillLight               Key = "fillLight"
	BackLight               Key = "backLight"
)

type setting struct {
	def   interface{}
	usage string
}

// A max contribution of zero means "unbounded".
var defaults = map[Key]setting{
	SamplesPerFrame:      {1, "samples per pixel rendered by each frame"},
	SamplesToConvergence: {100, "accumulated samples after which rendering stops"},
	AOSamples:            {1, "ambient occlusion samples per hit"},
	AORadius:             {float32(1e20), "ambient occlusion ray distance"},
	AOIntensity:          {float32(1), "ambient occlusion intensity"},
	MaxDepth:             {5, "maximum path length"},
	RRStartDepth:         {3, "path depth at which russian roulette starts"},
	MinContribution:      {float32(0.001), "paths contributing less than this are terminated"},
	MaxContribution:      {float32(0), "per sample radiance clamp (0 disables)"},
	PixelFilterType:      {"gaussian", "pixel filter: point, box or gaussian"},
	UseDenoiser:          {false, "denoise the final frame"},
	RendererType:         {"pathtracer", "renderer: pathtracer or ao"},

	TonemapEnabled:  {false, "apply the filmic tone mapper"},
	TonemapExposure: {float32(1), "tone mapper exposure"},
	TonemapContrast: {float32(1.6773), "tone mapper contrast"},
	TonemapShoulder: {float32(0.9714), "tone mapper shoulder"},
	TonemapMidIn:    {float32(0.18), "tone mapper mid-level input"},
	TonemapMidOut:   {float32(0.18), "tone mapper mid-level output"},
	TonemapHdrMax:   {float32(11.0785), "tone mapper maximum HDR input"},

	AmbientLight:            {false, "add a default ambient light"},
	StaticDirectionalLights: {false, "add default key, fill and back lights"},
	EyeLight:                {false, "add a directional light following the camera"},
	KeyLight:                {true, "enable the default key light"},
	FillLight:               {true, "enable the default fill light"},
	BackLight:               {true, "enable the default back light"},
}

// Description of a single setting.
type Descriptor struct {
	Key     Key
	Default interface{}
	Value   interface{}
	Usage   string
}

// Store is a typed key/value store with a version counter.
type Store struct {
	mu      sync.RWMutex
	values  map[Key]interface{}
	version *version.Counter
}

// NewStore creates a store populated with the default values.
func NewStore() *Store {
	s := &Store{
		values:  make(map[Key]interface{}, len(defaults)),
		version: &version.Counter{},
	}
	for key, def := range defaults {
		s.values[key] = def.def
	}
	return s
}

// Version returns the current settings version.
func (s *Store) Version() uint64 {
	return s.version.Load()
}

// Set updates a setting. Integer values are accepted for float settings.
func (s *Store) Set(key Key, value interface{}) error {
	def, ok := defaults[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSetting, key)
	}

	coerced, ok := coerce(def.def, value)
	if !ok {
		return fmt.Errorf("%w: %q expects %T; got %T", ErrTypeMismatch, key, def.def, value)
	}

	s.mu.Lock()
	s.values[key] = coerced
	s.version.Increment()
	s.mu.Unlock()
	return nil
}

// Parse updates a setting from its text form, as given on a command line.
func (s *Store) Parse(key Key, text string) error {
	def, ok := defaults[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSetting, key)
	}

	var (
		value interface{}
		err   error
	)
	switch def.def.(type) {
	case int:
		value, err = strconv.Atoi(text)
	case float32:
		var f float64
		f, err = strconv.ParseFloat(text, 32)
		value = float32(f)
	case bool:
		value, err = strconv.ParseBool(text)
	default:
		value = text
	}
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrTypeMismatch, key, err)
	}
	return s.Set(key, value)
}

func coerce(def, value interface{}) (interface{}, bool) {
	switch def.(type) {
	case int:
		v, ok := value.(int)
		return v, ok
	case float32:
		switch v := value.(type) {
		case float32:
			return v, true
		case float64:
			return float32(v), true
		case int:
			return float32(v), true
		}
	case bool:
		v, ok := value.(bool)
		return v, ok
	case string:
		v, ok := value.(string)
		return v, ok
	}
	return value, false
}

func (s *Store) get(key Key) interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

// Int returns an integer setting or 0 if key is not an integer setting.
func (s *Store) Int(key Key) int {
	v, _ := s.get(key).(int)
	return v
}

// Float returns a float setting or 0 if key is not a float setting.
func (s *Store) Float(key Key) float32 {
	v, _ := s.get(key).(float32)
	return v
}

// Bool returns a boolean setting or false if key is not a boolean setting.
func (s *Store) Bool(key Key) bool {
	v, _ := s.get(key).(bool)
	return v
}

// String returns a string setting or "" if key is not a string setting.
func (s *Store) String(key Key) string {
	v, _ := s.get(key).(string)
	return v
}

// Describe lists every setting sorted by key.
func (s *Store) Describe() []Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Descriptor, 0, len(defaults))
	for key, def := range defaults {
		out = append(out, Descriptor{
			Key:     key,
			Default: def.def,
			Value:   s.values[key],
			Usage:   def.usage,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
