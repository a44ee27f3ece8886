// Package session holds the state shared between independently synced
// scene objects and the render pass: the backend device, the version
// counters and the light, geometry and material registries.
package session

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/ospray/hdospray-sub000/backend"
	"github.com/ospray/hdospray-sub000/config"
	"github.com/ospray/hdospray-sub000/log"
	"github.com/ospray/hdospray-sub000/settings"
	"github.com/ospray/hdospray-sub000/version"
)

// GeometryContributor is implemented by scene objects that place geometry
// in the world.
type GeometryContributor interface {
	// Append the object's committed instances to out if it is visible.
	ContributeInstances(out []backend.Handle) []backend.Handle
}

// A registered light.
type Light struct {
	Path   string
	Handle backend.Handle

	// Visible lights illuminate the scene; lights visible to camera
	// also show up in primary rays.
	Visible         bool
	VisibleToCamera bool
}

// Versions is a snapshot of all version counters.
type Versions struct {
	Model    uint64
	Light    uint64
	Material uint64
	Settings uint64
}

// A path keyed registry that preserves registration order.
type registry struct {
	order   []string
	entries map[string]GeometryContributor
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]GeometryContributor)}
}

// Returns false if path was already registered.
func (r *registry) add(path string, g GeometryContributor) bool {
	if _, exists := r.entries[path]; exists {
		r.entries[path] = g
		return false
	}
	r.entries[path] = g
	r.order = append(r.order, path)
	return true
}

func (r *registry) remove(path string) bool {
	if _, exists := r.entries[path]; !exists {
		return false
	}
	delete(r.entries, path)
	for i, p := range r.order {
		if p == path {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *registry) list() []GeometryContributor {
	out := make([]GeometryContributor, 0, len(r.order))
	for _, p := range r.order {
		out = append(out, r.entries[p])
	}
	return out
}

type Session struct {
	logger log.Logger

	// Serializes every registry mutation and its version bump.
	sync.Mutex

	id       string
	cfg      *config.Config
	device   backend.Device
	settings *settings.Store

	modelVersion    version.Counter
	lightVersion    version.Counter
	materialVersion version.Counter

	lights    map[string]Light
	meshes    *registry
	curves    *registry
	materials map[string]backend.Handle
}

// New opens the configured device and creates a session around it. If the
// device rejects its arguments, opening is retried once without arguments.
func New(cfg *config.Config, store *settings.Store) (*Session, error) {
	logger := log.New("session")

	dev, err := backend.Open(cfg.Device, cfg.DeviceArgs)
	if err != nil && len(cfg.DeviceArgs) != 0 {
		logger.Warningf("device %q rejected arguments %v: %v; retrying without arguments", cfg.Device, cfg.DeviceArgs, err)
		dev, err = backend.Open(cfg.Device, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceInit, err)
	}

	return NewWithDevice(cfg, store, dev), nil
}

// NewWithDevice creates a session around an already opened device.
func NewWithDevice(cfg *config.Config, store *settings.Store, dev backend.Device) *Session {
	if store == nil {
		store = settings.NewStore()
	}
	s := &Session{
		logger:    log.New("session"),
		id:        uuid.NewString(),
		cfg:       cfg,
		device:    dev,
		settings:  store,
		lights:    make(map[string]Light),
		meshes:    newRegistry(),
		curves:    newRegistry(),
		materials: make(map[string]backend.Handle),
	}
	s.logger.Infof("session %s using device %q", s.id, dev.Name())
	return s
}

func (s *Session) ID() string                { return s.id }
func (s *Session) Config() *config.Config    { return s.cfg }
func (s *Session) Device() backend.Device    { return s.device }
func (s *Session) Settings() *settings.Store { return s.settings }

// Versions returns the current value of every counter.
func (s *Session) Versions() Versions {
	return Versions{
		Model:    s.modelVersion.Load(),
		Light:    s.lightVersion.Load(),
		Material: s.materialVersion.Load(),
		Settings: s.settings.Version(),
	}
}

// AddLight registers or replaces the light for path.
func (s *Session) AddLight(path string, l Light) {
	s.Lock()
	defer s.Unlock()

	l.Path = path
	s.lights[path] = l
	s.lightVersion.Increment()
}

// RemoveLight drops the light registered for path. Removing an unknown
// path is a no-op and leaves the version untouched.
func (s *Session) RemoveLight(path string) {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.lights[path]; !ok {
		return
	}
	delete(s.lights, path)
	s.lightVersion.Increment()
}

// GetLights returns a snapshot of the registered lights sorted by path.
func (s *Session) GetLights() []Light {
	s.Lock()
	defer s.Unlock()

	out := make([]Light, 0, len(s.lights))
	for _, l := range s.lights {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// AddMesh registers a mesh. Registering the same path again replaces the
// entry without bumping the model version.
func (s *Session) AddMesh(path string, g GeometryContributor) {
	s.Lock()
	defer s.Unlock()

	if s.meshes.add(path, g) {
		s.modelVersion.Increment()
	}
}

func (s *Session) RemoveMesh(path string) {
	s.Lock()
	defer s.Unlock()

	if s.meshes.remove(path) {
		s.modelVersion.Increment()
	}
}

// GetMeshes returns the registered meshes in registration order.
func (s *Session) GetMeshes() []GeometryContributor {
	s.Lock()
	defer s.Unlock()
	return s.meshes.list()
}

// AddBasisCurves registers a curves object; see AddMesh.
func (s *Session) AddBasisCurves(path string, g GeometryContributor) {
	s.Lock()
	defer s.Unlock()

	if s.curves.add(path, g) {
		s.modelVersion.Increment()
	}
}

func (s *Session) RemoveBasisCurves(path string) {
	s.Lock()
	defer s.Unlock()

	if s.curves.remove(path) {
		s.modelVersion.Increment()
	}
}

// GetBasisCurves returns the registered curves in registration order.
func (s *Session) GetBasisCurves() []GeometryContributor {
	s.Lock()
	defer s.Unlock()
	return s.curves.list()
}

// UpdateGeometry applies a change to already registered geometry and then
// bumps the model version, both under the session lock.
func (s *Session) UpdateGeometry(apply func()) {
	s.Lock()
	defer s.Unlock()

	apply()
	s.modelVersion.Increment()
}

// SetMaterial registers or replaces the committed material for path.
func (s *Session) SetMaterial(path string, h backend.Handle) {
	s.Lock()
	defer s.Unlock()

	s.materials[path] = h
	s.materialVersion.Increment()
}

func (s *Session) RemoveMaterial(path string) {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.materials[path]; !ok {
		return
	}
	delete(s.materials, path)
	s.materialVersion.Increment()
}

// Material returns the committed material for path.
func (s *Session) Material(path string) (backend.Handle, bool) {
	s.Lock()
	defer s.Unlock()

	h, ok := s.materials[path]
	return h, ok
}

// Close releases the device. The session must not be used afterwards.
func (s *Session) Close() {
	s.device.Close()
}
