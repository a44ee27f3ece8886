package scene

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/ospray/hdospray-sub000/log"
	"github.com/ospray/hdospray-sub000/session"
	"golang.org/x/sync/errgroup"
)

// Prim is a scene object that mirrors its delegate data into backend
// objects.
type Prim interface {
	Path() string
	Type() PrimType

	// Pull the attributes flagged in dirty and update the backend objects.
	Sync(s *session.Session, d Delegate, dirty DirtyBits) error

	// Release registrations held with the session.
	Finalize(s *session.Session)
}

// Implemented by prims that render with materials.
type materialUser interface {
	MaterialPaths() []string
}

// Index tracks the prims of a scene and their dirty state.
type Index struct {
	logger   log.Logger
	session  *session.Session
	delegate Delegate

	mu           sync.Mutex
	prims        map[string]Prim
	dirty        map[string]DirtyBits
	nextObjectID int
}

func NewIndex(s *session.Session, d Delegate) *Index {
	return &Index{
		logger:   log.New("scene index"),
		session:  s,
		delegate: d,
		prims:    make(map[string]Prim),
		dirty:    make(map[string]DirtyBits),
	}
}

// Populate inserts every prim the delegate knows about. Prims with an
// unknown type are logged and skipped.
func (ix *Index) Populate() {
	for _, path := range ix.delegate.Paths() {
		ix.Insert(ix.delegate.Type(path), path)
	}
}

// Insert creates a prim of the given type and marks it fully dirty.
func (ix *Index) Insert(t PrimType, path string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, exists := ix.prims[path]; exists {
		ix.dirty[path] |= DirtyAll
		return nil
	}

	var prim Prim
	switch t {
	case MeshType:
		ix.nextObjectID++
		prim = NewMesh(path, ix.nextObjectID)
	case BasisCurvesType:
		ix.nextObjectID++
		prim = NewBasisCurves(path, ix.nextObjectID)
	case MaterialType:
		prim = NewMaterial(path)
	case CameraType:
		prim = NewCamera(path)
	case DistantLightType, SphereLightType, DomeLightType:
		prim = NewLight(path, t)
	default:
		err := fmt.Errorf("%w: %q at %s", ErrUnknownPrimType, t, path)
		ix.logger.Warningf("skipping prim: %v", err)
		return err
	}

	ix.prims[path] = prim
	ix.dirty[path] = DirtyAll
	return nil
}

// Remove finalizes and drops the prim at path.
func (ix *Index) Remove(path string) {
	ix.mu.Lock()
	prim, ok := ix.prims[path]
	delete(ix.prims, path)
	delete(ix.dirty, path)
	ix.mu.Unlock()

	if ok {
		prim.Finalize(ix.session)
	}
}

// MarkDirty flags prim data for the next sync.
func (ix *Index) MarkDirty(path string, bits DirtyBits) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.prims[path]; ok {
		ix.dirty[path] |= bits
	}
}

// Prim returns the prim at path.
func (ix *Index) Prim(path string) (Prim, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	p, ok := ix.prims[path]
	return p, ok
}

// Camera returns the camera prim at path.
func (ix *Index) Camera(path string) (*Camera, bool) {
	p, ok := ix.Prim(path)
	if !ok {
		return nil, false
	}
	cam, ok := p.(*Camera)
	return cam, ok
}

// Sync brings every dirty prim up to date. Materials are synced first and
// their changes are propagated to the prims that use them; the remaining
// prims are synced in parallel. Errors are logged per prim and never stop
// the sync of other prims. Sync only fails if ctx is cancelled.
func (ix *Index) Sync(ctx context.Context) error {
	ix.mu.Lock()
	dirty := ix.dirty
	ix.dirty = make(map[string]DirtyBits)
	prims := make(map[string]Prim, len(ix.prims))
	for path, p := range ix.prims {
		prims[path] = p
	}
	ix.mu.Unlock()

	var materials, rest []string
	for path := range dirty {
		if prims[path].Type() == MaterialType {
			materials = append(materials, path)
		} else {
			rest = append(rest, path)
		}
	}
	sort.Strings(materials)

	if err := ix.syncAll(ctx, prims, dirty, materials); err != nil {
		return err
	}

	if len(materials) != 0 {
		changed := make(map[string]bool, len(materials))
		for _, path := range materials {
			changed[path] = true
		}
		for path, p := range prims {
			user, ok := p.(materialUser)
			if !ok {
				continue
			}
			for _, mat := range user.MaterialPaths() {
				if changed[mat] {
					if _, queued := dirty[path]; !queued {
						rest = append(rest, path)
					}
					dirty[path] |= DirtyMaterialID
					break
				}
			}
		}
	}

	sort.Strings(rest)
	return ix.syncAll(ctx, prims, dirty, rest)
}

func (ix *Index) syncAll(ctx context.Context, prims map[string]Prim, dirty map[string]DirtyBits, paths []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for _, path := range paths {
		prim, bits := prims[path], dirty[path]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := prim.Sync(ix.session, ix.delegate, bits); err != nil {
				ix.logger.Errorf("sync of %s %s failed: %v", prim.Type(), prim.Path(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
