package scene

import (
	"fmt"

	"github.com/ospray/hdospray-sub000/backend"
	"github.com/ospray/hdospray-sub000/session"
	"github.com/ospray/hdospray-sub000/types"
)

// Mesh is a polygon mesh. Faces are fan triangulated; each geometry subset
// becomes a local copy with its own material.
type Mesh struct {
	rprim
}

func NewMesh(path string, objectID int) *Mesh {
	return &Mesh{rprim: newRprim(path, objectID)}
}

func (m *Mesh) Type() PrimType { return MeshType }

func (m *Mesh) Sync(s *session.Session, d Delegate, dirty DirtyBits) error {
	rebuild := m.pullPlacement(d, dirty)

	if dirty.Any(DirtyPoints|DirtyTopology) || m.copies == nil {
		copies, err := m.buildGeometry(s.Device(), d)
		if err != nil {
			return err
		}
		m.copies = copies
		rebuild = true
	}

	visible := d.Visible(m.path)
	if !rebuild && !dirty.Any(DirtyVisibility) {
		return nil
	}

	instances := m.instances
	if rebuild {
		var err error
		if instances, err = m.buildInstances(s); err != nil {
			return err
		}
	}
	m.publish(s, instances, visible, func() { s.AddMesh(m.path, m) })
	return nil
}

func (m *Mesh) Finalize(s *session.Session) {
	if m.registered {
		s.RemoveMesh(m.path)
		m.registered = false
	}
}

func (m *Mesh) buildGeometry(dev backend.Device, d Delegate) ([]localCopy, error) {
	points, err := requiredVec3s(d, m.path, AttrPoints)
	if err != nil {
		return nil, err
	}
	counts, err := requiredInts(d, m.path, AttrFaceVertexCounts)
	if err != nil {
		return nil, err
	}
	indices, err := requiredInts(d, m.path, AttrFaceVertexIndices)
	if err != nil {
		return nil, err
	}

	faces, err := triangulate(counts, indices, len(points))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", m.path, err)
	}

	var subsets []Subset
	if v, ok := d.Attribute(m.path, AttrSubsets); ok {
		subsets, _ = v.([]Subset)
	}

	if len(subsets) == 0 {
		geom, err := commitMesh(dev, points, flattenFaces(faces, nil))
		if err != nil {
			return nil, err
		}
		return []localCopy{{geometry: geom}}, nil
	}

	var copies []localCopy
	used := make([]bool, len(faces))
	for _, subset := range subsets {
		for _, f := range subset.FaceIndices {
			if f >= 0 && f < len(used) {
				used[f] = true
			}
		}
		geom, err := commitMesh(dev, points, flattenFaces(faces, subset.FaceIndices))
		if err != nil {
			return nil, err
		}
		copies = append(copies, localCopy{geometry: geom, material: subset.Material})
	}

	var rest []int
	for f, inSubset := range used {
		if !inSubset {
			rest = append(rest, f)
		}
	}
	if len(rest) != 0 {
		geom, err := commitMesh(dev, points, flattenFaces(faces, rest))
		if err != nil {
			return nil, err
		}
		copies = append(copies, localCopy{geometry: geom})
	}
	return copies, nil
}

func commitMesh(dev backend.Device, points []types.Vec3, index []uint32) (backend.Handle, error) {
	geom, err := dev.NewObject(backend.KindGeometry, "mesh")
	if err != nil {
		return nil, err
	}
	geom.SetParam("vertex.position", points)
	geom.SetParam("index", index)
	return geom.Commit(), nil
}

// Fan triangulate polygon faces. The result holds the triangle indices of
// every face; faces with fewer than three vertices produce no triangles.
func triangulate(counts, indices []int, numPoints int) ([][]uint32, error) {
	faces := make([][]uint32, len(counts))
	offset := 0
	for f, count := range counts {
		if count < 0 || offset+count > len(indices) {
			return nil, fmt.Errorf("%w: face %d references %d indices past the end of the index list", ErrInvalidTopology, f, count)
		}
		for _, idx := range indices[offset : offset+count] {
			if idx < 0 || idx >= numPoints {
				return nil, fmt.Errorf("%w: face %d references point %d of %d", ErrInvalidTopology, f, idx, numPoints)
			}
		}
		for v := 1; v+1 < count; v++ {
			faces[f] = append(faces[f],
				uint32(indices[offset]),
				uint32(indices[offset+v]),
				uint32(indices[offset+v+1]),
			)
		}
		offset += count
	}
	return faces, nil
}

// Concatenate the triangles of the selected faces; nil selects every face.
func flattenFaces(faces [][]uint32, selected []int) []uint32 {
	var out []uint32
	if selected == nil {
		for _, f := range faces {
			out = append(out, f...)
		}
		return out
	}
	for _, f := range selected {
		if f >= 0 && f < len(faces) {
			out = append(out, faces[f]...)
		}
	}
	return out
}
