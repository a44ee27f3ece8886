package soft

import (
	"math"

	"github.com/ospray/hdospray-sub000/types"
)

var defaultAlbedo = types.XYZ(0.8, 0.8, 0.8)

type hitInfo struct {
	t      float32
	normal types.Vec3
	albedo types.Vec3
	objID  uint32
	primID uint32
	instID uint32

	// Set when the ray hits a camera-visible light.
	emission types.Vec3
	emitter  bool
}

type triangle struct {
	v0, e1, e2 types.Vec3
	normal     types.Vec3
	primID     uint32
}

type capsule struct {
	a, b   types.Vec3
	radius float32
	primID uint32
}

// Primitives of one geometric model placed by one instance.
type chunk struct {
	min, max types.Vec3
	tris     []triangle
	capsules []capsule
	albedo   types.Vec3
	objID    uint32
	instID   uint32

	accel *bvh
}

type sphereLight struct {
	center   types.Vec3
	radius   float32
	radiance types.Vec3
}

type distantLight struct {
	// Direction the light travels in.
	dir      types.Vec3
	radiance types.Vec3
}

// A world flattened into world-space primitives.
type flatScene struct {
	chunks   []*chunk
	emitters []sphereLight
	points   []sphereLight
	distant  []distantLight
	ambient  types.Vec3
}

func lightRadiance(l *handle) types.Vec3 {
	return l.vec3Param("color", types.XYZ(1, 1, 1)).Mul(l.floatParam("intensity", 1))
}

// Flatten the committed world. Lights listed on the world illuminate the
// scene; lights nested in instanced groups are only visible to camera rays.
func flatten(world *handle) *flatScene {
	sc := &flatScene{}

	for instIndex, inst := range world.children("instance") {
		group := inst.child("group")
		if group == nil {
			continue
		}
		xf := inst.mat4Param("transform")
		instID := uint32(inst.intParam("id", instIndex))

		for _, model := range group.children("geometry") {
			if c := flattenModel(model, xf, instID); c != nil {
				sc.chunks = append(sc.chunks, c)
			}
		}

		for _, l := range group.children("light") {
			if l.subtype != "sphere" || !l.boolParam("visible", true) {
				continue
			}
			sc.emitters = append(sc.emitters, sphereLight{
				center:   xf.TransformPoint(l.vec3Param("position", types.Vec3{})),
				radius:   l.floatParam("radius", 0.1),
				radiance: lightRadiance(l),
			})
		}
	}

	for _, l := range world.children("light") {
		switch l.subtype {
		case "ambient":
			sc.ambient = sc.ambient.Add(lightRadiance(l))
		case "distant":
			sc.distant = append(sc.distant, distantLight{
				dir:      l.vec3Param("direction", types.XYZ(0, 0, 1)).Normalize(),
				radiance: lightRadiance(l),
			})
		case "sphere":
			sc.points = append(sc.points, sphereLight{
				center:   l.vec3Param("position", types.Vec3{}),
				radius:   l.floatParam("radius", 0),
				radiance: lightRadiance(l),
			})
		}
	}

	return sc
}

func flattenModel(model *handle, xf types.Mat4, instID uint32) *chunk {
	geom := model.child("geometry")
	if geom == nil {
		return nil
	}

	c := &chunk{
		albedo: defaultAlbedo,
		objID:  uint32(model.intParam("id", 0)),
		instID: instID,
		min:    types.XYZ(math.MaxFloat32, math.MaxFloat32, math.MaxFloat32),
		max:    types.XYZ(-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32),
	}
	if mat := model.child("material"); mat != nil {
		if mat.subtype == "obj" {
			c.albedo = mat.vec3Param("kd", defaultAlbedo)
		} else {
			c.albedo = mat.vec3Param("baseColor", defaultAlbedo)
		}
	}

	positions := geom.vec3Slice("vertex.position")
	world := make([]types.Vec3, len(positions))
	for i, p := range positions {
		world[i] = xf.TransformPoint(p)
	}

	index := geom.uintSlice("index")
	switch geom.subtype {
	case "mesh":
		for i := 0; i+2 < len(index); i += 3 {
			i0, i1, i2 := int(index[i]), int(index[i+1]), int(index[i+2])
			if i0 >= len(world) || i1 >= len(world) || i2 >= len(world) {
				continue
			}
			tri := triangle{
				v0:     world[i0],
				e1:     world[i1].Sub(world[i0]),
				e2:     world[i2].Sub(world[i0]),
				primID: uint32(i / 3),
			}
			tri.normal = tri.e1.Cross(tri.e2).Normalize()
			c.tris = append(c.tris, tri)
			c.grow(world[i0], 0)
			c.grow(world[i1], 0)
			c.grow(world[i2], 0)
		}
	case "curve":
		radii := geom.floatSlice("vertex.radius")
		radius := geom.floatParam("radius", 0.01)
		scale := xf.TransformDir(types.XYZ(1, 0, 0)).Len()
		for segment, start := range index {
			i := int(start)
			if i+1 >= len(world) {
				continue
			}
			r := radius
			if i < len(radii) {
				r = radii[i]
			}
			r *= scale
			c.capsules = append(c.capsules, capsule{a: world[i], b: world[i+1], radius: r, primID: uint32(segment)})
			c.grow(world[i], r)
			c.grow(world[i+1], r)
		}
	default:
		return nil
	}

	if len(c.tris) == 0 && len(c.capsules) == 0 {
		return nil
	}
	c.accel = buildBVH(c)
	return c
}

func (c *chunk) grow(p types.Vec3, r float32) {
	pad := types.XYZ(r, r, r)
	c.min = types.MinVec3(c.min, p.Sub(pad))
	c.max = types.MaxVec3(c.max, p.Add(pad))
}

type ray struct {
	origin types.Vec3
	dir    types.Vec3
	invDir types.Vec3
}

func newRay(origin, dir types.Vec3) ray {
	return ray{
		origin: origin,
		dir:    dir,
		invDir: types.XYZ(1/dir[0], 1/dir[1], 1/dir[2]),
	}
}

func (r ray) at(t float32) types.Vec3 {
	return r.origin.Add(r.dir.Mul(t))
}

// Slab test against the chunk bounds.
func (c *chunk) hitBounds(r ray, tMax float32) bool {
	return hitBox(c.min, c.max, r, tMax)
}

// Slab test against an axis-aligned box.
func hitBox(min, max types.Vec3, r ray, tMax float32) bool {
	tNear, tFar := float32(0), tMax
	for axis := 0; axis < 3; axis++ {
		t0 := (min[axis] - r.origin[axis]) * r.invDir[axis]
		t1 := (max[axis] - r.origin[axis]) * r.invDir[axis]
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		if t0 > tNear {
			tNear = t0
		}
		if t1 < tFar {
			tFar = t1
		}
		if tNear > tFar {
			return false
		}
	}
	return true
}

const rayEpsilon = 1e-4

// Möller-Trumbore ray/triangle intersection.
func (tri *triangle) intersect(r ray) (float32, bool) {
	p := r.dir.Cross(tri.e2)
	det := tri.e1.Dot(p)
	if det > -1e-9 && det < 1e-9 {
		return 0, false
	}
	invDet := 1 / det
	s := r.origin.Sub(tri.v0)
	u := s.Dot(p) * invDet
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.Cross(tri.e1)
	v := r.dir.Dot(q) * invDet
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t := tri.e2.Dot(q) * invDet
	return t, t > rayEpsilon
}

// Ray/capsule intersection; returns the distance and the surface normal.
func (cp *capsule) intersect(r ray) (float32, types.Vec3, bool) {
	ba := cp.b.Sub(cp.a)
	oa := r.origin.Sub(cp.a)
	baba := ba.Dot(ba)
	bard := ba.Dot(r.dir)
	baoa := ba.Dot(oa)
	rdoa := r.dir.Dot(oa)
	oaoa := oa.Dot(oa)
	rr := cp.radius * cp.radius

	a := baba - bard*bard
	b := baba*rdoa - baoa*bard
	c := baba*oaoa - baoa*baoa - rr*baba
	h := b*b - a*c
	if h >= 0 && a != 0 {
		t := (-b - float32(math.Sqrt(float64(h)))) / a
		y := baoa + t*bard
		if y > 0 && y < baba && t > rayEpsilon {
			p := r.at(t)
			axis := cp.a.Add(ba.Mul(y / baba))
			return t, p.Sub(axis).Normalize(), true
		}
		// Hit one of the caps.
		var oc types.Vec3
		center := cp.a
		if y > 0 {
			oc = r.origin.Sub(cp.b)
			center = cp.b
		} else {
			oc = oa
		}
		b = r.dir.Dot(oc)
		c = oc.Dot(oc) - rr
		h = b*b - c
		if h > 0 {
			t = -b - float32(math.Sqrt(float64(h)))
			if t > rayEpsilon {
				return t, r.at(t).Sub(center).Normalize(), true
			}
		}
	}
	return 0, types.Vec3{}, false
}

func intersectSphere(r ray, center types.Vec3, radius float32) (float32, bool) {
	oc := r.origin.Sub(center)
	b := oc.Dot(r.dir)
	c := oc.Dot(oc) - radius*radius
	h := b*b - c
	if h < 0 {
		return 0, false
	}
	t := -b - float32(math.Sqrt(float64(h)))
	return t, t > rayEpsilon
}

// Find the closest hit along r closer than tMax.
func (sc *flatScene) intersect(r ray, tMax float32) (hitInfo, bool) {
	hit := hitInfo{t: tMax}
	found := false

	for _, c := range sc.chunks {
		if !c.hitBounds(r, hit.t) {
			continue
		}
		numTris := int32(len(c.tris))
		c.accel.traverse(r, &hit.t, func(prim int32) bool {
			if prim < numTris {
				tri := &c.tris[prim]
				if t, ok := tri.intersect(r); ok && t < hit.t {
					hit = hitInfo{t: t, normal: tri.normal, albedo: c.albedo, objID: c.objID, primID: tri.primID, instID: c.instID}
					found = true
				}
				return false
			}
			cp := &c.capsules[prim-numTris]
			if t, n, ok := cp.intersect(r); ok && t < hit.t {
				hit = hitInfo{t: t, normal: n, albedo: c.albedo, objID: c.objID, primID: cp.primID, instID: c.instID}
				found = true
			}
			return false
		})
	}

	for _, e := range sc.emitters {
		if t, ok := intersectSphere(r, e.center, e.radius); ok && t < hit.t {
			hit = hitInfo{t: t, normal: r.at(t).Sub(e.center).Normalize(), emission: e.radiance, emitter: true}
			found = true
		}
	}

	return hit, found
}

// Returns true if anything blocks r before tMax.
func (sc *flatScene) occluded(r ray, tMax float32) bool {
	for _, c := range sc.chunks {
		if !c.hitBounds(r, tMax) {
			continue
		}
		blocked := false
		numTris := int32(len(c.tris))
		limit := tMax
		c.accel.traverse(r, &limit, func(prim int32) bool {
			if prim < numTris {
				t, ok := c.tris[prim].intersect(r)
				blocked = ok && t < tMax
			} else {
				t, _, ok := c.capsules[prim-numTris].intersect(r)
				blocked = ok && t < tMax
			}
			return blocked
		})
		if blocked {
			return true
		}
	}
	return false
}
