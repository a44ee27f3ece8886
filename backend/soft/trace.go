package soft

import (
	"math"
	"math/rand"

	"github.com/ospray/hdospray-sub000/types"
)

type cameraModel struct {
	ortho    bool
	position types.Vec3
	dir      types.Vec3
	right    types.Vec3
	up       types.Vec3

	// Perspective.
	tanHalfFovy    float32
	apertureRadius float32
	focusDistance  float32

	// Orthographic.
	height float32

	aspect float32
}

func newCameraModel(cam *handle) cameraModel {
	dir := cam.vec3Param("direction", types.XYZ(0, 0, -1)).Normalize()
	up := cam.vec3Param("up", types.XYZ(0, 1, 0))
	right := dir.Cross(up).Normalize()
	fovy := cam.floatParam("fovy", 60)

	return cameraModel{
		ortho:          cam.subtype == "orthographic",
		position:       cam.vec3Param("position", types.Vec3{}),
		dir:            dir,
		right:          right,
		up:             right.Cross(dir),
		tanHalfFovy:    float32(math.Tan(float64(fovy) * math.Pi / 360)),
		apertureRadius: cam.floatParam("apertureRadius", 0),
		focusDistance:  cam.floatParam("focusDistance", 1),
		height:         cam.floatParam("height", 1),
		aspect:         cam.floatParam("aspect", 1),
	}
}

// Generate a primary ray through screen position (sx, sy) in [0, 1]^2.
// Row zero is the bottom of the image.
func (cm *cameraModel) generate(sx, sy float32, rng *rand.Rand) ray {
	u := 2*sx - 1
	v := 2*sy - 1

	if cm.ortho {
		origin := cm.position.
			Add(cm.right.Mul(u * 0.5 * cm.height * cm.aspect)).
			Add(cm.up.Mul(v * 0.5 * cm.height))
		return newRay(origin, cm.dir)
	}

	dir := cm.dir.
		Add(cm.right.Mul(u * cm.tanHalfFovy * cm.aspect)).
		Add(cm.up.Mul(v * cm.tanHalfFovy)).
		Normalize()

	if cm.apertureRadius <= 0 {
		return newRay(cm.position, dir)
	}

	// Thin lens: keep the focal point fixed and jitter the origin.
	focal := cm.position.Add(dir.Mul(cm.focusDistance / dir.Dot(cm.dir)))
	r := cm.apertureRadius * float32(math.Sqrt(rng.Float64()))
	phi := 2 * math.Pi * rng.Float64()
	lens := cm.right.Mul(r * float32(math.Cos(phi))).Add(cm.up.Mul(r * float32(math.Sin(phi))))
	origin := cm.position.Add(lens)
	return newRay(origin, focal.Sub(origin).Normalize())
}

type rendererModel struct {
	ao              bool
	spp             int
	maxPathLength   int
	rrStart         int
	minContribution float32
	maxContribution float32
	aoSamples       int
	aoRadius        float32
	aoIntensity     float32
	background      types.Vec4
	filter          string
	tonemap         toneMapper
}

func newRendererModel(r *handle) rendererModel {
	spp := r.intParam("pixelSamples", 1)
	if spp < 1 {
		spp = 1
	}
	return rendererModel{
		ao:              r.subtype == "ao",
		spp:             spp,
		maxPathLength:   r.intParam("maxPathLength", 5),
		rrStart:         r.intParam("roulettePathLength", 3),
		minContribution: r.floatParam("minContribution", 0.001),
		maxContribution: r.floatParam("maxContribution", 0),
		aoSamples:       r.intParam("aoSamples", 1),
		aoRadius:        r.floatParam("aoRadius", 1e20),
		aoIntensity:     r.floatParam("aoIntensity", 1),
		background:      r.vec4Param("backgroundColor", types.Vec4{}),
		filter:          r.stringParam("pixelFilter", "gaussian"),
		tonemap: toneMapper{
			enabled:  r.boolParam("tonemap.enabled", false),
			exposure: r.floatParam("tonemap.exposure", 1),
			contrast: r.floatParam("tonemap.contrast", 1.6773),
			shoulder: r.floatParam("tonemap.shoulder", 0.9714),
			midIn:    r.floatParam("tonemap.midIn", 0.18),
			midOut:   r.floatParam("tonemap.midOut", 0.18),
			hdrMax:   r.floatParam("tonemap.hdrMax", 11.0785),
		},
	}
}

func (rm *rendererModel) jitter(rng *rand.Rand) (float32, float32) {
	switch rm.filter {
	case "point":
		return 0.5, 0.5
	case "box":
		return rng.Float32(), rng.Float32()
	}
	g := func() float32 {
		v := rng.NormFloat64() * 0.5
		return float32(math.Max(-1, math.Min(1, v))) + 0.5
	}
	return g(), g()
}

// First-hit data for the auxiliary channels.
type primaryHit struct {
	t      float32
	normal types.Vec3
	albedo types.Vec3
	objID  uint32
	primID uint32
	instID uint32
}

const missID = math.MaxUint32

// Cosine-weighted direction around n.
func sampleHemisphere(n types.Vec3, rng *rand.Rand) types.Vec3 {
	r1 := 2 * math.Pi * rng.Float64()
	r2 := rng.Float64()
	r2s := math.Sqrt(r2)

	var tangent types.Vec3
	if math.Abs(float64(n[0])) > 0.1 {
		tangent = types.XYZ(0, 1, 0).Cross(n).Normalize()
	} else {
		tangent = types.XYZ(1, 0, 0).Cross(n).Normalize()
	}
	bitangent := n.Cross(tangent)

	return tangent.Mul(float32(math.Cos(r1) * r2s)).
		Add(bitangent.Mul(float32(math.Sin(r1) * r2s))).
		Add(n.Mul(float32(math.Sqrt(1 - r2)))).
		Normalize()
}

// Trace a single path and return its radiance and alpha.
func (rm *rendererModel) radiance(sc *flatScene, r ray, rng *rand.Rand, primary *primaryHit) (types.Vec3, float32) {
	var out types.Vec3
	throughput := types.XYZ(1, 1, 1)
	alpha := float32(1)

	for depth := 0; depth < rm.maxPathLength; depth++ {
		hit, found := sc.intersect(r, math.MaxFloat32)
		if depth == 0 {
			primary.t = float32(math.Inf(1))
			primary.objID, primary.primID, primary.instID = missID, missID, missID
			if found {
				primary.t = hit.t
				primary.normal = hit.normal
				primary.albedo = hit.albedo
				if !hit.emitter {
					primary.objID, primary.primID, primary.instID = hit.objID, hit.primID, hit.instID
				}
			}
		}

		if !found {
			out = out.Add(throughput.MulVec(sc.ambient))
			if depth == 0 {
				out = out.Add(rm.background.Vec3())
				alpha = rm.background[3]
			}
			break
		}
		if hit.emitter {
			out = out.Add(throughput.MulVec(hit.emission))
			break
		}

		n := hit.normal
		if n.Dot(r.dir) > 0 {
			n = n.Mul(-1)
		}
		p := r.at(hit.t).Add(n.Mul(rayEpsilon * 10))

		if rm.ao {
			out = out.Add(throughput.MulVec(hit.albedo).MulVec(rm.ambientOcclusion(sc, p, n, rng)))
			break
		}

		out = out.Add(throughput.MulVec(hit.albedo).MulVec(sc.direct(p, n)))

		throughput = throughput.MulVec(hit.albedo)
		if depth+1 >= rm.rrStart {
			q := throughput.MaxComponent()
			if q < rm.minContribution || rng.Float32() > q {
				break
			}
			throughput = throughput.Mul(1 / q)
		} else if throughput.MaxComponent() < rm.minContribution {
			break
		}

		r = newRay(p, sampleHemisphere(n, rng))
	}

	if rm.maxContribution > 0 {
		for c := 0; c < 3; c++ {
			if out[c] > rm.maxContribution {
				out[c] = rm.maxContribution
			}
		}
	}
	return out, alpha
}

// Direct illumination from the world lights with shadow rays.
func (sc *flatScene) direct(p, n types.Vec3) types.Vec3 {
	var out types.Vec3
	for _, l := range sc.distant {
		toLight := l.dir.Mul(-1)
		cos := n.Dot(toLight)
		if cos <= 0 || sc.occluded(newRay(p, toLight), math.MaxFloat32) {
			continue
		}
		out = out.Add(l.radiance.Mul(cos))
	}
	for _, l := range sc.points {
		v := l.center.Sub(p)
		dist := v.Len()
		if dist <= l.radius {
			continue
		}
		toLight := v.Mul(1 / dist)
		cos := n.Dot(toLight)
		if cos <= 0 || sc.occluded(newRay(p, toLight), dist-l.radius) {
			continue
		}
		out = out.Add(l.radiance.Mul(cos / (dist * dist)))
	}
	return out
}

func (rm *rendererModel) ambientOcclusion(sc *flatScene, p, n types.Vec3, rng *rand.Rand) types.Vec3 {
	ambient := sc.ambient
	if ambient == (types.Vec3{}) {
		ambient = types.XYZ(1, 1, 1)
	}
	if rm.aoSamples <= 0 {
		return ambient.Mul(rm.aoIntensity)
	}

	visible := 0
	for i := 0; i < rm.aoSamples; i++ {
		if !sc.occluded(newRay(p, sampleHemisphere(n, rng)), rm.aoRadius) {
			visible++
		}
	}
	return ambient.Mul(rm.aoIntensity * float32(visible) / float32(rm.aoSamples))
}

// Output of one frame before it is merged into the framebuffer.
type frameResult struct {
	color  []float32
	depth  []float32
	normal []float32
	albedo []float32
	objID  []uint32
	primID []uint32
	instID []uint32
}

func newFrameResult(w, h int) *frameResult {
	n := w * h
	return &frameResult{
		color:  make([]float32, 4*n),
		depth:  make([]float32, n),
		normal: make([]float32, 3*n),
		albedo: make([]float32, 3*n),
		objID:  make([]uint32, n),
		primID: make([]uint32, n),
		instID: make([]uint32, n),
	}
}

type tile struct {
	x0, y0, x1, y1 int
}

// Render a tile. Color holds the sum of spp samples; the auxiliary channels
// keep the first sample's primary hit.
func renderTile(t tile, w, h int, sc *flatScene, cm *cameraModel, rm *rendererModel, res *frameResult, rng *rand.Rand) {
	var primary primaryHit
	for y := t.y0; y < t.y1; y++ {
		for x := t.x0; x < t.x1; x++ {
			idx := y*w + x
			var sum types.Vec3
			var alphaSum float32
			for s := 0; s < rm.spp; s++ {
				jx, jy := rm.jitter(rng)
				r := cm.generate((float32(x)+jx)/float32(w), (float32(y)+jy)/float32(h), rng)
				var hit primaryHit
				c, a := rm.radiance(sc, r, rng, &hit)
				sum = sum.Add(c)
				alphaSum += a
				if s == 0 {
					primary = hit
				}
			}

			res.color[4*idx+0] = sum[0]
			res.color[4*idx+1] = sum[1]
			res.color[4*idx+2] = sum[2]
			res.color[4*idx+3] = alphaSum
			res.depth[idx] = primary.t
			copy(res.normal[3*idx:3*idx+3], primary.normal[:])
			copy(res.albedo[3*idx:3*idx+3], primary.albedo[:])
			res.objID[idx] = primary.objID
			res.primID[idx] = primary.primID
			res.instID[idx] = primary.instID
		}
	}
}
