package reader

import (
	"bufio"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ospray/hdospray-sub000/asset"
	"github.com/ospray/hdospray-sub000/log"
	"github.com/ospray/hdospray-sub000/scene"
	"github.com/ospray/hdospray-sub000/types"
)

// Lens used for the scene camera; the vertical aperture is derived from
// the camera_fov statement.
const cameraFocalLength = 50

type wavefrontMaterial struct {
	Name string

	// Diffuse/Albedo color.
	Kd types.Vec3

	// Specular color.
	Ks types.Vec3

	// Emissive color.
	Ke types.Vec3

	// Index of refraction.
	Ni float32

	// Principled extensions (Pr/Nr, Pm) and dissolve (d/Tr).
	Roughness    float32
	HasRoughness bool
	Metallic     float32
	HasMetallic  bool
	Opacity      float32

	// True if this material is used by at least one face.
	Used bool
}

func newWavefrontMaterial(name string) *wavefrontMaterial {
	return &wavefrontMaterial{Name: name, Opacity: 1}
}

// Map the wavefront parameters to principled material attributes.
// Specular materials without an index of refraction are treated as
// conductors.
func (wf *wavefrontMaterial) attributes() map[string]interface{} {
	roughness, metallic := float32(0.5), wf.Metallic
	if wf.HasRoughness {
		roughness = wf.Roughness
	}
	if !wf.HasMetallic && wf.Ks.MaxComponent() > 0 && wf.Ni == 0 {
		metallic = 1
		if !wf.HasRoughness {
			roughness = 0.1
		}
	}

	baseColor := wf.Kd
	if metallic > 0 && wf.Ks.MaxComponent() > 0 {
		baseColor = wf.Ks
	}
	return map[string]interface{}{
		scene.AttrBaseColor: baseColor,
		scene.AttrRoughness: roughness,
		scene.AttrMetallic:  metallic,
		scene.AttrOpacity:   wf.Opacity,
	}
}

// A mesh collects faces that index the global vertex list. Vertices are
// copied into a mesh local list as faces reference them.
type wavefrontMesh struct {
	name string

	points  []types.Vec3
	remap   map[int]int
	counts  []int
	indices []int

	// Material index of every face.
	faceMaterials []int

	instances []types.Mat4
}

func newWavefrontMesh(name string) *wavefrontMesh {
	return &wavefrontMesh{name: name, remap: make(map[int]int)}
}

func (m *wavefrontMesh) addFace(vertexIndices []int, vertexList []types.Vec3, material int) {
	for _, global := range vertexIndices {
		local, ok := m.remap[global]
		if !ok {
			local = len(m.points)
			m.points = append(m.points, vertexList[global])
			m.remap[global] = local
		}
		m.indices = append(m.indices, local)
	}
	m.counts = append(m.counts, len(vertexIndices))
	m.faceMaterials = append(m.faceMaterials, material)
}

type wavefrontCamera struct {
	fov  float32
	eye  types.Vec3
	look types.Vec3
	up   types.Vec3
}

type wavefrontSceneReader struct {
	logger log.Logger

	// A map of material names to parsed wavefront materials
	matNameToIndex map[string]int

	// Currently selected material or -1.
	curMaterial int

	// Parsed wavefront materials.
	materials []*wavefrontMaterial

	meshes       []*wavefrontMesh
	hasInstances bool
	camera       wavefrontCamera

	// Global vertex list and the sizes of the uv and normal lists.
	vertexList  []types.Vec3
	uvCount     int
	normalCount int

	// An error stack that provides additional error information when
	// scene files include other files (models, mat libs e.t.c)
	errStack []string
}

// Create a new wavefront scene reader.
func newWavefrontReader() *wavefrontSceneReader {
	return &wavefrontSceneReader{
		logger:         log.New("wavefront scene reader"),
		matNameToIndex: make(map[string]int),
		curMaterial:    -1,
		camera: wavefrontCamera{
			fov:  45,
			look: types.XYZ(0, 0, -1),
			up:   types.XYZ(0, 1, 0),
		},
	}
}

// Read scene definition and add its prims to d.
func (r *wavefrontSceneReader) Read(sceneRes *asset.Resource, d *scene.MemoryDelegate) (*Scene, error) {
	r.logger.Noticef(`parsing scene from "%s"`, sceneRes.Path())
	start := time.Now()

	if err := r.parse(sceneRes); err != nil {
		return nil, err
	}

	out := r.emit(d)
	r.logger.Noticef("parsed %d meshes with %d faces in %d ms", len(out.Meshes), out.Faces, time.Since(start).Nanoseconds()/1e6)
	return out, nil
}

// Add the parsed meshes, the materials they use and the camera to d. When
// the scene defines instances, meshes without any instance are hidden.
func (r *wavefrontSceneReader) emit(d *scene.MemoryDelegate) *Scene {
	out := &Scene{Camera: CameraPath}

	materialPaths := make([]string, len(r.materials))
	for index, wfMat := range r.materials {
		if !wfMat.Used {
			r.logger.Infof("skipping unused material %q", wfMat.Name)
			continue
		}
		name := wfMat.Name
		if name == "" {
			name = "default"
		}
		materialPaths[index] = MaterialRoot + sanitizeName(name)
		d.Add(materialPaths[index], scene.PrimDesc{
			Type:       scene.MaterialType,
			Attributes: wfMat.attributes(),
		})
		out.Materials = append(out.Materials, materialPaths[index])
	}

	usedNames := make(map[string]int)
	for _, mesh := range r.meshes {
		name := sanitizeName(mesh.name)
		if n := usedNames[name]; n > 0 {
			usedNames[name]++
			name = fmt.Sprintf("%s_%d", name, n+1)
		} else {
			usedNames[name] = 1
		}
		path := MeshRoot + name

		desc := scene.PrimDesc{
			Type:      scene.MeshType,
			Hidden:    r.hasInstances && len(mesh.instances) == 0,
			Instances: mesh.instances,
			Attributes: map[string]interface{}{
				scene.AttrPoints:            mesh.points,
				scene.AttrFaceVertexCounts:  mesh.counts,
				scene.AttrFaceVertexIndices: mesh.indices,
				scene.AttrDisplayColor:      r.materials[mesh.faceMaterials[0]].Kd,
			},
		}

		// A single material binds the whole mesh; otherwise faces are
		// grouped into subsets in order of first use.
		var subsets []scene.Subset
		subsetIndex := make(map[int]int)
		for face, mat := range mesh.faceMaterials {
			i, ok := subsetIndex[mat]
			if !ok {
				i = len(subsets)
				subsetIndex[mat] = i
				subsets = append(subsets, scene.Subset{Material: materialPaths[mat]})
			}
			subsets[i].FaceIndices = append(subsets[i].FaceIndices, face)
		}
		if len(subsets) == 1 {
			desc.Material = subsets[0].Material
		} else {
			desc.Attributes[scene.AttrSubsets] = subsets
		}

		d.Add(path, desc)
		out.Meshes = append(out.Meshes, path)
		out.Faces += len(mesh.counts)
	}

	vAperture := 2 * cameraFocalLength * float32(math.Tan(float64(r.camera.fov)*math.Pi/360))
	d.Add(CameraPath, scene.PrimDesc{
		Type:      scene.CameraType,
		Transform: types.LookAtV(r.camera.eye, r.camera.look, r.camera.up).Inv(),
		Attributes: map[string]interface{}{
			scene.AttrFocalLength:      float32(cameraFocalLength),
			scene.AttrVerticalAperture: vAperture,
		},
	})
	return out
}

// Generate an error message that also includes any data in the error stack.
func (r *wavefrontSceneReader) emitError(file string, line int, msgFormat string, args ...interface{}) error {
	msg := fmt.Sprintf(msgFormat, args...)

	var errMsg string
	if file != "" {
		errMsg = fmt.Sprintf("[%s: %d] error: %s\n%s", file, line, msg, strings.Join(r.errStack, "\n"))
	} else {
		errMsg = fmt.Sprintf("error: %s\n%s", msg, strings.Join(r.errStack, "\n"))
	}

	return fmt.Errorf("%s", strings.Trim(errMsg, "\n"))
}

// Push a frame to the error stack.
func (r *wavefrontSceneReader) pushFrame(msg string) {
	r.errStack = append([]string{msg}, r.errStack...)
}

// Pop a frame from the error stack.
func (r *wavefrontSceneReader) popFrame() {
	r.errStack = r.errStack[1:]
}

// Create and select a default material for faces not using one.
func (r *wavefrontSceneReader) defaultMaterial() int {
	matIndex, exists := r.matNameToIndex[""]
	if !exists {
		mat := newWavefrontMaterial("")
		mat.Kd = types.XYZ(0.7, 0.7, 0.7)
		r.materials = append(r.materials, mat)
		matIndex = len(r.materials) - 1
		r.matNameToIndex[""] = matIndex
	}
	r.curMaterial = matIndex
	return matIndex
}

// Parse wavefront object scene format.
func (r *wavefrontSceneReader) parse(res *asset.Resource) error {
	var lineNum int
	var err error

	// Files included with "call" use 1-based indices relative to their
	// own vertex data.
	relVertexOffset := len(r.vertexList)
	relUvOffset := r.uvCount
	relNormalOffset := r.normalCount

	scanner := bufio.NewScanner(res)
	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		switch lineTokens[0] {
		case "call", "mtllib":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "%s"; expected 1 argument; got %d`, lineTokens[0], len(lineTokens)-1)
			}

			r.pushFrame(fmt.Sprintf("referenced from %s:%d [%s]", res.Path(), lineNum, lineTokens[0]))

			incRes, err := asset.NewResource(lineTokens[1], res)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}

			switch lineTokens[0] {
			case "call":
				err = r.parse(incRes)
			case "mtllib":
				err = r.parseMaterials(incRes)
			}
			incRes.Close()

			if err != nil {
				return err
			}
			r.popFrame()
		case "usemtl":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "usemtl"; expected 1 argument; got %d`, len(lineTokens)-1)
			}

			matIndex, exists := r.matNameToIndex[lineTokens[1]]
			if !exists {
				return r.emitError(res.Path(), lineNum, `undefined material with name "%s"`, lineTokens[1])
			}
			r.curMaterial = matIndex
		case "v":
			v, err := parseVec3(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.vertexList = append(r.vertexList, v)
		case "vn":
			if _, err := parseVec3(lineTokens); err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.normalCount++
		case "vt":
			if _, err := parseVec2(lineTokens); err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
			r.uvCount++
		case "g", "o":
			if len(lineTokens) < 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "%s"; expected 1 argument for object name; got %d`, lineTokens[0], len(lineTokens)-1)
			}

			r.verifyLastParsedMesh()
			r.meshes = append(r.meshes, newWavefrontMesh(lineTokens[1]))
		case "f":
			vertexIndices, err := r.parseFace(lineTokens, relVertexOffset, relUvOffset, relNormalOffset)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}

			// If no object has been defined create a default one
			if len(r.meshes) == 0 {
				r.meshes = append(r.meshes, newWavefrontMesh("default"))
			}
			if r.curMaterial < 0 {
				r.defaultMaterial()
			}
			r.materials[r.curMaterial].Used = true
			r.meshes[len(r.meshes)-1].addFace(vertexIndices, r.vertexList, r.curMaterial)
		case "camera_fov":
			r.camera.fov, err = parseFloat32(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
		case "camera_eye":
			r.camera.eye, err = parseVec3(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
		case "camera_look":
			r.camera.look, err = parseVec3(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
		case "camera_up":
			r.camera.up, err = parseVec3(lineTokens)
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
		case "instance":
			if err := r.parseMeshInstance(lineTokens); err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
		case "s", "l", "p":
			// Smoothing groups, lines and points do not produce surfaces.
		default:
			r.logger.Debugf(`%s:%d: ignoring unsupported statement "%s"`, res.Path(), lineNum, lineTokens[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return r.emitError(res.Path(), lineNum, "%s", err.Error())
	}

	r.verifyLastParsedMesh()
	return nil
}

// Drop the last parsed mesh if it contains no faces.
func (r *wavefrontSceneReader) verifyLastParsedMesh() {
	lastMeshIndex := len(r.meshes) - 1
	if lastMeshIndex >= 0 && len(r.meshes[lastMeshIndex].counts) == 0 {
		r.logger.Warningf(`dropping mesh "%s" as it contains no polygons`, r.meshes[lastMeshIndex].name)
		r.meshes = r.meshes[:lastMeshIndex]
	}
}

// Parse mesh instance definition. Definitions use the following format:
// instance mesh_name tX tY tZ yaw pitch roll sX sY sZ
// where:
// - tX, tY, tZ       : translation vector
// - yaw, pitch, roll : rotation angles in degrees
// - sX, sY, sZ	      : scale
func (r *wavefrontSceneReader) parseMeshInstance(lineTokens []string) error {
	if len(lineTokens) != 11 {
		return fmt.Errorf(`unsupported syntax for "instance"; expected 10 arguments: mesh_name tX tY tZ yaw pitch roll sX sY sZ; got %d`, len(lineTokens)-1)
	}

	var mesh *wavefrontMesh
	for _, m := range r.meshes {
		if m.name == lineTokens[1] {
			mesh = m
			break
		}
	}
	if mesh == nil {
		return fmt.Errorf(`unknown mesh with name "%s"`, lineTokens[1])
	}

	var values [9]float32
	for index := range values {
		v, err := strconv.ParseFloat(lineTokens[index+2], 32)
		if err != nil {
			return err
		}
		values[index] = float32(v)
	}
	translation := types.XYZ(values[0], values[1], values[2])
	scale := types.XYZ(values[6], values[7], values[8])

	toRad := float32(math.Pi / 180)
	yawQuat := types.QuatFromAxisAngle(types.XYZ(1, 0, 0), values[3]*toRad)
	pitchQuat := types.QuatFromAxisAngle(types.XYZ(0, 1, 0), values[4]*toRad)
	rollQuat := types.QuatFromAxisAngle(types.XYZ(0, 0, 1), values[5]*toRad)
	rotMat := rollQuat.Mul(pitchQuat.Mul(yawQuat)).Normalize().Mat4()

	// Translate first, then rotate and scale.
	mesh.instances = append(mesh.instances, types.ScaleV4(scale).Mul4(rotMat.Mul4(types.Translate4(translation))))
	r.hasInstances = true
	return nil
}

// Parse face definition. Each face argument is comprised of 1, 2 or 3
// indices separated by a slash character:
// - vertexIndex
// - vertexIndex/uvIndex
// - vertexIndex//normalIndex
// - vertexIndex/uvIndex/normalIndex
//
// Indices start from 1 and may be negative to indicate an offset off the
// end of the list. Faces may have any number of vertices; they are
// triangulated when the mesh is synced. The returned indices point into
// the global vertex list.
func (r *wavefrontSceneReader) parseFace(lineTokens []string, relVertexOffset, relUvOffset, relNormalOffset int) ([]int, error) {
	if len(lineTokens) < 4 {
		return nil, fmt.Errorf(`unsupported syntax for "f"; expected at least 3 arguments; got %d`, len(lineTokens)-1)
	}

	vertices := make([]int, 0, len(lineTokens)-1)
	expIndices := 0
	for arg := 0; arg < len(lineTokens)-1; arg++ {
		vTokens := strings.Split(lineTokens[arg+1], "/")

		// The first arg defines the format for the following args
		if arg == 0 {
			expIndices = len(vTokens)
		} else if len(vTokens) != expIndices {
			return nil, fmt.Errorf("expected each face argument to contain %d indices; arg %d contains %d indices", expIndices, arg, len(vTokens))
		}

		// Faces must at least define a vertex coord
		if vTokens[0] == "" {
			return nil, fmt.Errorf("face argument %d does not include a vertex index", arg)
		}

		vOffset, err := selectFaceCoordIndex(vTokens[0], len(r.vertexList), relVertexOffset)
		if err != nil {
			return nil, fmt.Errorf("could not parse vertex coord for face argument %d: %s", arg, err.Error())
		}
		vertices = append(vertices, vOffset)

		// Texture coordinates and normals are validated but not used.
		if expIndices > 1 && vTokens[1] != "" {
			if _, err = selectFaceCoordIndex(vTokens[1], r.uvCount, relUvOffset); err != nil {
				return nil, fmt.Errorf("could not parse tex coord for face argument %d: %s", arg, err.Error())
			}
		}
		if expIndices > 2 && vTokens[2] != "" {
			if _, err = selectFaceCoordIndex(vTokens[2], r.normalCount, relNormalOffset); err != nil {
				return nil, fmt.Errorf("could not parse normal coord for face argument %d: %s", arg, err.Error())
			}
		}
	}

	return vertices, nil
}

// Parse a wavefront material library.
func (r *wavefrontSceneReader) parseMaterials(res *asset.Resource) error {
	var lineNum int
	var err error

	r.logger.Infof(`parsing material library "%s"`, res.Path())

	scanner := bufio.NewScanner(res)

	var curMaterial *wavefrontMaterial
	var matName string

	for scanner.Scan() {
		lineNum++
		lineTokens := strings.Fields(scanner.Text())
		if len(lineTokens) == 0 || strings.HasPrefix(lineTokens[0], "#") {
			continue
		}

		switch lineTokens[0] {
		case "newmtl":
			if len(lineTokens) != 2 {
				return r.emitError(res.Path(), lineNum, `unsupported syntax for "newmtl"; expected 1 argument; got %d`, len(lineTokens)-1)
			}

			matName = lineTokens[1]
			if _, exists := r.matNameToIndex[matName]; exists {
				return r.emitError(res.Path(), lineNum, `material "%s" already defined`, matName)
			}

			curMaterial = newWavefrontMaterial(matName)
			r.materials = append(r.materials, curMaterial)
			r.matNameToIndex[matName] = len(r.materials) - 1
		default:
			if curMaterial == nil {
				return r.emitError(res.Path(), lineNum, `got "%s" without a "newmtl"`, lineTokens[0])
			}

			switch lineTokens[0] {
			case "include":
				if len(lineTokens) < 2 {
					return r.emitError(res.Path(), lineNum, `unsupported syntax for "%s"; expected 1 argument; got %d`, lineTokens[0], len(lineTokens)-1)
				}

				baseMaterialIndex, exists := r.matNameToIndex[lineTokens[1]]
				if !exists {
					return r.emitError(res.Path(), lineNum, `could not include unknown material "%s"`, lineTokens[1])
				}

				// Overwrite material but keep the original name
				*curMaterial = *r.materials[baseMaterialIndex]
				curMaterial.Name = matName
				curMaterial.Used = false
			case "Kd", "Ks", "Ke":
				var target *types.Vec3
				switch lineTokens[0] {
				case "Kd":
					target = &curMaterial.Kd
				case "Ks":
					target = &curMaterial.Ks
				case "Ke":
					target = &curMaterial.Ke
				}

				*target, err = parseVec3(lineTokens)
			case "Ni":
				curMaterial.Ni, err = parseFloat32(lineTokens)
			case "Nr", "Pr":
				curMaterial.Roughness, err = parseFloat32(lineTokens)
				curMaterial.HasRoughness = true
			case "Pm":
				curMaterial.Metallic, err = parseFloat32(lineTokens)
				curMaterial.HasMetallic = true
			case "d":
				curMaterial.Opacity, err = parseFloat32(lineTokens)
			case "Tr":
				var tr float32
				tr, err = parseFloat32(lineTokens)
				curMaterial.Opacity = 1 - tr
			default:
				if strings.HasPrefix(lineTokens[0], "map_") {
					r.logger.Warningf(`%s:%d: ignoring texture "%s" for material "%s"`, res.Path(), lineNum, strings.Join(lineTokens[1:], " "), matName)
				}
			}

			// Report any errors
			if err != nil {
				return r.emitError(res.Path(), lineNum, "%s", err.Error())
			}
		}
	}

	return scanner.Err()
}

// Replace characters that are not valid in a prim path component.
func sanitizeName(name string) string {
	return strings.Map(func(c rune) rune {
		switch c {
		case '/', ' ', '\t', '.':
			return '_'
		}
		return c
	}, name)
}

// Given an index for a face coord type (vertex, normal, tex) calculate the
// proper offset into the coord list. Wavefront format can also use negative
// indices to reference elements from the end of the coord list.
func selectFaceCoordIndex(indexToken string, coordListLen int, relOffset int) (int, error) {
	index, err := strconv.ParseInt(indexToken, 10, 32)
	if err != nil {
		return -1, err
	}

	var vOffset int
	if index < 0 {
		vOffset = coordListLen + int(index)
	} else {
		vOffset = relOffset + int(index-1)
	}
	if vOffset < 0 || vOffset >= coordListLen {
		return -1, fmt.Errorf("index out of bounds")
	}
	return vOffset, nil
}

// Parse a float scalar value.
func parseFloat32(lineTokens []string) (float32, error) {
	if len(lineTokens) < 2 {
		return 0, fmt.Errorf(`unsupported syntax for "%s"; expected 1 argument; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	val, err := strconv.ParseFloat(lineTokens[1], 32)
	if err != nil {
		return 0, err
	}

	return float32(val), nil
}

// Parse a Vec3 row.
func parseVec3(lineTokens []string) (types.Vec3, error) {
	if len(lineTokens) < 4 {
		return types.Vec3{}, fmt.Errorf(`unsupported syntax for "%s"; expected 3 arguments; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	v := types.Vec3{}
	for tokIdx := 1; tokIdx <= 3; tokIdx++ {
		coord, err := strconv.ParseFloat(lineTokens[tokIdx], 32)
		if err != nil {
			return v, err
		}
		v[tokIdx-1] = float32(coord)
	}
	return v, nil
}

// Parse a Vec2 row.
func parseVec2(lineTokens []string) (types.Vec2, error) {
	if len(lineTokens) < 3 {
		return types.Vec2{}, fmt.Errorf(`unsupported syntax for "%s"; expected 2 arguments; got %d`, lineTokens[0], len(lineTokens)-1)
	}

	v := types.Vec2{}
	for tokIdx := 1; tokIdx <= 2; tokIdx++ {
		coord, err := strconv.ParseFloat(lineTokens[tokIdx], 32)
		if err != nil {
			return v, err
		}
		v[tokIdx-1] = float32(coord)
	}
	return v, nil
}
