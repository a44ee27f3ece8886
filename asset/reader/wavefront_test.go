package reader

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/ospray/hdospray-sub000/asset"
	"github.com/ospray/hdospray-sub000/backend/backendtest"
	"github.com/ospray/hdospray-sub000/config"
	"github.com/ospray/hdospray-sub000/scene"
	"github.com/ospray/hdospray-sub000/session"
	"github.com/ospray/hdospray-sub000/settings"
	"github.com/ospray/hdospray-sub000/types"
)

const triangleObj = `
o testObj
v 0 0 0
v 1 0 0
v 0 1 0
vn 1 0 0
vt 0 0
vn 0 1 0
vt 0 1
vn 0 1 0
vt 1 0
vn 0 0 1
# Comment
f 1/1/1 2/2/2 -1/-1/-1
`

func mockResource(payload string) *asset.Resource {
	return asset.NewResourceFromStream("embedded", strings.NewReader(payload))
}

func readPayload(t *testing.T, payload string) (*Scene, *scene.MemoryDelegate) {
	t.Helper()
	d := scene.NewMemoryDelegate()
	out, err := newWavefrontReader().Read(mockResource(payload), d)
	if err != nil {
		t.Fatal(err)
	}
	return out, d
}

func approxVec3(a, b types.Vec3) bool {
	for i := range a {
		if math.Abs(float64(a[i]-b[i])) > 1e-3 {
			return false
		}
	}
	return true
}

func TestFloat32Parser(t *testing.T) {
	expError := `unsupported syntax for "v"; expected 1 argument; got 0`
	_, err := parseFloat32([]string{"v"})
	if err == nil || err.Error() != expError {
		t.Fatalf("expected to get %s; got %v", expError, err)
	}

	_, err = parseFloat32([]string{"v", "not-a-float"})
	if err == nil {
		t.Fatal("expected to get a parse error")
	}

	v, err := parseFloat32([]string{"v", "3.14"})
	if err != nil {
		t.Fatal(err)
	}

	if v != 3.14 {
		t.Fatalf("expected parsed value to be 3.14; got %f", v)
	}
}

func TestVec2Parser(t *testing.T) {
	expError := `unsupported syntax for "vt"; expected 2 arguments; got 0`
	_, err := parseVec2([]string{"vt"})
	if err == nil || err.Error() != expError {
		t.Fatalf("expected to get %s; got %v", expError, err)
	}

	_, err = parseVec2([]string{"vt", "not-a-float", "2"})
	if err == nil {
		t.Fatal("expected to get a parse error")
	}

	v, err := parseVec2([]string{"vt", "3.14", "0"})
	if err != nil {
		t.Fatal(err)
	}

	expVal := types.Vec2{3.14, 0}
	if !reflect.DeepEqual(v, expVal) {
		t.Fatalf("expected parsed value to be %v; got %v", expVal, v)
	}
}

func TestVec3Parser(t *testing.T) {
	expError := `unsupported syntax for "v"; expected 3 arguments; got 0`
	_, err := parseVec3([]string{"v"})
	if err == nil || err.Error() != expError {
		t.Fatalf("expected to get %s; got %v", expError, err)
	}

	_, err = parseVec3([]string{"v", "not-a-float", "2", "3"})
	if err == nil {
		t.Fatal("expected to get a parse error")
	}

	v, err := parseVec3([]string{"v", "3.14", "0", "0.4"})
	if err != nil {
		t.Fatal(err)
	}

	expVal := types.Vec3{3.14, 0, 0.4}
	if !reflect.DeepEqual(v, expVal) {
		t.Fatalf("expected parsed value to be %v; got %v", expVal, v)
	}
}

func TestSelectFaceCoordinate(t *testing.T) {
	expError := "index out of bounds"
	type spec struct {
		in        string
		listLen   int
		relOffset int
		out       int
		expError  string
	}
	specs := []spec{
		{"2", 1, 0, -1, expError},
		{"-2", 1, 0, -1, expError},
		{"1", 10, 0, 0, ""}, // indices are 1-based
		{"-1", 10, 0, 9, ""},
		{"1", 10, 4, 4, ""},
		{"7", 10, 4, -1, expError},
	}

	for idx, s := range specs {
		v, err := selectFaceCoordIndex(s.in, s.listLen, s.relOffset)
		if s.expError != "" && (err == nil || err.Error() != s.expError) {
			t.Fatalf("[spec %d] expected error %s; got %v", idx, s.expError, err)
		} else if v != s.out {
			t.Fatalf("[spec %d] expected index to be %d; got %d", idx, s.out, v)
		}
	}
}

func TestParseSingleFacedObject(t *testing.T) {
	out, d := readPayload(t, triangleObj)

	expMeshes := []string{MeshRoot + "testObj"}
	if !reflect.DeepEqual(out.Meshes, expMeshes) {
		t.Fatalf("expected meshes %v; got %v", expMeshes, out.Meshes)
	}
	if out.Faces != 1 {
		t.Fatalf("expected 1 face; got %d", out.Faces)
	}

	expMaterials := []string{MaterialRoot + "default"}
	if !reflect.DeepEqual(out.Materials, expMaterials) {
		t.Fatalf("expected materials %v; got %v", expMaterials, out.Materials)
	}
	if got := d.MaterialBinding(expMeshes[0]); got != expMaterials[0] {
		t.Fatalf("expected mesh to be bound to %s; got %q", expMaterials[0], got)
	}
	if !d.Visible(expMeshes[0]) {
		t.Fatal("expected mesh without instances to be visible")
	}

	points, _ := d.Attribute(expMeshes[0], scene.AttrPoints)
	expPoints := []types.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}
	if !reflect.DeepEqual(points, expPoints) {
		t.Fatalf("expected points %v; got %v", expPoints, points)
	}
	counts, _ := d.Attribute(expMeshes[0], scene.AttrFaceVertexCounts)
	if !reflect.DeepEqual(counts, []int{3}) {
		t.Fatalf("expected face counts [3]; got %v", counts)
	}
	indices, _ := d.Attribute(expMeshes[0], scene.AttrFaceVertexIndices)
	if !reflect.DeepEqual(indices, []int{0, 1, 2}) {
		t.Fatalf("expected face indices [0 1 2]; got %v", indices)
	}
}

func TestMeshPointsAreLocalToEachMesh(t *testing.T) {
	payload := `
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
v 5 5 5
o quad
f 1 2 3 4
o tri
f 5 1 2
o empty
`
	out, d := readPayload(t, payload)

	if len(out.Meshes) != 2 {
		t.Fatalf("expected the empty mesh to be dropped; got %v", out.Meshes)
	}

	points, _ := d.Attribute(MeshRoot+"tri", scene.AttrPoints)
	expPoints := []types.Vec3{{5, 5, 5}, {0, 0, 0}, {1, 0, 0}}
	if !reflect.DeepEqual(points, expPoints) {
		t.Fatalf("expected points %v; got %v", expPoints, points)
	}
	counts, _ := d.Attribute(MeshRoot+"quad", scene.AttrFaceVertexCounts)
	if !reflect.DeepEqual(counts, []int{4}) {
		t.Fatalf("expected quad face count [4]; got %v", counts)
	}
}

func TestMeshInstancing(t *testing.T) {
	payload := triangleObj + `
# Mesh instances
instance testObj 	1 0 1	0 0 0 	1 1 1
instance testObj 	0 0 0	0 90 0 	1 1 1
instance testObj 	0 1 0	90 0 0	10 10 10
`
	_, d := readPayload(t, payload)

	instances := d.InstancerTransforms(MeshRoot + "testObj")
	expMeshInstances := 3
	if len(instances) != expMeshInstances {
		t.Fatalf("expected %d mesh instances to be generated; got %d", expMeshInstances, len(instances))
	}

	type spec struct {
		instance   int
		in, expOut types.Vec3
	}
	specs := []spec{
		{0, types.Vec3{0, 0, 0}, types.Vec3{1, 0, 1}},
		{0, types.Vec3{-1, 0, -1}, types.Vec3{0, 0, 0}},
		{1, types.Vec3{1, 0, 0}, types.Vec3{0, 0, -1}},
		{1, types.Vec3{0, 0, -1}, types.Vec3{-1, 0, 0}},
		{2, types.Vec3{0, 1, 0}, types.Vec3{0, 0, 20}},
	}
	for idx, s := range specs {
		out := instances[s.instance].TransformPoint(s.in)
		if !approxVec3(out, s.expOut) {
			t.Fatalf("[spec %d] expected transformed point with instance %d matrix to be %v; got %v", idx, s.instance, s.expOut, out)
		}
	}
}

func TestUninstancedMeshesHiddenWhenSceneUsesInstances(t *testing.T) {
	payload := triangleObj + `
o other
f 1 2 3
instance other 0 0 0 0 0 0 1 1 1
`
	_, d := readPayload(t, payload)

	if d.Visible(MeshRoot + "testObj") {
		t.Fatal("expected mesh without instances to be hidden")
	}
	if !d.Visible(MeshRoot + "other") {
		t.Fatal("expected instanced mesh to be visible")
	}
}

func TestParseErrors(t *testing.T) {
	type spec struct {
		payload  string
		expError string
	}
	specs := []spec{
		{"v 0 0", `[embedded: 1] error: unsupported syntax for "v"; expected 3 arguments; got 2`},
		{"v 0 0 0\nf 1 1", `[embedded: 2] error: unsupported syntax for "f"; expected at least 3 arguments; got 2`},
		{"v 0 0 0\nf 1 2 3", "[embedded: 2] error: could not parse vertex coord for face argument 1: index out of bounds"},
		{"usemtl foo", `[embedded: 1] error: undefined material with name "foo"`},
		{"instance foo 0 0 0 0 0 0 1 1 1", `[embedded: 1] error: unknown mesh with name "foo"`},
		{"call missing.obj extra", `[embedded: 1] error: unsupported syntax for "call"; expected 1 argument; got 2`},
	}

	for idx, s := range specs {
		_, err := newWavefrontReader().Read(mockResource(s.payload), scene.NewMemoryDelegate())
		if err == nil || err.Error() != s.expError {
			t.Fatalf("[spec %d] expected error %q; got %v", idx, s.expError, err)
		}
	}
}

func TestMaterialLoaderMissingNewMaterialCommand(t *testing.T) {
	payload := `Kd 1.0 1.0 1.0`
	err := newWavefrontReader().parseMaterials(mockResource(payload))

	expError := `[embedded: 1] error: got "Kd" without a "newmtl"`
	if err == nil || err.Error() != expError {
		t.Fatalf("expected to get error: %s; got %v", expError, err)
	}
}

func TestMaterialLoaderInvalidParams(t *testing.T) {
	type spec struct {
		payload  string
		expError string
	}
	specs := []spec{
		{"\n\tnewmtl foo\n\tKd 1.0", `[embedded: 3] error: unsupported syntax for "Kd"; expected 3 arguments; got 1`},
		{"\n\tnewmtl foo\n\tNi", `[embedded: 3] error: unsupported syntax for "Ni"; expected 1 argument; got 0`},
		{"newmtl foo\nnewmtl foo", `[embedded: 2] error: material "foo" already defined`},
		{"newmtl foo\ninclude bar", `[embedded: 2] error: could not include unknown material "bar"`},
	}

	for idx, s := range specs {
		err := newWavefrontReader().parseMaterials(mockResource(s.payload))
		if err == nil || err.Error() != s.expError {
			t.Fatalf("[spec %d] expected error %q; got %v", idx, s.expError, err)
		}
	}
}

func TestMaterialLoaderSuccess(t *testing.T) {
	payload := `
	# comment
	newmtl foo
	Kd 1.0 1.0 1.0
	Ks 0.1 0.2 0.3
	Ke 0.4    0.5 0.6
	Ni 2.5
	Nr 0
	d 0.5
	map_Kd foo.png

	newmtl bar
	include foo
	Tr 0.25`
	r := newWavefrontReader()
	if err := r.parseMaterials(mockResource(payload)); err != nil {
		t.Fatal(err)
	}

	if len(r.materials) != 2 {
		t.Fatalf("expected to parse 2 materials; got %d", len(r.materials))
	}

	mat := r.materials[0]
	if mat.Name != "foo" {
		t.Fatalf("expected material name to be 'foo'; got %s", mat.Name)
	}
	expVec3 := types.Vec3{1, 1, 1}
	if !reflect.DeepEqual(mat.Kd, expVec3) {
		t.Fatalf("expected Kd to be %v; got %v", expVec3, mat.Kd)
	}
	expVec3 = types.Vec3{0.1, 0.2, 0.3}
	if !reflect.DeepEqual(mat.Ks, expVec3) {
		t.Fatalf("expected Ks to be %v; got %v", expVec3, mat.Ks)
	}
	expVec3 = types.Vec3{0.4, 0.5, 0.6}
	if !reflect.DeepEqual(mat.Ke, expVec3) {
		t.Fatalf("expected Ke to be %v; got %v", expVec3, mat.Ke)
	}
	if mat.Ni != 2.5 {
		t.Fatalf("expected Ni to be 2.5; got %f", mat.Ni)
	}
	if !mat.HasRoughness || mat.Roughness != 0 {
		t.Fatalf("expected explicit roughness 0; got %f (set: %t)", mat.Roughness, mat.HasRoughness)
	}
	if mat.Opacity != 0.5 {
		t.Fatalf("expected opacity 0.5; got %f", mat.Opacity)
	}

	inc := r.materials[1]
	if inc.Name != "bar" || inc.Kd != r.materials[0].Kd {
		t.Fatalf("expected bar to copy foo parameters; got %+v", inc)
	}
	if inc.Opacity != 0.75 {
		t.Fatalf("expected Tr to override opacity to 0.75; got %f", inc.Opacity)
	}
}

func TestMaterialAttributes(t *testing.T) {
	type spec struct {
		mat          wavefrontMaterial
		expBase      types.Vec3
		expRoughness float32
		expMetallic  float32
	}
	specs := []spec{
		{wavefrontMaterial{Kd: types.XYZ(1, 0, 0), Opacity: 1}, types.XYZ(1, 0, 0), 0.5, 0},
		// Specular without an index of refraction is a conductor.
		{wavefrontMaterial{Kd: types.XYZ(1, 0, 0), Ks: types.XYZ(0, 1, 0), Opacity: 1}, types.XYZ(0, 1, 0), 0.1, 1},
		{wavefrontMaterial{Kd: types.XYZ(1, 0, 0), Ks: types.XYZ(0, 1, 0), Ni: 1.5, Opacity: 1}, types.XYZ(1, 0, 0), 0.5, 0},
		{wavefrontMaterial{Kd: types.XYZ(1, 0, 0), Ks: types.XYZ(0, 1, 0), HasMetallic: true, Roughness: 0.7, HasRoughness: true, Opacity: 1}, types.XYZ(1, 0, 0), 0.7, 0},
	}

	for idx, s := range specs {
		attrs := s.mat.attributes()
		if got := attrs[scene.AttrBaseColor]; got != s.expBase {
			t.Fatalf("[spec %d] expected base color %v; got %v", idx, s.expBase, got)
		}
		if got := attrs[scene.AttrRoughness]; got != s.expRoughness {
			t.Fatalf("[spec %d] expected roughness %v; got %v", idx, s.expRoughness, got)
		}
		if got := attrs[scene.AttrMetallic]; got != s.expMetallic {
			t.Fatalf("[spec %d] expected metallic %v; got %v", idx, s.expMetallic, got)
		}
	}
}

func TestMixedMaterialsBecomeSubsets(t *testing.T) {
	dir := t.TempDir()
	mtl := "newmtl red\nKd 1 0 0\nnewmtl green\nKd 0 1 0\nnewmtl unused\nKd 0 0 1\n"
	obj := `mtllib scene.mtl
v 0 0 0
v 1 0 0
v 0 1 0
o mesh
usemtl red
f 1 2 3
usemtl green
f 1 2 3
usemtl red
f 3 2 1
`
	if err := os.WriteFile(filepath.Join(dir, "scene.mtl"), []byte(mtl), 0644); err != nil {
		t.Fatal(err)
	}
	objFile := filepath.Join(dir, "scene.obj")
	if err := os.WriteFile(objFile, []byte(obj), 0644); err != nil {
		t.Fatal(err)
	}

	d := scene.NewMemoryDelegate()
	out, err := ReadScene(objFile, d)
	if err != nil {
		t.Fatal(err)
	}

	expMaterials := []string{MaterialRoot + "red", MaterialRoot + "green"}
	if !reflect.DeepEqual(out.Materials, expMaterials) {
		t.Fatalf("expected used materials %v; got %v", expMaterials, out.Materials)
	}

	v, _ := d.Attribute(MeshRoot+"mesh", scene.AttrSubsets)
	expSubsets := []scene.Subset{
		{FaceIndices: []int{0, 2}, Material: MaterialRoot + "red"},
		{FaceIndices: []int{1}, Material: MaterialRoot + "green"},
	}
	if !reflect.DeepEqual(v, expSubsets) {
		t.Fatalf("expected subsets %v; got %v", expSubsets, v)
	}
	if got := d.MaterialBinding(MeshRoot + "mesh"); got != "" {
		t.Fatalf("expected no mesh level material binding; got %q", got)
	}
}

func TestRemoteMaterialLibrary(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/scenes/scene.obj", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("mtllib lib/scene.mtl\nusemtl red\n" + triangleObj))
	})
	mux.HandleFunc("/scenes/lib/scene.mtl", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("newmtl red\nKd 1 0 0\n"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	res, err := asset.NewResource(srv.URL+"/scenes/scene.obj", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Close()

	d := scene.NewMemoryDelegate()
	out, err := newWavefrontReader().Read(res, d)
	if err != nil {
		t.Fatal(err)
	}

	expMaterials := []string{MaterialRoot + "red"}
	if !reflect.DeepEqual(out.Materials, expMaterials) {
		t.Fatalf("expected materials %v; got %v", expMaterials, out.Materials)
	}
	base, _ := d.Attribute(expMaterials[0], scene.AttrBaseColor)
	if base != types.XYZ(1, 0, 0) {
		t.Fatalf("expected red base color; got %v", base)
	}
}

func TestUnsupportedSceneFormat(t *testing.T) {
	_, err := ReadScene("scene.gltf", scene.NewMemoryDelegate())
	if err == nil || !strings.Contains(err.Error(), ErrUnsupportedFormat.Error()) {
		t.Fatalf("expected unsupported format error; got %v", err)
	}
}

func TestLoadedSceneSyncs(t *testing.T) {
	payload := triangleObj + `
camera_fov 45
camera_eye 0 0 5
camera_look 0 0 0
camera_up 0 1 0
`
	out, d := readPayload(t, payload)

	s := session.NewWithDevice(config.Default(), settings.NewStore(), backendtest.NewDevice())
	defer s.Close()
	ix := scene.NewIndex(s, d)
	ix.Populate()
	if err := ix.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got := len(s.GetMeshes()); got != 1 {
		t.Fatalf("expected 1 registered mesh; got %d", got)
	}
	if _, ok := s.Material(out.Materials[0]); !ok {
		t.Fatalf("expected material %s to be registered", out.Materials[0])
	}

	cam, ok := ix.Camera(out.Camera)
	if !ok {
		t.Fatalf("expected camera at %s", out.Camera)
	}
	eye := cam.ViewMatrix().Inv().TransformPoint(types.Vec3{})
	if !approxVec3(eye, types.XYZ(0, 0, 5)) {
		t.Fatalf("expected camera at %v; got %v", types.XYZ(0, 0, 5), eye)
	}

	lens := cam.LensParams()
	fovy := 2 * math.Atan(float64(lens.VerticalAperture)/(2*float64(lens.FocalLength))) * 180 / math.Pi
	if math.Abs(fovy-45) > 1e-3 {
		t.Fatalf("expected vertical fov 45; got %f", fovy)
	}
}
