package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/olekukonko/tablewriter"
	"github.com/ospray/hdospray-sub000/asset/reader"
	"github.com/ospray/hdospray-sub000/scene"
	"github.com/ospray/hdospray-sub000/types"
	"github.com/urfave/cli"
)

const (
	demoCameraPath = "/camera"
	demoRadius     = 6
)

// Populate d with the built-in demo scene: a ground plane, two instanced
// boxes, a curve strand, a sun and a sphere light.
func buildDemoScene(d *scene.MemoryDelegate) string {
	d.Add("/materials/ground", scene.PrimDesc{
		Type: scene.MaterialType,
		Attributes: map[string]interface{}{
			scene.AttrBaseColor: types.XYZ(0.8, 0.8, 0.8),
			scene.AttrRoughness: float32(0.9),
		},
	})
	d.Add("/materials/red", scene.PrimDesc{
		Type: scene.MaterialType,
		Attributes: map[string]interface{}{
			scene.AttrBaseColor: types.XYZ(0.8, 0.1, 0.1),
			scene.AttrRoughness: float32(0.3),
		},
	})
	d.Add("/materials/gold", scene.PrimDesc{
		Type: scene.MaterialType,
		Attributes: map[string]interface{}{
			scene.AttrBaseColor: types.XYZ(1, 0.77, 0.34),
			scene.AttrRoughness: float32(0.2),
			scene.AttrMetallic:  float32(1),
		},
	})

	d.Add("/meshes/ground", scene.PrimDesc{
		Type:     scene.MeshType,
		Material: "/materials/ground",
		Attributes: map[string]interface{}{
			scene.AttrPoints:            []types.Vec3{{-5, 0, -5}, {-5, 0, 5}, {5, 0, 5}, {5, 0, -5}},
			scene.AttrFaceVertexCounts:  []int{4},
			scene.AttrFaceVertexIndices: []int{0, 1, 2, 3},
		},
	})

	// Unit box with a gold lid.
	d.Add("/meshes/box", scene.PrimDesc{
		Type: scene.MeshType,
		Instances: []types.Mat4{
			types.Translate4(types.XYZ(-1, 0.5, 0)),
			types.Translate4(types.XYZ(1.2, 0.75, -0.5)).Mul4(
				types.QuatFromAxisAngle(types.XYZ(0, 1, 0), math.Pi/5).Mat4().Mul4(types.Scale4(1.5)),
			),
		},
		Attributes: map[string]interface{}{
			scene.AttrPoints: []types.Vec3{
				{-0.5, -0.5, -0.5}, {0.5, -0.5, -0.5}, {0.5, 0.5, -0.5}, {-0.5, 0.5, -0.5},
				{-0.5, -0.5, 0.5}, {0.5, -0.5, 0.5}, {0.5, 0.5, 0.5}, {-0.5, 0.5, 0.5},
			},
			scene.AttrFaceVertexCounts: []int{4, 4, 4, 4, 4, 4},
			scene.AttrFaceVertexIndices: []int{
				0, 3, 2, 1, // back
				4, 5, 6, 7, // front
				0, 4, 7, 3, // left
				1, 2, 6, 5, // right
				0, 1, 5, 4, // bottom
				3, 7, 6, 2, // top
			},
			scene.AttrSubsets: []scene.Subset{
				{FaceIndices: []int{0, 1, 2, 3, 4}, Material: "/materials/red"},
				{FaceIndices: []int{5}, Material: "/materials/gold"},
			},
		},
	})

	d.Add("/curves/strand", scene.PrimDesc{
		Type:     scene.BasisCurvesType,
		Material: "/materials/gold",
		Attributes: map[string]interface{}{
			scene.AttrPoints: []types.Vec3{
				{0, 0, 1}, {0.2, 0.5, 1.2}, {-0.2, 1, 1.4}, {0.1, 1.5, 1.2}, {0, 2, 1},
			},
			scene.AttrCurveVertexCounts: []int{5},
			scene.AttrWidths:            []float32{0.05},
			scene.AttrBasis:             "catmullRom",
		},
	})

	d.Add("/lights/sun", scene.PrimDesc{
		Type:      scene.DistantLightType,
		Transform: types.QuatFromAxisAngle(types.XYZ(1, 0, 0), -math.Pi/3).Mat4(),
		Attributes: map[string]interface{}{
			scene.AttrIntensity: float32(2),
			scene.AttrColor:     types.XYZ(1, 0.95, 0.9),
		},
	})
	d.Add("/lights/bulb", scene.PrimDesc{
		Type:      scene.SphereLightType,
		Transform: types.Translate4(types.XYZ(0, 3, 2)),
		Attributes: map[string]interface{}{
			scene.AttrIntensity: float32(10),
			scene.AttrRadius:    float32(0.3),
		},
	})

	d.Add(demoCameraPath, scene.PrimDesc{
		Type:      scene.CameraType,
		Transform: orbitCamera(0, demoRadius, types.XYZ(0, 0.5, 0)),
		Attributes: map[string]interface{}{
			scene.AttrFocalLength:      float32(35),
			scene.AttrVerticalAperture: float32(24),
			scene.AttrClippingRange:    types.XY(0.1, 100),
		},
	})
	return demoCameraPath
}

// Camera to world transform for a camera on a circle of the given radius
// around target, looking at target.
func orbitCamera(angle float64, radius float32, target types.Vec3) types.Mat4 {
	eye := target.Add(types.XYZ(
		radius*float32(math.Sin(angle)),
		radius/3,
		radius*float32(math.Cos(angle)),
	))
	return types.LookAtV(eye, target, types.XYZ(0, 1, 0)).Inv()
}

// Load the scene passed with --scene or the demo scene and return the path
// of the camera to render from.
func loadScene(ctx *cli.Context, d *scene.MemoryDelegate) (string, error) {
	sceneFile := ctx.String("scene")
	if sceneFile == "" {
		logger.Notice("using built-in demo scene")
		return buildDemoScene(d), nil
	}

	sc, err := reader.ReadScene(sceneFile, d)
	if err != nil {
		return "", err
	}
	return sc.Camera, nil
}

// Display a summary of a scene file.
func ShowSceneInfo(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return errors.New("missing scene file argument")
	}

	d := scene.NewMemoryDelegate()
	sc, err := reader.ReadScene(ctx.Args().First(), d)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Mesh", "Faces", "Points", "Instances", "Visible"})
	for _, path := range sc.Meshes {
		counts, _ := d.Attribute(path, scene.AttrFaceVertexCounts)
		points, _ := d.Attribute(path, scene.AttrPoints)
		table.Append([]string{
			path,
			fmt.Sprintf("%d", len(counts.([]int))),
			fmt.Sprintf("%d", len(points.([]types.Vec3))),
			fmt.Sprintf("%d", len(d.InstancerTransforms(path))),
			fmt.Sprintf("%t", d.Visible(path)),
		})
	}
	table.SetFooter([]string{fmt.Sprintf("%d materials", len(sc.Materials)), fmt.Sprintf("%d", sc.Faces), "", "", ""})

	table.Render()
	logger.Noticef("scene information:\n%s", buf.String())
	return nil
}
