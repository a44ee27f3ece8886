// Package reader loads scene files into a scene.MemoryDelegate.
package reader

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ospray/hdospray-sub000/asset"
	"github.com/ospray/hdospray-sub000/scene"
)

var ErrUnsupportedFormat = errors.New("reader: unsupported scene format")

// Prim paths used for loaded scene elements.
const (
	MeshRoot     = "/meshes/"
	MaterialRoot = "/materials/"
	CameraPath   = "/camera"
)

// Scene summarizes what a reader added to the delegate.
type Scene struct {
	Meshes    []string
	Materials []string
	Camera    string

	// Faces across all meshes.
	Faces int
}

// The Reader interface is implemented by all scene readers.
type Reader interface {
	Read(res *asset.Resource, d *scene.MemoryDelegate) (*Scene, error)
}

// ReadScene loads a scene file into d. The reader is selected by the file
// extension.
func ReadScene(filename string, d *scene.MemoryDelegate) (*Scene, error) {
	var r Reader
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".obj":
		r = newWavefrontReader()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(filename))
	}

	res, err := asset.NewResource(filename, nil)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	return r.Read(res, d)
}
