package scene

// DirtyBits flags the prim data that changed since the last sync.
type DirtyBits uint32

const (
	DirtyPoints DirtyBits = 1 << iota
	DirtyTopology
	DirtyTransform
	DirtyVisibility
	DirtyInstancer
	DirtyMaterialID
	DirtyPrimvar
	DirtyParams

	DirtyClean DirtyBits = 0
	DirtyAll             = DirtyPoints | DirtyTopology | DirtyTransform | DirtyVisibility | DirtyInstancer | DirtyMaterialID | DirtyPrimvar | DirtyParams
)

// Any reports whether any of the given bits is set.
func (b DirtyBits) Any(bits DirtyBits) bool {
	return b&bits != 0
}
