package settings

import (
	"errors"
	"testing"
)

func TestDefaults(t *testing.T) {
	s := NewStore()
	if s.Version() != 0 {
		t.Fatalf("expected a fresh store to be at version 0; got %d", s.Version())
	}
	if got := s.Int(MaxDepth); got != 5 {
		t.Fatalf("expected default max depth 5; got %d", got)
	}
	if got := s.String(RendererType); got != "pathtracer" {
		t.Fatalf("expected default renderer pathtracer; got %q", got)
	}
	if got := s.Float(MinContribution); got != 0.001 {
		t.Fatalf("expected default min contribution 0.001; got %v", got)
	}
}

func TestSetBumpsVersion(t *testing.T) {
	s := NewStore()

	if err := s.Set(MaxDepth, 16); err != nil {
		t.Fatal(err)
	}
	if s.Version() != 1 || s.Int(MaxDepth) != 16 {
		t.Fatalf("expected version 1 and max depth 16; got %d and %d", s.Version(), s.Int(MaxDepth))
	}

	// Writing the same value again is still a write.
	if err := s.Set(MaxDepth, 16); err != nil {
		t.Fatal(err)
	}
	if s.Version() != 2 {
		t.Fatalf("expected version 2; got %d", s.Version())
	}

	// Ints are accepted for float settings.
	if err := s.Set(AORadius, 4); err != nil {
		t.Fatal(err)
	}
	if got := s.Float(AORadius); got != 4 {
		t.Fatalf("expected ao radius 4; got %v", got)
	}
}

func TestSetErrors(t *testing.T) {
	type spec struct {
		key    Key
		value  interface{}
		expErr error
	}
	specs := []spec{
		{"noSuchSetting", 1, ErrUnknownSetting},
		{MaxDepth, "deep", ErrTypeMismatch},
		{UseDenoiser, 1, ErrTypeMismatch},
		{PixelFilterType, 2.5, ErrTypeMismatch},
	}

	s := NewStore()
	for index, sp := range specs {
		err := s.Set(sp.key, sp.value)
		if !errors.Is(err, sp.expErr) {
			t.Fatalf("[spec %d] expected error %v; got %v", index, sp.expErr, err)
		}
	}

	if s.Version() != 0 {
		t.Fatalf("expected failed writes to leave the version untouched; got %d", s.Version())
	}
}

func TestDescribeSorted(t *testing.T) {
	desc := NewStore().Describe()
	if len(desc) != len(defaults) {
		t.Fatalf("expected %d descriptors; got %d", len(defaults), len(desc))
	}
	for i := 1; i < len(desc); i++ {
		if desc[i-1].Key >= desc[i].Key {
			t.Fatalf("expected descriptors sorted by key; got %q before %q", desc[i-1].Key, desc[i].Key)
		}
	}
}

func TestParse(t *testing.T) {
	type spec struct {
		key    Key
		text   string
		exp    interface{}
		expErr error
	}
	specs := []spec{
		{MaxDepth, "12", 12, nil},
		{MinContribution, "0.25", float32(0.25), nil},
		{UseDenoiser, "true", true, nil},
		{RendererType, "ao", "ao", nil},
		{MaxDepth, "deep", nil, ErrTypeMismatch},
		{UseDenoiser, "maybe", nil, ErrTypeMismatch},
		{"noSuchSetting", "1", nil, ErrUnknownSetting},
	}

	for index, sp := range specs {
		s := NewStore()
		err := s.Parse(sp.key, sp.text)
		if sp.expErr != nil {
			if !errors.Is(err, sp.expErr) {
				t.Fatalf("[spec %d] expected error %v; got %v", index, sp.expErr, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("[spec %d] unexpected error %v", index, err)
		}
		if got := s.get(sp.key); got != sp.exp {
			t.Fatalf("[spec %d] expected %v (%T); got %v (%T)", index, sp.exp, sp.exp, got, got)
		}
	}
}
