package backend

import (
	"errors"
	"testing"
)

func TestRegistry(t *testing.T) {
	var gotArgs []string
	Register("registry-test", func(args []string) (Device, error) {
		gotArgs = args
		return nil, errors.New("boom")
	})

	_, err := Open("registry-test", []string{"a=1"})
	if err == nil || err.Error() != "boom" {
		t.Fatalf("expected open error from the registered func; got %v", err)
	}
	if len(gotArgs) != 1 || gotArgs[0] != "a=1" {
		t.Fatalf("expected args to be forwarded; got %v", gotArgs)
	}

	found := false
	for _, name := range Devices() {
		found = found || name == "registry-test"
	}
	if !found {
		t.Fatalf("expected registry-test in %v", Devices())
	}

	if _, err = Open("no-such-device", nil); !errors.Is(err, ErrUnknownDevice) {
		t.Fatalf("expected ErrUnknownDevice; got %v", err)
	}
}

func TestKindString(t *testing.T) {
	if KindGeometricModel.String() != "geometricModel" {
		t.Fatalf("expected geometricModel; got %s", KindGeometricModel)
	}
	if Kind(200).String() != "unknown" {
		t.Fatalf("expected unknown; got %s", Kind(200))
	}
}
