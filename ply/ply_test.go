package ply

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestLoadSave(t *testing.T) {
	pp := xyzrgbCloud()
	for name, binary := range map[string]bool{
		"ASCII":  false,
		"Binary": true,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "cloud.ply")
			if err := Save(path, pp, binary); err != nil {
				t.Fatal(err)
			}
			got, pose, err := Load(path)
			if err != nil {
				t.Fatal(err)
			}
			expectStrings(t, "fields", pp.Fields, got.Fields)
			if got.Points != pp.Points {
				t.Fatalf("Expected %d points, got: %d", pp.Points, got.Points)
			}
			if !bytes.Equal(got.Data, pp.Data) {
				t.Errorf("Expected round-tripped data: %v, got: %v", pp.Data, got.Data)
			}
			if pose != IdentityPose() {
				t.Errorf("Expected identity pose, got: %+v", pose)
			}
		})
	}
}

func TestReadHeaderFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cloud.ply")
	if err := Save(path, xyzrgbCloud(), true); err != nil {
		t.Fatal(err)
	}
	info, err := NewReader(nil).ReadHeader(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Points != 3 {
		t.Errorf("Expected 3 points, got: %d", info.Points)
	}
	expectStrings(t, "fields", []string{"x", "y", "z", "rgb"}, info.PointCloudHeader.Fields)
}
