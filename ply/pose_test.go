package ply

import (
	"math"
	"testing"

	"github.com/seqsense/pcgol/mat"
	"gonum.org/v1/gonum/num/quat"
)

func TestPose_matrixRoundTrip(t *testing.T) {
	s := math.Sqrt2 / 2
	for name, q := range map[string]quat.Number{
		"Identity": {Real: 1},
		"HalfX":    {Real: s, Imag: s},
		"HalfY":    {Real: s, Jmag: s},
		"HalfZ":    {Real: s, Kmag: s},
		"FullX":    {Imag: 1},
		"FullY":    {Jmag: 1},
		"FullZ":    {Kmag: 1},
		"Mixed":    {Real: 0.5, Imag: 0.5, Jmag: 0.5, Kmag: 0.5},
	} {
		t.Run(name, func(t *testing.T) {
			p := Pose{Origin: mat.Vec3{1, 2, 3}, Rotation: q}
			got := poseFromMatrix(p.Origin, p.matrix())
			if got.Origin != p.Origin {
				t.Errorf("Expected origin: %v, got: %v", p.Origin, got.Origin)
			}
			// q and -q encode the same rotation.
			d := q.Real*got.Rotation.Real + q.Imag*got.Rotation.Imag +
				q.Jmag*got.Rotation.Jmag + q.Kmag*got.Rotation.Kmag
			if math.Abs(math.Abs(d)-1) > 1e-9 {
				t.Errorf("Expected rotation equivalent to %+v, got: %+v", q, got.Rotation)
			}
		})
	}
}

func TestPose_matrixNormalizes(t *testing.T) {
	p := Pose{Rotation: quat.Number{Real: 2}}
	m := p.matrix()
	identity := [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
	if m != identity {
		t.Errorf("Expected identity matrix, got: %v", m)
	}

	// A zero quaternion degrades to identity instead of NaN.
	m = Pose{}.matrix()
	if m != identity {
		t.Errorf("Expected identity matrix for zero rotation, got: %v", m)
	}
}

func TestPose_viewpointRoundTrip(t *testing.T) {
	p := Pose{
		Origin:   mat.Vec3{1, 2, 3},
		Rotation: quat.Number{Real: 0.5, Imag: 0.5, Jmag: 0.5, Kmag: 0.5},
	}
	got, ok := poseFromViewpoint(p.viewpoint())
	if !ok {
		t.Fatal("Expected viewpoint to be accepted")
	}
	if got != p {
		t.Errorf("Expected pose: %+v, got: %+v", p, got)
	}

	if _, ok := poseFromViewpoint(nil); ok {
		t.Error("Expected nil viewpoint to be rejected")
	}
	if _, ok := poseFromViewpoint([]float32{1, 2, 3}); ok {
		t.Error("Expected short viewpoint to be rejected")
	}
}
