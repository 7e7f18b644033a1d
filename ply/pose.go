package ply

import (
	"math"

	"github.com/seqsense/pcgol/mat"
	"gonum.org/v1/gonum/num/quat"
)

// Pose is the sensor acquisition origin and orientation of a cloud.
type Pose struct {
	Origin   mat.Vec3
	Rotation quat.Number
}

// IdentityPose returns a pose at the origin with identity rotation.
func IdentityPose() Pose {
	return Pose{Rotation: quat.Number{Real: 1}}
}

// matrix returns the rotation as a row-major 3x3 matrix.
func (p Pose) matrix() [9]float64 {
	q := p.Rotation
	n := math.Sqrt(q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	if n == 0 {
		q = quat.Number{Real: 1}
		n = 1
	}
	w, x, y, z := q.Real/n, q.Imag/n, q.Jmag/n, q.Kmag/n
	return [9]float64{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	}
}

// poseFromMatrix builds a pose from an origin and a row-major 3x3
// rotation matrix, converting the matrix to a quaternion.
func poseFromMatrix(origin mat.Vec3, m [9]float64) Pose {
	var q quat.Number
	tr := m[0] + m[4] + m[8]
	switch {
	case tr > 0:
		s := math.Sqrt(tr+1) * 2
		q.Real = s / 4
		q.Imag = (m[7] - m[5]) / s
		q.Jmag = (m[2] - m[6]) / s
		q.Kmag = (m[3] - m[1]) / s
	case m[0] > m[4] && m[0] > m[8]:
		s := math.Sqrt(1+m[0]-m[4]-m[8]) * 2
		q.Real = (m[7] - m[5]) / s
		q.Imag = s / 4
		q.Jmag = (m[1] + m[3]) / s
		q.Kmag = (m[2] + m[6]) / s
	case m[4] > m[8]:
		s := math.Sqrt(1+m[4]-m[0]-m[8]) * 2
		q.Real = (m[2] - m[6]) / s
		q.Imag = (m[1] + m[3]) / s
		q.Jmag = s / 4
		q.Kmag = (m[5] + m[7]) / s
	default:
		s := math.Sqrt(1+m[8]-m[0]-m[4]) * 2
		q.Real = (m[3] - m[1]) / s
		q.Imag = (m[2] + m[6]) / s
		q.Jmag = (m[5] + m[7]) / s
		q.Kmag = s / 4
	}
	return Pose{Origin: origin, Rotation: q}
}

// viewpoint encodes the pose in the tx ty tz qw qx qy qz layout used
// by point cloud buffer headers.
func (p Pose) viewpoint() []float32 {
	return []float32{
		p.Origin[0], p.Origin[1], p.Origin[2],
		float32(p.Rotation.Real), float32(p.Rotation.Imag),
		float32(p.Rotation.Jmag), float32(p.Rotation.Kmag),
	}
}

func poseFromViewpoint(vp []float32) (Pose, bool) {
	if len(vp) != 7 {
		return Pose{}, false
	}
	return Pose{
		Origin: mat.Vec3{vp[0], vp[1], vp[2]},
		Rotation: quat.Number{
			Real: float64(vp[3]),
			Imag: float64(vp[4]),
			Jmag: float64(vp[5]),
			Kmag: float64(vp[6]),
		},
	}, true
}
