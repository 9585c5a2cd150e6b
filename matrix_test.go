package stage3d

import (
	"math"
	"testing"
)

func BenchmarkMatrixInversion(b *testing.B) {

	b.ReportAllocs()

	mat := NewMatrix4Rotate(0, 1, 0.2, 0.24).Mult(NewMatrix4Translate(1, 4, -12))

	for i := 0; i < b.N; i++ {
		mat.Inverted()
	}

}

func TestMatrixInversion(t *testing.T) {

	matrices := []Matrix4{
		NewMatrix4Rotate(0, 1, 0, 0.1),
		NewMatrix4Translate(-10, 0.1, 3232.1976),
		NewMatrix4Scale(10, 0.1, -0.45),
		NewMatrix4Translate(-1, -1, -1).Mult(NewMatrix4Rotate(1, 0, 0.1, 0.334)).Mult(NewMatrix4Scale(10, 1, 2)),
	}

	for i, mat := range matrices {
		if !mat.Mult(mat.Inverted()).IsIdentity() {
			t.Fatal("failed on matrix #", i, ": matrix * matrix.Inverted() is not identity")
		}
	}

}

func TestMatrixDecomposeRoundTrip(t *testing.T) {

	location := NewVector(3, -2, 7.5)
	rotation := NewQuaternionFromAxisAngle(NewVector(1, 1, 0), 0.8)
	scale := NewVector(2, 0.5, 1)

	mat := NewMatrix4FromTransform(location, rotation, scale)
	gotLocation, gotScale, gotRotation := mat.Decompose()

	if !gotLocation.Equals(location) {
		t.Fatalf("location: got %v, want %v", gotLocation, location)
	}
	if math.Abs(gotScale.X-scale.X) > 1e-9 || math.Abs(gotScale.Y-scale.Y) > 1e-9 || math.Abs(gotScale.Z-scale.Z) > 1e-9 {
		t.Fatalf("scale: got %v, want %v", gotScale, scale)
	}
	if !gotRotation.Equals(rotation) {
		t.Fatalf("rotation: got %v, want %v", gotRotation, rotation)
	}

}

func TestQuaternionMatchesRotationMatrix(t *testing.T) {

	for _, angle := range []float64{0, 0.5, math.Pi / 2, math.Pi, 2.5} {
		quat := NewQuaternionFromAxisAngle(WorldUp, angle)
		mat := NewMatrix4Rotate(0, 1, 0, angle)

		v := NewVector(1, 2, 3)
		if got, want := quat.Rotate(v), mat.MultVec(v); !got.Equals(want) && got.Distance(want) > 1e-9 {
			t.Fatalf("angle %v: quaternion rotated to %v, matrix to %v", angle, got, want)
		}

		if !mat.ToQuaternion().Equals(quat) {
			t.Fatalf("angle %v: matrix converted to %v, want %v", angle, mat.ToQuaternion(), quat)
		}
	}

}
