package msgs

import "github.com/ZettaScaleLabs/dds-go/dds"

// Point represents a 3D point
type Point struct {
	X float64
	Y float64
	Z float64
}

// Quaternion represents an orientation
type Quaternion struct {
	X float64
	Y float64
	Z float64
	W float64
}

// Pose is the position and orientation of one frame. Every frame is its
// own instance.
type Pose struct {
	FrameID     string `dds:"key"`
	Position    Point
	Orientation Quaternion
}

const Pose_TypeName = "msgs::Pose"

func (m *Pose) TypeName() string { return Pose_TypeName }

func (m *Pose) SerializeCDR() ([]byte, error) {
	return dds.MarshalCDR(m)
}

func (m *Pose) DeserializeCDR(data []byte) error {
	return dds.UnmarshalCDR(data, m)
}

// Identity returns the pose of frame at the origin.
func Identity(frame string) Pose {
	return Pose{FrameID: frame, Orientation: Quaternion{W: 1}}
}
