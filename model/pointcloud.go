package model

import "time"

// Frame tags which coordinate frame a point cloud is expressed in.
type Frame string

const (
	FrameWorld  Frame = "world"
	FrameSensor Frame = "sensor"
)

// Point is one lidar return. Valid is false for rays that produced no return
// within their range; compaction drops those before the cloud leaves the
// graph.
type Point struct {
	X, Y, Z    float64
	Distance   float64
	Intensity  float64
	RingID     int
	TimeOffset float64
	Valid      bool
}

// PointCloud is the terminal output of one graph branch for one capture.
type PointCloud struct {
	CaptureID string
	Sensor    string
	Frame     Frame
	Stamp     time.Time
	Points    []Point
}

// ValidCount reports how many points carry an actual return.
func (pc *PointCloud) ValidCount() int {
	n := 0
	for i := range pc.Points {
		if pc.Points[i].Valid {
			n++
		}
	}
	return n
}
