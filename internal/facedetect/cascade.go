package facedetect

// Region is a rectangle inside a detection window expressed as fractions of
// the window side, so the same cascade applies at every scale.
type Region struct {
	X0, Y0, X1, Y1 float64
}

// Feature compares the mean intensity of Bright against Dark. The
// difference, normalised by the window's standard deviation, must reach
// Threshold for the feature to pass.
type Feature struct {
	Name      string
	Bright    Region
	Dark      Region
	Threshold float64
}

// Stage passes when every one of its features passes.
type Stage struct {
	Features []Feature
}

// Cascade is an ordered list of stages evaluated with early rejection.
type Cascade struct {
	Name string
	// MinStdDev rejects flat windows before any stage runs (gray levels).
	MinStdDev float64
	Stages    []Stage
}

var (
	eyeBand   = Region{0.12, 0.22, 0.88, 0.42}
	cheekBand = Region{0.12, 0.46, 0.88, 0.62}
	foreheadR = Region{0.20, 0.04, 0.80, 0.18}
	bridge    = Region{0.44, 0.24, 0.56, 0.40}
	leftEye   = Region{0.18, 0.26, 0.38, 0.40}
	rightEye  = Region{0.62, 0.26, 0.82, 0.40}
	mouth     = Region{0.32, 0.70, 0.68, 0.80}
)

// FrontalFace is the built-in upright frontal face cascade. It encodes the
// classic geometric cues: a dark eye band under a bright forehead and over
// bright cheeks, a bright nose bridge between two darker eyes, and a dark
// mouth under the cheeks.
var FrontalFace = Cascade{
	Name:      "frontalface_geometric",
	MinStdDev: 12,
	Stages: []Stage{
		{Features: []Feature{
			{Name: "eyes_below_cheeks", Bright: cheekBand, Dark: eyeBand, Threshold: 0.45},
		}},
		{Features: []Feature{
			{Name: "bridge_left_eye", Bright: bridge, Dark: leftEye, Threshold: 0.6},
			{Name: "bridge_right_eye", Bright: bridge, Dark: rightEye, Threshold: 0.6},
		}},
		{Features: []Feature{
			{Name: "forehead_over_eyes", Bright: foreheadR, Dark: eyeBand, Threshold: 0.35},
			{Name: "mouth_below_cheeks", Bright: cheekBand, Dark: mouth, Threshold: 0.35},
		}},
	},
}
