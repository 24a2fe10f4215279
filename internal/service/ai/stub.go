//go:build !gocv && !edgetpu

package ai

// NewDetector reports that this build has no inference backend.
func NewDetector(_ string, _ BackendOptions) (Detector, error) {
	return nil, ErrNoBackend
}

// NewClassifier reports that this build has no inference backend.
func NewClassifier(_ string, _ BackendOptions) (Classifier, error) {
	return nil, ErrNoBackend
}
