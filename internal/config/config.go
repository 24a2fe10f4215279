package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// MaxDatagramSize is the receive buffer capacity used for every datagram listener.
	MaxDatagramSize = 66507

	TransportTCP       = "tcp"
	TransportWebsocket = "websocket"

	FramingRaw    = "raw"
	FramingNDJSON = "ndjson"
	FramingLength = "length"
)

// DefaultLabels maps classifier label ids to the people the face model was trained on.
var DefaultLabels = map[int]string{
	0: "adi",
	1: "brent",
}

type Config struct {
	DetectionModel   string
	RecognitionModel string

	BindHost   string
	ResultHost string

	DetectionPort      int
	ClassificationPort int
	ResultPort         int
	LogPort            int

	DetectionBufferSize      int
	ClassificationBufferSize int
	LogBufferSize            int

	FullFramePath string // Detection input before rotation, overwritten on every frame
	CropFramePath string // Classification input after rotation

	DetectionThreshold      float64
	DetectionTopK           int
	ClassificationThreshold float64
	ClassificationTopK      int
	LabelsFile              string
	Labels                  map[int]string

	ResultTransport string
	ResultFraming   string
	AcceptTimeout   time.Duration // 0 waits forever for the downstream client

	RestartInitialBackoff time.Duration
	RestartMaxBackoff     time.Duration
	MaxRestarts           int // 0 restarts failed loops forever

	MetricsAddr  string
	LogDirectory string
	LogLevel     string

	EdgeTPUThreads int
	DNNInputSize   int
}

// Load reads an optional .env file and builds the configuration from the environment.
func Load() (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	bindHost := getEnv("BIND_HOST", "127.0.0.1")

	cfg := &Config{
		BindHost:   bindHost,
		ResultHost: getEnv("RESULT_HOST", bindHost),

		DetectionPort:      getEnvAsInt("DETECTION_PORT", 9100),
		ClassificationPort: getEnvAsInt("CLASSIFICATION_PORT", 9101),
		ResultPort:         getEnvAsInt("RESULT_PORT", 9102),
		LogPort:            getEnvAsInt("LOG_PORT", 9103),

		DetectionBufferSize:      getEnvAsInt("DETECTION_BUFFER_SIZE", MaxDatagramSize),
		ClassificationBufferSize: getEnvAsInt("CLASSIFICATION_BUFFER_SIZE", MaxDatagramSize),
		LogBufferSize:            getEnvAsInt("LOG_BUFFER_SIZE", MaxDatagramSize),

		FullFramePath: getEnv("FULL_FRAME_PATH", "full.jpg"),
		CropFramePath: getEnv("CROP_FRAME_PATH", "crop.jpg"),

		DetectionThreshold:      getEnvAsFloat("DETECTION_THRESHOLD", 0.95),
		DetectionTopK:           getEnvAsInt("DETECTION_TOP_K", 3),
		ClassificationThreshold: getEnvAsFloat("CLASSIFICATION_THRESHOLD", 0.6),
		ClassificationTopK:      getEnvAsInt("CLASSIFICATION_TOP_K", 3),
		LabelsFile:              getEnv("LABELS_FILE", ""),

		ResultTransport: getEnv("RESULT_TRANSPORT", TransportTCP),
		ResultFraming:   getEnv("RESULT_FRAMING", FramingRaw),
		AcceptTimeout:   getEnvAsDuration("ACCEPT_TIMEOUT", 0),

		RestartInitialBackoff: getEnvAsDuration("RESTART_INITIAL_BACKOFF", 500*time.Millisecond),
		RestartMaxBackoff:     getEnvAsDuration("RESTART_MAX_BACKOFF", 30*time.Second),
		MaxRestarts:           getEnvAsInt("MAX_RESTARTS", 0),

		MetricsAddr:  getEnv("METRICS_ADDR", ""),
		LogDirectory: getEnv("LOG_DIR", ""),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		EdgeTPUThreads: getEnvAsInt("EDGETPU_THREADS", 4),
		DNNInputSize:   getEnvAsInt("DNN_INPUT_SIZE", 300),
	}

	labels, err := LoadLabels(cfg.LabelsFile)
	if err != nil {
		return nil, err
	}
	cfg.Labels = labels

	return cfg, nil
}

// Validate reports the first setting that would keep the server from starting.
func (c *Config) Validate() error {
	if c.DetectionModel == "" {
		return fmt.Errorf("detection model path is required")
	}
	if c.RecognitionModel == "" {
		return fmt.Errorf("recognition model path is required")
	}

	ports := map[string]int{
		"DETECTION_PORT":      c.DetectionPort,
		"CLASSIFICATION_PORT": c.ClassificationPort,
		"RESULT_PORT":         c.ResultPort,
		"LOG_PORT":            c.LogPort,
	}
	for name, port := range ports {
		if port < 0 || port > 65535 {
			return fmt.Errorf("%s out of range: %d", name, port)
		}
	}

	buffers := map[string]int{
		"DETECTION_BUFFER_SIZE":      c.DetectionBufferSize,
		"CLASSIFICATION_BUFFER_SIZE": c.ClassificationBufferSize,
		"LOG_BUFFER_SIZE":            c.LogBufferSize,
	}
	for name, size := range buffers {
		if size < 1 || size > MaxDatagramSize {
			return fmt.Errorf("%s must be between 1 and %d, got %d", name, MaxDatagramSize, size)
		}
	}

	if c.DetectionThreshold < 0 || c.DetectionThreshold > 1 {
		return fmt.Errorf("DETECTION_THRESHOLD must be between 0.0 and 1.0, got %f", c.DetectionThreshold)
	}
	if c.ClassificationThreshold < 0 || c.ClassificationThreshold > 1 {
		return fmt.Errorf("CLASSIFICATION_THRESHOLD must be between 0.0 and 1.0, got %f", c.ClassificationThreshold)
	}
	if c.DetectionTopK < 1 || c.ClassificationTopK < 1 {
		return fmt.Errorf("top-k values must be >= 1")
	}

	switch c.ResultTransport {
	case TransportTCP, TransportWebsocket:
	default:
		return fmt.Errorf("unknown RESULT_TRANSPORT %q", c.ResultTransport)
	}

	switch c.ResultFraming {
	case FramingRaw, FramingNDJSON, FramingLength:
	default:
		return fmt.Errorf("unknown RESULT_FRAMING %q", c.ResultFraming)
	}

	if c.AcceptTimeout < 0 {
		return fmt.Errorf("ACCEPT_TIMEOUT must not be negative")
	}
	if c.RestartInitialBackoff <= 0 || c.RestartMaxBackoff < c.RestartInitialBackoff {
		return fmt.Errorf("invalid restart backoff %s..%s", c.RestartInitialBackoff, c.RestartMaxBackoff)
	}
	if c.MaxRestarts < 0 {
		return fmt.Errorf("MAX_RESTARTS must not be negative")
	}

	if len(c.Labels) == 0 {
		return fmt.Errorf("label table is empty")
	}

	return nil
}

// labelsFile is the YAML layout of LABELS_FILE.
type labelsFile struct {
	Labels map[int]string `yaml:"labels"`
}

// LoadLabels reads the id->name table from path. An empty path yields DefaultLabels.
func LoadLabels(path string) (map[int]string, error) {
	if path == "" {
		labels := make(map[int]string, len(DefaultLabels))
		for id, name := range DefaultLabels {
			labels[id] = name
		}
		return labels, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read labels file: %w", err)
	}

	var file labelsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse labels file %s: %w", path, err)
	}
	if len(file.Labels) == 0 {
		return nil, fmt.Errorf("labels file %s defines no labels", path)
	}

	return file.Labels, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
