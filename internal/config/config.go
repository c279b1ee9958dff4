package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Files
	StimuliDir   string
	DataDir      string
	ProtocolPath string // optional YAML protocol; built-in texts when empty

	// Session
	Participant   string        // operator-supplied ordinal; wall clock when empty
	AtonalCap     time.Duration // playback ceiling for atonal stimuli
	TickRate      int           // playback poll rate (Hz)
	Questionnaire bool          // in-app demographics and ratings (extended log schema)

	// Video capture
	Capture      bool
	CameraDevice string
	CaptureFPS   int

	// Operator monitor (0 = off)
	MonitorPort int
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		StimuliDir:   envStr("STUDY_STIMULI_DIR", "stimuli"),
		DataDir:      envStr("STUDY_DATA_DIR", "data"),
		ProtocolPath: envStr("STUDY_PROTOCOL", ""),

		Participant:   envStr("STUDY_PARTICIPANT", ""),
		AtonalCap:     time.Duration(envFloat("STUDY_ATONAL_CAP", 30) * float64(time.Second)),
		TickRate:      envInt("STUDY_TICK_HZ", 30),
		Questionnaire: envBool("STUDY_QUESTIONNAIRE", false),

		Capture:      envBool("STUDY_CAPTURE", false),
		CameraDevice: envStr("STUDY_CAMERA_DEVICE", "/dev/video0"),
		CaptureFPS:   envInt("STUDY_CAPTURE_FPS", 20),

		MonitorPort: envInt("STUDY_MONITOR_PORT", 0),
	}
}

// TickInterval converts TickRate to a ticker period, falling back to 30 Hz
// for non-positive rates.
func (c Config) TickInterval() time.Duration {
	rate := c.TickRate
	if rate <= 0 {
		rate = 30
	}
	return time.Second / time.Duration(rate)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
