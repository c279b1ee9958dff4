package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Clear any env vars that might interfere
	envVars := []string{
		"STUDY_STIMULI_DIR", "STUDY_DATA_DIR", "STUDY_PROTOCOL",
		"STUDY_PARTICIPANT", "STUDY_ATONAL_CAP", "STUDY_TICK_HZ",
		"STUDY_QUESTIONNAIRE", "STUDY_CAPTURE", "STUDY_CAMERA_DEVICE",
		"STUDY_CAPTURE_FPS", "STUDY_MONITOR_PORT",
	}
	for _, k := range envVars {
		os.Unsetenv(k)
	}

	cfg := Load()

	if cfg.StimuliDir != "stimuli" {
		t.Errorf("StimuliDir = %q, want default", cfg.StimuliDir)
	}
	if cfg.DataDir != "data" {
		t.Errorf("DataDir = %q, want default", cfg.DataDir)
	}
	if cfg.ProtocolPath != "" {
		t.Errorf("ProtocolPath = %q, want empty default", cfg.ProtocolPath)
	}
	if cfg.Participant != "" {
		t.Errorf("Participant = %q, want empty default", cfg.Participant)
	}
	if cfg.AtonalCap != 30*time.Second {
		t.Errorf("AtonalCap = %v, want 30s", cfg.AtonalCap)
	}
	if cfg.TickRate != 30 {
		t.Errorf("TickRate = %d, want 30", cfg.TickRate)
	}
	if cfg.Questionnaire {
		t.Error("Questionnaire should default to false")
	}
	if cfg.Capture {
		t.Error("Capture should default to false")
	}
	if cfg.CameraDevice != "/dev/video0" {
		t.Errorf("CameraDevice = %q, want /dev/video0", cfg.CameraDevice)
	}
	if cfg.CaptureFPS != 20 {
		t.Errorf("CaptureFPS = %d, want 20", cfg.CaptureFPS)
	}
	if cfg.MonitorPort != 0 {
		t.Errorf("MonitorPort = %d, want 0 (off)", cfg.MonitorPort)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STUDY_STIMULI_DIR", "/lab/stimuli")
	t.Setenv("STUDY_DATA_DIR", "/lab/data")
	t.Setenv("STUDY_PROTOCOL", "/lab/protocol.yaml")
	t.Setenv("STUDY_PARTICIPANT", "14")
	t.Setenv("STUDY_ATONAL_CAP", "12.5")
	t.Setenv("STUDY_TICK_HZ", "60")
	t.Setenv("STUDY_QUESTIONNAIRE", "true")
	t.Setenv("STUDY_CAPTURE", "1")
	t.Setenv("STUDY_CAMERA_DEVICE", "/dev/video2")
	t.Setenv("STUDY_CAPTURE_FPS", "25")
	t.Setenv("STUDY_MONITOR_PORT", "8090")

	cfg := Load()

	if cfg.StimuliDir != "/lab/stimuli" {
		t.Errorf("StimuliDir = %q, want env override", cfg.StimuliDir)
	}
	if cfg.DataDir != "/lab/data" {
		t.Errorf("DataDir = %q, want env override", cfg.DataDir)
	}
	if cfg.ProtocolPath != "/lab/protocol.yaml" {
		t.Errorf("ProtocolPath = %q, want env override", cfg.ProtocolPath)
	}
	if cfg.Participant != "14" {
		t.Errorf("Participant = %q, want 14", cfg.Participant)
	}
	if cfg.AtonalCap != 12500*time.Millisecond {
		t.Errorf("AtonalCap = %v, want 12.5s", cfg.AtonalCap)
	}
	if cfg.TickRate != 60 {
		t.Errorf("TickRate = %d, want 60", cfg.TickRate)
	}
	if !cfg.Questionnaire || !cfg.Capture {
		t.Errorf("Questionnaire/Capture = %v/%v, want true/true", cfg.Questionnaire, cfg.Capture)
	}
	if cfg.CameraDevice != "/dev/video2" {
		t.Errorf("CameraDevice = %q, want env override", cfg.CameraDevice)
	}
	if cfg.CaptureFPS != 25 {
		t.Errorf("CaptureFPS = %d, want 25", cfg.CaptureFPS)
	}
	if cfg.MonitorPort != 8090 {
		t.Errorf("MonitorPort = %d, want 8090", cfg.MonitorPort)
	}
}

func TestEnvInvalidFallsBack(t *testing.T) {
	t.Setenv("STUDY_TICK_HZ", "fast")
	t.Setenv("STUDY_CAPTURE", "maybe")
	t.Setenv("STUDY_ATONAL_CAP", "half a minute")
	cfg := Load()
	if cfg.TickRate != 30 {
		t.Errorf("Invalid int env should fallback to default: got %d, want 30", cfg.TickRate)
	}
	if cfg.Capture {
		t.Error("Invalid bool env should fallback to false")
	}
	if cfg.AtonalCap != 30*time.Second {
		t.Errorf("Invalid float env should fallback: got %v", cfg.AtonalCap)
	}
}

func TestTickInterval(t *testing.T) {
	tests := []struct {
		rate int
		want time.Duration
	}{
		{30, time.Second / 30},
		{60, time.Second / 60},
		{0, time.Second / 30},
		{-5, time.Second / 30},
	}
	for _, tt := range tests {
		if got := (Config{TickRate: tt.rate}).TickInterval(); got != tt.want {
			t.Errorf("TickInterval(%d) = %v, want %v", tt.rate, got, tt.want)
		}
	}
}
