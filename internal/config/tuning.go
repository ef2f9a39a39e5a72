package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/posture.report/internal/depth"
	"github.com/banshee-data/posture.report/internal/posture"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/status "tuning" object so the same JSON
// can be used for startup configuration and inspection.
type TuningConfig struct {
	// Classifier params
	ConfidenceAngle      *float64 `json:"confidence_angle,omitempty"`
	StandPoseFactor      *float64 `json:"stand_pose_factor,omitempty"`
	AutomaticChoiceAngle *bool    `json:"automatic_choice_angle,omitempty"`
	AngleShift           *float64 `json:"angle_shift,omitempty"`
	Debug                *bool    `json:"debug,omitempty"`
	ClassifierMode       *string  `json:"classifier_mode,omitempty"` // "activity" or "stance"
	FloorThreshold       *float64 `json:"floor_threshold,omitempty"`

	// Segmentation params
	SegmentationMode  *string `json:"segmentation_mode,omitempty"` // "player_index", "envelope", "combined"
	EnvelopeTolerance *int    `json:"envelope_tolerance,omitempty"`
	ArtifactIntensity *int    `json:"artifact_intensity,omitempty"`

	// Stream geometry
	DepthWidth  *int `json:"depth_width,omitempty"`
	DepthHeight *int `json:"depth_height,omitempty"`
	ColorWidth  *int `json:"color_width,omitempty"`
	ColorHeight *int `json:"color_height,omitempty"`

	// Logging and alerting
	LogInterval        *string  `json:"log_interval,omitempty"` // duration string like "1s"
	FallAlertThreshold *float64 `json:"fall_alert_threshold,omitempty"`
	AlertCooldown      *string  `json:"alert_cooldown,omitempty"` // duration string like "5m"
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
// Fields omitted from the JSON file fall back to the Get* defaults, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,       // from cmd/
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.ConfidenceAngle != nil && *c.ConfidenceAngle < 0 {
		return fmt.Errorf("confidence_angle must be non-negative, got %f", *c.ConfidenceAngle)
	}
	if c.StandPoseFactor != nil && *c.StandPoseFactor <= 0 {
		return fmt.Errorf("stand_pose_factor must be positive, got %f", *c.StandPoseFactor)
	}
	if c.ClassifierMode != nil {
		if _, err := posture.ParseMode(*c.ClassifierMode); err != nil {
			return err
		}
	}
	if c.SegmentationMode != nil {
		if _, err := depth.ParseMode(*c.SegmentationMode); err != nil {
			return err
		}
	}
	if c.EnvelopeTolerance != nil && (*c.EnvelopeTolerance < 0 || *c.EnvelopeTolerance > 255) {
		return fmt.Errorf("envelope_tolerance must be between 0 and 255, got %d", *c.EnvelopeTolerance)
	}
	if c.ArtifactIntensity != nil && (*c.ArtifactIntensity < 0 || *c.ArtifactIntensity > 255) {
		return fmt.Errorf("artifact_intensity must be between 0 and 255, got %d", *c.ArtifactIntensity)
	}
	for name, v := range map[string]*int{
		"depth_width":  c.DepthWidth,
		"depth_height": c.DepthHeight,
		"color_width":  c.ColorWidth,
		"color_height": c.ColorHeight,
	} {
		if v != nil && *v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, *v)
		}
	}
	if c.FallAlertThreshold != nil && (*c.FallAlertThreshold <= 0 || *c.FallAlertThreshold > 1) {
		return fmt.Errorf("fall_alert_threshold must be in (0,1], got %f", *c.FallAlertThreshold)
	}
	if c.LogInterval != nil && *c.LogInterval != "" {
		if _, err := time.ParseDuration(*c.LogInterval); err != nil {
			return fmt.Errorf("invalid log_interval '%s': %w", *c.LogInterval, err)
		}
	}
	if c.AlertCooldown != nil && *c.AlertCooldown != "" {
		if _, err := time.ParseDuration(*c.AlertCooldown); err != nil {
			return fmt.Errorf("invalid alert_cooldown '%s': %w", *c.AlertCooldown, err)
		}
	}
	return nil
}

// GetConfidenceAngle returns the confidence_angle value or the default.
func (c *TuningConfig) GetConfidenceAngle() float64 {
	if c.ConfidenceAngle == nil {
		return 5
	}
	return *c.ConfidenceAngle
}

// GetStandPoseFactor returns the stand_pose_factor value or the default.
func (c *TuningConfig) GetStandPoseFactor() float64 {
	if c.StandPoseFactor == nil {
		return 1.1
	}
	return *c.StandPoseFactor
}

// GetAutomaticChoiceAngle returns the automatic_choice_angle value or the default.
func (c *TuningConfig) GetAutomaticChoiceAngle() bool {
	if c.AutomaticChoiceAngle == nil {
		return false
	}
	return *c.AutomaticChoiceAngle
}

// GetAngleShift returns the angle_shift value or the default.
func (c *TuningConfig) GetAngleShift() float64 {
	if c.AngleShift == nil {
		return 0
	}
	return *c.AngleShift
}

// GetDebug returns the debug value or the default.
func (c *TuningConfig) GetDebug() bool {
	if c.Debug == nil {
		return false
	}
	return *c.Debug
}

// GetClassifierMode returns the parsed classifier_mode or ModeActivity.
func (c *TuningConfig) GetClassifierMode() posture.Mode {
	if c.ClassifierMode == nil {
		return posture.ModeActivity
	}
	m, err := posture.ParseMode(*c.ClassifierMode)
	if err != nil {
		return posture.ModeActivity // default on parse error
	}
	return m
}

// GetFloorThreshold returns the floor_threshold value or the default.
func (c *TuningConfig) GetFloorThreshold() float64 {
	if c.FloorThreshold == nil {
		return -0.5
	}
	return *c.FloorThreshold
}

// GetSegmentationMode returns the parsed segmentation_mode or ModePlayerIndex.
func (c *TuningConfig) GetSegmentationMode() depth.Mode {
	if c.SegmentationMode == nil {
		return depth.ModePlayerIndex
	}
	m, err := depth.ParseMode(*c.SegmentationMode)
	if err != nil {
		return depth.ModePlayerIndex
	}
	return m
}

// GetEnvelopeTolerance returns the envelope_tolerance value or the default.
func (c *TuningConfig) GetEnvelopeTolerance() int {
	if c.EnvelopeTolerance == nil {
		return 10
	}
	return *c.EnvelopeTolerance
}

// GetArtifactIntensity returns the artifact_intensity value or the default.
func (c *TuningConfig) GetArtifactIntensity() int {
	if c.ArtifactIntensity == nil {
		return 250
	}
	return *c.ArtifactIntensity
}

// GetDepthWidth returns the depth_width value or the default.
func (c *TuningConfig) GetDepthWidth() int {
	if c.DepthWidth == nil {
		return 320
	}
	return *c.DepthWidth
}

// GetDepthHeight returns the depth_height value or the default.
func (c *TuningConfig) GetDepthHeight() int {
	if c.DepthHeight == nil {
		return 240
	}
	return *c.DepthHeight
}

// GetColorWidth returns the color_width value or the default.
func (c *TuningConfig) GetColorWidth() int {
	if c.ColorWidth == nil {
		return 640
	}
	return *c.ColorWidth
}

// GetColorHeight returns the color_height value or the default.
func (c *TuningConfig) GetColorHeight() int {
	if c.ColorHeight == nil {
		return 480
	}
	return *c.ColorHeight
}

// GetLogInterval parses and returns the LogInterval as a time.Duration.
func (c *TuningConfig) GetLogInterval() time.Duration {
	if c.LogInterval == nil || *c.LogInterval == "" {
		return time.Second
	}
	d, err := time.ParseDuration(*c.LogInterval)
	if err != nil {
		return time.Second // default on parse error
	}
	return d
}

// GetFallAlertThreshold returns the fall_alert_threshold value or the default.
func (c *TuningConfig) GetFallAlertThreshold() float64 {
	if c.FallAlertThreshold == nil {
		return 0.75
	}
	return *c.FallAlertThreshold
}

// GetAlertCooldown parses and returns the AlertCooldown as a time.Duration.
func (c *TuningConfig) GetAlertCooldown() time.Duration {
	if c.AlertCooldown == nil || *c.AlertCooldown == "" {
		return 5 * time.Minute
	}
	d, err := time.ParseDuration(*c.AlertCooldown)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// ClassifierConfig builds the posture classifier tunables.
func (c *TuningConfig) ClassifierConfig() posture.Config {
	return posture.Config{
		ConfidenceAngle: c.GetConfidenceAngle(),
		StandPoseFactor: c.GetStandPoseFactor(),
		AutomaticChoice: c.GetAutomaticChoiceAngle(),
		AngleShift:      c.GetAngleShift(),
		Debug:           c.GetDebug(),
		Mode:            c.GetClassifierMode(),
		FloorThreshold:  c.GetFloorThreshold(),
	}
}

// ProcessorConfig builds the depth processor configuration.
func (c *TuningConfig) ProcessorConfig() depth.ProcessorConfig {
	return depth.ProcessorConfig{
		Width:  c.GetDepthWidth(),
		Height: c.GetDepthHeight(),
		Segmenter: depth.SegmenterConfig{
			Mode:              c.GetSegmentationMode(),
			EnvelopeTolerance: c.GetEnvelopeTolerance(),
			ArtifactIntensity: c.GetArtifactIntensity(),
		},
	}
}

// Mapper returns the resolution-scaling mapper between the configured
// depth and colour streams.
func (c *TuningConfig) Mapper() depth.LinearMapper {
	return depth.LinearMapper{
		DepthWidth:  c.GetDepthWidth(),
		DepthHeight: c.GetDepthHeight(),
		ColorWidth:  c.GetColorWidth(),
		ColorHeight: c.GetColorHeight(),
	}
}
