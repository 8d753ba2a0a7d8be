// Package config defines the drive configuration and how it is loaded and validated.
package config

import (
	"fmt"
	"time"

	"github.com/golang/geo/r2"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/swerve/control"
	"go.viam.com/swerve/estimator"
	"go.viam.com/swerve/kinematics/swerve"
	rutils "go.viam.com/swerve/utils"
	"go.viam.com/swerve/vision/landmark"
)

// inchesToMeters converts the wheelbase, which is conventionally measured in inches.
const inchesToMeters = 0.0254

// Config is the full drive configuration.
type Config struct {
	Drivetrain DrivetrainConfig `json:"drivetrain" yaml:"drivetrain" mapstructure:"drivetrain"`
	Vision     VisionConfig     `json:"vision" yaml:"vision" mapstructure:"vision"`
	Estimator  EstimatorConfig  `json:"estimator" yaml:"estimator" mapstructure:"estimator"`
	Loop       LoopConfig       `json:"loop" yaml:"loop" mapstructure:"loop"`
}

// ModuleConfig places one module. Offsets are meters from the robot center, x forward and y left.
type ModuleConfig struct {
	Name    string  `json:"name" yaml:"name" mapstructure:"name"`
	OffsetX float64 `json:"offset_x_m" yaml:"offset_x_m" mapstructure:"offset_x_m"`
	OffsetY float64 `json:"offset_y_m" yaml:"offset_y_m" mapstructure:"offset_y_m"`
}

// DrivetrainConfig describes the chassis. When Modules is empty the four modules sit at the corners
// of a WheelbaseIn × TrackWidthIn rectangle.
type DrivetrainConfig struct {
	WheelbaseIn   float64           `json:"wheelbase_in" yaml:"wheelbase_in" mapstructure:"wheelbase_in"`
	TrackWidthIn  float64           `json:"track_width_in" yaml:"track_width_in" mapstructure:"track_width_in"`
	WheelRadiusM  float64           `json:"wheel_radius_m" yaml:"wheel_radius_m" mapstructure:"wheel_radius_m"`
	MaxSpeedMPS   float64           `json:"max_speed_mps" yaml:"max_speed_mps" mapstructure:"max_speed_mps"`
	Modules       []ModuleConfig    `json:"modules,omitempty" yaml:"modules,omitempty" mapstructure:"modules"`
	SteerPID      control.PIDConfig `json:"steer_pid" yaml:"steer_pid" mapstructure:"steer_pid"`
	FieldRelative bool              `json:"field_relative" yaml:"field_relative" mapstructure:"field_relative"`
}

// FieldConfig is the field boundary rectangle in meters.
type FieldConfig struct {
	MinX float64 `json:"min_x_m" yaml:"min_x_m" mapstructure:"min_x_m"`
	MinY float64 `json:"min_y_m" yaml:"min_y_m" mapstructure:"min_y_m"`
	MaxX float64 `json:"max_x_m" yaml:"max_x_m" mapstructure:"max_x_m"`
	MaxY float64 `json:"max_y_m" yaml:"max_y_m" mapstructure:"max_y_m"`
}

// CameraConfig is one landmark camera.
type CameraConfig struct {
	Name    string  `json:"name" yaml:"name" mapstructure:"name"`
	OffsetX float64 `json:"offset_x_m" yaml:"offset_x_m" mapstructure:"offset_x_m"`
	OffsetY float64 `json:"offset_y_m" yaml:"offset_y_m" mapstructure:"offset_y_m"`
}

// VisionConfig configures landmark validation.
type VisionConfig struct {
	Field           FieldConfig        `json:"field" yaml:"field" mapstructure:"field"`
	LatencyCutoffMS float64            `json:"latency_cutoff_ms" yaml:"latency_cutoff_ms" mapstructure:"latency_cutoff_ms"`
	BlendMode       landmark.BlendMode `json:"blend_mode" yaml:"blend_mode" mapstructure:"blend_mode"`
	Cameras         []CameraConfig     `json:"cameras,omitempty" yaml:"cameras,omitempty" mapstructure:"cameras"`
}

// EstimatorConfig configures fusion. Heading std devs are in degrees.
type EstimatorConfig struct {
	StateStdDevs     StdDevs `json:"state_std_devs" yaml:"state_std_devs" mapstructure:"state_std_devs"`
	VisionStdDevs    StdDevs `json:"vision_std_devs" yaml:"vision_std_devs" mapstructure:"vision_std_devs"`
	HistoryWindowMS  float64 `json:"history_window_ms" yaml:"history_window_ms" mapstructure:"history_window_ms"`
	StaleAfterMS     float64 `json:"stale_after_ms" yaml:"stale_after_ms" mapstructure:"stale_after_ms"`
	UseVisionHeading bool    `json:"use_vision_heading" yaml:"use_vision_heading" mapstructure:"use_vision_heading"`
}

// StdDevs is a translation and heading uncertainty.
type StdDevs struct {
	XM         float64 `json:"x_m" yaml:"x_m" mapstructure:"x_m"`
	YM         float64 `json:"y_m" yaml:"y_m" mapstructure:"y_m"`
	HeadingDeg float64 `json:"heading_deg" yaml:"heading_deg" mapstructure:"heading_deg"`
}

// LoopConfig sets the control period.
type LoopConfig struct {
	PeriodMS float64 `json:"period_ms" yaml:"period_ms" mapstructure:"period_ms"`
}

// Default returns the configuration of the reference robot: a 21.5in square chassis, 3 m/s modules,
// one front camera on a 16.5 × 8.1 m field.
func Default() *Config {
	return &Config{
		Drivetrain: DrivetrainConfig{
			WheelbaseIn:  21.5,
			TrackWidthIn: 21.5,
			WheelRadiusM: 0.0508,
			MaxSpeedMPS:  3.0,
			SteerPID:     control.PIDConfig{Kp: 8, Kd: 0.05, OutputLimit: 30, Continuous: true},
		},
		Vision: VisionConfig{
			Field:           FieldConfig{MaxX: 16.5, MaxY: 8.1},
			LatencyCutoffMS: 84,
			BlendMode:       landmark.BlendPerSource,
			Cameras:         []CameraConfig{{Name: "limelight", OffsetY: 0.1}},
		},
		Estimator: EstimatorConfig{
			StateStdDevs:     StdDevs{XM: 0.05, YM: 0.05, HeadingDeg: 5},
			VisionStdDevs:    StdDevs{XM: 0.8, YM: 0.8, HeadingDeg: 20},
			HistoryWindowMS:  1500,
			StaleAfterMS:     100,
			UseVisionHeading: true,
		},
		Loop: LoopConfig{PeriodMS: 20},
	}
}

// Validate checks every section. All problems are reported, not just the first.
func (cfg *Config) Validate(path string) error {
	return multierr.Combine(
		cfg.Drivetrain.Validate(joinPath(path, "drivetrain")),
		cfg.Vision.Validate(joinPath(path, "vision")),
		cfg.Estimator.Validate(joinPath(path, "estimator")),
		cfg.Loop.Validate(joinPath(path, "loop")),
	)
}

// Validate ensures the chassis is buildable.
func (cfg *DrivetrainConfig) Validate(path string) error {
	var errs error
	if cfg.MaxSpeedMPS <= 0 {
		errs = multierr.Append(errs, utils.NewConfigValidationFieldRequiredError(path, "max_speed_mps"))
	}
	if cfg.WheelRadiusM <= 0 {
		errs = multierr.Append(errs, utils.NewConfigValidationFieldRequiredError(path, "wheel_radius_m"))
	}
	switch len(cfg.Modules) {
	case 0:
		if cfg.WheelbaseIn <= 0 {
			errs = multierr.Append(errs, utils.NewConfigValidationFieldRequiredError(path, "wheelbase_in"))
		}
		if cfg.TrackWidthIn <= 0 {
			errs = multierr.Append(errs, utils.NewConfigValidationFieldRequiredError(path, "track_width_in"))
		}
	case swerve.NumModules:
	default:
		errs = multierr.Append(errs, utils.NewConfigValidationError(path,
			fmt.Errorf("expected %d modules, got %d", swerve.NumModules, len(cfg.Modules))))
	}
	if errs != nil {
		return errs
	}
	if _, err := swerve.NewKinematics(cfg.Geometries()); err != nil {
		return utils.NewConfigValidationError(joinPath(path, "modules"), err)
	}
	if _, err := control.NewPID(cfg.SteerPID); err != nil {
		return utils.NewConfigValidationError(joinPath(path, "steer_pid"), err)
	}
	return nil
}

// Geometries returns the module layout in canonical order.
func (cfg *DrivetrainConfig) Geometries() [swerve.NumModules]swerve.ModuleGeometry {
	if len(cfg.Modules) != swerve.NumModules {
		return swerve.RectangularLayout(
			cfg.WheelbaseIn*inchesToMeters, cfg.TrackWidthIn*inchesToMeters, cfg.WheelRadiusM, cfg.MaxSpeedMPS)
	}
	var geoms [swerve.NumModules]swerve.ModuleGeometry
	for i, m := range cfg.Modules {
		geoms[i] = swerve.ModuleGeometry{
			Offset:      r2.Point{X: m.OffsetX, Y: m.OffsetY},
			WheelRadius: cfg.WheelRadiusM,
			MaxSpeed:    cfg.MaxSpeedMPS,
		}
	}
	return geoms
}

// Validate ensures the field and cutoff are usable.
func (cfg *VisionConfig) Validate(path string) error {
	var errs error
	if cfg.Field.MaxX <= cfg.Field.MinX || cfg.Field.MaxY <= cfg.Field.MinY {
		errs = multierr.Append(errs, utils.NewConfigValidationError(joinPath(path, "field"),
			fmt.Errorf("field rectangle (%v, %v)-(%v, %v) is empty", cfg.Field.MinX, cfg.Field.MinY, cfg.Field.MaxX, cfg.Field.MaxY)))
	}
	if cfg.LatencyCutoffMS <= 0 {
		errs = multierr.Append(errs, utils.NewConfigValidationFieldRequiredError(path, "latency_cutoff_ms"))
	}
	switch cfg.BlendMode {
	case "", landmark.BlendPerSource, landmark.BlendAveraged:
	default:
		errs = multierr.Append(errs, utils.NewConfigValidationError(joinPath(path, "blend_mode"),
			fmt.Errorf("unknown blend mode %q", cfg.BlendMode)))
	}
	seen := map[string]bool{}
	for idx, cam := range cfg.Cameras {
		camPath := fmt.Sprintf("%s.%d", joinPath(path, "cameras"), idx)
		if cam.Name == "" {
			errs = multierr.Append(errs, utils.NewConfigValidationFieldRequiredError(camPath, "name"))
			continue
		}
		if seen[cam.Name] {
			errs = multierr.Append(errs, utils.NewConfigValidationError(camPath,
				fmt.Errorf("duplicate camera name %q", cam.Name)))
		}
		seen[cam.Name] = true
	}
	return errs
}

// LandmarkConfig converts to the landmark model configuration.
func (cfg *VisionConfig) LandmarkConfig() landmark.Config {
	offsets := make(map[string]r2.Point, len(cfg.Cameras))
	for _, cam := range cfg.Cameras {
		offsets[cam.Name] = r2.Point{X: cam.OffsetX, Y: cam.OffsetY}
	}
	return landmark.Config{
		Field: r2.RectFromPoints(
			r2.Point{X: cfg.Field.MinX, Y: cfg.Field.MinY},
			r2.Point{X: cfg.Field.MaxX, Y: cfg.Field.MaxY}),
		LatencyCutoff: msToDuration(cfg.LatencyCutoffMS),
		SourceOffsets: offsets,
		Mode:          cfg.BlendMode,
	}
}

// Validate ensures every std dev and timeout is positive.
func (cfg *EstimatorConfig) Validate(path string) error {
	if err := cfg.EstimatorConfig().Validate(); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	return nil
}

// EstimatorConfig converts to the fusion engine configuration.
func (cfg *EstimatorConfig) EstimatorConfig() estimator.Config {
	return estimator.Config{
		StateStdDevs:     cfg.StateStdDevs.vector(),
		VisionStdDevs:    cfg.VisionStdDevs.vector(),
		HistoryWindow:    msToDuration(cfg.HistoryWindowMS),
		StaleAfter:       msToDuration(cfg.StaleAfterMS),
		UseVisionHeading: cfg.UseVisionHeading,
	}
}

func (s StdDevs) vector() [3]float64 {
	return [3]float64{s.XM, s.YM, rutils.DegToRad(s.HeadingDeg)}
}

// Validate ensures the period is one the loop supports.
func (cfg *LoopConfig) Validate(path string) error {
	if cfg.Period() < control.MinPeriod {
		return utils.NewConfigValidationError(path,
			fmt.Errorf("period_ms must be at least %v, got %vms", control.MinPeriod, cfg.PeriodMS))
	}
	return nil
}

// Period returns the loop period.
func (cfg *LoopConfig) Period() time.Duration {
	return msToDuration(cfg.PeriodMS)
}

func msToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

func joinPath(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}
