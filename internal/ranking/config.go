package ranking

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// Options tunes the pipeline.
type Options struct {
	// SerendipityHead is how many leading candidates serendipity keeps in place (default: 6).
	SerendipityHead int `json:"serendipity_head"`

	// FallbackUserOffset is the seed offset used when the viewer id is empty (default: 7).
	FallbackUserOffset int `json:"fallback_user_offset"`
}

// CalibrationConfig represents the JSON structure of the calibration file.
type CalibrationConfig struct {
	Version string  `json:"version"` // Config version for future compatibility
	Options Options `json:"options"`
}

// Default option values.
const (
	DefaultSerendipityHead    = 6
	DefaultFallbackUserOffset = 7
)

// DefaultOptions returns the default pipeline options.
func DefaultOptions() *Options {
	return &Options{
		SerendipityHead:    DefaultSerendipityHead,
		FallbackUserOffset: DefaultFallbackUserOffset,
	}
}

// LoadCalibration loads pipeline options from a JSON calibration file.
// An empty path returns the defaults. If the file can't be read or parsed,
// the defaults are returned together with the error so the caller can keep
// serving. Partial files are merged over the defaults.
func LoadCalibration(filePath string) (*Options, error) {
	if filePath == "" {
		return DefaultOptions(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		slog.Warn("failed to read ranking calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultOptions(), fmt.Errorf("failed to read calibration file: %w", err)
	}

	var config CalibrationConfig
	if err := json.Unmarshal(data, &config); err != nil {
		slog.Warn("failed to parse ranking calibration file, using defaults",
			"path", filePath,
			"error", err)
		return DefaultOptions(), fmt.Errorf("failed to parse calibration file: %w", err)
	}

	defaults := DefaultOptions()
	merged := MergeCalibration(defaults, &config.Options)
	logCalibrationOverrides(defaults, merged)

	return merged, nil
}

// MergeCalibration applies the positive values of override on top of base.
// Zero and negative values are ignored so a partial file only changes what
// it names.
func MergeCalibration(base *Options, override *Options) *Options {
	if base == nil {
		return DefaultOptions()
	}

	result := *base
	if override == nil {
		return &result
	}

	if override.SerendipityHead > 0 {
		result.SerendipityHead = override.SerendipityHead
	}
	if override.FallbackUserOffset > 0 {
		result.FallbackUserOffset = override.FallbackUserOffset
	}

	return &result
}

// logCalibrationOverrides logs which options differ from the defaults.
func logCalibrationOverrides(defaults *Options, loaded *Options) {
	var overrides []string

	if loaded.SerendipityHead != defaults.SerendipityHead {
		overrides = append(overrides, fmt.Sprintf("serendipity_head: %d -> %d",
			defaults.SerendipityHead, loaded.SerendipityHead))
	}
	if loaded.FallbackUserOffset != defaults.FallbackUserOffset {
		overrides = append(overrides, fmt.Sprintf("fallback_user_offset: %d -> %d",
			defaults.FallbackUserOffset, loaded.FallbackUserOffset))
	}

	if len(overrides) > 0 {
		slog.Info("loaded ranking calibration with overrides",
			"overrides", overrides)
	} else {
		slog.Info("loaded ranking calibration (using all defaults)")
	}
}
