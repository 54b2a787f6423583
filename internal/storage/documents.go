package storage

import (
	"fmt"
	"os"

	"github.com/jwebster45206/quantum-theater/pkg/board"
	"github.com/jwebster45206/quantum-theater/pkg/narrative"
)

// LoadCalibration reads and validates a board calibration file.
func LoadCalibration(path string) (board.Calibration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return board.Calibration{}, fmt.Errorf("calibration not found: %s", path)
		}
		return board.Calibration{}, fmt.Errorf("failed to read calibration file: %w", err)
	}
	cal, err := board.ParseCalibration(data)
	if err != nil {
		return board.Calibration{}, fmt.Errorf("%s: %w", path, err)
	}
	return cal, nil
}

// LoadScript reads a narrative script file and compiles it. An empty path
// selects the built-in script.
func LoadScript(path string) (*narrative.Table, error) {
	if path == "" {
		return narrative.DefaultTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("narrative script not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read narrative script: %w", err)
	}
	script, err := narrative.ParseScript(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	table, err := narrative.Compile(script)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table, nil
}
