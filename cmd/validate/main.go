package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/jwebster45206/quantum-theater/pkg/board"
	"github.com/jwebster45206/quantum-theater/pkg/narrative"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <calibration.json|script.json>...\n", os.Args[0])
		os.Exit(1)
	}

	validator := &Validator{}
	failed := false
	for _, filename := range os.Args[1:] {
		fmt.Printf("Validating %s...\n", filename)
		if err := validator.validateFile(filename); err != nil {
			fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
			failed = true
		}
	}
	if err := validator.crossCheck(); err != nil {
		fmt.Fprintf(os.Stderr, "Validation failed: %v\n", err)
		failed = true
	}
	if failed {
		os.Exit(1)
	}

	fmt.Println("All files are valid!")
}

// Validator checks calibration and narrative script files. When both kinds
// are given, rule zones are checked against the calibrated zones.
type Validator struct {
	errors []string

	zones   map[string]bool
	scripts map[string]narrative.Script
}

type fileKind int

const (
	kindCalibration fileKind = iota
	kindScript
)

func (v *Validator) validateFile(filename string) error {
	if !strings.HasSuffix(filename, ".json") {
		return fmt.Errorf("file must have .json extension: %s", filepath.Base(filename))
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", filename, err)
	}
	if !json.Valid(data) {
		return fmt.Errorf("file %s contains invalid JSON", filename)
	}

	v.errors = nil
	switch detectKind(data) {
	case kindScript:
		v.validateScript(data, filename)
	default:
		v.validateCalibration(data)
	}

	if len(v.errors) > 0 {
		return fmt.Errorf("validation errors in %s:\n%s", filename, strings.Join(v.errors, "\n"))
	}
	return nil
}

// detectKind treats any document with rules or roles as a script.
func detectKind(data []byte) fileKind {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return kindCalibration
	}
	if _, ok := top["rules"]; ok {
		return kindScript
	}
	if _, ok := top["roles"]; ok {
		return kindScript
	}
	return kindCalibration
}

func (v *Validator) validateCalibration(data []byte) {
	cal, err := board.ParseCalibration(data)
	if err != nil {
		v.addJoined(err)
		return
	}
	if v.zones == nil {
		v.zones = make(map[string]bool)
	}
	for _, z := range cal.AllZones() {
		if _, err := strconv.Atoi(z.ID); err != nil {
			v.validateIDFormat("zone ID", z.ID)
		}
		v.zones[z.ID] = true
	}
	if _, _, err := cal.TransformSource(0); err != nil {
		v.addError(err.Error())
	}
}

func (v *Validator) validateScript(data []byte, filename string) {
	script, err := narrative.ParseScript(data)
	if err != nil {
		v.addError(err.Error())
		return
	}
	if err := script.Validate(); err != nil {
		v.addJoined(err)
	}
	for id, role := range script.Roles {
		v.validateIDFormat(fmt.Sprintf("role for marker %s", id), role)
	}
	for i, r := range script.Rules {
		ctx := fmt.Sprintf("rule %d", i)
		for _, f := range append(append(append(append([]string{}, r.Requires...), r.Forbids...), r.Set...), r.Clear...) {
			v.validateIDFormat(ctx+" flag", f)
		}
	}
	if v.scripts == nil {
		v.scripts = make(map[string]narrative.Script)
	}
	v.scripts[filename] = script
}

// crossCheck reports script rules that name zones no calibration defines.
func (v *Validator) crossCheck() error {
	if len(v.zones) == 0 || len(v.scripts) == 0 {
		return nil
	}
	var problems []string
	for filename, script := range v.scripts {
		for i, r := range script.Rules {
			for _, z := range []string{r.Zone, r.FromZone} {
				if z != "" && !v.zones[z] {
					problems = append(problems, fmt.Sprintf("  - %s: rule %d names unknown zone %q", filename, i, z))
				}
			}
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("script zones missing from calibration:\n%s", strings.Join(problems, "\n"))
	}
	return nil
}

func (v *Validator) validateIDFormat(fieldName, id string) {
	if id == "" {
		return
	}

	if !isValidID(id) {
		v.addError(fmt.Sprintf("%s '%s' should be lowercase snake_case", fieldName, id))
	}
}

// addJoined records each error of an errors.Join result on its own line.
func (v *Validator) addJoined(err error) {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		for _, e := range joined.Unwrap() {
			v.addError(e.Error())
		}
		return
	}
	v.addError(err.Error())
}

func (v *Validator) addError(msg string) {
	v.errors = append(v.errors, "  - "+msg)
}

var validIDRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*[a-z0-9]$|^[a-z]$`)

func isValidID(id string) bool {
	return validIDRegex.MatchString(id)
}
