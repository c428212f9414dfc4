// Package dialog owns the pass/fail dialog: its inputs, presenters, and the
// IPC controller that lets a remote peer resolve it.
package dialog

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rbright/showdialog/internal/datafile"
)

// ErrNoInputs is returned when neither inline nor file inputs are given.
var ErrNoInputs = errors.New("either inline inputs or an inputs file must be specified")

// Inputs describes what the dialog shows.
type Inputs struct {
	DialogTitle string `json:"dialog_title" yaml:"dialog_title"`
	Title       string `json:"title" yaml:"title"`
	// Description is plain text unless DescriptionMD marks it as markdown.
	Description    string `json:"description" yaml:"description"`
	DescriptionMD  bool   `json:"description_md" yaml:"description_md"`
	PassButtonText string `json:"pass_button_text" yaml:"pass_button_text"`
	PassButtonIcon string `json:"pass_button_icon" yaml:"pass_button_icon"`
	FailButtonText string `json:"fail_button_text" yaml:"fail_button_text"`
	FailButtonIcon string `json:"fail_button_icon" yaml:"fail_button_icon"`
}

// FromJSON decodes inputs from a JSON object.
func FromJSON(raw string) (Inputs, error) {
	var in Inputs
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return Inputs{}, fmt.Errorf("decode inputs: %w", err)
	}
	return in, nil
}

// LoadInputs reads inputs from a JSON or YAML file chosen by extension.
func LoadInputs(path string) (Inputs, error) {
	return datafile.Load[Inputs](path, datafile.Auto)
}

// Save writes the inputs to path.
func (i Inputs) Save(path string, fileType datafile.FileType) error {
	return datafile.Save(path, fileType, i)
}

// Merge returns i with override's truthy values applied. DescriptionMD always
// comes from override, even when false.
func (i Inputs) Merge(override Inputs) Inputs {
	return datafile.Derive(i, override)
}

// ResolveInputs builds inputs from an inline JSON string and/or a file. The
// file is the base and inline values override it.
func ResolveInputs(inline, file string) (Inputs, error) {
	inline = strings.TrimSpace(inline)
	file = strings.TrimSpace(file)

	switch {
	case inline == "" && file == "":
		return Inputs{}, ErrNoInputs
	case file == "":
		return FromJSON(inline)
	}

	base, err := LoadInputs(file)
	if err != nil {
		return Inputs{}, fmt.Errorf("inputs file: %w", err)
	}
	if inline == "" {
		return base, nil
	}

	override, err := FromJSON(inline)
	if err != nil {
		return Inputs{}, err
	}
	return base.Merge(override), nil
}

func (i Inputs) passText() string {
	if strings.TrimSpace(i.PassButtonText) == "" {
		return "Pass"
	}
	return i.PassButtonText
}

func (i Inputs) failText() string {
	if strings.TrimSpace(i.FailButtonText) == "" {
		return "Fail"
	}
	return i.FailButtonText
}
