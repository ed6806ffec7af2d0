// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Output formats accepted by Render.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ErrUnknownFormat is returned by Render for an unsupported format name.
var ErrUnknownFormat = errors.New("unknown output format")

// RenderJSON writes the report as indented JSON.
func RenderJSON(w io.Writer, rep *ComparisonReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("encode report as json: %w", err)
	}
	return nil
}

// RenderYAML writes the report as YAML.
func RenderYAML(w io.Writer, rep *ComparisonReport) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rep); err != nil {
		return fmt.Errorf("encode report as yaml: %w", err)
	}
	return enc.Close()
}

// Render dispatches on format. color applies to FormatText only.
//
// Inputs:
//   - w: Destination. When w is an *os.File, "auto" color checks its tty.
//   - format: FormatText, FormatJSON or FormatYAML.
//   - colorMode: "auto", "always" or "never".
func Render(w io.Writer, rep *ComparisonReport, format, colorMode string) error {
	switch format {
	case FormatText, "":
		f, _ := w.(*os.File)
		return RenderText(w, rep, TextOptions{Color: ColorEnabled(colorMode, f)})
	case FormatJSON:
		return RenderJSON(w, rep)
	case FormatYAML:
		return RenderYAML(w, rep)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}
