// Package output serializes dependency trees in the supported formats.
package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/phobologic/deptree/internal/model"
	"github.com/phobologic/deptree/internal/toon"
)

// Format is an output encoding.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
	TOON Format = "toon"
)

// ErrUnknownFormat is returned for format names other than json, yaml and
// toon.
var ErrUnknownFormat = errors.New("unknown output format")

// Formats lists the accepted format names.
func Formats() []string {
	return []string{string(JSON), string(YAML), string(TOON)}
}

// ParseFormat maps a case-insensitive format name to a Format.
func ParseFormat(name string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(name)))
	switch f {
	case JSON, YAML, TOON:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q (want one of %s)", ErrUnknownFormat, name, strings.Join(Formats(), ", "))
}

// Encode writes records to w. A single record is written as one object, more
// than one as a list.
func Encode(w io.Writer, format Format, records []*model.FunctionRecord) error {
	var value any = records
	if len(records) == 1 {
		value = records[0]
	}

	switch format {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(value)
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(value); err != nil {
			return fmt.Errorf("encoding yaml: %w", err)
		}
		return enc.Close()
	case TOON:
		_, err := fmt.Fprintln(w, toon.Encode(records...))
		return err
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}
