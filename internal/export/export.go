// Package export serializes build artifacts for consumers outside the
// engine: files on disk, stdout, editor tooling.
package export

import (
	"encoding/json"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"prism/internal/artifact"
	"prism/internal/errors"
)

// Format selects the artifact serialization.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a user-supplied format name.
func ParseFormat(name string) (Format, error) {
	switch Format(name) {
	case FormatJSON, FormatYAML:
		return Format(name), nil
	default:
		return "", errors.Newf(errors.WriteFailed, "unknown artifact format %q", name)
	}
}

// Write serializes the artifact to w. JSON output is the stable canonical
// form; YAML is derived from it, so both formats order keys identically.
func Write(w io.Writer, a *artifact.Artifact, format Format) error {
	data, err := marshal(a, format)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return errors.New(errors.WriteFailed, "failed to write artifact", err)
	}
	return nil
}

// WriteFile serializes the artifact to path.
func WriteFile(path string, a *artifact.Artifact, format Format) error {
	data, err := marshal(a, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.New(errors.WriteFailed, "failed to write artifact", err).
			WithDetail("path", path)
	}
	return nil
}

func marshal(a *artifact.Artifact, format Format) ([]byte, error) {
	data, err := a.MarshalJSONStable()
	if err != nil {
		return nil, errors.New(errors.InternalError, "failed to encode artifact", err)
	}
	if format != FormatYAML {
		return data, nil
	}

	// Round-tripping through the canonical JSON keeps the YAML view identical
	// in structure and key order.
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, errors.New(errors.InternalError, "failed to decode canonical artifact", err)
	}
	out, err := yaml.Marshal(v)
	if err != nil {
		return nil, errors.New(errors.InternalError, "failed to encode artifact as yaml", err)
	}
	return out, nil
}
