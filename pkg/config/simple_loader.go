package config

import (
	"bytes"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pancaim/cdm/pkg/cdmerrors"
)

// Load reads a YAML configuration file over Default. ${VAR} references are
// replaced with environment values before parsing. The result is not
// validated.
func Load(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: path comes from the command line
	if err != nil {
		return nil, cdmerrors.Wrap(err, cdmerrors.ErrorTypeConfig, "failed to read config file").
			WithDetail("path", filePath)
	}
	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, cdmerrors.Wrap(err, cdmerrors.ErrorTypeConfig, "failed to parse config file").
			WithDetail("path", filePath)
	}
	return cfg, nil
}

// Parse decodes a YAML configuration over Default. Unknown keys are
// rejected.
func Parse(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, cdmerrors.Wrap(err, cdmerrors.ErrorTypeConfig, "failed to read config")
	}

	cfg := Default()
	dec := yaml.NewDecoder(strings.NewReader(substituteEnvVars(string(data))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, cdmerrors.Wrap(err, cdmerrors.ErrorTypeConfig, "failed to parse YAML")
	}
	return cfg, nil
}

// Save writes cfg as YAML. The password is written as configured.
func Save(filePath string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return cdmerrors.Wrap(err, cdmerrors.ErrorTypeConfig, "failed to marshal YAML")
	}
	if err := os.WriteFile(filePath, data, 0o600); err != nil {
		return cdmerrors.Wrap(err, cdmerrors.ErrorTypeFile, "failed to write config file").
			WithDetail("path", filePath)
	}
	return nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values.
// Substituted values are not scanned again; an unterminated reference is
// kept as is.
func substituteEnvVars(content string) string {
	var b strings.Builder
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		b.WriteString(content[:start])
		b.WriteString(os.Getenv(content[start+2 : end]))
		content = content[end+1:]
	}
	b.WriteString(content)
	return b.String()
}
