package labreport

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed profile.yaml
var defaultProfileYAML []byte

// Profile holds the presentation knobs of the renderer: default title,
// the machine-key label table and the preferred field orders.
type Profile struct {
	Title         string            `yaml:"title" validate:"required"`
	Labels        map[string]string `yaml:"labels"`
	PatientOrder  []string          `yaml:"patient_order" validate:"dive,required"`
	HospitalOrder []string          `yaml:"hospital_order" validate:"dive,required"`
}

// DefaultProfile returns the built-in profile.
func DefaultProfile() Profile {
	var p Profile
	if err := yaml.Unmarshal(defaultProfileYAML, &p); err != nil {
		panic(fmt.Sprintf("labreport: embedded profile: %v", err))
	}
	return p
}

// LoadProfile reads a YAML override on top of the default profile. An empty
// path returns the default.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if err := validate.Struct(p); err != nil {
		return Profile{}, fmt.Errorf("invalid profile %s: %w", path, err)
	}
	return p, nil
}

// Label returns the display label for a machine key.
func (p Profile) Label(key string) string {
	if l, ok := p.Labels[key]; ok {
		return l
	}
	return HumanizeKey(key)
}
