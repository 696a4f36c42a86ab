package runconfig

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"os"

	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// Load reads a YAML profile and returns it with the raw bytes
// KnownFields(true): 오타/미사용 필드 즉시 실패
func Load(path string) (*Profile, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}

	p, err := Parse(data)
	if err != nil {
		return nil, data, err
	}
	return p, data, nil
}

// Parse decodes and validates a YAML profile
func Parse(data []byte) (*Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}

	applyDefaults(&p)
	if err := Validate(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

func applyDefaults(p *Profile) {
	if len(p.Modes) == 0 {
		p.Modes = []string{"price", "total"}
	}
	if p.Engine.Sweep == "" {
		p.Engine.Sweep = SweepAmount
	}
}

// Hash returns the SHA256 of the profile's canonical JSON form.
// Identical profiles hash identically.
func Hash(p *Profile) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
