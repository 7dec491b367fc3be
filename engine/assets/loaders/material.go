package loaders

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spaghettifunk/abyss/engine/core"
	"github.com/spaghettifunk/abyss/engine/math"
)

// MaterialConfig is the parsed form of a .amt material file. Map names are
// texture asset names relative to the asset root.
type MaterialConfig struct {
	Name         string
	Albedo       math.Vec4
	AlbedoMap    string
	Roughness    float32
	RoughnessMap string
	Metallic     float32
	MetallicMap  string
	Emissive     math.Vec3
	EmissiveMap  string
	AlphaCutoff  float32
	Opaque       bool
}

type MaterialLoader struct{}

func (ml *MaterialLoader) Load(path string) (interface{}, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ParseMaterial(file)
}

// ParseMaterial reads "key = value" lines. Lines starting with # are comments.
func ParseMaterial(r io.Reader) (*MaterialConfig, error) {
	scanner := bufio.NewScanner(r)
	materialConfig := &MaterialConfig{
		Albedo:      math.NewVec4(1, 1, 1, 1),
		Roughness:   1,
		AlphaCutoff: 0.5,
		Opaque:      true,
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip comments and empty lines
		if strings.HasPrefix(line, "#") || line == "" {
			continue
		}

		// Split key-value pairs by the first "=" sign
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			core.LogWarn("skipping invalid material line: %s", line)
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		var err error
		switch key {
		case "name":
			materialConfig.Name = value
		case "albedo":
			var v []float32
			if v, err = parseFloats(value, 4); err == nil {
				materialConfig.Albedo = math.NewVec4(v[0], v[1], v[2], v[3])
			}
		case "albedo_map":
			materialConfig.AlbedoMap = value
		case "roughness":
			materialConfig.Roughness, err = parseFloat(value)
		case "roughness_map":
			materialConfig.RoughnessMap = value
		case "metallic":
			materialConfig.Metallic, err = parseFloat(value)
		case "metallic_map":
			materialConfig.MetallicMap = value
		case "emissive":
			var v []float32
			if v, err = parseFloats(value, 3); err == nil {
				materialConfig.Emissive = math.NewVec3(v[0], v[1], v[2])
			}
		case "emissive_map":
			materialConfig.EmissiveMap = value
		case "alpha_cutoff":
			materialConfig.AlphaCutoff, err = parseFloat(value)
		case "opaque":
			materialConfig.Opaque, err = strconv.ParseBool(value)
		default:
			core.LogWarn("unknown material key '%s', skipping", key)
		}
		if err != nil {
			return nil, fmt.Errorf("invalid %s in line %q: %w", key, line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := validateMaterial(materialConfig); err != nil {
		return nil, err
	}
	return materialConfig, nil
}

func parseFloat(s string) (float32, error) {
	f, err := strconv.ParseFloat(s, 32)
	return float32(f), err
}

func parseFloats(s string, n int) ([]float32, error) {
	fields := strings.Fields(s)
	if len(fields) != n {
		return nil, fmt.Errorf("expected %d values, got %d", n, len(fields))
	}
	out := make([]float32, n)
	for i, f := range fields {
		v, err := parseFloat(f)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func validateMaterial(material *MaterialConfig) error {
	if material.Name == "" {
		return fmt.Errorf("material name is required")
	}
	// Check that albedo values are within [0.0, 1.0] range
	if !isValidVec4(material.Albedo) {
		return fmt.Errorf("albedo values must be between 0.0 and 1.0")
	}
	if !inRange(material.Roughness) || !inRange(material.Metallic) || !inRange(material.AlphaCutoff) {
		return fmt.Errorf("roughness, metallic and alpha_cutoff must be between 0.0 and 1.0")
	}
	return nil
}

// Helper function to validate Vec4 fields (must be between 0.0 and 1.0)
func isValidVec4(v math.Vec4) bool {
	return inRange(v.X) && inRange(v.Y) && inRange(v.Z) && inRange(v.W)
}

func inRange(value float32) bool {
	return value >= 0.0 && value <= 1.0
}
