package loaders

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spaghettifunk/abyss/engine/math"
)

// ModelData is an indexed triangle list read from a Wavefront OBJ file.
// UVs and Normals are either empty or the same length as Positions.
type ModelData struct {
	Name      string
	Positions []math.Vec3
	UVs       []math.Vec2
	Normals   []math.Vec3
	Indices   []uint32
}

type ModelLoader struct{}

func (ml *ModelLoader) Load(path string) (interface{}, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	model, err := ParseOBJ(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return model, nil
}

type objVertex struct {
	v, vt, vn int
}

// ParseOBJ reads positions, texture coordinates, normals and faces. Polygons
// are fan triangulated and identical v/vt/vn triples share one vertex.
// Materials, groups and smoothing directives are ignored.
func ParseOBJ(r io.Reader) (*ModelData, error) {
	var (
		positions []math.Vec3
		uvs       []math.Vec2
		normals   []math.Vec3
		lineNo    int
	)
	model := &ModelData{}
	seen := make(map[objVertex]uint32)
	hasUV, hasNormal := true, true

	var faces [][]objVertex

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		switch fields[0] {
		case "o":
			if len(fields) > 1 {
				model.Name = fields[1]
			}
		case "v":
			v, err := parseFloats(strings.Join(fields[1:min(4, len(fields))], " "), 3)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			positions = append(positions, math.NewVec3(v[0], v[1], v[2]))
		case "vt":
			if len(fields) < 3 {
				return nil, fmt.Errorf("line %d: vt needs two values", lineNo)
			}
			v, err := parseFloats(strings.Join(fields[1:3], " "), 2)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			// OBJ has v pointing up, images have it pointing down.
			uvs = append(uvs, math.NewVec2(v[0], 1-v[1]))
		case "vn":
			v, err := parseFloats(strings.Join(fields[1:min(4, len(fields))], " "), 3)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			normals = append(normals, math.NewVec3(v[0], v[1], v[2]))
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("line %d: face needs at least three vertices", lineNo)
			}
			face := make([]objVertex, 0, len(fields)-1)
			for _, f := range fields[1:] {
				ov, err := parseFaceVertex(f, len(positions), len(uvs), len(normals))
				if err != nil {
					return nil, fmt.Errorf("line %d: %w", lineNo, err)
				}
				hasUV = hasUV && ov.vt >= 0
				hasNormal = hasNormal && ov.vn >= 0
				face = append(face, ov)
			}
			faces = append(faces, face)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(faces) == 0 {
		return nil, fmt.Errorf("model has no faces")
	}

	emit := func(ov objVertex) uint32 {
		if !hasUV {
			ov.vt = -1
		}
		if !hasNormal {
			ov.vn = -1
		}
		if idx, ok := seen[ov]; ok {
			return idx
		}
		idx := uint32(len(model.Positions))
		model.Positions = append(model.Positions, positions[ov.v])
		if hasUV {
			model.UVs = append(model.UVs, uvs[ov.vt])
		}
		if hasNormal {
			model.Normals = append(model.Normals, normals[ov.vn])
		}
		seen[ov] = idx
		return idx
	}

	for _, face := range faces {
		for i := 1; i+1 < len(face); i++ {
			model.Indices = append(model.Indices, emit(face[0]), emit(face[i]), emit(face[i+1]))
		}
	}
	return model, nil
}

// parseFaceVertex parses "v", "v/vt", "v//vn" or "v/vt/vn". Negative
// indices are relative to the end of the lists read so far.
func parseFaceVertex(s string, nv, nvt, nvn int) (objVertex, error) {
	parts := strings.Split(s, "/")
	ov := objVertex{v: -1, vt: -1, vn: -1}
	counts := [3]int{nv, nvt, nvn}
	targets := [3]*int{&ov.v, &ov.vt, &ov.vn}
	for i, p := range parts {
		if i > 2 {
			return ov, fmt.Errorf("bad face vertex %q", s)
		}
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return ov, fmt.Errorf("bad face vertex %q: %w", s, err)
		}
		if n < 0 {
			n = counts[i] + n
		} else {
			n--
		}
		if n < 0 || n >= counts[i] {
			return ov, fmt.Errorf("face index %q out of range", s)
		}
		*targets[i] = n
	}
	if ov.v < 0 {
		return ov, fmt.Errorf("face vertex %q has no position", s)
	}
	return ov, nil
}
