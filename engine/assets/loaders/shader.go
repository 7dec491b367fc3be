package loaders

import (
	"encoding/binary"
	"fmt"
	"os"
)

const spirvMagic uint32 = 0x07230203

// ShaderLoader reads a compiled SPIR-V binary.
type ShaderLoader struct{}

func (sl *ShaderLoader) Load(path string) (interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := CheckSPIRV(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, nil
}

// CheckSPIRV verifies the size and magic number of a SPIR-V binary.
func CheckSPIRV(data []byte) error {
	if len(data) < 20 || len(data)%4 != 0 {
		return fmt.Errorf("spir-v binary has invalid size %d", len(data))
	}
	if magic := binary.LittleEndian.Uint32(data); magic != spirvMagic {
		return fmt.Errorf("spir-v binary has bad magic %#x", magic)
	}
	return nil
}
