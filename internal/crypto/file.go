package crypto

import (
	"fmt"
	"os"
)

func writeFile(path string, data []byte, perm os.FileMode) error {
	return os.WriteFile(path, data, perm)
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("crypto: key file not found at %q: %w", path, err)
		}
		return nil, fmt.Errorf("crypto: failed to read key file %q: %w", path, err)
	}
	return data, nil
}
