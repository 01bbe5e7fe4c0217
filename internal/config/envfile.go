package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func setEnvValue(path, key, value string) error {
	values, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to read env file: %w", err)
		}
		values = make(map[string]string)
	}

	values[key] = value
	if err := godotenv.Write(values, path); err != nil {
		return fmt.Errorf("failed to write env file: %w", err)
	}
	return nil
}
