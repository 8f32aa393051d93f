package inmemory

import (
	"fmt"

	"github.com/spf13/viper"
	"github.com/watch2earn/cinema-server/internal/repository/catalog"
	"github.com/watch2earn/cinema-server/pkg/validator"
)

// LoadEntries reads the "rooms" list from a yaml, json or toml file.
func LoadEntries(path string) ([]catalog.Entry, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var entries []catalog.Entry
	if err := v.UnmarshalKey("rooms", &entries); err != nil {
		return nil, fmt.Errorf("failed to decode catalog: %w", err)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("catalog %s defines no rooms", path)
	}

	val := validator.NewValidator()
	for i := range entries {
		if errs, ok := val.Validate(entries[i]); !ok {
			return nil, fmt.Errorf("invalid catalog entry %d: %w", i, validator.Error(errs))
		}
	}

	return entries, nil
}
