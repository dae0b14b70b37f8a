package toml

import "fmt"

const currentSchemaVersion = 1

type fileSchema struct {
	Version int         `toml:"version"`
	Rows    []rowSchema `toml:"rows"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported ledger schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type rowSchema struct {
	Order             string `toml:"order"`
	Form              string `toml:"form"`
	Size              string `toml:"size"`
	Required          int    `toml:"required"`
	Done              int    `toml:"done"`
	Remaining         int    `toml:"remaining"`
	LastCompletedBy   string `toml:"last_completed_by,omitempty"`
	LastCompletedDate string `toml:"last_completed_date,omitempty"`
	Revision          uint64 `toml:"revision"`
}
