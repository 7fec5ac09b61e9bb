package config

import "fmt"

// MigrationResult contains the result of a configuration migration.
type MigrationResult struct {
	FromVersion int
	ToVersion   int
	Changes     []string
	Warnings    []string
}

// MigrateConfig upgrades cfg in place to Version. It returns nil when cfg
// is already current.
func MigrateConfig(cfg *Config) (*MigrationResult, error) {
	if cfg.Version >= Version {
		return nil, nil
	}

	// A file without a version key predates versioning.
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	result := &MigrationResult{
		FromVersion: cfg.Version,
		ToVersion:   Version,
	}

	for cfg.Version < Version {
		changes, warnings, err := applyMigration(cfg)
		if err != nil {
			return result, fmt.Errorf("migration from v%d to v%d failed: %w", cfg.Version, cfg.Version+1, err)
		}
		result.Changes = append(result.Changes, changes...)
		result.Warnings = append(result.Warnings, warnings...)
	}

	return result, nil
}

func applyMigration(cfg *Config) (changes []string, warnings []string, err error) {
	switch cfg.Version {
	case 1:
		changes, warnings = migrateV1ToV2(cfg)
	default:
		return nil, nil, fmt.Errorf("no migration from version %d", cfg.Version)
	}
	cfg.Version++
	return changes, warnings, nil
}

// migrateV1ToV2 folds the single-track animation.duration into the
// per-track animation.durations list.
func migrateV1ToV2(cfg *Config) (changes []string, warnings []string) {
	a := &cfg.Animation
	if a.Duration == 0 {
		if len(a.Durations) == 0 {
			a.Durations = DefaultConfig().Animation.Durations
			changes = append(changes, "animation.durations: set to default")
		}
		return changes, nil
	}

	if len(a.Durations) > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"animation.duration (%v) ignored because animation.durations is set", a.Duration))
	} else {
		a.Durations = []float64{a.Duration}
		changes = append(changes, fmt.Sprintf("animation.duration %v moved to animation.durations", a.Duration))
	}
	a.Duration = 0
	return changes, warnings
}
