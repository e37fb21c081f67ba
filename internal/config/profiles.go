package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var profileNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Profile is a named, saved configuration.
type Profile struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	CreatedAt   time.Time `yaml:"created_at"`
	Config      Config    `yaml:"config"`
}

// ProfileManager stores profiles as YAML files in one directory.
type ProfileManager struct {
	profilesDir string
}

func NewProfileManager() (*ProfileManager, error) {
	profilesDir := filepath.Join(DataDir(), "profiles")
	if err := os.MkdirAll(profilesDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create profiles directory: %w", err)
	}
	return &ProfileManager{profilesDir: profilesDir}, nil
}

func (pm *ProfileManager) path(name string) string {
	return filepath.Join(pm.profilesDir, name+".yaml")
}

func (pm *ProfileManager) Save(name, description string, cfg *Config) error {
	if !profileNamePattern.MatchString(name) {
		return &ValidationError{Field: "name", Message: fmt.Sprintf("invalid profile name %q", name)}
	}

	data, err := yaml.Marshal(&Profile{
		Name:        name,
		Description: description,
		CreatedAt:   time.Now(),
		Config:      *cfg,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	if err := writeFileAtomic(pm.path(name), data); err != nil {
		return fmt.Errorf("failed to write profile file: %w", err)
	}
	return nil
}

func (pm *ProfileManager) Load(name string) (*Profile, error) {
	data, err := os.ReadFile(pm.path(name))
	if err != nil {
		return nil, fmt.Errorf("failed to read profile file: %w", err)
	}

	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &profile, nil
}

func (pm *ProfileManager) Delete(name string) error {
	if err := os.Remove(pm.path(name)); err != nil {
		return fmt.Errorf("failed to delete profile file: %w", err)
	}
	return nil
}

// List returns every readable profile, ordered by file name.
func (pm *ProfileManager) List() ([]Profile, error) {
	entries, err := os.ReadDir(pm.profilesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles directory: %w", err)
	}

	var profiles []Profile
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}
		profile, err := pm.Load(strings.TrimSuffix(entry.Name(), ".yaml"))
		if err != nil {
			continue
		}
		profiles = append(profiles, *profile)
	}
	return profiles, nil
}

func writeFileAtomic(filename string, data []byte) error {
	tmpFile := filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpFile, filename); err != nil {
		os.Remove(tmpFile)
		return err
	}
	return nil
}
