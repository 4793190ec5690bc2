// Package config handles the toast configuration file. The fields here are
// all in PascalCase but in your actual toast.yml they'll be in snake_case.
// Discovery follows an XDG config directory, overridable via TOAST_CONFIG_DIR,
// the same way the teacher honors CONFIG_DIR.
package config

import (
	"os"
	"path/filepath"

	"github.com/OpenPeeDeeP/xdg"
	yaml "github.com/jesseduffield/yaml"
)

// UserConfig holds all of the user-configurable options recognized by
// spec.md §6: docker_repo, docker_cli, and the four cache read/write flags.
type UserConfig struct {
	// DockerRepo is the repository new cache images are tagged under, e.g.
	// "toast" produces tags like "toast:<hex-cache-key>".
	DockerRepo string `yaml:"docker_repo,omitempty"`

	// DockerCLI is the container CLI invoked for every executor operation,
	// where it may carry prefix arguments (e.g. "sudo docker"); the shell
	// drop-in runs it as a single binary name or path.
	DockerCLI string `yaml:"docker_cli,omitempty"`

	// ReadLocalCache enables probing the local daemon for a cache hit.
	ReadLocalCache bool `yaml:"read_local_cache,omitempty"`

	// WriteLocalCache, when false, causes freshly committed local tags to
	// be deleted once a task completes (see the tag guard in §4.7).
	WriteLocalCache bool `yaml:"write_local_cache,omitempty"`

	// ReadRemoteCache enables probing a registry for a cache hit.
	ReadRemoteCache bool `yaml:"read_remote_cache,omitempty"`

	// WriteRemoteCache enables pushing committed cache images to a registry.
	WriteRemoteCache bool `yaml:"write_remote_cache,omitempty"`
}

// GetDefaultConfig returns the default configuration. A user's toast.yml
// is unmarshalled on top of these values, so any key the file doesn't
// mention keeps the default given here.
func GetDefaultConfig() UserConfig {
	return UserConfig{
		DockerRepo:       "toast",
		DockerCLI:        "docker",
		ReadLocalCache:   true,
		WriteLocalCache:  true,
		ReadRemoteCache:  false,
		WriteRemoteCache: false,
	}
}

// AppConfig contains the base configuration fields required for toast,
// combining build metadata with the loaded UserConfig.
type AppConfig struct {
	Debug      bool
	Version    string
	Commit     string
	BuildDate  string
	Name       string
	UserConfig *UserConfig
	ConfigDir  string
	ProjectDir string
}

// NewAppConfig makes a new app config, loading (and if necessary creating)
// the user's toast.yml. If explicitConfigFile is non-empty (the CLI
// collaborator's --config-file flag), it is read directly in place of the
// XDG-discovered path; it must already exist.
func NewAppConfig(name, version, commit, date string, debuggingFlag bool, projectDir, explicitConfigFile string) (*AppConfig, error) {
	var configDir string
	var userConfig *UserConfig

	if explicitConfigFile != "" {
		base := GetDefaultConfig()
		content, err := os.ReadFile(explicitConfigFile)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(content, &base); err != nil {
			return nil, err
		}
		configDir = filepath.Dir(explicitConfigFile)
		userConfig = &base
	} else {
		dir, err := findOrCreateConfigDir(name)
		if err != nil {
			return nil, err
		}
		cfg, err := loadUserConfigWithDefaults(dir)
		if err != nil {
			return nil, err
		}
		configDir = dir
		userConfig = cfg
	}

	appConfig := &AppConfig{
		Name:       name,
		Version:    version,
		Commit:     commit,
		BuildDate:  date,
		Debug:      debuggingFlag || os.Getenv("TOAST_DEBUG") == "TRUE",
		UserConfig: userConfig,
		ConfigDir:  configDir,
		ProjectDir: projectDir,
	}

	return appConfig, nil
}

func configDir(projectName string) string {
	if envConfigDir := os.Getenv("TOAST_CONFIG_DIR"); envConfigDir != "" {
		return envConfigDir
	}
	dirs := xdg.New("", projectName)
	return dirs.ConfigHome()
}

func findOrCreateConfigDir(projectName string) (string, error) {
	folder := configDir(projectName)

	if err := os.MkdirAll(folder, 0o755); err != nil {
		return "", err
	}

	return folder, nil
}

func loadUserConfigWithDefaults(configDir string) (*UserConfig, error) {
	base := GetDefaultConfig()
	return loadUserConfig(configDir, &base)
}

func loadUserConfig(configDir string, base *UserConfig) (*UserConfig, error) {
	fileName := filepath.Join(configDir, "toast.yml")

	if _, err := os.Stat(fileName); err != nil {
		if os.IsNotExist(err) {
			file, err := os.Create(fileName)
			if err != nil {
				return nil, err
			}
			file.Close()
		} else {
			return nil, err
		}
	}

	content, err := os.ReadFile(fileName)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(content, base); err != nil {
		return nil, err
	}

	return base, nil
}

// ConfigFilename returns the filename of the current config file.
func (c *AppConfig) ConfigFilename() string {
	return filepath.Join(c.ConfigDir, "toast.yml")
}
