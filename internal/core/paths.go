package core

import (
	"os"
	"path/filepath"
)

type Paths struct {
	HomeDir       string
	DataDir       string
	ConfigDir     string
	ConfigFile    string
	LogFile       string
	AnalyticsFile string
	StudyFile     string
}

var defaultPaths *Paths

func ensureDefaultPaths() {
	if defaultPaths == nil {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			panic(err)
		}

		dataDir := filepath.Join(homeDir, ".local", "share", "quill")
		configDir := filepath.Join(homeDir, ".config", "quill")
		defaultPaths = &Paths{
			HomeDir:       homeDir,
			DataDir:       dataDir,
			ConfigDir:     configDir,
			ConfigFile:    filepath.Join(configDir, "config.yaml"),
			LogFile:       filepath.Join(dataDir, "quill.log"),
			AnalyticsFile: filepath.Join(dataDir, "analytics.db"),
			StudyFile:     filepath.Join(dataDir, "study.db"),
		}

		err = os.MkdirAll(defaultPaths.DataDir, 0755)
		if err != nil {
			panic(err)
		}
	}
}

func HomeDir() string {
	ensureDefaultPaths()
	return defaultPaths.HomeDir
}

func DataDir() string {
	ensureDefaultPaths()
	return defaultPaths.DataDir
}

func ConfigFile() string {
	ensureDefaultPaths()
	return defaultPaths.ConfigFile
}

func LogFile() string {
	ensureDefaultPaths()
	return defaultPaths.LogFile
}

func AnalyticsFile() string {
	ensureDefaultPaths()
	return defaultPaths.AnalyticsFile
}

func StudyFile() string {
	ensureDefaultPaths()
	return defaultPaths.StudyFile
}
