package config

import (
	"github.com/rotisserie/eris"
	"gopkg.in/ini.v1"
)

const defaultPath = "./"

// Paths is the [Paths] section of the INI file.
type Paths struct {
	DataDir   string
	OutputDir string
	// GDBBuildingsPath points at the buildings layer.
	GDBBuildingsPath string
}

// LoadPaths reads the [Paths] section of file. A missing file or key
// yields "./".
func LoadPaths(file string) (*Paths, error) {
	f, err := ini.LooseLoad(file)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read %s", file)
	}
	sec := f.Section("Paths")
	get := func(key string) string {
		if !sec.HasKey(key) {
			return defaultPath
		}
		return sec.Key(key).String()
	}
	return &Paths{
		DataDir:          get("data_dir"),
		OutputDir:        get("output_dir"),
		GDBBuildingsPath: get("gdb_bld_path"),
	}, nil
}
