package config

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// profileFile is the top-level HCL document shape: a set of labeled
// "profile" blocks, each decoded as a Config (profiles are loaded
// first; CLI flags override afterward).
type profileFile struct {
	Profiles []profileBlock `hcl:"profile,block"`
}

type profileBlock struct {
	Name   string `hcl:"name,label"`
	Config `hcl:",remain"`
}

// LoadProfiles parses an HCL profile bundle file and returns a map of
// profile name to fully-resolved Config (each profile's declared
// fields layered on top of Default() via Override, so a field declared
// with its zero value keeps the default).
func LoadProfiles(path string) (map[string]Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("config: parse %s: %s", path, diags.Error())
	}

	var doc profileFile
	diags = gohcl.DecodeBody(file.Body, nil, &doc)
	if diags.HasErrors() {
		return nil, fmt.Errorf("config: decode %s: %s", path, diags.Error())
	}

	out := make(map[string]Config, len(doc.Profiles))
	for _, p := range doc.Profiles {
		out[p.Name] = Default().Override(p.Config)
	}
	return out, nil
}

// LoadProfile loads a single named profile from path. If path does not
// exist, the built-in profile of the same name is used (see
// BuiltinProfile), so a fresh checkout works without a profiles file
// on disk.
func LoadProfile(path, name string) (Config, error) {
	if _, err := os.Stat(path); err != nil {
		if cfg, ok := BuiltinProfile(name); ok {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: profile file %s not found and %q is not a built-in profile", path, name)
	}

	profiles, err := LoadProfiles(path)
	if err != nil {
		return Config{}, err
	}
	cfg, ok := profiles[name]
	if !ok {
		return Config{}, fmt.Errorf("config: unknown profile %q in %s", name, path)
	}
	return cfg, nil
}

// BuiltinProfile returns one of the three named profiles (fast-debug,
// long-train, eval-only) without needing an HCL file on disk, so tests
// and a fresh checkout can run without external config files.
func BuiltinProfile(name string) (Config, bool) {
	base := Default()
	switch name {
	case "fast-debug":
		seed := int64(12345)
		base.GamesPerCycle = 10
		base.MaxStepsPerGame = 40
		base.MaxCycles = 3
		base.BatchSize = 32
		base.MaxExperienceBuffer = 2000
		base.TargetUpdateFrequency = 20
		base.CheckpointInterval = 1
		base.EvaluationGames = 4
		base.Seed = &seed
		return base, true
	case "long-train":
		base.MaxCycles = 2000
		base.GamesPerCycle = 100
		base.MaxConcurrentGames = 8
		base.MaxExperienceBuffer = 200000
		base.CheckpointInterval = 10
		return base, true
	case "eval-only":
		base.MaxCycles = 0
		base.EvaluationGames = 50
		return base, true
	default:
		return Config{}, false
	}
}
