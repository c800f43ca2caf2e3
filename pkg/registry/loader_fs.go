package registry

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/skillforge/engine/pkg/config"
	"github.com/skillforge/engine/pkg/skill"
)

// loadFilesystemSkills scans every SkillSourceConfig root; each immediate
// subdirectory containing a skill.yaml is parsed as one skill. A failure on
// one skill directory is recorded as a diagnostic and does not abort the
// rest of the scan (spec §4.1 load_all semantics).
func loadFilesystemSkills(sources []config.SkillSourceConfig) ([]*skill.Skill, []LoadDiagnostic) {
	var skills []*skill.Skill
	var diags []LoadDiagnostic

	for _, src := range sources {
		entries, err := os.ReadDir(src.Path)
		if err != nil {
			diags = append(diags, LoadDiagnostic{Source: skill.SourceFilesystem, Name: src.Path, Err: fmt.Errorf("read skill source dir: %w", err)})
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			dir := filepath.Join(src.Path, entry.Name())
			s, err := loadSkillDir(dir, src.IsPublic)
			if err != nil {
				diags = append(diags, LoadDiagnostic{Source: skill.SourceFilesystem, Name: entry.Name(), Err: err})
				continue
			}
			skills = append(skills, s)
		}
	}
	return skills, diags
}

func loadSkillDir(dir string, isPublic bool) (*skill.Skill, error) {
	manifestPath := filepath.Join(dir, "skill.yaml")
	raw, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", manifestPath, err)
	}

	var m manifestYAML
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", manifestPath, err)
	}

	prompt := readOptionalProse(filepath.Join(dir, "prompt.md"))
	systemPrompt := readOptionalProse(filepath.Join(dir, "system_prompt.md"))

	s := m.toSkill(prompt, systemPrompt, skill.SourceFilesystem, isPublic, "", filepath.Base(dir), dir)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func readOptionalProse(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}
