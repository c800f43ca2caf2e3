// Package registry implements the Skill Registry (spec §4.1): it loads skill
// definitions from filesystem sources and the database, resolves name
// collisions per workspace, and serves a read-mostly in-memory snapshot to
// the rest of the engine.
package registry

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/skillforge/engine/ent"
	"github.com/skillforge/engine/pkg/config"
	"github.com/skillforge/engine/pkg/skill"
)

// LoadDiagnostic records one skill that failed to load without aborting the
// rest of load_all.
type LoadDiagnostic struct {
	Source skill.Source
	Name   string
	Err    error
}

func (d LoadDiagnostic) String() string {
	return fmt.Sprintf("%s skill %q: %v", d.Source, d.Name, d.Err)
}

// snapshot is the immutable result of one load_all pass.
type snapshot struct {
	// byWorkspace[workspaceID][name] holds workspace-private skills only;
	// public skills live solely in public.
	byWorkspace map[string]map[string]*skill.Skill
	// public holds skills visible across every workspace.
	public map[string]*skill.Skill
	diags  []LoadDiagnostic
}

// Registry is the read-mostly skill catalog. Reload swaps in a freshly
// computed snapshot atomically; concurrent Get/List calls never observe a
// partially-built snapshot (spec §4.1: "load_all is atomic from the
// resolver's point of view").
type Registry struct {
	sources []config.SkillSourceConfig
	db      *ent.Client // nil when the engine runs without a database-sourced tier

	snap atomic.Pointer[snapshot]
}

// New constructs a Registry. db may be nil, in which case only filesystem
// sources are scanned.
func New(sources []config.SkillSourceConfig, db *ent.Client) *Registry {
	r := &Registry{sources: sources, db: db}
	r.snap.Store(&snapshot{
		byWorkspace: map[string]map[string]*skill.Skill{},
		public:      map[string]*skill.Skill{},
	})
	return r
}

// Reload re-runs load_all against both sources and atomically replaces the
// served snapshot. It returns the load diagnostics so the caller (typically
// the reload CLI/API endpoint) can surface per-skill failures without
// treating them as a hard error — one bad skill.yaml must not take the rest
// of the registry down (spec §4.1).
func (r *Registry) Reload(ctx context.Context) ([]LoadDiagnostic, error) {
	fsSkills, fsDiags := loadFilesystemSkills(r.sources)

	var dbSkills []*skill.Skill
	var dbDiags []LoadDiagnostic
	if r.db != nil {
		dbSkills, dbDiags = loadDatabaseSkills(ctx, r.db)
	}

	next := &snapshot{
		byWorkspace: map[string]map[string]*skill.Skill{},
		public:      map[string]*skill.Skill{},
	}
	diags := append(fsDiags, dbDiags...)

	// Filesystem skills load first. They carry no workspace, so index
	// places every one of them in the public bucket whatever its
	// SkillSourceConfig.IsPublic says, matching the teacher's "built-in
	// skills are always visible" convention.
	for _, s := range fsSkills {
		next.index(s)
	}
	// Database skills load second and win any name collision within their
	// own workspace (spec §4.1: "if both filesystem and database define a
	// skill with the same name, the database version wins within its
	// workspace; the filesystem version remains visible in every other
	// workspace"). Indexing order alone gives us this: a later call to
	// index() for the same (workspace, name) pair simply overwrites the
	// workspace-scoped entry while the filesystem skill's public bucket
	// placement (if it has one) is untouched.
	for _, s := range dbSkills {
		next.index(s)
	}

	next.diags = diags
	r.snap.Store(next)
	return diags, nil
}

// index places s into the snapshot under every bucket it should be visible
// from.
func (s *snapshot) index(sk *skill.Skill) {
	if sk.IsPublic || sk.WorkspaceID == "" {
		s.public[sk.Name] = sk
		return
	}
	bucket, ok := s.byWorkspace[sk.WorkspaceID]
	if !ok {
		bucket = map[string]*skill.Skill{}
		s.byWorkspace[sk.WorkspaceID] = bucket
	}
	bucket[sk.Name] = sk
}

// Get resolves name within workspace: a workspace-private skill shadows a
// public skill of the same name (spec §4.1).
func (r *Registry) Get(workspaceID, name string) (*skill.Skill, bool) {
	snap := r.snap.Load()
	if bucket, ok := snap.byWorkspace[workspaceID]; ok {
		if s, ok := bucket[name]; ok {
			return s, true
		}
	}
	s, ok := snap.public[name]
	return s, ok
}

// List returns every skill visible from workspace: its private skills plus
// every public skill, private taking precedence on name collision.
func (r *Registry) List(workspaceID string) []*skill.Skill {
	snap := r.snap.Load()
	seen := make(map[string]bool)
	var out []*skill.Skill

	if bucket, ok := snap.byWorkspace[workspaceID]; ok {
		for name, s := range bucket {
			out = append(out, s)
			seen[name] = true
		}
	}
	for name, s := range snap.public {
		if seen[name] {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Diagnostics returns the load diagnostics from the most recent Reload.
func (r *Registry) Diagnostics() []LoadDiagnostic {
	return r.snap.Load().diags
}
