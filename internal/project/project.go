// Package project tracks the user's project definitions and which
// sessions belong to them.
package project

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Zuo-Peng/ai-session-hub/internal/session"
)

// Unassigned is the pseudo-project bucket for sessions matching no
// project directory.
const Unassigned = ""

// Project is one user-declared project.
type Project struct {
	ID     string
	Name   string
	Dir    string         // canonical directory; sessions underneath auto-assign here
	Parent string         // parent project ID, "" for top-level
	Kinds  []session.Kind // allowed source kinds; empty = all
}

// Registry holds the project tree. It is owned by the engine goroutine
// and is not safe for concurrent mutation.
type Registry struct {
	projects map[string]Project
	assigned map[string]string // sessionID -> projectID, explicit user assignment
	version  uint64            // bumps on any structural change
}

func NewRegistry() *Registry {
	return &Registry{
		projects: make(map[string]Project),
		assigned: make(map[string]string),
		version:  1,
	}
}

// StructureVersion changes whenever the project tree shape changes, so
// derived caches keyed on it stop hitting.
func (r *Registry) StructureVersion() uint64 {
	return r.version
}

func (r *Registry) Add(p Project) error {
	if p.ID == "" {
		return fmt.Errorf("project id required")
	}
	if _, ok := r.projects[p.ID]; ok {
		return fmt.Errorf("project %q already exists", p.ID)
	}
	if p.Parent != "" {
		if _, ok := r.projects[p.Parent]; !ok {
			return fmt.Errorf("parent project %q not found", p.Parent)
		}
	}
	p.Dir = CanonicalDir(p.Dir)
	r.projects[p.ID] = p
	r.version++
	return nil
}

func (r *Registry) Remove(id string) {
	if _, ok := r.projects[id]; !ok {
		return
	}
	delete(r.projects, id)
	// orphan children to top level
	for cid, c := range r.projects {
		if c.Parent == id {
			c.Parent = ""
			r.projects[cid] = c
		}
	}
	for sid, pid := range r.assigned {
		if pid == id {
			delete(r.assigned, sid)
		}
	}
	r.version++
}

// Reparent moves a project under a new parent. This is the structural
// change that invalidates delta-maintained aggregates.
func (r *Registry) Reparent(id, newParent string) error {
	p, ok := r.projects[id]
	if !ok {
		return fmt.Errorf("project %q not found", id)
	}
	if newParent != "" {
		if _, ok := r.projects[newParent]; !ok {
			return fmt.Errorf("parent project %q not found", newParent)
		}
		for cur := newParent; cur != ""; cur = r.projects[cur].Parent {
			if cur == id {
				return fmt.Errorf("reparent %q under %q would create a cycle", id, newParent)
			}
		}
	}
	p.Parent = newParent
	r.projects[id] = p
	r.version++
	return nil
}

func (r *Registry) Get(id string) (Project, bool) {
	p, ok := r.projects[id]
	return p, ok
}

// All returns projects in stable ID order.
func (r *Registry) All() []Project {
	out := make([]Project, 0, len(r.projects))
	for _, p := range r.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Descendants returns id plus all transitive children.
func (r *Registry) Descendants(id string) []string {
	out := []string{id}
	for i := 0; i < len(out); i++ {
		for cid, c := range r.projects {
			if c.Parent == out[i] {
				out = append(out, cid)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Assign pins a session to a project explicitly, overriding directory
// matching. Empty projectID clears the pin.
func (r *Registry) Assign(sessionID, projectID string) {
	if projectID == "" {
		delete(r.assigned, sessionID)
	} else {
		r.assigned[sessionID] = projectID
	}
}

// ProjectFor resolves the project a record belongs to: an explicit
// assignment wins, otherwise the project with the longest directory
// prefix containing the record's working directory.
func (r *Registry) ProjectFor(rec session.Record) string {
	if pid, ok := r.assigned[rec.ID]; ok {
		if _, exists := r.projects[pid]; exists {
			return pid
		}
	}
	return r.MatchDir(rec.WorkingDir)
}

// MatchDir finds the deepest project whose directory contains dir.
func (r *Registry) MatchDir(dir string) string {
	dir = CanonicalDir(dir)
	best := Unassigned
	bestLen := -1
	for id, p := range r.projects {
		if p.Dir == "" {
			continue
		}
		if !UnderDir(dir, p.Dir) {
			continue
		}
		// prefer deeper match; tie-break on ID for determinism
		if len(p.Dir) > bestLen || (len(p.Dir) == bestLen && id < best) {
			best = id
			bestLen = len(p.Dir)
		}
	}
	return best
}

// KindAllowed applies a project's source-kind allow-list.
func (r *Registry) KindAllowed(projectID string, kind session.Kind) bool {
	p, ok := r.projects[projectID]
	if !ok || len(p.Kinds) == 0 {
		return true
	}
	for _, k := range p.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// CanonicalDir normalizes a directory for prefix comparison.
func CanonicalDir(dir string) string {
	if dir == "" {
		return ""
	}
	return filepath.Clean(dir)
}

// UnderDir reports whether dir equals prefix or lies beneath it, on
// path-segment boundaries.
func UnderDir(dir, prefix string) bool {
	if dir == "" || prefix == "" {
		return false
	}
	if dir == prefix {
		return true
	}
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(dir, prefix)
}
