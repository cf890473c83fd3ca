// Package tag assigns and validates entity identities.
//
// Every entity carries a Tag that must be unique across the union of the
// template and proposal collections for the lifetime of a run. Entities
// loaded from a source lacking a native identity are tagged synthetically
// from their collection name and position, once, at ingestion time.
package tag

import (
	"fmt"

	"github.com/hupe1980/banksim/model"
)

// Assign fills the Tag of every entity that does not already have one,
// using the deterministic "<collection>:<index>" scheme. It is the one
// permitted mutation of entities and happens before any matching begins.
func Assign(collection string, entities []*model.Entity) {
	for i, e := range entities {
		if e.Tag == "" {
			e.Tag = model.Tag(fmt.Sprintf("%s:%d", collection, i))
		}
	}
}

// VerifyUnique checks that no Tag appears twice across the given
// collections. A collision is a correctness violation and aborts the run.
//
// Note that the same underlying entity may legitimately appear in both
// collections under one Tag; such aliased entities resolve to the
// self-match path during evaluation. VerifyUnique therefore only rejects
// duplicates within a single collection and distinct entities sharing a
// Tag across collections.
func VerifyUnique(templates, proposals []*model.Entity) error {
	templateTags := make(map[model.Tag]*model.Entity, len(templates))
	for _, e := range templates {
		if prev, ok := templateTags[e.Tag]; ok && prev != e {
			return &CollisionError{Tag: e.Tag}
		}
		templateTags[e.Tag] = e
	}

	proposalTags := make(map[model.Tag]*model.Entity, len(proposals))
	for _, e := range proposals {
		if prev, ok := proposalTags[e.Tag]; ok && prev != e {
			return &CollisionError{Tag: e.Tag}
		}
		if prev, ok := templateTags[e.Tag]; ok && prev.Params != e.Params {
			return &CollisionError{Tag: e.Tag}
		}
		proposalTags[e.Tag] = e
	}
	return nil
}

// CollisionError indicates two distinct entities share a Tag.
type CollisionError struct {
	Tag model.Tag
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("tag collision: %q resolves to more than one entity", e.Tag)
}
