// Package source holds domain.SourceEnumerator adapters. Concrete source
// backends (document stores, chunk collections, embedding spaces) are
// outside this substrate's scope (see SPEC_FULL.md Non-goals); NoopEnumerator
// is the default wired into cmd/ so the scanner and its ports stay
// exercised end-to-end without depending on a real upstream service.
package source

import "github.com/fairyhunter13/semantic-orchestrator/internal/domain"

// NoopEnumerator always reports no units and no next page. An operator
// wiring this substrate against a real document/chunk/embedding store
// replaces it with a SourceEnumerator that actually talks to that store.
type NoopEnumerator struct{}

// ListUnits implements domain.SourceEnumerator.
func (NoopEnumerator) ListUnits(_ domain.Context, _ string, _ string) ([]string, string, error) {
	return nil, "", nil
}
