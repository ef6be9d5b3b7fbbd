package router

import (
	"context"

	"github.com/hrygo/mailsense/plugin/ai/session"
)

var _ ClassifierService = (*MockClassifier)(nil)

// MockClassifier returns a scripted classification per query, for tests
// that need a deterministic router.
type MockClassifier struct {
	// ByQuery maps exact query text to its classification.
	ByQuery map[string]*Classification
	// Default is returned for unscripted queries. Nil means clarify.
	Default *Classification
}

func NewMockClassifier() *MockClassifier {
	return &MockClassifier{ByQuery: make(map[string]*Classification)}
}

func (m *MockClassifier) Script(query string, cls *Classification) *MockClassifier {
	m.ByQuery[query] = cls
	return m
}

func (m *MockClassifier) Classify(_ context.Context, query string, _ *session.Context) *Classification {
	if cls, ok := m.ByQuery[query]; ok {
		return cls
	}
	if m.Default != nil {
		return m.Default
	}
	return &Classification{Intent: IntentClarify}
}
