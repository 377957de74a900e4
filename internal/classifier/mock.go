package classifier

import (
	"context"

	"github.com/raysh454/cleanweb/internal/model"
)

const (
	MockBlockName = "mock-block"
	MockAllowName = "mock-allow"
)

// Mock ignores content and returns a fixed verdict with full confidence.
type Mock struct {
	block bool
}

func NewMock(alwaysBlock bool) *Mock {
	return &Mock{block: alwaysBlock}
}

func (m *Mock) Name() string {
	if m.block {
		return MockBlockName
	}
	return MockAllowName
}

func (m *Mock) Classify(_ context.Context, in Input) (*model.Result, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	r := &model.Result{
		IsProblematic: m.block,
		Confidence:    1.0,
		Classifier:    m.Name(),
	}
	if m.block {
		r.Severity = model.SeverityMax
		r.Reasons = []string{"Mock classifier: always block"}
	} else {
		r.Reasons = []string{"Mock classifier: always allow"}
	}
	return r, nil
}
