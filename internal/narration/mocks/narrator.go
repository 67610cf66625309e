package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"saga-server/internal/models"
	"saga-server/internal/narration"
)

// MockNarrator is a mock type for the Narrator type
type MockNarrator struct {
	mock.Mock
}

// ResolveTurn provides a mock function with given fields: ctx, session, actionText
func (_m *MockNarrator) ResolveTurn(ctx context.Context, session *models.Session, actionText string) (*models.TurnOutcome, error) {
	ret := _m.Called(ctx, session, actionText)

	var r0 *models.TurnOutcome
	if rf, ok := ret.Get(0).(func(context.Context, *models.Session, string) *models.TurnOutcome); ok {
		r0 = rf(ctx, session, actionText)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*models.TurnOutcome)
		}
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(context.Context, *models.Session, string) error); ok {
		r1 = rf(ctx, session, actionText)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

var _ narration.Narrator = (*MockNarrator)(nil)
