package onboarding_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"tqhub/internal/onboarding"
	"tqhub/internal/session"
	"tqhub/internal/storage/memory"
)

// fakeSession is a minimal SessionView for wizard tests.
type fakeSession struct {
	authenticated bool
	role          session.Role
}

func (f *fakeSession) IsAuthenticated() bool { return f.authenticated }
func (f *fakeSession) Role() session.Role    { return f.role }
func (f *fakeSession) Token() string         { return "tok-abc" }
func (f *fakeSession) TenantID() int         { return 7 }

// fakeChecker is a canned needs-onboarding answer.
type fakeChecker struct {
	needed bool
	err    error
	calls  int
}

func (f *fakeChecker) NeedsOnboarding(context.Context, string, int) (bool, error) {
	f.calls++
	return f.needed, f.err
}

type WizardSuite struct {
	suite.Suite
	region  *memory.Region
	store   *memory.Store
	session *fakeSession
	checker *fakeChecker
	wizard  *onboarding.Wizard
}

func (s *WizardSuite) SetupTest() {
	s.region = memory.NewRegion()
	s.store = s.region.Open()
	s.session = &fakeSession{authenticated: true, role: session.RoleAdmin}
	s.checker = &fakeChecker{needed: true}
	s.wizard = onboarding.New(s.store, s.session, s.checker)
}

func TestWizardSuite(t *testing.T) {
	suite.Run(t, new(WizardSuite))
}

func (s *WizardSuite) TestHydrate() {
	ctx := context.Background()

	s.Run("absent state yields zero progress", func() {
		s.Require().NoError(s.wizard.Hydrate(ctx))
		s.Equal(onboarding.Progress{}, s.wizard.Progress())
		s.False(s.wizard.IsOpen())
	})

	s.Run("persisted progress is restored", func() {
		s.SetupTest()
		s.Require().NoError(s.store.Set(ctx, onboarding.DefaultKey,
			[]byte(`{"was_skipped":false,"current_step":3}`)))

		s.Require().NoError(s.wizard.Hydrate(ctx))
		s.Equal(onboarding.Progress{CurrentStep: 3}, s.wizard.Progress())
	})

	s.Run("unreadable blob is discarded", func() {
		s.SetupTest()
		s.Require().NoError(s.store.Set(ctx, onboarding.DefaultKey, []byte("][garbage")))

		s.Require().NoError(s.wizard.Hydrate(ctx))
		s.Equal(onboarding.Progress{}, s.wizard.Progress())
	})
}

func (s *WizardSuite) TestCloseResetsStep() {
	ctx := context.Background()
	s.wizard.OpenWizard()
	s.Require().NoError(s.wizard.SetCurrentStep(ctx, 4))

	s.Require().NoError(s.wizard.CloseWizard(ctx))

	s.False(s.wizard.IsOpen())
	s.Equal(0, s.wizard.Progress().CurrentStep)

	// The reset is durable: a fresh wizard over the same store sees step 0.
	fresh := onboarding.New(s.store, s.session, s.checker)
	s.Require().NoError(fresh.Hydrate(ctx))
	s.Equal(0, fresh.Progress().CurrentStep)
}

func (s *WizardSuite) TestCloseForNavigationKeepsStep() {
	ctx := context.Background()
	s.wizard.OpenWizard()
	s.Require().NoError(s.wizard.SetCurrentStep(ctx, 2))

	s.wizard.CloseWizardForNavigation()

	s.False(s.wizard.IsOpen())
	s.True(s.wizard.ResumeHint())
	s.Equal(2, s.wizard.Progress().CurrentStep)

	// Reopening clears the hint.
	s.wizard.OpenWizard()
	s.False(s.wizard.ResumeHint())
}

func (s *WizardSuite) TestSkipIsDurable() {
	ctx := context.Background()
	s.Require().NoError(s.wizard.SkipWizard(ctx))
	s.False(s.wizard.IsOpen())

	fresh := onboarding.New(s.store, s.session, s.checker)
	s.Require().NoError(fresh.Hydrate(ctx))
	s.True(fresh.Progress().WasSkipped)
}

func (s *WizardSuite) TestMaybeAutoOpen() {
	ctx := context.Background()

	s.Run("admin with incomplete setup opens", func() {
		s.wizard.MaybeAutoOpen(ctx)
		s.True(s.wizard.IsOpen())
	})

	s.Run("non-admin never opens and never calls the backend", func() {
		s.SetupTest()
		s.session.role = session.RoleManager

		s.wizard.MaybeAutoOpen(ctx)

		s.False(s.wizard.IsOpen())
		s.Zero(s.checker.calls)
	})

	s.Run("anonymous never opens", func() {
		s.SetupTest()
		s.session.authenticated = false

		s.wizard.MaybeAutoOpen(ctx)

		s.False(s.wizard.IsOpen())
		s.Zero(s.checker.calls)
	})

	s.Run("skipped wizard stays closed", func() {
		s.SetupTest()
		s.Require().NoError(s.wizard.SkipWizard(ctx))

		s.wizard.MaybeAutoOpen(ctx)

		s.False(s.wizard.IsOpen())
		s.Zero(s.checker.calls)
	})

	s.Run("setup already complete stays closed", func() {
		s.SetupTest()
		s.checker.needed = false

		s.wizard.MaybeAutoOpen(ctx)

		s.False(s.wizard.IsOpen())
	})

	s.Run("check failure fails open", func() {
		s.SetupTest()
		s.checker.err = errors.New("backend down")

		s.wizard.MaybeAutoOpen(ctx)

		s.False(s.wizard.IsOpen())
	})
}
