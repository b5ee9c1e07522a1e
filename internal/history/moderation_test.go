package history

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"otakudb/internal/identity"
	dErrors "otakudb/pkg/domain-errors"
	"otakudb/pkg/testutil"
)

// =============================================================================
// Moderator Test Suite
// =============================================================================

type ModerationSuite struct {
	suite.Suite
	engine    *testEngine
	requester *identity.User
	moderator *identity.User
	modCtx    context.Context
}

func TestModerationSuite(t *testing.T) {
	suite.Run(t, new(ModerationSuite))
}

func (s *ModerationSuite) SetupTest() {
	s.engine = newTestEngine()
	s.requester = testutil.NewUser("alice")
	s.moderator = testutil.NewUser("mod", identity.PermModApprove, identity.PermModDelete)
	s.modCtx = testutil.ActorContext(s.moderator)
}

// queueAdd submits a pending Add request as the plain requester.
func (s *ModerationSuite) queueAdd(title string) *ChangeRequest {
	result, err := s.engine.tracker.Save(testutil.ActorContext(s.requester),
		&testArticle{Title: title, Body: "body", Rating: 3}, "")
	s.Require().NoError(err)
	s.Require().False(result.Committed)
	return result.Request
}

// queueModify seeds an article and submits a pending title change for it.
func (s *ModerationSuite) queueModify(id int64, title, newTitle string) *ChangeRequest {
	article := s.engine.seedArticle(id, title, "body", 3)
	article.Title = newTitle
	result, err := s.engine.tracker.Save(testutil.ActorContext(s.requester), article, "")
	s.Require().NoError(err)
	s.Require().False(result.Committed)
	return result.Request
}

func (s *ModerationSuite) TestApprove() {
	s.Run("approving an add creates the entity and records its id", func() {
		pending := s.queueAdd("Trigun")

		cr, err := s.engine.mod.Approve(s.modCtx, pending.ID, "looks good")
		s.Require().NoError(err)
		s.Equal(StatusApproved, cr.Status)
		s.Require().NotNil(cr.ObjectID)
		s.Equal("Trigun", cr.ObjectLabel)
		s.Require().NotNil(cr.ModeratorID)
		s.Equal(s.moderator.ID, *cr.ModeratorID)

		row, ok := s.engine.handler.get(*cr.ObjectID)
		s.Require().True(ok)
		s.Equal("Trigun", row["title"])

		// The stored row carries the assigned id too.
		stored, err := s.engine.store.Get(context.Background(), cr.ID)
		s.Require().NoError(err)
		s.Require().NotNil(stored.ObjectID)
		s.Equal(*cr.ObjectID, *stored.ObjectID)
	})

	s.Run("approving a modify applies the delta", func() {
		pending := s.queueModify(50, "Akira", "AKIRA")

		_, err := s.engine.mod.Approve(s.modCtx, pending.ID, "")
		s.Require().NoError(err)

		row, _ := s.engine.handler.get(50)
		s.Equal("AKIRA", row["title"])
		s.Equal("body", row["body"])
	})

	s.Run("without permission the entry stays pending", func() {
		pending := s.queueModify(51, "Lain", "LAIN")

		_, err := s.engine.mod.Approve(testutil.ActorContext(testutil.NewUser("bob")), pending.ID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		stored, err := s.engine.store.Get(context.Background(), pending.ID)
		s.Require().NoError(err)
		s.Equal(StatusPending, stored.Status)
	})

	s.Run("a second action hits the single-transition check", func() {
		pending := s.queueModify(52, "Trigun", "Trigun Stampede")

		_, err := s.engine.mod.Approve(s.modCtx, pending.ID, "")
		s.Require().NoError(err)

		_, err = s.engine.mod.Approve(s.modCtx, pending.ID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
		_, err = s.engine.mod.Deny(s.modCtx, pending.ID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("unknown entry id", func() {
		_, err := s.engine.mod.Approve(s.modCtx, uuid.New(), "")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ModerationSuite) TestDeny() {
	pending := s.queueModify(60, "Akira", "AKIRA")

	cr, err := s.engine.mod.Deny(s.modCtx, pending.ID, "unsourced")
	s.Require().NoError(err)
	s.Equal(StatusDenied, cr.Status)

	// The entity is untouched.
	row, _ := s.engine.handler.get(60)
	s.Equal("Akira", row["title"])

	events := s.engine.audit.All()
	s.Require().NotEmpty(events)
	last := events[len(events)-1]
	s.Equal("denied", last.Action)
	s.Equal("unsourced", last.Comment)
}

func (s *ModerationSuite) TestWithdraw() {
	s.Run("the requester can withdraw their own entry", func() {
		pending := s.queueAdd("Trigun")

		cr, err := s.engine.mod.Withdraw(testutil.ActorContext(s.requester), pending.ID, "changed my mind")
		s.Require().NoError(err)
		s.Equal(StatusWithdrawn, cr.Status)
	})

	s.Run("anyone else is rejected, moderators included", func() {
		pending := s.queueAdd("Lain")

		_, err := s.engine.mod.Withdraw(s.modCtx, pending.ID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("anonymous callers are rejected", func() {
		pending := s.queueAdd("Akira")

		_, err := s.engine.mod.Withdraw(context.Background(), pending.ID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *ModerationSuite) TestRevert() {
	s.Run("reverting a modify restores the before values", func() {
		pending := s.queueModify(70, "Akira", "AKIRA")
		approved, err := s.engine.mod.Approve(s.modCtx, pending.ID, "")
		s.Require().NoError(err)

		row, _ := s.engine.handler.get(70)
		s.Equal("AKIRA", row["title"])

		inverse, err := s.engine.mod.Revert(s.modCtx, approved.ID, "vandalism")
		s.Require().NoError(err)
		s.Equal(KindModify, inverse.Kind)
		s.Equal(StatusApproved, inverse.Status)
		s.NotEqual(approved.ID, inverse.ID)
		s.Equal(s.moderator.ID, inverse.RequesterID)

		row, _ = s.engine.handler.get(70)
		s.Equal("Akira", row["title"])

		// The original entry keeps its approved status.
		original, err := s.engine.store.Get(context.Background(), approved.ID)
		s.Require().NoError(err)
		s.Equal(StatusApproved, original.Status)
	})

	s.Run("reverting an add deletes the entity", func() {
		pending := s.queueAdd("Trigun")
		approved, err := s.engine.mod.Approve(s.modCtx, pending.ID, "")
		s.Require().NoError(err)

		inverse, err := s.engine.mod.Revert(s.modCtx, approved.ID, "")
		s.Require().NoError(err)
		s.Equal(KindDelete, inverse.Kind)

		_, ok := s.engine.handler.get(*approved.ObjectID)
		s.False(ok)
	})

	s.Run("reverting a delete re-adds under a fresh id", func() {
		article := s.engine.seedArticle(71, "Lain", "wired", 5)
		result, err := s.engine.tracker.Delete(
			testutil.ActorContext(testutil.NewUser("staff", identity.PermSelfDelete)), article, "")
		s.Require().NoError(err)
		s.Require().True(result.Committed)

		inverse, err := s.engine.mod.Revert(s.modCtx, result.Request.ID, "")
		s.Require().NoError(err)
		s.Equal(KindAdd, inverse.Kind)
		s.Require().NotNil(inverse.ObjectID)

		row, ok := s.engine.handler.get(*inverse.ObjectID)
		s.Require().True(ok)
		s.Equal("Lain", row["title"])
	})

	s.Run("only approved entries can be reverted", func() {
		pending := s.queueModify(72, "Trigun", "TRIGUN")

		_, err := s.engine.mod.Revert(s.modCtx, pending.ID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("reverting needs the matching moderation permission", func() {
		pending := s.queueModify(73, "Eva", "EVA")
		approved, err := s.engine.mod.Approve(s.modCtx, pending.ID, "")
		s.Require().NoError(err)

		_, err = s.engine.mod.Revert(testutil.ActorContext(testutil.NewUser("bob")), approved.ID, "")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}
