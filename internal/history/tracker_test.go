package history

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"otakudb/internal/identity"
	dErrors "otakudb/pkg/domain-errors"
	"otakudb/pkg/testutil"
)

// =============================================================================
// Tracker Test Suite
// =============================================================================

type TrackerSuite struct {
	suite.Suite
	engine *testEngine
}

func TestTrackerSuite(t *testing.T) {
	suite.Run(t, new(TrackerSuite))
}

func (s *TrackerSuite) SetupTest() {
	s.engine = newTestEngine()
}

func (s *TrackerSuite) TestAddQueuedForModeration() {
	requester := testutil.NewUser("alice")
	ctx := testutil.ActorContext(requester)

	result, err := s.engine.tracker.Save(ctx, &testArticle{Title: "Trigun", Body: "desert", Rating: 3}, "new show")
	s.Require().NoError(err)

	s.False(result.Committed)
	s.True(result.Recorded)
	s.Zero(result.ObjectID)
	s.Equal(StatusPending, result.Request.Status)
	s.Equal(KindAdd, result.Request.Kind)
	s.Equal("new show", result.Request.Comment)
	s.Require().Len(result.Notices, 1)
	s.Equal(NoticeWarning, result.Notices[0].Severity)

	// Nothing applied yet; the entity waits for a moderator.
	s.Empty(s.engine.handler.rows)

	stored, err := s.engine.store.Get(ctx, result.Request.ID)
	s.Require().NoError(err)
	s.Equal(StatusPending, stored.Status)
	s.Nil(stored.ObjectID)

	s.Equal([]string{"submitted"}, s.engine.auditActions())
}

func (s *TrackerSuite) TestAddSelfApprovedAssignsID() {
	requester := testutil.NewUser("alice", identity.PermSelfApprove)
	ctx := testutil.ActorContext(requester)

	result, err := s.engine.tracker.Save(ctx, &testArticle{Title: "Trigun", Body: "desert", Rating: 3}, "")
	s.Require().NoError(err)

	s.True(result.Committed)
	s.True(result.Recorded)
	s.NotZero(result.ObjectID)
	s.Require().NotNil(result.Request.ObjectID)
	s.Equal(result.ObjectID, *result.Request.ObjectID)
	s.Equal("Trigun", result.Request.ObjectLabel)
	s.Equal(StatusApproved, result.Request.Status)

	// Self-approval stamps the requester as their own moderator.
	s.Require().NotNil(result.Request.ModeratorID)
	s.Equal(requester.ID, *result.Request.ModeratorID)

	row, ok := s.engine.handler.get(result.ObjectID)
	s.Require().True(ok)
	s.Equal("Trigun", row["title"])

	stored, err := s.engine.store.Get(ctx, result.Request.ID)
	s.Require().NoError(err)
	s.Require().NotNil(stored.ObjectID)
	s.Equal(result.ObjectID, *stored.ObjectID)

	s.Equal([]string{"approved"}, s.engine.auditActions())
}

func (s *TrackerSuite) TestModifyHeuristics() {
	s.Run("established account commits an unmoderated edit", func() {
		article := s.engine.seedArticle(1, "Cowboy Bebop", "space jazz", 5)
		article.Rating = 4

		result, err := s.engine.tracker.Save(testutil.ActorContext(testutil.NewUser("alice")), article, "")
		s.Require().NoError(err)
		s.True(result.Committed)

		row, _ := s.engine.handler.get(1)
		s.EqualValues(4, row["rating"])
	})

	s.Run("moderated field change is queued", func() {
		article := s.engine.seedArticle(2, "Akira", "neo tokyo", 5)
		article.Title = "AKIRA"

		result, err := s.engine.tracker.Save(testutil.ActorContext(testutil.NewUser("alice")), article, "")
		s.Require().NoError(err)
		s.False(result.Committed)
		s.Equal(StatusPending, result.Request.Status)

		// The persisted title is untouched.
		row, _ := s.engine.handler.get(2)
		s.Equal("Akira", row["title"])
	})

	s.Run("self-approve permission overrides the moderated field", func() {
		article := s.engine.seedArticle(3, "Trigun", "desert", 3)
		article.Title = "Trigun Stampede"

		result, err := s.engine.tracker.Save(
			testutil.ActorContext(testutil.NewUser("staff", identity.PermSelfApprove)), article, "")
		s.Require().NoError(err)
		s.True(result.Committed)

		row, _ := s.engine.handler.get(3)
		s.Equal("Trigun Stampede", row["title"])
	})

	s.Run("fresh account is queued even for unmoderated edits", func() {
		article := s.engine.seedArticle(4, "Lain", "wired", 5)
		article.Rating = 4

		result, err := s.engine.tracker.Save(testutil.ActorContext(testutil.NewFreshUser("newbie")), article, "")
		s.Require().NoError(err)
		s.False(result.Committed)
	})
}

func (s *TrackerSuite) TestSecondEditBlockedByPending() {
	article := s.engine.seedArticle(1, "Cowboy Bebop", "space jazz", 5)
	article.Title = "Bebop"

	first, err := s.engine.tracker.Save(testutil.ActorContext(testutil.NewUser("alice")), article, "")
	s.Require().NoError(err)
	s.False(first.Committed)

	article.Title = "Cowboy Bebop!"
	_, err = s.engine.tracker.Save(testutil.ActorContext(testutil.NewUser("bob")), article, "")
	s.Require().Error(err)
	s.Equal("has-pending", dErrors.Reason(err))
}

func (s *TrackerSuite) TestNoopIsSilent() {
	article := s.engine.seedArticle(1, "Cowboy Bebop", "space jazz", 5)

	result, err := s.engine.tracker.Save(testutil.ActorContext(testutil.NewUser("alice")), article, "")
	s.Require().NoError(err)

	s.False(result.Committed)
	s.False(result.Recorded)
	s.EqualValues(1, result.ObjectID)
	s.Empty(result.Notices)

	entries, err := s.engine.store.ListRecent(context.Background(), 10)
	s.Require().NoError(err)
	s.Empty(entries)
	s.Empty(s.engine.auditActions())
}

func (s *TrackerSuite) TestDelete() {
	s.Run("without self-delete the request is queued", func() {
		article := s.engine.seedArticle(1, "Cowboy Bebop", "space jazz", 5)

		result, err := s.engine.tracker.Delete(
			testutil.ActorContext(testutil.NewUser("alice", identity.PermSelfApprove)), article, "dupe")
		s.Require().NoError(err)
		s.False(result.Committed)
		s.Equal(KindDelete, result.Request.Kind)

		_, ok := s.engine.handler.get(1)
		s.True(ok)
	})

	s.Run("self-delete commits immediately", func() {
		article := s.engine.seedArticle(2, "Akira", "neo tokyo", 5)

		result, err := s.engine.tracker.Delete(
			testutil.ActorContext(testutil.NewUser("staff", identity.PermSelfDelete)), article, "")
		s.Require().NoError(err)
		s.True(result.Committed)

		_, ok := s.engine.handler.get(2)
		s.False(ok)

		stored, err := s.engine.store.Get(context.Background(), result.Request.ID)
		s.Require().NoError(err)
		s.Equal(StatusApproved, stored.Status)
		s.Equal(article.Snapshot(), stored.Before)
	})

	s.Run("deletes skip the throttle", func() {
		janitor := testutil.NewUser("janitor", identity.PermSelfDelete)
		for i := int64(10); i < 25; i++ {
			article := s.engine.seedArticle(i, "Filler", "b", 1)
			_, err := s.engine.tracker.Delete(testutil.ActorContext(janitor), article, "")
			s.Require().NoError(err)
		}
	})
}

func (s *TrackerSuite) TestSaveRelated() {
	article := s.engine.seedArticle(1, "Cowboy Bebop", "space jazz", 5)
	s.engine.tags.seed(1, tagSnap("sci-fi"), tagSnap("space"))

	s.Run("committed replacement refreshes child ids", func() {
		before, err := s.engine.tags.ChildrenSnapshot(context.Background(), 1)
		s.Require().NoError(err)

		// Keep sci-fi, drop space, add noir.
		proposed := []Snapshot{before[0], tagSnap("noir")}

		result, err := s.engine.tracker.SaveRelated(
			testutil.ActorContext(testutil.NewUser("staff", identity.PermSelfApprove)),
			article, "tag", proposed, "")
		s.Require().NoError(err)
		s.True(result.Committed)

		for _, child := range result.Request.AfterChildren {
			s.NotZero(childID(child, "id"))
		}

		// One added, one removed.
		s.Len(result.Notices, 2)

		s.Equal([]string{"approved"}, s.engine.auditActions())
	})

	s.Run("unchanged collection is a no-op", func() {
		current, err := s.engine.tags.ChildrenSnapshot(context.Background(), 1)
		s.Require().NoError(err)

		result, err := s.engine.tracker.SaveRelated(
			testutil.ActorContext(testutil.NewUser("staff", identity.PermSelfApprove)),
			article, "tag", current, "")
		s.Require().NoError(err)
		s.False(result.Committed)
		s.False(result.Recorded)
		s.Empty(result.Notices)
	})
}

func (s *TrackerSuite) TestSanityFailuresAbort() {
	banned := testutil.NewUser("troll")
	banned.Banned = true

	_, err := s.engine.tracker.Save(testutil.ActorContext(banned), &testArticle{Title: "x"}, "")
	s.Require().Error(err)
	s.Equal("user-banned", dErrors.Reason(err))
	s.Empty(s.engine.auditActions())
}

func (s *TrackerSuite) TestApplyFailureWritesNothing() {
	s.engine.handler.applyErr = errors.New("storage offline")

	_, err := s.engine.tracker.Save(
		testutil.ActorContext(testutil.NewUser("staff", identity.PermSelfApprove)),
		&testArticle{Title: "Trigun"}, "")
	s.Require().Error(err)

	entries, err := s.engine.store.ListRecent(context.Background(), 10)
	s.Require().NoError(err)
	s.Empty(entries)
	s.Empty(s.engine.auditActions())
}

func (s *TrackerSuite) TestValidate() {
	article := s.engine.seedArticle(1, "Cowboy Bebop", "space jazz", 5)

	s.Run("clean attempt passes", func() {
		s.NoError(s.engine.tracker.Validate(testutil.ActorContext(testutil.NewUser("alice")), article))
	})

	s.Run("pending target fails", func() {
		article.Title = "Bebop"
		_, err := s.engine.tracker.Save(testutil.ActorContext(testutil.NewUser("alice")), article, "")
		s.Require().NoError(err)

		err = s.engine.tracker.Validate(testutil.ActorContext(testutil.NewUser("bob")), article)
		s.Equal("has-pending", dErrors.Reason(err))
	})
}
