package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"greendrake/chat/internal/models"
	"greendrake/chat/internal/utils"
)

// runStoreContract exercises behaviour every Store backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("FindOrCreateThreadIsIdempotent", func(t *testing.T) {
		s := newStore(t)
		listing, buyer, seller := utils.NewSixID(), utils.NewSixID(), utils.NewSixID()

		first, created, err := s.FindOrCreateThread(ctx, listing, buyer, seller)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, seller, first.SellerID)

		again, created, err := s.FindOrCreateThread(ctx, listing, buyer, seller)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, again.ID)
	})

	t.Run("ConcurrentFirstOpenCreatesOneThread", func(t *testing.T) {
		s := newStore(t)
		listing, buyer, seller := utils.NewSixID(), utils.NewSixID(), utils.NewSixID()

		const n = 8
		ids := make([]utils.SixID, n)
		errs := make([]error, n)
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				th, _, err := s.FindOrCreateThread(ctx, listing, buyer, seller)
				errs[i] = err
				if th != nil {
					ids[i] = th.ID
				}
			}(i)
		}
		wg.Wait()

		for i := 0; i < n; i++ {
			require.NoError(t, errs[i])
			assert.Equal(t, ids[0], ids[i])
		}
		_, total, err := s.FindThreadsForUser(ctx, buyer, models.RoleBoth, 0, 10)
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
	})

	t.Run("FindThreadByIDMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.FindThreadByID(ctx, utils.NewSixID())
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("RecordMessageCountersAndSnippet", func(t *testing.T) {
		s := newStore(t)
		th, _, err := s.FindOrCreateThread(ctx, utils.NewSixID(), utils.NewSixID(), utils.NewSixID())
		require.NoError(t, err)

		later := th.CreatedAt.Add(2 * time.Second)
		require.NoError(t, s.RecordMessage(ctx, th.ID, models.RoleSeller, later, "$5 off?"))
		require.NoError(t, s.RecordMessage(ctx, th.ID, models.RoleSeller, later.Add(-time.Second), "older"))

		got, err := s.FindThreadByID(ctx, th.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.SellerUnread)
		assert.Equal(t, 0, got.BuyerUnread)
		assert.True(t, got.LastMessageAt.Equal(later))
		assert.Equal(t, "$5 off?", got.LastMessageSnippet)

		require.NoError(t, s.ResetUnread(ctx, th.ID, models.RoleSeller))
		got, err = s.FindThreadByID(ctx, th.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.SellerUnread)

		assert.ErrorIs(t, s.RecordMessage(ctx, utils.NewSixID(), models.RoleBuyer, later, "x"), ErrNotFound)
	})

	t.Run("ConcurrentRecordMessageNeverLosesIncrements", func(t *testing.T) {
		s := newStore(t)
		th, _, err := s.FindOrCreateThread(ctx, utils.NewSixID(), utils.NewSixID(), utils.NewSixID())
		require.NoError(t, err)

		const n = 20
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, s.RecordMessage(ctx, th.ID, models.RoleBuyer, models.Now(), "hi"))
			}()
		}
		wg.Wait()

		got, err := s.FindThreadByID(ctx, th.ID)
		require.NoError(t, err)
		assert.Equal(t, n, got.BuyerUnread)
	})

	t.Run("FindThreadsForUserByRole", func(t *testing.T) {
		s := newStore(t)
		me := utils.NewSixID()
		asBuyer, _, err := s.FindOrCreateThread(ctx, utils.NewSixID(), me, utils.NewSixID())
		require.NoError(t, err)
		asSeller, _, err := s.FindOrCreateThread(ctx, utils.NewSixID(), utils.NewSixID(), me)
		require.NoError(t, err)
		require.NoError(t, s.RecordMessage(ctx, asBuyer.ID, models.RoleSeller, asBuyer.CreatedAt.Add(time.Minute), "newest"))

		both, total, err := s.FindThreadsForUser(ctx, me, models.RoleBoth, 0, 10)
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		require.Len(t, both, 2)
		assert.Equal(t, asBuyer.ID, both[0].ID, "most recent activity first")

		buying, total, err := s.FindThreadsForUser(ctx, me, models.RoleBuyer, 0, 10)
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		assert.Equal(t, asBuyer.ID, buying[0].ID)

		selling, _, err := s.FindThreadsForUser(ctx, me, models.RoleSeller, 0, 10)
		require.NoError(t, err)
		assert.Equal(t, asSeller.ID, selling[0].ID)

		page2, total, err := s.FindThreadsForUser(ctx, me, models.RoleBoth, 1, 1)
		require.NoError(t, err)
		assert.EqualValues(t, 2, total)
		require.Len(t, page2, 1)
		assert.Equal(t, asSeller.ID, page2[0].ID)
	})

	t.Run("SumUnreadAcrossRoles", func(t *testing.T) {
		s := newStore(t)
		me := utils.NewSixID()
		a, _, err := s.FindOrCreateThread(ctx, utils.NewSixID(), me, utils.NewSixID())
		require.NoError(t, err)
		b, _, err := s.FindOrCreateThread(ctx, utils.NewSixID(), utils.NewSixID(), me)
		require.NoError(t, err)

		require.NoError(t, s.RecordMessage(ctx, a.ID, models.RoleBuyer, models.Now(), "1"))
		require.NoError(t, s.RecordMessage(ctx, a.ID, models.RoleSeller, models.Now(), "not mine"))
		require.NoError(t, s.RecordMessage(ctx, b.ID, models.RoleSeller, models.Now(), "2"))
		require.NoError(t, s.RecordMessage(ctx, b.ID, models.RoleSeller, models.Now(), "3"))

		total, err := s.SumUnread(ctx, me)
		require.NoError(t, err)
		assert.EqualValues(t, 3, total)

		none, err := s.SumUnread(ctx, utils.NewSixID())
		require.NoError(t, err)
		assert.Zero(t, none)
	})

	t.Run("MessagesPageNewestFirstWithTies", func(t *testing.T) {
		s := newStore(t)
		threadID, sender, viewer := utils.NewSixID(), utils.NewSixID(), utils.NewSixID()
		base := models.Now()

		// Five messages, two pairs sharing a timestamp.
		stamps := []time.Duration{0, time.Millisecond, time.Millisecond, 2 * time.Millisecond, 2 * time.Millisecond}
		for _, d := range stamps {
			require.NoError(t, s.InsertMessage(ctx, &models.Message{
				ThreadID: threadID, SenderID: sender, Text: "m", Attachments: []string{},
				Status: models.StatusSent, CreatedAt: base.Add(d),
			}))
		}

		seen := map[utils.SixID]bool{}
		var prev *models.Message
		var cursor *Cursor
		for pages := 0; pages < 10; pages++ {
			page, err := s.FindMessagesBefore(ctx, threadID, viewer, cursor, 2)
			require.NoError(t, err)
			for i := range page {
				msg := page[i]
				assert.False(t, seen[msg.ID], "duplicate %s", msg.ID)
				seen[msg.ID] = true
				if prev != nil {
					assert.False(t, msg.CreatedAt.After(prev.CreatedAt))
				}
				prev = &msg
			}
			if len(page) < 2 {
				break
			}
			next := CursorAfter(&page[len(page)-1])
			cursor = &next
		}
		assert.Len(t, seen, len(stamps))
	})

	t.Run("MarkMessagesIsMonotonic", func(t *testing.T) {
		s := newStore(t)
		threadID, buyer, seller := utils.NewSixID(), utils.NewSixID(), utils.NewSixID()
		fromBuyer := &models.Message{ThreadID: threadID, SenderID: buyer, Text: "a", Status: models.StatusSent, CreatedAt: models.Now()}
		fromSeller := &models.Message{ThreadID: threadID, SenderID: seller, Text: "b", Status: models.StatusSent, CreatedAt: models.Now()}
		require.NoError(t, s.InsertMessage(ctx, fromBuyer))
		require.NoError(t, s.InsertMessage(ctx, fromSeller))

		n, err := s.MarkMessages(ctx, threadID, buyer, models.StatusRead)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		n, err = s.MarkMessages(ctx, threadID, buyer, models.StatusDelivered)
		require.NoError(t, err)
		assert.Zero(t, n, "delivered never overwrites read")

		got, err := s.FindMessageByID(ctx, fromBuyer.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusRead, got.Status)

		other, err := s.FindMessageByID(ctx, fromSeller.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusSent, other.Status)

		n, err = s.MarkMessages(ctx, threadID, buyer, models.StatusRead)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("DeletedForHidesOnlyFromThatUser", func(t *testing.T) {
		s := newStore(t)
		threadID, a, b := utils.NewSixID(), utils.NewSixID(), utils.NewSixID()
		msg := &models.Message{ThreadID: threadID, SenderID: a, Text: "oops", Status: models.StatusSent, CreatedAt: models.Now()}
		require.NoError(t, s.InsertMessage(ctx, msg))

		require.NoError(t, s.AddDeletedFor(ctx, msg.ID, a))
		require.NoError(t, s.AddDeletedFor(ctx, msg.ID, a))

		forA, err := s.FindMessagesBefore(ctx, threadID, a, nil, 10)
		require.NoError(t, err)
		assert.Empty(t, forA)

		forB, err := s.FindMessagesBefore(ctx, threadID, b, nil, 10)
		require.NoError(t, err)
		assert.Len(t, forB, 1)

		got, err := s.FindMessageByID(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, []utils.SixID{a}, got.DeletedFor)

		assert.ErrorIs(t, s.AddDeletedFor(ctx, utils.NewSixID(), a), ErrNotFound)
	})
}
