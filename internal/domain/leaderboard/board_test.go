package leaderboard

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/weekly-leaderboard/internal/domain/shared"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

// Wednesday of the week 2026-10-19 .. 2026-10-25.
var midweek = time.Date(2026, 10, 21, 12, 0, 0, 0, time.UTC)

func newTestBoard(t *testing.T, opts ...Option) (*Board, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: midweek}
	b := NewBoard(append([]Option{WithClock(clock.Now)}, opts...)...)
	return b, clock
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func registerUsers(t *testing.T, b *Board, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, b.AddUser(id, fmt.Sprintf("user%d", id)))
	}
}

// assertOrdered checks the ranking invariants: descending score, dense ranks.
func assertOrdered(t *testing.T, lines []Line) {
	t.Helper()
	for i, l := range lines {
		assert.Equal(t, int64(i+1), l.Rank, "rank of %d", l.UserID)
		if i > 0 {
			assert.True(t, lines[i-1].Score.GreaterThanOrEqual(l.Score),
				"%s before %s", lines[i-1].Score, l.Score)
		}
	}
}

func order(lines []Line) []int64 {
	ids := make([]int64, len(lines))
	for i, l := range lines {
		ids[i] = l.UserID
	}
	return ids
}

func TestBoard_AddUser(t *testing.T) {
	b, _ := newTestBoard(t)

	registerUsers(t, b, 1, 2, 3)
	assert.Equal(t, 3, b.Len())
	assert.True(t, b.HasUser(2))
	assert.False(t, b.HasUser(4))

	lines := b.Lines()
	assert.Equal(t, []int64{1, 2, 3}, order(lines))
	assertOrdered(t, lines)
	for _, l := range lines {
		assert.True(t, l.Score.IsZero())
	}
}

func TestBoard_AddUser_Duplicate(t *testing.T) {
	b, _ := newTestBoard(t)
	registerUsers(t, b, 1, 2)
	require.NoError(t, b.AddScore(2, midweek, dec("10")))

	before := b.Lines()
	err := b.AddUser(2, "other")

	assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	assert.Equal(t, before, b.Lines())
}

func TestBoard_AddUser_JoinsAtWorstRank(t *testing.T) {
	b, _ := newTestBoard(t)
	registerUsers(t, b, 1, 2)
	require.NoError(t, b.AddScore(1, midweek, dec("5")))

	registerUsers(t, b, 3)

	line, err := b.Position(3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), line.Rank)
}

func TestBoard_RenameUser(t *testing.T) {
	b, _ := newTestBoard(t)
	registerUsers(t, b, 1, 2)
	require.NoError(t, b.AddScore(2, midweek, dec("7.5")))

	require.NoError(t, b.RenameUser(2, "bob"))

	line, err := b.Position(2)
	require.NoError(t, err)
	assert.Equal(t, "bob", line.Name)
	assert.Equal(t, int64(1), line.Rank)
	assert.True(t, dec("7.5").Equal(line.Score))

	assert.True(t, shared.IsNotFound(b.RenameUser(9, "ghost")))
}

func TestBoard_AssertUser(t *testing.T) {
	b, _ := newTestBoard(t)
	registerUsers(t, b, 1)

	assert.NoError(t, b.AssertUser(1))
	assert.True(t, shared.IsNotFound(b.AssertUser(2)))
}

func TestBoard_AddScore_Scenario(t *testing.T) {
	b, _ := newTestBoard(t)
	registerUsers(t, b, 1, 2, 3)

	require.NoError(t, b.AddScore(2, midweek, dec("50")))
	require.NoError(t, b.AddScore(3, midweek, dec("100")))
	require.NoError(t, b.AddScore(1, midweek, dec("75")))

	lines := b.Lines()
	assert.Equal(t, []int64{3, 1, 2}, order(lines))
	assertOrdered(t, lines)

	require.NoError(t, b.AddScore(2, midweek, dec("60")))

	lines = b.Lines()
	assert.Equal(t, []int64{2, 3, 1}, order(lines))
	assertOrdered(t, lines)
	assert.True(t, dec("110").Equal(lines[0].Score))
}

func TestBoard_AddScore_TieKeepsEarlierFirst(t *testing.T) {
	b, _ := newTestBoard(t)
	registerUsers(t, b, 1, 2, 3)

	require.NoError(t, b.AddScore(2, midweek, dec("10")))
	require.NoError(t, b.AddScore(3, midweek, dec("10")))
	// 1 reaches 10 last and must stay behind both.
	require.NoError(t, b.AddScore(1, midweek, dec("10")))

	assert.Equal(t, []int64{2, 3, 1}, order(b.Lines()))
	assertOrdered(t, b.Lines())
}

func TestBoard_AddScore_NoMoveWhenNotOvertaking(t *testing.T) {
	b, _ := newTestBoard(t)
	registerUsers(t, b, 1, 2)
	require.NoError(t, b.AddScore(1, midweek, dec("100")))

	require.NoError(t, b.AddScore(2, midweek, dec("30")))
	require.NoError(t, b.AddScore(2, midweek, dec("30")))

	lines := b.Lines()
	assert.Equal(t, []int64{1, 2}, order(lines))
	assert.True(t, dec("60").Equal(lines[1].Score))
	assertOrdered(t, lines)
}

func TestBoard_AddScore_HalvesEqualWhole(t *testing.T) {
	whole, _ := newTestBoard(t)
	halves, _ := newTestBoard(t)
	for _, b := range []*Board{whole, halves} {
		registerUsers(t, b, 1, 2, 3)
		require.NoError(t, b.AddScore(1, midweek, dec("0.3")))
		require.NoError(t, b.AddScore(3, midweek, dec("0.2")))
	}

	amount := dec("0.1")
	half := amount.Div(decimal.NewFromInt(2))

	require.NoError(t, whole.AddScore(2, midweek, amount.Add(dec("0.2"))))
	require.NoError(t, halves.AddScore(2, midweek, half.Add(dec("0.1"))))
	require.NoError(t, halves.AddScore(2, midweek, half.Add(dec("0.1"))))

	w, err := whole.Position(2)
	require.NoError(t, err)
	h, err := halves.Position(2)
	require.NoError(t, err)

	assert.True(t, w.Score.Equal(h.Score), "%s != %s", w.Score, h.Score)
	assert.Equal(t, w.Rank, h.Rank)
	assert.Equal(t, order(whole.Lines()), order(halves.Lines()))
}

func TestBoard_AddScore_RandomizedInvariants(t *testing.T) {
	b, _ := newTestBoard(t)
	const users = 50
	for id := int64(1); id <= users; id++ {
		require.NoError(t, b.AddUser(id, fmt.Sprintf("user%d", id)))
	}

	rng := rand.New(rand.NewSource(42))
	// Tracks when each user reached its current score, for tie-break checks.
	reachedAt := make(map[int64]int)
	for step := 1; step <= 2000; step++ {
		id := int64(rng.Intn(users) + 1)
		amount := decimal.NewFromInt(int64(rng.Intn(5) + 1))
		require.NoError(t, b.AddScore(id, midweek, amount))
		reachedAt[id] = step
	}

	lines := b.Lines()
	require.Len(t, lines, users)
	assertOrdered(t, lines)

	for i := 1; i < len(lines); i++ {
		prev, cur := lines[i-1], lines[i]
		if prev.Score.Equal(cur.Score) && !cur.Score.IsZero() {
			assert.Less(t, reachedAt[prev.UserID], reachedAt[cur.UserID],
				"user %d reached %s after user %d", prev.UserID, prev.Score, cur.UserID)
		}
	}
}

func TestBoard_AddScore_NotFound(t *testing.T) {
	b, _ := newTestBoard(t)
	registerUsers(t, b, 1)

	err := b.AddScore(2, midweek, dec("1"))
	assert.True(t, shared.IsNotFound(err))
}

func TestBoard_AddScore_OutOfWindow(t *testing.T) {
	b, _ := newTestBoard(t)
	registerUsers(t, b, 1, 2)
	require.NoError(t, b.AddScore(2, midweek, dec("1")))

	begin, end := b.Window()
	before := b.Lines()

	tests := []struct {
		name string
		when time.Time
	}{
		{"before week begin", begin.Add(-time.Nanosecond)},
		{"after week end", end.Add(time.Nanosecond)},
		{"previous week", begin.AddDate(0, 0, -3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := b.AddScore(1, tt.when, dec("100"))
			assert.ErrorIs(t, err, shared.ErrOutOfWindow)
			assert.Equal(t, before, b.Lines())
		})
	}

	assert.NoError(t, b.AddScore(1, begin, dec("1")))
	assert.NoError(t, b.AddScore(1, end, dec("1")))
}

func TestBoard_WeekReset_KeepsRanks(t *testing.T) {
	var resets int
	b, clock := newTestBoard(t, WithResetHook(func(begin, end time.Time) { resets++ }))
	registerUsers(t, b, 1, 2, 3)
	require.NoError(t, b.AddScore(3, midweek, dec("30")))
	require.NoError(t, b.AddScore(2, midweek, dec("20")))

	before := order(b.Lines())
	_, oldEnd := b.Window()

	clock.now = oldEnd.Add(time.Hour)

	lines := b.Lines()
	assert.Equal(t, before, order(lines))
	assertOrdered(t, lines)
	for _, l := range lines {
		assert.True(t, l.Score.IsZero(), "user %d score %s", l.UserID, l.Score)
	}
	assert.Equal(t, 1, resets)

	begin, end := b.Window()
	assert.Equal(t, time.Date(2026, 10, 26, 0, 0, 0, 0, time.UTC), begin)
	assert.True(t, end.After(clock.now))

	// A deal from the previous week is now rejected.
	assert.ErrorIs(t, b.AddScore(1, midweek, dec("1")), shared.ErrOutOfWindow)

	// No second reset inside the new week.
	_ = b.Lines()
	assert.Equal(t, 1, resets)
}

func TestBoard_WeekReset_BeforeAddScore(t *testing.T) {
	b, clock := newTestBoard(t)
	registerUsers(t, b, 1, 2)
	require.NoError(t, b.AddScore(1, midweek, dec("50")))

	clock.now = midweek.AddDate(0, 0, 7)
	require.NoError(t, b.AddScore(2, clock.now, dec("1")))

	lines := b.Lines()
	assert.Equal(t, []int64{2, 1}, order(lines))
	assert.True(t, lines[1].Score.IsZero())
}

func TestBoard_Snapshot(t *testing.T) {
	b, _ := newTestBoard(t)
	registerUsers(t, b, 1, 2, 3)
	require.NoError(t, b.AddScore(2, midweek, dec("50")))
	require.NoError(t, b.AddScore(3, midweek, dec("100")))
	require.NoError(t, b.AddScore(1, midweek, dec("75")))

	s, err := b.Snapshot(1)
	require.NoError(t, err)

	assert.Equal(t, int64(2), s.Self.Rank)
	assert.Equal(t, []int64{3, 1, 2}, order(s.Leaders))
	assert.Equal(t, []int64{3}, order(s.Up))
	assert.Equal(t, []int64{2}, order(s.Down))

	want := "User:\n" +
		"2. user1 (id:1)  75.00\n" +
		"Leaders:\n" +
		"1. user3 (id:3)  100.00\n" +
		"2. user1 (id:1)  75.00\n" +
		"3. user2 (id:2)  50.00\n" +
		"Neighbours up:\n" +
		"1. user3 (id:3)  100.00\n" +
		"Neighbours down:\n" +
		"3. user2 (id:2)  50.00"
	assert.Equal(t, want, s.String())

	text, err := b.Render(1)
	require.NoError(t, err)
	assert.Equal(t, want, text)
}

func TestBoard_Snapshot_EmptySections(t *testing.T) {
	b, _ := newTestBoard(t)
	registerUsers(t, b, 7)

	text, err := b.Render(7)
	require.NoError(t, err)
	assert.Equal(t, "User:\n"+
		"1. user7 (id:7)  0.00\n"+
		"Leaders:\n"+
		"1. user7 (id:7)  0.00\n"+
		"Neighbours up: empty\n"+
		"Neighbours down: empty", text)
}

func TestBoard_Snapshot_Limits(t *testing.T) {
	b, _ := newTestBoard(t)
	for id := int64(1); id <= 30; id++ {
		require.NoError(t, b.AddUser(id, fmt.Sprintf("user%d", id)))
	}

	s, err := b.Snapshot(15)
	require.NoError(t, err)

	require.Len(t, s.Leaders, DefaultLeadersLimit)
	assert.Equal(t, int64(1), s.Leaders[0].Rank)

	require.Len(t, s.Up, DefaultNeighboursLimit)
	assert.Equal(t, int64(5), s.Up[0].Rank)
	assert.Equal(t, int64(14), s.Up[len(s.Up)-1].Rank)

	require.Len(t, s.Down, DefaultNeighboursLimit)
	assert.Equal(t, int64(16), s.Down[0].Rank)
	assert.Equal(t, int64(25), s.Down[len(s.Down)-1].Rank)

	small, _ := newTestBoard(t, WithLimits(3, 2))
	for id := int64(1); id <= 10; id++ {
		require.NoError(t, small.AddUser(id, fmt.Sprintf("user%d", id)))
	}
	s, err = small.Snapshot(5)
	require.NoError(t, err)
	assert.Len(t, s.Leaders, 3)
	assert.Equal(t, []int64{3, 4}, order(s.Up))
	assert.Equal(t, []int64{6, 7}, order(s.Down))
}

func TestBoard_Snapshot_Errors(t *testing.T) {
	b, _ := newTestBoard(t)

	_, err := b.Snapshot(1)
	assert.True(t, shared.IsNotFound(err))

	registerUsers(t, b, 1)
	_, err = b.Snapshot(2)
	assert.True(t, shared.IsNotFound(err))
}

func TestBoard_RollWeek(t *testing.T) {
	b, clock := newTestBoard(t)
	registerUsers(t, b, 1)
	require.NoError(t, b.AddScore(1, midweek, dec("3")))

	assert.False(t, b.RollWeek())

	clock.now = midweek.AddDate(0, 0, 7)
	assert.True(t, b.RollWeek())
	assert.False(t, b.RollWeek())

	line, err := b.Position(1)
	require.NoError(t, err)
	assert.True(t, line.Score.IsZero())
}
