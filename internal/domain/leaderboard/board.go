package leaderboard

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alem-hub/weekly-leaderboard/internal/domain/shared"
	"github.com/alem-hub/weekly-leaderboard/pkg/timeutil"
)

const domainName = "leaderboard"

// ══════════════════════════════════════════════════════════════════════════════
// OPTIONS
// ══════════════════════════════════════════════════════════════════════════════

// Clock возвращает текущее время. В тестах подменяется.
type Clock func() time.Time

// Option настраивает Board.
type Option func(*Board)

// WithClock задаёт источник времени.
func WithClock(clock Clock) Option {
	return func(b *Board) {
		if clock != nil {
			b.now = clock
		}
	}
}

// WithWeek задаёт правило начала недели.
func WithWeek(week timeutil.Week) Option {
	return func(b *Board) {
		b.week = week
	}
}

// WithLimits задаёт размеры секций снапшота.
func WithLimits(leaders, neighbours int) Option {
	return func(b *Board) {
		if leaders > 0 {
			b.leadersLimit = leaders
		}
		if neighbours > 0 {
			b.neighboursLimit = neighbours
		}
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Board) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithResetHook вызывается после каждого недельного сброса (под блокировкой доски).
func WithResetHook(fn func(begin, end time.Time)) Option {
	return func(b *Board) {
		b.onReset = fn
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BOARD
// ══════════════════════════════════════════════════════════════════════════════

// Board - ранжированный индекс пользователей за текущую неделю.
// Все публичные методы выполняются под одной блокировкой на весь индекс.
type Board struct {
	mu sync.Mutex

	users   map[int64]*user
	entries []rankEntry
	head    int
	tail    int

	week  timeutil.Week
	begin time.Time
	end   time.Time

	leadersLimit    int
	neighboursLimit int

	now     Clock
	logger  *slog.Logger
	onReset func(begin, end time.Time)
}

// NewBoard создаёт пустой лидерборд и вычисляет окно текущей недели.
func NewBoard(opts ...Option) *Board {
	b := &Board{
		users:           make(map[int64]*user),
		head:            nilSlot,
		tail:            nilSlot,
		week:            timeutil.DefaultWeek(),
		leadersLimit:    DefaultLeadersLimit,
		neighboursLimit: DefaultNeighboursLimit,
		now:             time.Now,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.begin, b.end = b.week.Bounds(b.now())
	return b
}

// HasUser проверяет, зарегистрирован ли пользователь.
func (b *Board) HasUser(id int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.users[id]
	return ok
}

// AssertUser возвращает NotFound, если пользователь не зарегистрирован.
func (b *Board) AssertUser(id int64) error {
	if !b.HasUser(id) {
		return notFound("AssertUser", id)
	}
	return nil
}

// AddUser регистрирует пользователя с нулевым счётом на последнем месте.
func (b *Board) AddUser(id int64, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.users[id]; ok {
		return shared.NewDomainError(domainName, "AddUser", shared.ErrAlreadyExists,
			fmt.Sprintf("user %d already registered", id))
	}

	rank := int64(1)
	if b.tail != nilSlot {
		rank = b.entries[b.tail].rank + 1
	}

	slot := len(b.entries)
	b.entries = append(b.entries, rankEntry{
		userID: id,
		score:  decimal.Zero,
		rank:   rank,
		prev:   b.tail,
		next:   nilSlot,
	})
	if b.tail != nilSlot {
		b.entries[b.tail].next = slot
	} else {
		b.head = slot
	}
	b.tail = slot

	b.users[id] = &user{name: name, slot: slot}
	return nil
}

// RenameUser меняет отображаемое имя. Счёт и место не меняются.
func (b *Board) RenameUser(id int64, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	u, ok := b.users[id]
	if !ok {
		return notFound("RenameUser", id)
	}
	u.name = name
	return nil
}

// AddScore прибавляет amount к недельному счёту и переранжирует запись.
// amount должен быть строго положительным - это проверяет вызывающий код.
//
// Счёт только растёт, поэтому запись может двигаться только вверх: сканируем от
// предыдущей записи к первому месту, каждая обгоняемая запись (счёт строго меньше
// нового) сдвигается на место ниже. Сканирование останавливается на первой записи
// со счётом >= нового, запись встаёт сразу после неё. Работа ограничена дистанцией
// перемещения.
func (b *Board) AddScore(id int64, when time.Time, amount decimal.Decimal) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollWeekLocked()

	u, ok := b.users[id]
	if !ok {
		return notFound("AddScore", id)
	}

	if when.Before(b.begin) || when.After(b.end) {
		loc := b.week.Location()
		return shared.NewDomainError(domainName, "AddScore", shared.ErrOutOfWindow,
			fmt.Sprintf("date %s is outside week [%s, %s]",
				timeutil.FormatEventTime(when, loc),
				timeutil.FormatEventTime(b.begin, loc),
				timeutil.FormatEventTime(b.end, loc)))
	}

	slot := u.slot
	score := b.entries[slot].score.Add(amount)

	stop := b.entries[slot].prev
	for stop != nilSlot && b.entries[stop].score.LessThan(score) {
		b.entries[stop].rank++
		stop = b.entries[stop].prev
	}

	b.entries[slot].score = score
	if stop == b.entries[slot].prev {
		return nil
	}

	if stop == nilSlot {
		b.entries[slot].rank = 1
	} else {
		b.entries[slot].rank = b.entries[stop].rank + 1
	}

	b.unlinkLocked(slot)
	b.insertAfterLocked(stop, slot)
	return nil
}

// Snapshot строит персональный срез рейтинга для пользователя.
func (b *Board) Snapshot(id int64) (Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollWeekLocked()

	u, ok := b.users[id]
	if !ok {
		return Snapshot{}, notFound("Snapshot", id)
	}
	if b.head == nilSlot {
		return Snapshot{}, shared.NewDomainError(domainName, "Snapshot", shared.ErrEmptyBoard, "leaderboard is empty")
	}

	s := Snapshot{Self: b.lineLocked(u.slot)}

	s.Leaders = make([]Line, 0, b.leadersLimit)
	for slot := b.head; slot != nilSlot && len(s.Leaders) < b.leadersLimit; slot = b.entries[slot].next {
		s.Leaders = append(s.Leaders, b.lineLocked(slot))
	}

	for slot := b.entries[u.slot].prev; slot != nilSlot && len(s.Up) < b.neighboursLimit; slot = b.entries[slot].prev {
		s.Up = append(s.Up, b.lineLocked(slot))
	}
	// Собраны от ближайшего к дальнему, а читать нужно сверху вниз.
	for i, j := 0, len(s.Up)-1; i < j; i, j = i+1, j-1 {
		s.Up[i], s.Up[j] = s.Up[j], s.Up[i]
	}

	for slot := b.entries[u.slot].next; slot != nilSlot && len(s.Down) < b.neighboursLimit; slot = b.entries[slot].next {
		s.Down = append(s.Down, b.lineLocked(slot))
	}

	return s, nil
}

// Render возвращает текст снапшота для пользователя.
func (b *Board) Render(id int64) (string, error) {
	s, err := b.Snapshot(id)
	if err != nil {
		return "", err
	}
	return s.String(), nil
}

// Position возвращает строку рейтинга пользователя.
func (b *Board) Position(id int64) (Line, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollWeekLocked()

	u, ok := b.users[id]
	if !ok {
		return Line{}, notFound("Position", id)
	}
	return b.lineLocked(u.slot), nil
}

// Lines возвращает весь рейтинг, первое место первым.
func (b *Board) Lines() []Line {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollWeekLocked()

	lines := make([]Line, 0, len(b.entries))
	for slot := b.head; slot != nilSlot; slot = b.entries[slot].next {
		lines = append(lines, b.lineLocked(slot))
	}
	return lines
}

// Len возвращает количество зарегистрированных пользователей.
func (b *Board) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.users)
}

// RollWeek выполняет проверку недельного сброса без других операций.
// Возвращает true, если сброс произошёл.
func (b *Board) RollWeek() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rollWeekLocked()
}

// Window возвращает границы текущей недели.
func (b *Board) Window() (begin, end time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.begin, b.end
}

// ══════════════════════════════════════════════════════════════════════════════
// INTERNALS (вызываются под b.mu)
// ══════════════════════════════════════════════════════════════════════════════

// rollWeekLocked обнуляет счета, если неделя закончилась. Порядок мест сохраняется.
func (b *Board) rollWeekLocked() bool {
	now := b.now()
	if !now.After(b.end) {
		return false
	}

	for i := range b.entries {
		b.entries[i].score = decimal.Zero
	}
	b.begin, b.end = b.week.Bounds(now)

	b.logger.Info("leaderboard week reset",
		"users", len(b.users),
		"week_begin", b.begin,
		"week_end", b.end,
	)
	if b.onReset != nil {
		b.onReset(b.begin, b.end)
	}
	return true
}

func (b *Board) lineLocked(slot int) Line {
	e := b.entries[slot]
	return Line{
		Rank:   e.rank,
		UserID: e.userID,
		Name:   b.users[e.userID].name,
		Score:  e.score,
	}
}

func (b *Board) unlinkLocked(slot int) {
	prev, next := b.entries[slot].prev, b.entries[slot].next
	if prev != nilSlot {
		b.entries[prev].next = next
	} else {
		b.head = next
	}
	if next != nilSlot {
		b.entries[next].prev = prev
	} else {
		b.tail = prev
	}
	b.entries[slot].prev, b.entries[slot].next = nilSlot, nilSlot
}

// insertAfterLocked вставляет slot после at; at == nilSlot означает голову списка.
func (b *Board) insertAfterLocked(at, slot int) {
	if at == nilSlot {
		b.entries[slot].prev = nilSlot
		b.entries[slot].next = b.head
		if b.head != nilSlot {
			b.entries[b.head].prev = slot
		} else {
			b.tail = slot
		}
		b.head = slot
		return
	}

	next := b.entries[at].next
	b.entries[slot].prev = at
	b.entries[slot].next = next
	b.entries[at].next = slot
	if next != nilSlot {
		b.entries[next].prev = slot
	} else {
		b.tail = slot
	}
}

func notFound(op string, id int64) error {
	return shared.NewDomainError(domainName, op, shared.ErrNotFound, fmt.Sprintf("user %d not found", id))
}
