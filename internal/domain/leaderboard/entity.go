// Package leaderboard содержит доменную модель недельного лидерборда.
//
// Рейтинг хранится в арене записей ([]rankEntry): каждая запись живёт в своём
// слоте, номер слота не меняется до конца жизни процесса. Порядок рейтинга -
// двусвязный список, проложенный через арену по номерам слотов (prev/next),
// голова списка - первое место. Пользователь хранит номер своего слота,
// запись хранит id пользователя, поэтому перестановки в рейтинге меняют только
// ссылки prev/next и никогда не инвалидируют перекрёстные ссылки.
package leaderboard

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Лимиты по умолчанию для снапшота.
const (
	// DefaultLeadersLimit - сколько лидеров показывать в снапшоте.
	DefaultLeadersLimit = 10

	// DefaultNeighboursLimit - сколько соседей показывать сверху и снизу.
	DefaultNeighboursLimit = 10
)

// nilSlot обозначает отсутствие соседа в списке.
const nilSlot = -1

// user - зарегистрированный участник лидерборда.
type user struct {
	name string
	slot int
}

// rankEntry - запись рейтинга, принадлежит ровно одному пользователю.
type rankEntry struct {
	userID int64
	score  decimal.Decimal
	rank   int64
	prev   int
	next   int
}

// Line - одна строка рейтинга в снапшоте.
type Line struct {
	Rank   int64
	UserID int64
	Name   string
	Score  decimal.Decimal
}

// String форматирует строку так, как её видит пользователь: "<rank>. <name> (id:<id>)  <score>".
func (l Line) String() string {
	return fmt.Sprintf("%d. %s (id:%d)  %s", l.Rank, l.Name, l.UserID, l.Score.StringFixed(2))
}
