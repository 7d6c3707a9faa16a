// Package command contains write operations (CQRS - Commands).
//
// Inbound messages are newline separated: "<type>\n<user_id>[\n<field>...]".
// Decode turns one message into a typed command; Dispatcher applies it to the
// leaderboard and the reminder scheduler.
package command

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alem-hub/weekly-leaderboard/internal/domain/shared"
	"github.com/alem-hub/weekly-leaderboard/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMMAND TYPES
// ══════════════════════════════════════════════════════════════════════════════

// Wire names of the commands.
const (
	TypeUserRegistered   = "user_registered"
	TypeUserRenamed      = "user_renamed"
	TypeUserDealWon      = "user_deal_won"
	TypeUserConnected    = "user_connected"
	TypeUserDisconnected = "user_disconnected"

	// TypeUnknown labels messages that could not be decoded.
	TypeUnknown = "unknown"
)

// Command is a decoded inbound command.
type Command interface {
	// Type returns the wire name of the command.
	Type() string

	// User returns the id the command refers to.
	User() int64
}

// RegisterUser adds a user to the leaderboard.
type RegisterUser struct {
	UserID int64
	Name   string
}

// RenameUser changes the display name of a user.
type RenameUser struct {
	UserID int64
	Name   string
}

// RecordDeal adds a won deal to the user's weekly score.
type RecordDeal struct {
	UserID int64
	At     time.Time
	Amount decimal.Decimal
}

// ConnectUser starts periodic snapshots for a user.
type ConnectUser struct {
	UserID int64
}

// DisconnectUser stops periodic snapshots for a user.
type DisconnectUser struct {
	UserID int64
}

func (RegisterUser) Type() string   { return TypeUserRegistered }
func (RenameUser) Type() string     { return TypeUserRenamed }
func (RecordDeal) Type() string     { return TypeUserDealWon }
func (ConnectUser) Type() string    { return TypeUserConnected }
func (DisconnectUser) Type() string { return TypeUserDisconnected }

func (c RegisterUser) User() int64   { return c.UserID }
func (c RenameUser) User() int64     { return c.UserID }
func (c RecordDeal) User() int64     { return c.UserID }
func (c ConnectUser) User() int64    { return c.UserID }
func (c DisconnectUser) User() int64 { return c.UserID }

// ══════════════════════════════════════════════════════════════════════════════
// DECODER
// ══════════════════════════════════════════════════════════════════════════════

// Decoder parses raw inbound messages. Deal dates are read in Location.
type Decoder struct {
	Location *time.Location
}

// NewDecoder creates a decoder reading deal dates in loc (nil means UTC).
func NewDecoder(loc *time.Location) Decoder {
	if loc == nil {
		loc = time.UTC
	}
	return Decoder{Location: loc}
}

// Decode parses one message. Fields after the ones a command needs are ignored.
// Every failure is an ErrInvalidInput domain error.
func (d Decoder) Decode(raw []byte) (Command, error) {
	fields := strings.Split(string(raw), "\n")
	kind := fields[0]

	switch kind {
	case TypeUserRegistered, TypeUserRenamed, TypeUserDealWon, TypeUserConnected, TypeUserDisconnected:
	default:
		return nil, invalid(fmt.Sprintf("unknown command type %q", kind))
	}

	if len(fields) < 2 {
		return nil, invalid("missing user id")
	}
	id, err := ParseUserID(fields[1])
	if err != nil {
		return nil, err
	}

	switch kind {
	case TypeUserRegistered, TypeUserRenamed:
		if len(fields) < 3 {
			return nil, invalid("missing name")
		}
		name, err := ParseName(fields[2])
		if err != nil {
			return nil, err
		}
		if kind == TypeUserRegistered {
			return RegisterUser{UserID: id, Name: name}, nil
		}
		return RenameUser{UserID: id, Name: name}, nil

	case TypeUserDealWon:
		if len(fields) < 4 {
			return nil, invalid("missing deal date or amount")
		}
		at, err := d.parseDate(fields[2])
		if err != nil {
			return nil, err
		}
		amount, err := ParseAmount(fields[3])
		if err != nil {
			return nil, err
		}
		return RecordDeal{UserID: id, At: at, Amount: amount}, nil

	case TypeUserConnected:
		return ConnectUser{UserID: id}, nil

	default:
		return DisconnectUser{UserID: id}, nil
	}
}

func (d Decoder) parseDate(s string) (time.Time, error) {
	at, err := timeutil.ParseEventTime(s, d.Location)
	if err != nil {
		return time.Time{}, shared.WrapError("command", "Decode", shared.ErrInvalidInput,
			fmt.Sprintf("invalid deal date %q", s), err)
	}
	return at, nil
}

// ParseUserID accepts a non-empty string of ASCII digits that fits int64.
func ParseUserID(s string) (int64, error) {
	if s == "" || !allDigits(s) {
		return 0, invalid(fmt.Sprintf("invalid user id %q", s))
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, invalid(fmt.Sprintf("user id %q out of range", s))
	}
	return id, nil
}

// ParseName accepts a non-empty string of ASCII letters and digits.
func ParseName(s string) (string, error) {
	if s == "" {
		return "", invalid("empty name")
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !isDigit(c) && !(c >= 'a' && c <= 'z') && !(c >= 'A' && c <= 'Z') {
			return "", invalid(fmt.Sprintf("invalid name %q", s))
		}
	}
	return s, nil
}

// ParseAmount accepts a decimal number greater than zero.
func ParseAmount(s string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, invalid(fmt.Sprintf("invalid amount %q", s))
	}
	if !amount.IsPositive() {
		return decimal.Decimal{}, invalid(fmt.Sprintf("amount %q must be positive", s))
	}
	return amount, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func invalid(message string) error {
	return shared.NewDomainError("command", "Decode", shared.ErrInvalidInput, message)
}
