package leaderboard

import "strings"

// Snapshot - персональный срез лидерборда для одного пользователя.
type Snapshot struct {
	// Self - строка самого пользователя.
	Self Line

	// Leaders - лучшие записи, первое место первым.
	Leaders []Line

	// Up - соседи выше пользователя, ближайший к пользователю последним.
	Up []Line

	// Down - соседи ниже пользователя, ближайший к пользователю первым.
	Down []Line
}

// String рендерит снапшот в текст исходящего сообщения.
func (s Snapshot) String() string {
	var sb strings.Builder

	sb.WriteString("User:\n")
	sb.WriteString(s.Self.String())

	sb.WriteString("\nLeaders:")
	writeLines(&sb, s.Leaders)

	sb.WriteString("\nNeighbours up:")
	if len(s.Up) == 0 {
		sb.WriteString(" empty")
	}
	writeLines(&sb, s.Up)

	sb.WriteString("\nNeighbours down:")
	if len(s.Down) == 0 {
		sb.WriteString(" empty")
	}
	writeLines(&sb, s.Down)

	return sb.String()
}

func writeLines(sb *strings.Builder, lines []Line) {
	for _, l := range lines {
		sb.WriteByte('\n')
		sb.WriteString(l.String())
	}
}
