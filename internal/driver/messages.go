package driver

import (
	"fmt"
	"strings"

	"github.com/victornm/chotrivia/internal/domain"
)

func correctMessage(playerID string, q domain.Question) string {
	return fmt.Sprintf("Correct, %s! The answer is %q.", playerID, q.Canonical())
}

func timeoutMessage(q domain.Question) string {
	return fmt.Sprintf("The correct answer was %q.", q.Canonical())
}

// standingsMessage renders the end of game announcement. Players holding the top score
// are marked with a check, everybody else with a cross.
func standingsMessage(st domain.Standings) string {
	if st.Empty() {
		return "Well it appears no one won because no one answered a single question right. " +
			"You people really don't know much about your own world. Come back after you learn some more."
	}

	top := st.Entries[0].Score

	var b strings.Builder
	if st.Ties == 0 {
		fmt.Fprintf(&b, "Alright we're out of questions, the winner is %s!\n\n", st.Entries[0].PlayerID)
	} else {
		fmt.Fprintf(&b, "Alright we're out of questions, it seems to be a %d-way tie!\n\n", st.Ties+1)
	}

	b.WriteString("Scoreboard:\n")
	for _, e := range st.Entries {
		mark := "x"
		if e.Score >= top {
			mark = "v"
		}
		fmt.Fprintf(&b, "%s %d. %s - %s\n", mark, e.Rank, e.PlayerID, Points(e.Score))
	}

	b.WriteString("\nThank you for playing! I hope to see you again soon.")
	return b.String()
}

// Points formats a point count with the right plural.
func Points(n int) string {
	if n == 1 {
		return "1 point"
	}
	return fmt.Sprintf("%d points", n)
}
