package cli

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/haulage/internal/client/bootstrap"
)

// describe renders s on one line for the terminal.
func describe(s bootstrap.Snapshot) string {
	var b strings.Builder

	if s.User == nil {
		b.WriteString("signed out")
	} else {
		who := s.User.Email
		if who == "" {
			who = s.User.ID
		}
		fmt.Fprintf(&b, "user=%s", who)
		fmt.Fprintf(&b, " role=%s", s.Role)
		if s.IsProfileComplete {
			b.WriteString(" profile=complete")
		} else {
			b.WriteString(" profile=incomplete")
		}
		if p := s.Profile; p != nil && p.FirstName != nil && p.LastName != nil {
			fmt.Fprintf(&b, " name=%q", *p.FirstName+" "+*p.LastName)
		}
	}

	if s.Loading {
		b.WriteString(" loading")
	}
	if s.TimedOut {
		b.WriteString(" timed_out")
	}
	if s.InitError != "" {
		fmt.Fprintf(&b, " error=%q", s.InitError)
	}
	return b.String()
}

// getStatus is the prompt decoration: "(email)", "(loading)" or "".
func (a *App) getStatus() string {
	s := a.state.Snapshot()
	switch {
	case s.Loading:
		return "(loading)"
	case s.User == nil:
		return ""
	case !s.IsProfileComplete:
		return fmt.Sprintf("(%s, profile incomplete)", s.User.Email)
	default:
		return fmt.Sprintf("(%s)", s.User.Email)
	}
}
