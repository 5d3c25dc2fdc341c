package oracle

import (
	"context"
	"fmt"
	"strings"
)

// Script maps a lowercase question fragment to the SQL returned for it.
type Script struct {
	Match string
	SQL   string
}

// DefaultScripts answer the demo questions over an employees table.
var DefaultScripts = []Script{
	{Match: "get all employees", SQL: "SELECT * FROM employees"},
	{Match: "who is the manager", SQL: "SELECT name FROM employees WHERE role = 'Manager'"},
	{Match: "count the staff", SQL: "SELECT count(*) FROM employees"},
	{Match: "show me high earners", SQL: "SELECT name, salary FROM employees WHERE salary > 50000"},
}

// Scripted is an offline oracle that answers from a fixed script. Scripts are
// tried in order and the first fragment contained in the question wins.
type Scripted struct {
	scripts []Script
	repairs map[string]string
}

// NewScripted creates a scripted oracle. With no scripts it uses
// DefaultScripts.
func NewScripted(scripts ...Script) *Scripted {
	if len(scripts) == 0 {
		scripts = DefaultScripts
	}
	return &Scripted{scripts: scripts, repairs: make(map[string]string)}
}

// WithRepair registers the SQL returned when badSQL is sent for repair.
func (s *Scripted) WithRepair(badSQL, fixed string) *Scripted {
	s.repairs[badSQL] = fixed
	return s
}

func (s *Scripted) Draft(_ context.Context, _ string, question string) (string, error) {
	q := strings.ToLower(strings.TrimSpace(question))
	for _, script := range s.scripts {
		if strings.Contains(q, script.Match) {
			return script.SQL, nil
		}
	}
	return "", fmt.Errorf("no scripted answer for question %q", question)
}

// Repair returns the registered fix for badSQL, or badSQL itself.
func (s *Scripted) Repair(_ context.Context, _ string, badSQL, _ string) (string, error) {
	if fixed, ok := s.repairs[badSQL]; ok {
		return fixed, nil
	}
	return badSQL, nil
}
