package core

import (
	"bloodsync/pkg/domain"
	"context"
	"fmt"
)

// AssignmentTransitionRule blocks illegal assignment state changes.
func AssignmentTransitionRule() domain.Rule {
	return assignmentTransitionRule{}
}

type assignmentTransitionRule struct{}

type assignmentMachine struct {
	initial  map[string]struct{}
	terminal map[string]struct{}
	edges    map[string]map[string]struct{}
}

var assignmentLifecycle = assignmentMachine{
	initial: toSet(
		string(domain.AssignmentStatusAccepted),
		string(domain.AssignmentStatusPending),
	),
	terminal: toSet(string(domain.AssignmentStatusCompleted)),
	edges: map[string]map[string]struct{}{
		string(domain.AssignmentStatusPending): toSet(
			string(domain.AssignmentStatusConfirmedByRequestor),
		),
		string(domain.AssignmentStatusAccepted): toSet(
			string(domain.AssignmentStatusConfirmedByRequestor),
			string(domain.AssignmentStatusCompleted),
		),
		string(domain.AssignmentStatusConfirmedByRequestor): toSet(
			string(domain.AssignmentStatusCompleted),
		),
		string(domain.AssignmentStatusCompleted): {},
	},
}

func (assignmentTransitionRule) Name() string { return "assignment_transition" }

func (r assignmentTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	block := func(id, msg string) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   domain.EntityAssignment,
			EntityID: id,
		})
	}
	m := assignmentLifecycle
	for _, change := range changes {
		if change.Entity != domain.EntityAssignment {
			continue
		}
		after, ok := change.After.(domain.Assignment)
		if !ok {
			continue
		}
		state := string(after.Status)
		if _, valid := m.edges[state]; !valid {
			block(after.ID, fmt.Sprintf("assignment %s is set to invalid state %s", after.ID, state))
			continue
		}
		before, ok := change.Before.(domain.Assignment)
		if !ok {
			if _, ok := m.initial[state]; !ok {
				block(after.ID, fmt.Sprintf("assignment %s cannot start in state %s", after.ID, state))
			}
			continue
		}
		from := string(before.Status)
		if from == state {
			if _, ok := m.terminal[from]; ok && before.UnitsDonated != after.UnitsDonated {
				block(after.ID, fmt.Sprintf("assignment %s is %s and cannot change", after.ID, from))
			}
			continue
		}
		if _, ok := m.edges[from][state]; !ok {
			block(after.ID, fmt.Sprintf("cannot move assignment %s from %s to %s", after.ID, from, state))
		}
	}
	return res, nil
}
