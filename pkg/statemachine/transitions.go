// Package statemachine defines the content approval state machine and the
// transition validator that guards it. The transition table and the role
// allow-lists are the single source of truth for which state changes exist
// and who may request them.
package statemachine

import (
	"sort"

	"github.com/medwise/remedion/pkg/models"
)

// transitionTable maps (current state, action) to the resulting state. Any
// pair missing from the table is an illegal transition. ARCHIVED and EXPIRED
// have no automatic outgoing transitions; both support an explicit RESTORE.
var transitionTable = map[models.WorkflowState]map[models.WorkflowAction]models.WorkflowState{
	models.StateDraft: {
		models.ActionSubmitForReview: models.StateReview,
		models.ActionArchive:         models.StateArchived,
	},
	models.StateReview: {
		models.ActionApprove:        models.StateApproved,
		models.ActionReject:         models.StateRejected,
		models.ActionRequestChanges: models.StateDraft,
	},
	models.StateApproved: {
		models.ActionPublish:  models.StatePublished,
		models.ActionWithdraw: models.StateDraft,
	},
	models.StateRejected: {
		models.ActionRestore: models.StateDraft,
	},
	models.StatePublished: {
		models.ActionArchive:  models.StateArchived,
		models.ActionWithdraw: models.StateDraft,
	},
	models.StateArchived: {
		models.ActionRestore: models.StateDraft,
	},
	models.StateExpired: {
		models.ActionRestore: models.StateDraft,
	},
}

// roleAllowlist maps each action to the roles permitted to perform it.
// RoleAdmin is an implicit override for every action and is not listed.
var roleAllowlist = map[models.WorkflowAction][]models.WorkflowRole{
	models.ActionSubmitForReview: {models.RoleAuthor, models.RoleEditor},
	models.ActionApprove:         {models.RoleApprover},
	models.ActionReject:          {models.RoleReviewer, models.RoleApprover},
	models.ActionRequestChanges:  {models.RoleReviewer, models.RoleApprover},
	models.ActionPublish:         {models.RolePublisher},
	models.ActionWithdraw:        {models.RolePublisher, models.RoleEditor},
	models.ActionArchive:         {models.RoleEditor},
	models.ActionRestore:         {models.RoleEditor},
}

// knownStates gates the legality check so an unrecognized current state is
// reported as INVALID_WORKFLOW_STATE rather than as a missing transition.
var knownStates = map[models.WorkflowState]struct{}{
	models.StateDraft:     {},
	models.StateReview:    {},
	models.StateApproved:  {},
	models.StateRejected:  {},
	models.StatePublished: {},
	models.StateArchived:  {},
	models.StateExpired:   {},
}

var knownRoles = map[models.WorkflowRole]struct{}{
	models.RoleAuthor:    {},
	models.RoleEditor:    {},
	models.RoleReviewer:  {},
	models.RoleApprover:  {},
	models.RolePublisher: {},
	models.RoleAdmin:     {},
}

// Lookup returns the target state for a (state, action) pair and whether the
// pair is a legal transition.
func Lookup(from models.WorkflowState, action models.WorkflowAction) (models.WorkflowState, bool) {
	actions, ok := transitionTable[from]
	if !ok {
		return "", false
	}

	to, ok := actions[action]

	return to, ok
}

// AllowedActions returns the actions available from a state, sorted for
// stable API responses. Unknown states return an empty slice.
func AllowedActions(from models.WorkflowState) []models.WorkflowAction {
	actions := make([]models.WorkflowAction, 0, len(transitionTable[from]))
	for action := range transitionTable[from] {
		actions = append(actions, action)
	}

	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })

	return actions
}

// RoleAllowed reports whether a role may perform an action. Admins may
// perform every action.
func RoleAllowed(action models.WorkflowAction, role models.WorkflowRole) bool {
	if role == models.RoleAdmin {
		return true
	}

	for _, allowed := range roleAllowlist[action] {
		if allowed == role {
			return true
		}
	}

	return false
}

// KnownState reports whether the state is part of the workflow vocabulary.
func KnownState(state models.WorkflowState) bool {
	_, ok := knownStates[state]

	return ok
}

// KnownRole reports whether the role is part of the workflow vocabulary.
func KnownRole(role models.WorkflowRole) bool {
	_, ok := knownRoles[role]

	return ok
}

// States returns every state in the machine, sorted. Used by the exhaustive
// illegal-transition checks and by the API when listing the machine.
func States() []models.WorkflowState {
	states := make([]models.WorkflowState, 0, len(knownStates))
	for state := range knownStates {
		states = append(states, state)
	}

	sort.Slice(states, func(i, j int) bool { return states[i] < states[j] })

	return states
}

// Actions returns every action in the machine, sorted.
func Actions() []models.WorkflowAction {
	seen := make(map[models.WorkflowAction]struct{})
	for _, transitions := range transitionTable {
		for action := range transitions {
			seen[action] = struct{}{}
		}
	}

	actions := make([]models.WorkflowAction, 0, len(seen))
	for action := range seen {
		actions = append(actions, action)
	}

	sort.Slice(actions, func(i, j int) bool { return actions[i] < actions[j] })

	return actions
}
