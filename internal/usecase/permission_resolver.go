package usecase

import (
	"github.com/zots0127/fileshare/internal/domain/entities"
)

// ResolveMode selects how users absent from every list are treated
type ResolveMode int

const (
	// ResolveInitial leaves unnamed users untouched
	ResolveInitial ResolveMode = iota

	// ResolveUpdate revokes every flag of previously granted users that are
	// no longer named in any list
	ResolveUpdate
)

// ResolvePermissions turns the three requested user lists into the flags each
// user ends up with. Lists are claimed in precedence order edit, download,
// read; a user claimed by a higher list is removed from the lower ones before
// they are applied, so a lower list can never downgrade a flag.
//
// previouslyGranted is only consulted in ResolveUpdate mode.
func ResolvePermissions(req entities.PermissionRequest, mode ResolveMode, previouslyGranted []string) map[string]entities.PermissionFlags {
	result := make(map[string]entities.PermissionFlags)

	tiers := []struct {
		users []string
		flags entities.PermissionFlags
	}{
		{req.EditUsers, entities.FullAccess},
		{req.DownloadUsers, entities.DownloadAccess},
		{req.ReadUsers, entities.ReadAccess},
	}

	claimed := make(map[string]struct{})
	for _, tier := range tiers {
		for _, user := range difference(normalizeUsers(tier.users), claimed) {
			result[user] = tier.flags
			claimed[user] = struct{}{}
		}
	}

	if mode == ResolveUpdate {
		for _, user := range difference(normalizeUsers(previouslyGranted), claimed) {
			result[user] = entities.NoAccess
		}
	}

	return result
}

// normalizeUsers canonicalises, drops blanks and de-duplicates while keeping order
func normalizeUsers(users []string) []string {
	seen := make(map[string]struct{}, len(users))
	out := make([]string, 0, len(users))
	for _, u := range users {
		u = entities.NormalizeEmail(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// difference returns the users not present in claimed
func difference(users []string, claimed map[string]struct{}) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		if _, ok := claimed[u]; !ok {
			out = append(out, u)
		}
	}
	return out
}
