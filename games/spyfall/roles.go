/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package spyfall

import "fmt"

// SpyRole is the role handed to the spy in place of a location role.
const SpyRole = "Spy"

// AssignRoles gives the spy SpyRole and every other player a distinct role
// from the location. When the location runs out of roles the rest become
// "Visitor 1", "Visitor 2" and so on.
func AssignRoles(players []Player, spyID int, loc Location, rng Random) map[int]string {
	seen := make(map[string]bool, len(loc.Roles))
	pool := make([]string, 0, len(loc.Roles))

	for _, role := range loc.Roles {
		if role == "" || role == SpyRole || seen[role] {
			continue
		}
		seen[role] = true
		pool = append(pool, role)
	}

	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	roles := make(map[int]string, len(players))
	next, visitors := 0, 0

	for _, p := range players {
		if p.ID == spyID {
			roles[p.ID] = SpyRole

			continue
		}

		if next < len(pool) {
			roles[p.ID] = pool[next]
			next++

			continue
		}

		for {
			visitors++
			filler := fmt.Sprintf("Visitor %d", visitors)
			if !seen[filler] {
				roles[p.ID] = filler

				break
			}
		}
	}

	return roles
}
