/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package spyfall

// TallyEntry is the number of live votes against one suspect.
type TallyEntry struct {
	SuspectID   int    `json:"suspectId"`
	SuspectName string `json:"suspectName"`
	Count       int    `json:"count"`
}

// Tally counts votes per suspect, ordered by each suspect's first appearance
// in votes.
func Tally(votes []Vote) []TallyEntry {
	entries := make([]TallyEntry, 0, len(votes))
	index := make(map[int]int, len(votes))

	for _, v := range votes {
		i, ok := index[v.SuspectID]
		if !ok {
			i = len(entries)
			index[v.SuspectID] = i
			entries = append(entries, TallyEntry{SuspectID: v.SuspectID, SuspectName: v.SuspectName})
		}

		entries[i].Count++
	}

	return entries
}

// Decide reports the suspect a round should resolve on, if any. Nothing is
// decided until at least half the roster (rounded up) has voted; the leader
// must then hold at least half the votes cast (rounded up). Ties go to the
// suspect that was voted for first.
func Decide(votes []Vote, players int) (int, bool) {
	cast := len(votes)
	if cast == 0 || cast < ceilHalf(players) {
		return 0, false
	}

	var leader TallyEntry
	for _, e := range Tally(votes) {
		if e.Count > leader.Count {
			leader = e
		}
	}

	if leader.Count < ceilHalf(cast) {
		return 0, false
	}

	return leader.SuspectID, true
}

func ceilHalf(n int) int {
	return (n + 1) / 2
}
