package spy

// Tally counts votes per candidate and returns the suspect: the candidate with
// the strictly highest count, ties going to the candidate seen first when
// walking voters in first-vote order. ok is false when there are no votes.
func Tally(voters []int64, votes map[int64]int64) (suspect int64, count int, ok bool) {
	counts := make(map[int64]int, len(votes))
	var candidates []int64
	for _, v := range voters {
		target, has := votes[v]
		if !has {
			continue
		}
		if _, seen := counts[target]; !seen {
			candidates = append(candidates, target)
		}
		counts[target]++
	}
	for _, c := range candidates {
		if counts[c] > count {
			suspect, count, ok = c, counts[c], true
		}
	}
	return suspect, count, ok
}

// Delta is the point change for one player.
//
//	spy:     caught -1, evaded +1
//	others:  caught +1, evaded -1 (including a wrongly accused player)
func Delta(playerID, spyID int64, caught bool) int {
	if playerID == spyID {
		if caught {
			return -1
		}
		return 1
	}
	if caught {
		return 1
	}
	return -1
}
