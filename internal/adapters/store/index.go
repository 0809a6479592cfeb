package store

// Treap-based ordering index over metadata records.
//
// Ordering: total points DESC, then user id ASC (deterministic). The BST
// comparator treats "less" as "ranks earlier", so an in-order traversal walks
// the leaderboard from best to worst. Points are integral, so no score
// scaling is needed.

type lbNode struct {
	id     string
	points int64
	prio   uint64
	left   *lbNode
	right  *lbNode
	size   int
}

func lbSize(n *lbNode) int {
	if n == nil {
		return 0
	}
	return n.size
}

func lbFix(n *lbNode) {
	if n != nil {
		n.size = 1 + lbSize(n.left) + lbSize(n.right)
	}
}

// lbLess reports whether (aPoints, aID) ranks earlier than (bPoints, bID).
func lbLess(aPoints int64, aID string, bPoints int64, bID string) bool {
	if aPoints != bPoints {
		return aPoints > bPoints // more points ranks earlier
	}
	return aID < bID // tie-breaker by user id asc
}

func lbRotateRight(y *lbNode) *lbNode {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	lbFix(y)
	lbFix(x)
	return x
}

func lbRotateLeft(x *lbNode) *lbNode {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	lbFix(x)
	lbFix(y)
	return y
}

// lbPriority keeps higher point counts higher in the treap. The offset shifts
// negative values into the positive uint64 range.
func lbPriority(points int64) uint64 {
	const offset = uint64(1) << 63
	return uint64(points) + offset
}

func lbInsert(n *lbNode, id string, points int64) *lbNode {
	if n == nil {
		return &lbNode{id: id, points: points, prio: lbPriority(points), size: 1}
	}
	if lbLess(points, id, n.points, n.id) {
		n.left = lbInsert(n.left, id, points)
		if n.left.prio > n.prio {
			n = lbRotateRight(n)
		}
	} else {
		n.right = lbInsert(n.right, id, points)
		if n.right.prio > n.prio {
			n = lbRotateLeft(n)
		}
	}
	lbFix(n)
	return n
}

func lbDelete(n *lbNode, id string, points int64) *lbNode {
	if n == nil {
		return nil
	}
	if points == n.points && id == n.id {
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = lbRotateRight(n)
			n.right = lbDelete(n.right, id, points)
		} else {
			n = lbRotateLeft(n)
			n.left = lbDelete(n.left, id, points)
		}
	} else if lbLess(points, id, n.points, n.id) {
		n.left = lbDelete(n.left, id, points)
	} else {
		n.right = lbDelete(n.right, id, points)
	}
	lbFix(n)
	return n
}

// lbCollectTop appends up to limit entries in rank order.
func lbCollectTop(n *lbNode, limit int, out *[]LeaderboardEntry) {
	if n == nil || len(*out) >= limit {
		return
	}
	lbCollectTop(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, LeaderboardEntry{UserID: n.id, TotalPoints: n.points})
	}
	if len(*out) < limit {
		lbCollectTop(n.right, limit, out)
	}
}

// lbAssignRanks assigns ranks in place with tie handling: equal point counts
// share a rank and ranking stays consecutive.
func lbAssignRanks(entries []LeaderboardEntry) {
	currentRank := 1
	for i := 0; i < len(entries); {
		j := i
		for j < len(entries) && entries[j].TotalPoints == entries[i].TotalPoints {
			entries[j].Rank = currentRank
			j++
		}
		currentRank++
		i = j
	}
}
