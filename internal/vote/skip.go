package vote

// ShouldSkip decides whether an item is marked for eviction. Nothing is
// skipped until minimumVotes have been cast; after that the item is skipped
// once the downvote share reaches voteThreshold (inclusive).
func ShouldSkip(upvotes, downvotes int, voteThreshold float64, minimumVotes int) bool {
	total := upvotes + downvotes
	if total < minimumVotes || total == 0 {
		return false
	}
	return float64(downvotes)/float64(total) >= voteThreshold
}
