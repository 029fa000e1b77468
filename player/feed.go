package player

type FeedStatus string

const (
	FeedLoading   FeedStatus = "loading"
	FeedEmpty     FeedStatus = "empty"
	FeedMalformed FeedStatus = "malformed"
	FeedReady     FeedStatus = "ready"
)

// Classify quyết định feed hiển thị được chưa
func Classify(loading bool, units, quizzes int) FeedStatus {
	switch {
	case loading:
		return FeedLoading
	case units == 0:
		return FeedEmpty
	case quizzes > 0 && quizzes != units:
		return FeedMalformed
	default:
		return FeedReady
	}
}
